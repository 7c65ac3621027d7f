package tenant

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownRole = errors.New("unknown role")

// Role is the capability class attached to a tenant API key.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "editor":
		return RoleEditor, nil
	case "viewer":
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, s)
	}
}

func (r Role) String() string {
	return string(r)
}

func (r Role) CanRead() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

func (r Role) CanWrite() bool {
	return r == RoleAdmin || r == RoleEditor
}

// CanDelete and CanManageKeys are admin-only; editor write access does not
// extend to either.
func (r Role) CanDelete() bool {
	return r == RoleAdmin
}

func (r Role) CanManageKeys() bool {
	return r == RoleAdmin
}
