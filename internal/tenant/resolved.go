package tenant

import "fmt"

// Source records which credentials a tenant was resolved from.
type Source int

const (
	SourceAPIKey Source = iota
	SourceHeader
	SourceBoth
)

func (s Source) String() string {
	switch s {
	case SourceAPIKey:
		return "api_key"
	case SourceHeader:
		return "header"
	case SourceBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ResolvedTenant is the identity a request acts as. It is built once per
// request by the resolver and never mutated afterwards.
//
// A nil role only occurs for header-only resolution.
type ResolvedTenant struct {
	id     ID
	role   *Role
	source Source
	tier   Tier
}

// FromAPIKey builds a tenant resolved from a validated key. When headerMatched
// is true the X-Tenant-ID header was present and agreed with the key.
func FromAPIKey(id ID, role Role, tier Tier, headerMatched bool) *ResolvedTenant {
	source := SourceAPIKey
	if headerMatched {
		source = SourceBoth
	}
	return &ResolvedTenant{id: id, role: &role, source: source, tier: tier}
}

// FromHeader builds a tenant resolved from X-Tenant-ID alone. It carries no role.
func FromHeader(id ID, tier Tier) *ResolvedTenant {
	return &ResolvedTenant{id: id, source: SourceHeader, tier: tier}
}

func (t *ResolvedTenant) ID() ID {
	return t.id
}

// Role returns the key role and false when the tenant was resolved by header.
func (t *ResolvedTenant) Role() (Role, bool) {
	if t.role == nil {
		return "", false
	}
	return *t.role, true
}

// EffectiveRole is the key role, or viewer when none is present.
func (t *ResolvedTenant) EffectiveRole() Role {
	if t.role == nil {
		return RoleViewer
	}
	return *t.role
}

func (t *ResolvedTenant) Source() Source {
	return t.source
}

func (t *ResolvedTenant) Tier() Tier {
	return t.tier
}

func (t *ResolvedTenant) CanRead() bool       { return t.EffectiveRole().CanRead() }
func (t *ResolvedTenant) CanWrite() bool      { return t.EffectiveRole().CanWrite() }
func (t *ResolvedTenant) CanDelete() bool     { return t.EffectiveRole().CanDelete() }
func (t *ResolvedTenant) CanManageKeys() bool { return t.EffectiveRole().CanManageKeys() }

func (t *ResolvedTenant) String() string {
	return fmt.Sprintf("%s(%s)", t.id, t.source)
}
