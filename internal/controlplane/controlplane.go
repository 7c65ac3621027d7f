// Package controlplane defines the boundary between request gating and the
// store that owns tenants and tenant API keys.
package controlplane

import (
	"context"
	"strings"

	"github.com/metafuse/tenant-gateway/internal/tenant"
)

const (
	// TenantKeyPrefix marks tenant scoped API keys.
	TenantKeyPrefix = "mft_"
	// GlobalKeyPrefix marks global, non-tenant API keys.
	GlobalKeyPrefix = "mf_"
)

// IsTenantKey reports whether key carries the tenant key prefix.
func IsTenantKey(key string) bool {
	return strings.HasPrefix(key, TenantKeyPrefix)
}

// IsGlobalKey reports whether key is a global key. Tenant keys never match.
func IsGlobalKey(key string) bool {
	return strings.HasPrefix(key, GlobalKeyPrefix) && !IsTenantKey(key)
}

// ValidatedTenantKey is the result of a successful tenant key validation.
type ValidatedTenantKey struct {
	KeyHash  string
	TenantID tenant.ID
	Name     string
	Role     tenant.Role
	Tier     tenant.Tier
}

// ControlPlane validates tenant API keys and looks up tenants.
//
// Both lookups return (nil, nil) when nothing matches; a non-nil error
// always means the lookup itself failed.
type ControlPlane interface {
	ValidateTenantAPIKey(ctx context.Context, key string) (*ValidatedTenantKey, error)
	GetTenant(ctx context.Context, id tenant.ID) (*tenant.Record, error)
}
