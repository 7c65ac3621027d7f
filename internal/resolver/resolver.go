// Package resolver decides which tenant a request acts as, from a tenant API
// key, an X-Tenant-ID header, or both.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/controlplane"
	"github.com/metafuse/tenant-gateway/internal/tenant"
	"go.uber.org/zap"
)

const TenantIDHeader = "X-Tenant-ID"

type Config struct {
	// AllowHeaderOnly permits resolution from X-Tenant-ID without a tenant
	// key. Any caller can name any tenant when this is on.
	AllowHeaderOnly bool
}

// Result is a resolved tenant plus the id of the key that resolved it.
// APIKeyID is empty for header-only resolution.
type Result struct {
	Tenant   *tenant.ResolvedTenant
	APIKeyID string
}

type Resolver struct {
	cp  controlplane.ControlPlane
	cfg Config
	log *zap.Logger
}

func New(cp controlplane.ControlPlane, cfg Config, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{cp: cp, cfg: cfg, log: log}
}

func (r *Resolver) Config() Config {
	return r.cfg
}

// BearerToken returns the trimmed token of a "Bearer <token>" header, or "".
func BearerToken(authorization string) string {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// Resolve returns (nil, nil) when neither a tenant key nor a tenant header is
// present. Errors are *apierror.Error values ready to be rendered.
func (r *Resolver) Resolve(ctx context.Context, authorization, tenantHeader string) (*Result, error) {
	key := BearerToken(authorization)
	header := strings.TrimSpace(tenantHeader)

	switch {
	case controlplane.IsTenantKey(key):
		return r.fromKey(ctx, key, header)
	case header != "":
		return r.fromHeader(ctx, header)
	default:
		return nil, nil
	}
}

func (r *Resolver) fromKey(ctx context.Context, key, header string) (*Result, error) {
	validated, err := r.cp.ValidateTenantAPIKey(ctx, key)
	if err != nil {
		r.log.Error("failed to validate tenant api key", zap.Error(err))
		return nil, apierror.Internal("Failed to validate API key", err)
	}
	if validated == nil {
		r.log.Debug("invalid or expired tenant api key")
		return nil, apierror.Unauthorized("Invalid or expired API key")
	}

	keyTenant := validated.TenantID.String()
	if header != "" && header != keyTenant {
		r.log.Warn("tenant id mismatch between api key and header",
			zap.String("key_tenant", keyTenant),
			zap.String("header_tenant", header))
		return nil, apierror.Forbidden(fmt.Sprintf(
			"Tenant ID mismatch: API key belongs to '%s' but header specifies '%s'", keyTenant, header))
	}

	resolved := tenant.FromAPIKey(validated.TenantID, validated.Role, validated.Tier, header != "")
	r.log.Debug("resolved tenant",
		zap.String("tenant_id", keyTenant),
		zap.Stringer("source", resolved.Source()),
		zap.Stringer("role", validated.Role))

	return &Result{Tenant: resolved, APIKeyID: validated.KeyHash}, nil
}

func (r *Resolver) fromHeader(ctx context.Context, header string) (*Result, error) {
	if !r.cfg.AllowHeaderOnly {
		r.log.Debug("header-only tenant resolution disabled", zap.String("header_tenant", header))
		return nil, apierror.Unauthorized("Tenant API key required. Header-only resolution is disabled.")
	}

	id, err := tenant.ParseID(header)
	if err != nil {
		r.log.Warn("invalid tenant id format in header", zap.String("header_tenant", header), zap.Error(err))
		return nil, apierror.Invalid(fmt.Sprintf("Invalid tenant ID format: %v", err))
	}

	rec, err := r.cp.GetTenant(ctx, id)
	if err != nil {
		r.log.Error("failed to verify tenant", zap.String("tenant_id", id.String()), zap.Error(err))
		return nil, apierror.Internal("Failed to verify tenant", err)
	}
	if rec == nil {
		return nil, apierror.NotFound(fmt.Sprintf("Tenant '%s' not found", id))
	}
	if !rec.IsOperational() {
		return nil, apierror.Forbidden(fmt.Sprintf("Tenant '%s' is not active (status: %s)", id, rec.Status))
	}

	r.log.Debug("resolved tenant from header", zap.String("tenant_id", id.String()))
	return &Result{Tenant: tenant.FromHeader(id, rec.Tier)}, nil
}

// ResolveOptional never fails: any error is logged and no tenant is returned.
func (r *Resolver) ResolveOptional(ctx context.Context, authorization, tenantHeader string) *Result {
	res, err := r.Resolve(ctx, authorization, tenantHeader)
	if err != nil {
		r.log.Debug("optional tenant resolution skipped",
			zap.String("reason", apierror.ErrorCode(err)),
			zap.String("message", apierror.ErrorMessage(err)))
		return nil
	}
	return res
}
