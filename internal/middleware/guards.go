package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
	"github.com/metafuse/tenant-gateway/internal/tenant"
)

// The Require*Permission checks grant access when no tenant was resolved at
// all. Deployments without tenant credentials keep working unchanged; routes
// that must have a tenant add RequireTenant in front.

func RequireWritePermission(t *tenant.ResolvedTenant) error {
	if t == nil || t.CanWrite() {
		return nil
	}
	return apierror.Forbidden(fmt.Sprintf(
		"Write permission required. Current role: %s", t.EffectiveRole()))
}

func RequireDeletePermission(t *tenant.ResolvedTenant) error {
	if t == nil || t.CanDelete() {
		return nil
	}
	return apierror.Forbidden(fmt.Sprintf(
		"Delete permission required. Requires admin role. Current role: %s", t.EffectiveRole()))
}

func RequireManageKeysPermission(t *tenant.ResolvedTenant) error {
	if t == nil || t.CanManageKeys() {
		return nil
	}
	return apierror.Forbidden(fmt.Sprintf(
		"Key management permission required. Requires admin role. Current role: %s", t.EffectiveRole()))
}

// RequireTenant rejects requests that carry no resolved tenant.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.From(c)
		if rc.Tenant == nil {
			apierror.Abort(c, apierror.Unauthorized(
				"Tenant context required. Provide tenant API key or X-Tenant-ID header."), rc.RequestID)
			return
		}
		c.Next()
	}
}

// RequireWrite, unlike RequireWritePermission, insists on a tenant.
func RequireWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.From(c)
		if rc.Tenant == nil {
			apierror.Abort(c, apierror.Unauthorized("Tenant context required for write operations."), rc.RequestID)
			return
		}
		if err := RequireWritePermission(rc.Tenant); err != nil {
			apierror.Abort(c, err, rc.RequestID)
			return
		}
		c.Next()
	}
}

func RequireDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.From(c)
		if rc.Tenant == nil {
			apierror.Abort(c, apierror.Unauthorized("Tenant context required for delete operations."), rc.RequestID)
			return
		}
		if err := RequireDeletePermission(rc.Tenant); err != nil {
			apierror.Abort(c, err, rc.RequestID)
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.From(c)
		if rc.Tenant == nil {
			apierror.Abort(c, apierror.Unauthorized("Tenant context required for admin operations."), rc.RequestID)
			return
		}
		if !rc.Tenant.CanManageKeys() {
			apierror.Abort(c, apierror.Forbidden(fmt.Sprintf(
				"Admin permission required. Current role: %s", rc.Tenant.EffectiveRole())), rc.RequestID)
			return
		}
		c.Next()
	}
}

// MethodPermission applies the permission check matching the HTTP method:
// reads always pass, DELETE needs delete rights, other writes need write
// rights. Requests without a tenant are let through.
func MethodPermission() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.From(c)

		var err error
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		case http.MethodDelete:
			err = RequireDeletePermission(rc.Tenant)
		default:
			err = RequireWritePermission(rc.Tenant)
		}

		if err != nil {
			apierror.Abort(c, err, rc.RequestID)
			return
		}
		c.Next()
	}
}

// RequireGlobalAdmin guards the control plane admin API. It only accepts a
// global key flagged as admin.
func RequireGlobalAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.From(c)
		if rc.APIKeyID == "" {
			apierror.Abort(c, apierror.Unauthorized("API key required."), rc.RequestID)
			return
		}
		if !rc.GlobalAdmin {
			apierror.Abort(c, apierror.Forbidden("Admin API key required."), rc.RequestID)
			return
		}
		c.Next()
	}
}
