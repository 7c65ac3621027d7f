package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
	"github.com/metafuse/tenant-gateway/internal/resolver"
)

// TenantResolver attaches the resolved tenant to the request context or
// aborts with the resolution error. Requests carrying neither a tenant key
// nor a tenant header pass through untouched.
func TenantResolver(r *resolver.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.From(c)

		res, err := r.Resolve(c.Request.Context(),
			c.GetHeader("Authorization"), c.GetHeader(resolver.TenantIDHeader))
		if err != nil {
			apierror.Abort(c, err, rc.RequestID)
			return
		}

		attach(rc, res)
		c.Next()
	}
}

// OptionalTenantResolver is TenantResolver without the failures: a request
// whose credentials do not resolve simply proceeds without a tenant.
func OptionalTenantResolver(r *resolver.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.From(c)

		res := r.ResolveOptional(c.Request.Context(),
			c.GetHeader("Authorization"), c.GetHeader(resolver.TenantIDHeader))
		attach(rc, res)

		c.Next()
	}
}

func attach(rc *reqctx.RequestContext, res *resolver.Result) {
	if res == nil {
		return
	}
	rc.Tenant = res.Tenant
	if res.APIKeyID != "" {
		rc.APIKeyID = res.APIKeyID
	}
}
