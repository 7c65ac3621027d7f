// Package reqctx holds the typed per-request state shared by the middleware
// chain. Every middleware reads and writes the same *RequestContext instead of
// looking values up by loosely typed keys.
package reqctx

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/tenant"
)

const ginKey = "reqctx"

type ctxKey struct{}

// RequestContext is created by the first middleware that needs it and lives
// until the request completes.
type RequestContext struct {
	RequestID string

	// Tenant is nil when no tenant was resolved.
	Tenant *tenant.ResolvedTenant

	// APIKeyID identifies the presenting API key, tenant scoped or global.
	APIKeyID string

	// GlobalAdmin is set when a global key with admin rights was presented.
	GlobalAdmin bool

	// RateLimit is set once the limiter has admitted the request.
	RateLimit *RateLimitInfo
}

type RateLimitInfo struct {
	Key       string
	Limit     int
	Remaining int
	Reset     int64
}

// TenantID returns the resolved tenant id or "".
func (rc *RequestContext) TenantID() string {
	if rc == nil || rc.Tenant == nil {
		return ""
	}
	return rc.Tenant.ID().String()
}

// From returns the request's context, attaching a fresh one on first use.
func From(c *gin.Context) *RequestContext {
	if v, ok := c.Get(ginKey); ok {
		if rc, ok := v.(*RequestContext); ok {
			return rc
		}
	}
	rc := &RequestContext{}
	Attach(c, rc)
	return rc
}

// Attach binds rc to both the gin context and the underlying request
// context so handlers outside gin can reach it.
func Attach(c *gin.Context, rc *RequestContext) {
	c.Set(ginKey, rc)
	if c.Request != nil {
		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), rc))
	}
}

func NewContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the RequestContext stored in ctx, or nil.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(ctxKey{}).(*RequestContext)
	return rc
}
