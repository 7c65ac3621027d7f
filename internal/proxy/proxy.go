// Package proxy forwards catalog API traffic to the upstreams. Every request
// holds a pool lease for its tenant while it is in flight, so the tenant's
// concurrency cap and circuit breaker govern real upstream traffic.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/circuitbreaker"
	"github.com/metafuse/tenant-gateway/internal/pool"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
	"github.com/metafuse/tenant-gateway/internal/resolver"
	"go.uber.org/zap"
)

// DefaultTenant is the pool bucket for requests without a resolved tenant.
const DefaultTenant = "default"

var errUpstreamStatus = errors.New("catalog upstream returned a server error")

type Proxy struct {
	pool *pool.Pool
	log  *zap.Logger
}

func New(p *pool.Pool, log *zap.Logger) *Proxy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Proxy{pool: p, log: log}
}

// Handle forwards the request to an upstream chosen by the pool's backend.
// Upstream 5xx responses and transport errors count against the tenant's
// breaker.
func (p *Proxy) Handle(c *gin.Context) {
	rc := reqctx.From(c)
	ctx := c.Request.Context()

	tenantID := rc.TenantID()
	if tenantID == "" {
		tenantID = DefaultTenant
	}

	lease, err := p.pool.Acquire(ctx, tenantID)
	if err != nil {
		p.abortAcquire(c, rc, tenantID, err)
		return
	}

	conn, ok := lease.Conn().(*upstreamConn)
	if !ok {
		lease.Release(nil)
		apierror.Abort(c, apierror.Internal("", fmt.Errorf("unexpected connection type %T", lease.Conn())), rc.RequestID)
		return
	}

	req := c.Request
	req.Header.Del(resolver.TenantIDHeader)
	if rc.Tenant != nil {
		req.Header.Set(resolver.TenantIDHeader, rc.Tenant.ID().String())
	}
	if rc.RequestID != "" {
		req.Header.Set("X-Request-ID", rc.RequestID)
	}
	c.Header("X-Backend-Server", conn.target)

	recorder := &responseRecorder{ResponseWriter: c.Writer, statusCode: http.StatusOK}
	c.Writer = recorder

	conn.proxy.ServeHTTP(recorder, req)

	var outcome error
	switch {
	case ctx.Err() != nil:
		outcome = context.Canceled
	case recorder.statusCode >= http.StatusInternalServerError:
		outcome = errUpstreamStatus
	}
	lease.Release(outcome)
}

func (p *Proxy) abortAcquire(c *gin.Context, rc *reqctx.RequestContext, tenantID string, err error) {
	var apiErr error
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		apiErr = apierror.Unavailable("Catalog backend temporarily unavailable for this tenant. Retry later.", err)
	case errors.Is(err, pool.ErrAcquireTimeout):
		apiErr = apierror.Unavailable("Too many concurrent requests for this tenant. Timed out waiting for a connection.", err)
	case errors.Is(err, ErrNoHealthyUpstream):
		apiErr = apierror.Unavailable("No healthy catalog backend available.", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.Abort()
		return
	default:
		apiErr = apierror.Internal("", err)
	}

	p.log.Warn("catalog request rejected",
		zap.String("request_id", rc.RequestID),
		zap.String("tenant_id", tenantID),
		zap.Error(err))
	apierror.Abort(c, apiErr, rc.RequestID)
}

type responseRecorder struct {
	gin.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
