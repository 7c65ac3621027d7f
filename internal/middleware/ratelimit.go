package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/metrics"
	"github.com/metafuse/tenant-gateway/internal/ratelimit"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
	"go.uber.org/zap"
)

type rateLimitError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rateLimitBody struct {
	Error      rateLimitError `json:"error"`
	RequestID  *string        `json:"request_id"`
	RetryAfter int64          `json:"retry_after"`
}

// RateLimit admits or rejects each request against limiter. It must run after
// the tenant resolver and API key validator so the bucket key can use their
// identities. stats may be nil and is called inline, so a recorder backed by
// a remote store should be wrapped in ratelimit.NewAsyncStats.
func RateLimit(limiter *ratelimit.Limiter, reg *metrics.Registry, stats ratelimit.StatsRecorder, log *zap.Logger) gin.HandlerFunc {
	cfg := limiter.Config()

	return func(c *gin.Context) {
		rc := reqctx.From(c)

		key, limit := cfg.Key(ratelimit.IdentityFromRequest(c.Request, rc.Tenant, rc.APIKeyID))
		if key == "anon:unknown" {
			log.Warn("rate limiting request with no resolvable identity",
				zap.String("request_id", rc.RequestID),
				zap.String("remote_addr", c.Request.RemoteAddr))
		}

		d := limiter.Check(key, limit)
		reg.SetRateLimitBuckets(limiter.Len())
		record(c.Request.Context(), stats, log, ratelimit.StatsEvent{Key: key, Allowed: d.Allowed, At: time.Now()})

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.Reset, 10))

		if !d.Allowed {
			tier := ""
			if rc.Tenant != nil {
				tier = rc.Tenant.Tier().String()
			}
			reg.RateLimitHit(rc.TenantID(), tier)
			log.Debug("rate limit exceeded",
				zap.String("request_id", rc.RequestID),
				zap.String("key", key),
				zap.Int("limit", d.Limit))

			var requestID *string
			if rc.RequestID != "" {
				requestID = &rc.RequestID
			}
			c.Header("Retry-After", strconv.FormatInt(d.RetryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, rateLimitBody{
				Error: rateLimitError{
					Code:    "RATE_LIMIT_EXCEEDED",
					Message: "Too many requests. Please retry after the specified time.",
				},
				RequestID:  requestID,
				RetryAfter: d.RetryAfter,
			})
			return
		}

		rc.RateLimit = &reqctx.RateLimitInfo{
			Key:       key,
			Limit:     d.Limit,
			Remaining: d.Remaining,
			Reset:     d.Reset,
		}
		c.Next()
	}
}

func record(ctx context.Context, stats ratelimit.StatsRecorder, log *zap.Logger, ev ratelimit.StatsEvent) {
	if stats == nil {
		return
	}
	if err := stats.Record(ctx, ev); err != nil {
		log.Debug("failed to record rate limit stats", zap.Error(err))
	}
}
