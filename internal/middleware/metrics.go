package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/metrics"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
)

// Metrics records request counters and latency. Paths are the matched route
// template so label cardinality stays bounded.
func Metrics(reg *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if reg == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		reg.ObserveHTTPRequest(reqctx.From(c).TenantID(), c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
