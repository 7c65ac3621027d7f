package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
	"go.uber.org/zap"
)

func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		rc := reqctx.From(c)
		fields := []zap.Field{
			zap.String("request_id", rc.RequestID),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if tid := rc.TenantID(); tid != "" {
			fields = append(fields, zap.String("tenant_id", tid))
		}

		log.Info("request", fields...)
	}
}
