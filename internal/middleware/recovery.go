package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
	"go.uber.org/zap"
)

func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := reqctx.From(c).RequestID
				log.Error("panic recovered",
					zap.String("request_id", requestID),
					zap.Any("panic", err),
					zap.Stack("stack"))

				apierror.Abort(c, apierror.Internal("", nil), requestID)
			}
		}()
		c.Next()
	}
}
