package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/controlplane"
	"github.com/metafuse/tenant-gateway/internal/models"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
	"github.com/metafuse/tenant-gateway/internal/resolver"
	"go.uber.org/zap"
)

// GlobalKeyValidator is implemented by service.APIKeyService.
type GlobalKeyValidator interface {
	Validate(ctx context.Context, key string) (*models.APIKey, error)
	UpdateLastUsed(ctx context.Context, id uuid.UUID)
}

// APIKeyValidator accepts a global key from X-API-Key or from an
// Authorization bearer token with the global prefix. Tenant keys are left to
// the tenant resolver; one sent in X-API-Key is rejected.
func APIKeyValidator(keys GlobalKeyValidator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := reqctx.From(c)

		key := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if key == "" {
			if bearer := resolver.BearerToken(c.GetHeader("Authorization")); controlplane.IsGlobalKey(bearer) {
				key = bearer
			}
		}
		if key == "" {
			c.Next()
			return
		}

		apiKey, err := keys.Validate(c.Request.Context(), key)
		if err != nil {
			log.Error("failed to validate api key", zap.String("request_id", rc.RequestID), zap.Error(err))
			apierror.Abort(c, apierror.Internal("Failed to validate API key", err), rc.RequestID)
			return
		}
		if apiKey == nil {
			apierror.Abort(c, apierror.Unauthorized("Invalid API key"), rc.RequestID)
			return
		}

		rc.APIKeyID = apiKey.ID.String()
		rc.GlobalAdmin = apiKey.IsAdmin

		// Detached from the request so the write outlives it.
		go func(id uuid.UUID) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			keys.UpdateLastUsed(ctx, id)
		}(apiKey.ID)

		c.Next()
	}
}
