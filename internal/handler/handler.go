// Package handler holds the admin API endpoints.
package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/models"
	"github.com/metafuse/tenant-gateway/internal/pool"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
	"github.com/metafuse/tenant-gateway/internal/tenant"
)

// APIKeyManager is implemented by service.APIKeyService.
type APIKeyManager interface {
	Create(ctx context.Context, name, createdBy string, isAdmin bool) (string, *models.APIKey, error)
	Get(ctx context.Context, id string) (*models.APIKey, error)
	List(ctx context.Context) ([]models.APIKey, error)
	Delete(ctx context.Context, id string) error
}

// TenantManager is implemented by service.TenantService.
type TenantManager interface {
	CreateTenant(ctx context.Context, id tenant.ID, name string, tier tenant.Tier) (*tenant.Record, error)
	GetTenant(ctx context.Context, id tenant.ID) (*tenant.Record, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	Suspend(ctx context.Context, id tenant.ID) error
	Reactivate(ctx context.Context, id tenant.ID) error
	Delete(ctx context.Context, id tenant.ID) error
	ChangeTier(ctx context.Context, id tenant.ID, tier tenant.Tier) error
	CreateKey(ctx context.Context, id tenant.ID, name string, role tenant.Role, expiresAt *time.Time) (string, *models.TenantAPIKey, error)
	ListKeys(ctx context.Context, id tenant.ID) ([]models.TenantAPIKey, error)
	RevokeKey(ctx context.Context, id tenant.ID, keyID string) error
}

// BreakerPool is implemented by pool.Pool.
type BreakerPool interface {
	Stats() []pool.TenantStats
	ResetBreaker(tenantID string) bool
}

func abort(c *gin.Context, err error) {
	apierror.Abort(c, err, reqctx.From(c).RequestID)
}
