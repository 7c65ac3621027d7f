package repository

import (
	"context"

	"github.com/metafuse/tenant-gateway/internal/models"
	"github.com/metafuse/tenant-gateway/internal/storage"
)

type TenantRepository struct {
	db *storage.Postgres
}

func NewTenantRepository(db *storage.Postgres) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, t *models.Tenant) error {
	return r.db.DB.WithContext(ctx).Create(t).Error
}

// FindByID returns (nil, nil) when no tenant has the id.
func (r *TenantRepository) FindByID(ctx context.Context, id string) (*models.Tenant, error) {
	return first[models.Tenant](r.db.DB.WithContext(ctx).Where("id = ?", id))
}

func (r *TenantRepository) List(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&tenants).Error

	return tenants, err
}

// UpdateStatus reports false when no tenant has the id.
func (r *TenantRepository) UpdateStatus(ctx context.Context, id, status string) (bool, error) {
	res := r.db.DB.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", id).
		Update("status", status)

	return res.RowsAffected > 0, res.Error
}

func (r *TenantRepository) UpdateTier(ctx context.Context, id, tier string) (bool, error) {
	res := r.db.DB.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", id).
		Update("tier", tier)

	return res.RowsAffected > 0, res.Error
}
