package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/metafuse/tenant-gateway/internal/models"
	"github.com/metafuse/tenant-gateway/internal/storage"
	"gorm.io/gorm"
)

type TenantKeyRepository struct {
	db *storage.Postgres
}

func NewTenantKeyRepository(db *storage.Postgres) *TenantKeyRepository {
	return &TenantKeyRepository{db: db}
}

func (r *TenantKeyRepository) Create(ctx context.Context, key *models.TenantAPIKey) error {
	return r.db.DB.WithContext(ctx).Create(key).Error
}

// FindActiveByHash returns the active, unexpired key with the given hash, or
// (nil, nil).
func (r *TenantKeyRepository) FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.TenantAPIKey, error) {
	return first[models.TenantAPIKey](r.db.DB.WithContext(ctx).
		Where("key_hash = ? AND is_active = ?", hash, true).
		Where("expires_at IS NULL OR expires_at > ?", now))
}

func (r *TenantKeyRepository) FindByID(ctx context.Context, tenantID, id string) (*models.TenantAPIKey, error) {
	uid, ok := keyID(id)
	if !ok {
		return nil, nil
	}
	return first[models.TenantAPIKey](r.db.DB.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", uid, tenantID))
}

func (r *TenantKeyRepository) ListByTenant(ctx context.Context, tenantID string) ([]models.TenantAPIKey, error) {
	var keys []models.TenantAPIKey
	err := r.db.DB.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&keys).Error

	return keys, err
}

// Deactivate keeps the row so revoked keys stay listed.
func (r *TenantKeyRepository) Deactivate(ctx context.Context, tenantID, id string) error {
	uid, ok := keyID(id)
	if !ok {
		return nil
	}
	return r.db.DB.WithContext(ctx).
		Model(&models.TenantAPIKey{}).
		Where("id = ? AND tenant_id = ?", uid, tenantID).
		Update("is_active", false).Error
}

func (r *TenantKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.TenantAPIKey{}).
		Where("id = ?", id).
		Update("last_used_at", gorm.Expr("NOW()")).Error
}
