package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/metafuse/tenant-gateway/internal/models"
	"github.com/metafuse/tenant-gateway/internal/storage"
	"gorm.io/gorm"
)

// APIKeyRepository stores global (non-tenant) keys.
type APIKeyRepository struct {
	db *storage.Postgres
}

func NewAPIKeyRepository(db *storage.Postgres) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	return r.db.DB.WithContext(ctx).Create(apiKey).Error
}

func (r *APIKeyRepository) FindActiveByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	return first[models.APIKey](r.db.DB.WithContext(ctx).
		Where("key_hash = ? AND is_active = ?", hash, true))
}

func (r *APIKeyRepository) FindByID(ctx context.Context, id string) (*models.APIKey, error) {
	uid, ok := keyID(id)
	if !ok {
		return nil, nil
	}
	return first[models.APIKey](r.db.DB.WithContext(ctx).Where("id = ?", uid))
}

func (r *APIKeyRepository) List(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&keys).Error

	return keys, err
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", gorm.Expr("NOW()")).Error
}

// Delete removes the key row. Unknown or malformed ids are a no-op.
func (r *APIKeyRepository) Delete(ctx context.Context, id string) error {
	uid, ok := keyID(id)
	if !ok {
		return nil
	}
	return r.db.DB.WithContext(ctx).
		Where("id = ?", uid).
		Delete(&models.APIKey{}).Error
}
