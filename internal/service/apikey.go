package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/controlplane"
	"github.com/metafuse/tenant-gateway/internal/models"
	"go.uber.org/zap"
)

// APIKeyStore is implemented by repository.APIKeyRepository.
type APIKeyStore interface {
	Create(ctx context.Context, apiKey *models.APIKey) error
	FindActiveByHash(ctx context.Context, hash string) (*models.APIKey, error)
	FindByID(ctx context.Context, id string) (*models.APIKey, error)
	List(ctx context.Context) ([]models.APIKey, error)
	UpdateLastUsed(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id string) error
}

// APIKeyService manages global (mf_) keys.
type APIKeyService struct {
	repository APIKeyStore
	cache      Cache
	log        *zap.Logger
	cacheTTL   time.Duration
}

func NewAPIKeyService(repo APIKeyStore, cache Cache, log *zap.Logger) *APIKeyService {
	if log == nil {
		log = zap.NewNop()
	}
	return &APIKeyService{
		repository: repo,
		cache:      cache,
		log:        log,
		cacheTTL:   defaultKeyCacheTTL,
	}
}

// Create returns the plain key. It is the only time the key is visible.
func (s *APIKeyService) Create(ctx context.Context, name, createdBy string, isAdmin bool) (string, *models.APIKey, error) {
	key, keyHash, err := generateKey(controlplane.GlobalKeyPrefix)
	if err != nil {
		return "", nil, apierror.Internal("Failed to create API key", err)
	}

	apiKey := models.APIKey{
		KeyHash:   keyHash,
		Name:      name,
		CreatedBy: createdBy,
		IsAdmin:   isAdmin,
		IsActive:  true,
	}
	if err := s.repository.Create(ctx, &apiKey); err != nil {
		return "", nil, apierror.Internal("Failed to create API key", err)
	}

	return key, &apiKey, nil
}

// Validate returns (nil, nil) for unknown keys and for tenant keys, which are
// never accepted as global keys.
func (s *APIKeyService) Validate(ctx context.Context, key string) (*models.APIKey, error) {
	if !controlplane.IsGlobalKey(key) {
		return nil, nil
	}
	keyHash := hashKey(key)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey(keyHash))
		if err == nil && cached != "" {
			var apiKey models.APIKey
			if err := json.Unmarshal([]byte(cached), &apiKey); err == nil {
				return &apiKey, nil
			}
		}
	}

	apiKey, err := s.repository.FindActiveByHash(ctx, keyHash)
	if err != nil {
		return nil, fmt.Errorf("failed to find api key: %w", err)
	}
	if apiKey == nil {
		return nil, nil
	}

	if s.cache != nil {
		apiKeyJSON, _ := json.Marshal(apiKey)
		if err := s.cache.Set(ctx, cacheKey(keyHash), apiKeyJSON, s.cacheTTL); err != nil {
			s.log.Debug("api key cache write failed", zap.Error(err))
		}
	}

	return apiKey, nil
}

func (s *APIKeyService) Get(ctx context.Context, id string) (*models.APIKey, error) {
	return s.repository.FindByID(ctx, id)
}

func (s *APIKeyService) List(ctx context.Context) ([]models.APIKey, error) {
	return s.repository.List(ctx)
}

func (s *APIKeyService) Delete(ctx context.Context, id string) error {
	apiKey, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return apierror.Internal("Failed to delete API key", err)
	}
	if apiKey == nil {
		return apierror.NotFound(fmt.Sprintf("API key '%s' not found", id))
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, cacheKey(apiKey.KeyHash)); err != nil {
			s.log.Warn("failed to invalidate api key cache", zap.Error(err))
		}
	}

	if err := s.repository.Delete(ctx, id); err != nil {
		return apierror.Internal("Failed to delete API key", err)
	}
	return nil
}

func (s *APIKeyService) UpdateLastUsed(ctx context.Context, id uuid.UUID) {
	if err := s.repository.UpdateLastUsed(ctx, id); err != nil {
		s.log.Debug("failed to update api key last use", zap.Error(err))
	}
}
