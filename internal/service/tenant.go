package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/controlplane"
	"github.com/metafuse/tenant-gateway/internal/metrics"
	"github.com/metafuse/tenant-gateway/internal/models"
	"github.com/metafuse/tenant-gateway/internal/tenant"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TenantStore is implemented by repository.TenantRepository.
type TenantStore interface {
	Create(ctx context.Context, t *models.Tenant) error
	FindByID(ctx context.Context, id string) (*models.Tenant, error)
	List(ctx context.Context) ([]models.Tenant, error)
	UpdateStatus(ctx context.Context, id, status string) (bool, error)
	UpdateTier(ctx context.Context, id, tier string) (bool, error)
}

// TenantKeyStore is implemented by repository.TenantKeyRepository.
type TenantKeyStore interface {
	Create(ctx context.Context, key *models.TenantAPIKey) error
	FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.TenantAPIKey, error)
	FindByID(ctx context.Context, tenantID, id string) (*models.TenantAPIKey, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.TenantAPIKey, error)
	Deactivate(ctx context.Context, tenantID, id string) error
	UpdateLastUsed(ctx context.Context, id uuid.UUID) error
}

// cachedTenantKey is the JSON stored in redis for a validated tenant key.
type cachedTenantKey struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Tier     string `json:"tier"`
}

// TenantService is the gorm backed control plane. Validated tenant keys are
// cached in redis; concurrent misses for the same key share one lookup.
type TenantService struct {
	tenants  TenantStore
	keys     TenantKeyStore
	cache    Cache
	log      *zap.Logger
	metrics  *metrics.Registry
	cacheTTL time.Duration
	now      func() time.Time
	group    singleflight.Group
}

var _ controlplane.ControlPlane = (*TenantService)(nil)

type TenantServiceOption func(*TenantService)

func WithKeyCacheTTL(d time.Duration) TenantServiceOption {
	return func(s *TenantService) {
		s.cacheTTL = d
	}
}

func WithTenantClock(now func() time.Time) TenantServiceOption {
	return func(s *TenantService) {
		s.now = now
	}
}

// NewTenantService accepts a nil cache (no caching), logger and registry.
func NewTenantService(tenants TenantStore, keys TenantKeyStore, cache Cache, log *zap.Logger, reg *metrics.Registry, opts ...TenantServiceOption) *TenantService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &TenantService{
		tenants:  tenants,
		keys:     keys,
		cache:    cache,
		log:      log,
		metrics:  reg,
		cacheTTL: defaultKeyCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateTenantAPIKey returns (nil, nil) for keys that are not tenant keys,
// unknown, inactive, expired, or that belong to a tenant which is not
// operational.
func (s *TenantService) ValidateTenantAPIKey(ctx context.Context, key string) (*controlplane.ValidatedTenantKey, error) {
	if !controlplane.IsTenantKey(key) {
		return nil, nil
	}
	keyHash := hashKey(key)

	if v, ok := s.fromCache(ctx, keyHash); ok {
		return v, nil
	}

	// The shared lookup outlives any single caller; a cancelled caller stops
	// waiting without failing the others.
	ch := s.group.DoChan(keyHash, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), keyLookupTimeout)
		defer cancel()
		return s.loadTenantKey(lookupCtx, keyHash)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v, _ := res.Val.(*controlplane.ValidatedTenantKey)
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *TenantService) loadTenantKey(ctx context.Context, keyHash string) (*controlplane.ValidatedTenantKey, error) {
	key, err := s.keys.FindActiveByHash(ctx, keyHash, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant api key: %w", err)
	}
	if key == nil || key.Expired(s.now()) {
		return nil, nil
	}

	t, err := s.tenants.FindByID(ctx, key.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant %q: %w", key.TenantID, err)
	}
	if t == nil || tenant.Status(t.Status) != tenant.StatusActive {
		return nil, nil
	}

	id, err := tenant.ParseID(key.TenantID)
	if err != nil {
		s.log.Warn("tenant api key references malformed tenant id",
			zap.String("tenant_id", key.TenantID), zap.Error(err))
		return nil, nil
	}
	role, err := tenant.ParseRole(key.Role)
	if err != nil {
		s.log.Warn("tenant api key has unknown role",
			zap.String("tenant_id", key.TenantID), zap.String("role", key.Role))
		return nil, nil
	}

	v := &controlplane.ValidatedTenantKey{
		KeyHash:  keyHash,
		TenantID: id,
		Name:     key.Name,
		Role:     role,
		Tier:     tenant.TierOrDefault(t.Tier),
	}

	if err := s.keys.UpdateLastUsed(ctx, key.ID); err != nil {
		s.log.Debug("failed to update tenant api key last use", zap.Error(err))
	}
	s.toCache(ctx, v)
	return v, nil
}

func (s *TenantService) fromCache(ctx context.Context, keyHash string) (*controlplane.ValidatedTenantKey, bool) {
	if s.cache == nil {
		return nil, false
	}
	cached, err := s.cache.Get(ctx, tenantCacheKey(keyHash))
	if err != nil {
		s.log.Debug("tenant key cache read failed", zap.Error(err))
		return nil, false
	}
	if cached == "" {
		return nil, false
	}

	var entry cachedTenantKey
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		return nil, false
	}
	id, err := tenant.ParseID(entry.TenantID)
	if err != nil {
		return nil, false
	}
	role, err := tenant.ParseRole(entry.Role)
	if err != nil {
		return nil, false
	}

	return &controlplane.ValidatedTenantKey{
		KeyHash:  keyHash,
		TenantID: id,
		Name:     entry.Name,
		Role:     role,
		Tier:     tenant.TierOrDefault(entry.Tier),
	}, true
}

func (s *TenantService) toCache(ctx context.Context, v *controlplane.ValidatedTenantKey) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	entry, _ := json.Marshal(cachedTenantKey{
		TenantID: v.TenantID.String(),
		Name:     v.Name,
		Role:     v.Role.String(),
		Tier:     v.Tier.String(),
	})
	if err := s.cache.Set(ctx, tenantCacheKey(v.KeyHash), entry, s.cacheTTL); err != nil {
		s.log.Debug("tenant key cache write failed", zap.Error(err))
	}
}

func (s *TenantService) invalidate(ctx context.Context, hashes ...string) {
	if s.cache == nil || len(hashes) == 0 {
		return
	}
	cacheKeys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		cacheKeys = append(cacheKeys, tenantCacheKey(h))
	}
	if err := s.cache.Del(ctx, cacheKeys...); err != nil {
		s.log.Warn("failed to invalidate tenant key cache", zap.Error(err))
	}
}

func (s *TenantService) GetTenant(ctx context.Context, id tenant.ID) (*tenant.Record, error) {
	t, err := s.tenants.FindByID(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant %q: %w", id, err)
	}
	if t == nil {
		return nil, nil
	}
	return toRecord(id, t), nil
}

func toRecord(id tenant.ID, t *models.Tenant) *tenant.Record {
	return &tenant.Record{
		ID:        id,
		Name:      t.Name,
		Tier:      tenant.TierOrDefault(t.Tier),
		Status:    tenant.Status(t.Status),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (s *TenantService) CreateTenant(ctx context.Context, id tenant.ID, name string, tier tenant.Tier) (*tenant.Record, error) {
	existing, err := s.tenants.FindByID(ctx, id.String())
	if err != nil {
		return nil, apierror.Internal("Failed to create tenant", err)
	}
	if existing != nil {
		return nil, apierror.Conflict(fmt.Sprintf("Tenant '%s' already exists", id))
	}

	t := models.Tenant{
		ID:     id.String(),
		Name:   name,
		Tier:   tier.String(),
		Status: tenant.StatusActive.String(),
	}
	if err := s.tenants.Create(ctx, &t); err != nil {
		return nil, apierror.Internal("Failed to create tenant", err)
	}

	s.metrics.TenantLifecycleEvent("created")
	s.log.Info("tenant created", zap.String("tenant_id", id.String()), zap.String("tier", tier.String()))
	return toRecord(id, &t), nil
}

func (s *TenantService) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	return s.tenants.List(ctx)
}

func (s *TenantService) Suspend(ctx context.Context, id tenant.ID) error {
	return s.transition(ctx, id, tenant.StatusSuspended, "suspended", tenant.StatusActive)
}

func (s *TenantService) Reactivate(ctx context.Context, id tenant.ID) error {
	return s.transition(ctx, id, tenant.StatusActive, "reactivated", tenant.StatusSuspended)
}

// Delete is a soft delete: the row stays with status deleted.
func (s *TenantService) Delete(ctx context.Context, id tenant.ID) error {
	return s.transition(ctx, id, tenant.StatusDeleted, "deleted",
		tenant.StatusActive, tenant.StatusSuspended, tenant.StatusPendingDeletion)
}

// ChangeTier moves a tenant to another quota class. Cached key validations
// carry the tier, so they are dropped.
func (s *TenantService) ChangeTier(ctx context.Context, id tenant.ID, tier tenant.Tier) error {
	t, err := s.tenants.FindByID(ctx, id.String())
	if err != nil {
		return apierror.Internal("Failed to update tenant", err)
	}
	if t == nil || tenant.Status(t.Status) == tenant.StatusDeleted {
		return apierror.NotFound(fmt.Sprintf("Tenant '%s' not found", id))
	}

	found, err := s.tenants.UpdateTier(ctx, id.String(), tier.String())
	if err != nil {
		return apierror.Internal("Failed to update tenant", err)
	}
	if !found {
		return apierror.NotFound(fmt.Sprintf("Tenant '%s' not found", id))
	}
	s.invalidateTenantKeys(ctx, id)

	s.metrics.TenantLifecycleEvent("tier_changed")
	s.log.Info("tenant tier changed",
		zap.String("tenant_id", id.String()),
		zap.String("from", t.Tier),
		zap.String("to", tier.String()))
	return nil
}

func (s *TenantService) transition(ctx context.Context, id tenant.ID, to tenant.Status, event string, from ...tenant.Status) error {
	t, err := s.tenants.FindByID(ctx, id.String())
	if err != nil {
		return apierror.Internal("Failed to update tenant", err)
	}
	if t == nil {
		return apierror.NotFound(fmt.Sprintf("Tenant '%s' not found", id))
	}

	current := tenant.Status(t.Status)
	allowed := false
	for _, f := range from {
		if current == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return apierror.Conflict(fmt.Sprintf("Tenant '%s' cannot move from %s to %s", id, current, to))
	}

	found, err := s.tenants.UpdateStatus(ctx, id.String(), to.String())
	if err != nil {
		return apierror.Internal("Failed to update tenant", err)
	}
	if !found {
		return apierror.NotFound(fmt.Sprintf("Tenant '%s' not found", id))
	}

	// Cached validations embed the old status decision.
	s.invalidateTenantKeys(ctx, id)

	s.metrics.TenantLifecycleEvent(event)
	s.log.Info("tenant status changed",
		zap.String("tenant_id", id.String()),
		zap.String("from", current.String()),
		zap.String("to", to.String()))
	return nil
}

func (s *TenantService) invalidateTenantKeys(ctx context.Context, id tenant.ID) {
	if s.cache == nil {
		return
	}
	keys, err := s.keys.ListByTenant(ctx, id.String())
	if err != nil {
		s.log.Warn("failed to list tenant keys for cache invalidation",
			zap.String("tenant_id", id.String()), zap.Error(err))
		return
	}
	hashes := make([]string, 0, len(keys))
	for _, k := range keys {
		hashes = append(hashes, k.KeyHash)
	}
	s.invalidate(ctx, hashes...)
}

// CreateKey issues a new tenant key. The plain key is only returned here.
func (s *TenantService) CreateKey(ctx context.Context, id tenant.ID, name string, role tenant.Role, expiresAt *time.Time) (string, *models.TenantAPIKey, error) {
	t, err := s.tenants.FindByID(ctx, id.String())
	if err != nil {
		return "", nil, apierror.Internal("Failed to create API key", err)
	}
	if t == nil {
		return "", nil, apierror.NotFound(fmt.Sprintf("Tenant '%s' not found", id))
	}
	if tenant.Status(t.Status) == tenant.StatusDeleted {
		return "", nil, apierror.Forbidden(fmt.Sprintf("Tenant '%s' is not active (status: %s)", id, t.Status))
	}

	plain, keyHash, err := generateKey(controlplane.TenantKeyPrefix)
	if err != nil {
		return "", nil, apierror.Internal("Failed to create API key", err)
	}

	key := models.TenantAPIKey{
		TenantID:  id.String(),
		KeyHash:   keyHash,
		Name:      name,
		Role:      role.String(),
		IsActive:  true,
		ExpiresAt: expiresAt,
	}
	if err := s.keys.Create(ctx, &key); err != nil {
		return "", nil, apierror.Internal("Failed to create API key", err)
	}

	s.log.Info("tenant api key created",
		zap.String("tenant_id", id.String()),
		zap.String("key_id", key.ID.String()),
		zap.String("role", role.String()))
	return plain, &key, nil
}

func (s *TenantService) ListKeys(ctx context.Context, id tenant.ID) ([]models.TenantAPIKey, error) {
	return s.keys.ListByTenant(ctx, id.String())
}

func (s *TenantService) RevokeKey(ctx context.Context, id tenant.ID, keyID string) error {
	key, err := s.keys.FindByID(ctx, id.String(), keyID)
	if err != nil {
		return apierror.Internal("Failed to revoke API key", err)
	}
	if key == nil {
		return apierror.NotFound(fmt.Sprintf("API key '%s' not found", keyID))
	}

	if err := s.keys.Deactivate(ctx, id.String(), keyID); err != nil {
		return apierror.Internal("Failed to revoke API key", err)
	}
	s.invalidate(ctx, key.KeyHash)

	s.log.Info("tenant api key revoked", zap.String("tenant_id", id.String()), zap.String("key_id", keyID))
	return nil
}
