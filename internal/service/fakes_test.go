package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/metafuse/tenant-gateway/internal/models"
)

type memCache struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: map[string]string{}}
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.data[key], nil
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		c.data[key] = string(v)
	case string:
		c.data[key] = v
	}
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type memTenants struct {
	mu      sync.Mutex
	tenants map[string]models.Tenant
	err     error
}

func newMemTenants(ts ...models.Tenant) *memTenants {
	m := &memTenants{tenants: map[string]models.Tenant{}}
	for _, t := range ts {
		m.tenants[t.ID] = t
	}
	return m
}

func (m *memTenants) Create(_ context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = *t
	return nil
}

func (m *memTenants) FindByID(_ context.Context, id string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tenants[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memTenants) List(_ context.Context) ([]models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTenants) UpdateStatus(_ context.Context, id, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return false, nil
	}
	t.Status = status
	m.tenants[id] = t
	return true, nil
}

func (m *memTenants) UpdateTier(_ context.Context, id, tier string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return false, nil
	}
	t.Tier = tier
	m.tenants[id] = t
	return true, nil
}

type memTenantKeys struct {
	mu      sync.Mutex
	keys    map[uuid.UUID]models.TenantAPIKey
	lookups atomic.Int64
	block   chan struct{}
}

func newMemTenantKeys() *memTenantKeys {
	return &memTenantKeys{keys: map[uuid.UUID]models.TenantAPIKey{}}
}

func (m *memTenantKeys) Create(_ context.Context, key *models.TenantAPIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	m.keys[key.ID] = *key
	return nil
}

func (m *memTenantKeys) FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.TenantAPIKey, error) {
	m.lookups.Add(1)
	if m.block != nil {
		<-m.block
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.KeyHash != hash || !k.IsActive {
			continue
		}
		if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
			continue
		}
		return &k, nil
	}
	return nil, nil
}

func (m *memTenantKeys) FindByID(_ context.Context, tenantID, id string) (*models.TenantAPIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID.String() == id && k.TenantID == tenantID {
			return &k, nil
		}
	}
	return nil, nil
}

func (m *memTenantKeys) ListByTenant(_ context.Context, tenantID string) ([]models.TenantAPIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TenantAPIKey
	for _, k := range m.keys {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memTenantKeys) Deactivate(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for kid, k := range m.keys {
		if kid.String() == id && k.TenantID == tenantID {
			k.IsActive = false
			m.keys[kid] = k
		}
	}
	return nil
}

func (m *memTenantKeys) UpdateLastUsed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.keys[id]
	now := time.Now()
	k.LastUsedAt = &now
	m.keys[id] = k
	return nil
}

type memAPIKeys struct {
	mu      sync.Mutex
	keys    map[uuid.UUID]models.APIKey
	lookups int
}

func newMemAPIKeys() *memAPIKeys {
	return &memAPIKeys{keys: map[uuid.UUID]models.APIKey{}}
}

func (m *memAPIKeys) Create(_ context.Context, k *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	m.keys[k.ID] = *k
	return nil
}

func (m *memAPIKeys) FindActiveByHash(_ context.Context, hash string) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	for _, k := range m.keys {
		if k.KeyHash == hash && k.IsActive {
			return &k, nil
		}
	}
	return nil, nil
}

func (m *memAPIKeys) FindByID(_ context.Context, id string) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID.String() == id {
			return &k, nil
		}
	}
	return nil, nil
}

func (m *memAPIKeys) List(_ context.Context) ([]models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.APIKey, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, k)
	}
	return out, nil
}

func (m *memAPIKeys) UpdateLastUsed(context.Context, uuid.UUID) error { return nil }

func (m *memAPIKeys) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for kid := range m.keys {
		if kid.String() == id {
			delete(m.keys, kid)
		}
	}
	return nil
}
