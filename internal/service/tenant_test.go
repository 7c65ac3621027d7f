package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/metrics"
	"github.com/metafuse/tenant-gateway/internal/models"
	"github.com/metafuse/tenant-gateway/internal/tenant"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type tenantFixture struct {
	svc     *TenantService
	tenants *memTenants
	keys    *memTenantKeys
	cache   *memCache
	reg     *metrics.Registry
}

func newTenantFixture(t *testing.T) *tenantFixture {
	t.Helper()
	f := &tenantFixture{
		tenants: newMemTenants(
			models.Tenant{ID: "acme-corp", Name: "Acme", Tier: "premium", Status: "active"},
			models.Tenant{ID: "globex", Name: "Globex", Tier: "free", Status: "suspended"},
		),
		keys:  newMemTenantKeys(),
		cache: newMemCache(),
		reg:   metrics.New(prometheus.NewRegistry()),
	}
	f.svc = NewTenantService(f.tenants, f.keys, f.cache, zaptest.NewLogger(t), f.reg)
	return f
}

func (f *tenantFixture) issue(t *testing.T, tenantID string, role tenant.Role) (string, *models.TenantAPIKey) {
	t.Helper()
	plain, key, err := f.svc.CreateKey(context.Background(), tenant.MustParseID(tenantID), "ci", role, nil)
	require.NoError(t, err)
	return plain, key
}

func TestTenantService_CreateKey_Format(t *testing.T) {
	f := newTenantFixture(t)
	plain, key := f.issue(t, "acme-corp", tenant.RoleEditor)

	assert.True(t, strings.HasPrefix(plain, "mft_"))
	assert.Equal(t, hashKey(plain), key.KeyHash)
	assert.NotContains(t, key.KeyHash, "mft_")
	assert.Equal(t, "editor", key.Role)
}

func TestTenantService_CreateKey_UnknownTenant(t *testing.T) {
	f := newTenantFixture(t)
	_, _, err := f.svc.CreateKey(context.Background(), tenant.MustParseID("nobody"), "ci", tenant.RoleViewer, nil)
	require.Error(t, err)
	assert.Equal(t, apierror.ENotFound, apierror.ErrorCode(err))
}

func TestTenantService_ValidateTenantAPIKey(t *testing.T) {
	f := newTenantFixture(t)
	plain, _ := f.issue(t, "acme-corp", tenant.RoleEditor)
	ctx := context.Background()

	v, err := f.svc.ValidateTenantAPIKey(ctx, plain)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "acme-corp", v.TenantID.String())
	assert.Equal(t, tenant.RoleEditor, v.Role)
	assert.Equal(t, tenant.TierPremium, v.Tier)
	assert.Equal(t, hashKey(plain), v.KeyHash)

	// Second call is served from the cache.
	v2, err := f.svc.ValidateTenantAPIKey(ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, v, v2)
	assert.EqualValues(t, 1, f.keys.lookups.Load())
	assert.True(t, f.cache.has(tenantCacheKey(v.KeyHash)))
}

func TestTenantService_ValidateTenantAPIKey_Rejections(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()

	t.Run("global key", func(t *testing.T) {
		v, err := f.svc.ValidateTenantAPIKey(ctx, "mf_abc")
		assert.NoError(t, err)
		assert.Nil(t, v)
		assert.EqualValues(t, 0, f.keys.lookups.Load())
	})

	t.Run("unknown key", func(t *testing.T) {
		v, err := f.svc.ValidateTenantAPIKey(ctx, "mft_unknown")
		assert.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("suspended tenant", func(t *testing.T) {
		plain, _ := f.issue(t, "globex", tenant.RoleAdmin)
		v, err := f.svc.ValidateTenantAPIKey(ctx, plain)
		assert.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("expired key", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		plain, _, err := f.svc.CreateKey(ctx, tenant.MustParseID("acme-corp"), "old", tenant.RoleViewer, &past)
		require.NoError(t, err)
		v, err := f.svc.ValidateTenantAPIKey(ctx, plain)
		assert.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestTenantService_ValidateTenantAPIKey_StoreError(t *testing.T) {
	f := newTenantFixture(t)
	plain, _ := f.issue(t, "acme-corp", tenant.RoleViewer)
	f.tenants.err = errors.New("connection refused")

	v, err := f.svc.ValidateTenantAPIKey(context.Background(), plain)
	assert.Error(t, err)
	assert.Nil(t, v)
}

func TestTenantService_ValidateTenantAPIKey_CollapsesConcurrentMisses(t *testing.T) {
	f := newTenantFixture(t)
	plain, _ := f.issue(t, "acme-corp", tenant.RoleViewer)
	f.keys.block = make(chan struct{})

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.svc.ValidateTenantAPIKey(context.Background(), plain)
			if err == nil && v == nil {
				err = errors.New("key not validated")
			}
			results <- err
		}()
	}

	require.Eventually(t, func() bool { return f.keys.lookups.Load() == 1 }, time.Second, time.Millisecond)
	close(f.keys.block)
	wg.Wait()
	close(results)

	for err := range results {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.keys.lookups.Load())
}

func TestTenantService_ValidateTenantAPIKey_CancelledCallerDoesNotFailOthers(t *testing.T) {
	f := newTenantFixture(t)
	plain, _ := f.issue(t, "acme-corp", tenant.RoleViewer)
	f.keys.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.svc.ValidateTenantAPIKey(ctx, plain)
		first <- err
	}()
	require.Eventually(t, func() bool { return f.keys.lookups.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	// The lookup started by the cancelled caller is still in flight.
	second := make(chan error, 1)
	go func() {
		v, err := f.svc.ValidateTenantAPIKey(context.Background(), plain)
		if err == nil && v == nil {
			err = errors.New("key not validated")
		}
		second <- err
	}()

	close(f.keys.block)
	assert.NoError(t, <-second)
	assert.EqualValues(t, 1, f.keys.lookups.Load())
}

func TestTenantService_RevokeKey_InvalidatesCache(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()
	plain, key := f.issue(t, "acme-corp", tenant.RoleAdmin)

	v, err := f.svc.ValidateTenantAPIKey(ctx, plain)
	require.NoError(t, err)
	require.NotNil(t, v)

	require.NoError(t, f.svc.RevokeKey(ctx, tenant.MustParseID("acme-corp"), key.ID.String()))
	assert.False(t, f.cache.has(tenantCacheKey(key.KeyHash)))

	v, err = f.svc.ValidateTenantAPIKey(ctx, plain)
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestTenantService_RevokeKey_WrongTenant(t *testing.T) {
	f := newTenantFixture(t)
	_, key := f.issue(t, "acme-corp", tenant.RoleAdmin)

	err := f.svc.RevokeKey(context.Background(), tenant.MustParseID("globex"), key.ID.String())
	require.Error(t, err)
	assert.Equal(t, apierror.ENotFound, apierror.ErrorCode(err))
}

func TestTenantService_Lifecycle(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()
	id := tenant.MustParseID("acme-corp")
	plain, key := f.issue(t, "acme-corp", tenant.RoleViewer)

	_, err := f.svc.ValidateTenantAPIKey(ctx, plain)
	require.NoError(t, err)

	require.NoError(t, f.svc.Suspend(ctx, id))
	assert.False(t, f.cache.has(tenantCacheKey(key.KeyHash)))

	v, err := f.svc.ValidateTenantAPIKey(ctx, plain)
	require.NoError(t, err)
	assert.Nil(t, v)

	err = f.svc.Suspend(ctx, id)
	assert.Equal(t, apierror.EConflict, apierror.ErrorCode(err))

	require.NoError(t, f.svc.Reactivate(ctx, id))
	require.NoError(t, f.svc.Delete(ctx, id))

	rec, err := f.svc.GetTenant(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusDeleted, rec.Status)
	assert.False(t, rec.IsOperational())

	err = f.svc.Reactivate(ctx, id)
	assert.Equal(t, apierror.EConflict, apierror.ErrorCode(err))

	events := f.reg.TenantLifecycleEventsTotal
	assert.Equal(t, 1.0, testutil.ToFloat64(events.WithLabelValues("suspended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(events.WithLabelValues("reactivated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(events.WithLabelValues("deleted")))
}

func TestTenantService_Lifecycle_UnknownTenant(t *testing.T) {
	f := newTenantFixture(t)
	err := f.svc.Suspend(context.Background(), tenant.MustParseID("nobody"))
	assert.Equal(t, apierror.ENotFound, apierror.ErrorCode(err))
	assert.Equal(t, "Tenant 'nobody' not found", apierror.ErrorMessage(err))
}

func TestTenantService_CreateTenant(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()
	id := tenant.MustParseID("initech")

	rec, err := f.svc.CreateTenant(ctx, id, "Initech", tenant.TierEnterprise)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, rec.Status)
	assert.Equal(t, tenant.TierEnterprise, rec.Tier)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.reg.TenantLifecycleEventsTotal.WithLabelValues("created")))

	_, err = f.svc.CreateTenant(ctx, id, "Initech", tenant.TierFree)
	assert.Equal(t, apierror.EConflict, apierror.ErrorCode(err))
}

func TestTenantService_GetTenant(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()

	rec, err := f.svc.GetTenant(ctx, tenant.MustParseID("globex"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, tenant.StatusSuspended, rec.Status)
	assert.Equal(t, tenant.TierFree, rec.Tier)

	rec, err = f.svc.GetTenant(ctx, tenant.MustParseID("nobody"))
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestTenantService_ChangeTier(t *testing.T) {
	f := newTenantFixture(t)
	ctx := context.Background()
	id := tenant.MustParseID("acme-corp")
	plain, key := f.issue(t, "acme-corp", tenant.RoleEditor)

	v, err := f.svc.ValidateTenantAPIKey(ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, tenant.TierPremium, v.Tier)

	require.NoError(t, f.svc.ChangeTier(ctx, id, tenant.TierEnterprise))
	assert.False(t, f.cache.has(tenantCacheKey(key.KeyHash)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.reg.TenantLifecycleEventsTotal.WithLabelValues("tier_changed")))

	v, err = f.svc.ValidateTenantAPIKey(ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, tenant.TierEnterprise, v.Tier)

	err = f.svc.ChangeTier(ctx, tenant.MustParseID("nobody"), tenant.TierFree)
	assert.Equal(t, apierror.ENotFound, apierror.ErrorCode(err))
}
