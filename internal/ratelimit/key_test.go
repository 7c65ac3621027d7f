package ratelimit

import (
	"net/http"
	"testing"

	"github.com/metafuse/tenant-gateway/internal/tenant"
	"github.com/stretchr/testify/assert"
)

func TestKey_TenantWithAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	rt := tenant.FromAPIKey(tenant.MustParseID("acme-corp"), tenant.RoleEditor, tenant.TierPremium, false)

	key, limit := cfg.Key(Identity{Tenant: rt, APIKeyID: "key-123", RemoteAddr: "10.0.0.1:5555"})
	assert.Equal(t, "tenant:acme-corp:auth:key-123", key)
	assert.Equal(t, 5000, limit)
}

func TestKey_TenantWithIP(t *testing.T) {
	cfg := DefaultConfig()
	rt := tenant.FromHeader(tenant.MustParseID("acme-corp"), tenant.TierFree)

	key, limit := cfg.Key(Identity{Tenant: rt, RemoteAddr: "10.0.0.1:5555"})
	assert.Equal(t, "tenant:acme-corp:ip:10.0.0.1", key)
	assert.Equal(t, 100, limit)
}

func TestKey_TenantUnknown(t *testing.T) {
	cfg := DefaultConfig()
	rt := tenant.FromHeader(tenant.MustParseID("acme-corp"), tenant.TierEnterprise)

	key, limit := cfg.Key(Identity{Tenant: rt})
	assert.Equal(t, "tenant:acme-corp:unknown", key)
	assert.Equal(t, 10000, limit)
}

func TestKey_TenantWithoutTierUsesStandard(t *testing.T) {
	cfg := DefaultConfig()
	rt := tenant.FromHeader(tenant.MustParseID("acme-corp"), "")

	_, limit := cfg.Key(Identity{Tenant: rt})
	assert.Equal(t, 1000, limit)
}

func TestKey_GlobalAPIKey(t *testing.T) {
	cfg := DefaultConfig()

	key, limit := cfg.Key(Identity{APIKeyID: "abc", RemoteAddr: "10.0.0.1:5555"})
	assert.Equal(t, "auth:abc", key)
	assert.Equal(t, 1000, limit)
}

func TestKey_Anonymous(t *testing.T) {
	cfg := DefaultConfig()

	key, limit := cfg.Key(Identity{RemoteAddr: "127.0.0.1:40000"})
	assert.Equal(t, "anon:127.0.0.1", key)
	assert.Equal(t, 100, limit)

	key, limit = cfg.Key(Identity{})
	assert.Equal(t, "anon:unknown", key)
	assert.Equal(t, 100, limit)
}

func TestTierLimits(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100, cfg.TierLimit(tenant.TierFree))
	assert.Equal(t, 1000, cfg.TierLimit(tenant.TierStandard))
	assert.Equal(t, 5000, cfg.TierLimit(tenant.TierPremium))
	assert.Equal(t, 10000, cfg.TierLimit(tenant.TierEnterprise))

	cfg.PremiumTierLimit = 42
	assert.Equal(t, 42, cfg.TierLimit(tenant.TierPremium))
}

func header(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestClientIP(t *testing.T) {
	trusted := DefaultConfig()
	trusted.TrustedProxies = []string{"10.0.0.1", "::1"}

	tests := []struct {
		name   string
		cfg    Config
		remote string
		header http.Header
		want   string
	}{
		{
			name:   "no proxies configured ignores forwarded headers",
			cfg:    DefaultConfig(),
			remote: "127.0.0.1:1234",
			header: header("X-Forwarded-For", "1.2.3.4"),
			want:   "127.0.0.1",
		},
		{
			name:   "untrusted ipv4 peer ignores forwarded headers",
			cfg:    trusted,
			remote: "192.168.1.50:1234",
			header: header("X-Forwarded-For", "1.2.3.4", "X-Real-IP", "5.6.7.8"),
			want:   "192.168.1.50",
		},
		{
			name:   "trusted ipv4 peer uses first forwarded entry",
			cfg:    trusted,
			remote: "10.0.0.1:1234",
			header: header("X-Forwarded-For", " 1.2.3.4 , 10.0.0.7"),
			want:   "1.2.3.4",
		},
		{
			name:   "trusted ipv6 peer uses forwarded header",
			cfg:    trusted,
			remote: "[::1]:8080",
			header: header("X-Forwarded-For", "2001:db8::1"),
			want:   "2001:db8::1",
		},
		{
			name:   "untrusted ipv6 peer ignores forwarded header",
			cfg:    trusted,
			remote: "[2001:db8::99]:8080",
			header: header("X-Forwarded-For", "1.2.3.4"),
			want:   "2001:db8::99",
		},
		{
			name:   "trusted peer falls back to x-real-ip",
			cfg:    trusted,
			remote: "10.0.0.1:1234",
			header: header("X-Real-IP", "9.9.9.9"),
			want:   "9.9.9.9",
		},
		{
			name:   "trusted peer without headers uses peer",
			cfg:    trusted,
			remote: "10.0.0.1:1234",
			header: http.Header{},
			want:   "10.0.0.1",
		},
		{
			name:   "bare address without port",
			cfg:    DefaultConfig(),
			remote: "10.1.1.1",
			want:   "10.1.1.1",
		},
		{
			name:   "unparseable peer",
			cfg:    DefaultConfig(),
			remote: "pipe",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ClientIP(tt.remote, tt.header))
		})
	}
}

func TestKey_SpoofedHeaderFromUntrustedPeer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrustedProxies = []string{"10.0.0.1"}

	key, _ := cfg.Key(Identity{RemoteAddr: "203.0.113.9:1000", Header: header("X-Forwarded-For", "1.1.1.1")})
	assert.Equal(t, "anon:203.0.113.9", key)
}
