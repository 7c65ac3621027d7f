package ratelimit

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/metafuse/tenant-gateway/internal/tenant"
)

const (
	DefaultAnonymousLimit     = 100
	DefaultAuthenticatedLimit = 1000
	DefaultWindow             = 60 * time.Second
	DefaultMaxBuckets         = 10000
	DefaultBucketTTL          = 600 * time.Second

	DefaultFreeTierLimit       = 100
	DefaultStandardTierLimit   = 1000
	DefaultPremiumTierLimit    = 5000
	DefaultEnterpriseTierLimit = 10000
)

// Config is read once at startup and shared read-only afterwards.
type Config struct {
	AnonymousLimit     int
	AuthenticatedLimit int
	Window             time.Duration

	// TrustedProxies lists peer IPs whose forwarding headers are honored.
	// Matching is exact string comparison.
	TrustedProxies []string

	MaxBuckets int
	BucketTTL  time.Duration

	FreeTierLimit       int
	StandardTierLimit   int
	PremiumTierLimit    int
	EnterpriseTierLimit int
}

var ErrInvalidConfig = errors.New("invalid rate limit config")

func DefaultConfig() Config {
	return Config{
		AnonymousLimit:      DefaultAnonymousLimit,
		AuthenticatedLimit:  DefaultAuthenticatedLimit,
		Window:              DefaultWindow,
		MaxBuckets:          DefaultMaxBuckets,
		BucketTTL:           DefaultBucketTTL,
		FreeTierLimit:       DefaultFreeTierLimit,
		StandardTierLimit:   DefaultStandardTierLimit,
		PremiumTierLimit:    DefaultPremiumTierLimit,
		EnterpriseTierLimit: DefaultEnterpriseTierLimit,
	}
}

// TierLimit returns the per-window quota for tier. Unknown tiers get the
// standard quota.
func (c Config) TierLimit(tier tenant.Tier) int {
	switch tier {
	case tenant.TierFree:
		return c.FreeTierLimit
	case tenant.TierPremium:
		return c.PremiumTierLimit
	case tenant.TierEnterprise:
		return c.EnterpriseTierLimit
	default:
		return c.StandardTierLimit
	}
}

func (c Config) isTrustedProxy(ip string) bool {
	for _, p := range c.TrustedProxies {
		if p == ip {
			return true
		}
	}
	return false
}

// Validate is meant to run once at startup. A zero limit is allowed and
// rejects every request for that class.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0", ErrInvalidConfig)
	}
	if c.BucketTTL < c.Window {
		return fmt.Errorf("%w: bucket_ttl must be >= window", ErrInvalidConfig)
	}
	if c.MaxBuckets <= 0 {
		return fmt.Errorf("%w: max_buckets must be > 0", ErrInvalidConfig)
	}

	limits := []struct {
		name  string
		value int
	}{
		{"anonymous", c.AnonymousLimit},
		{"authenticated", c.AuthenticatedLimit},
		{"free", c.FreeTierLimit},
		{"standard", c.StandardTierLimit},
		{"premium", c.PremiumTierLimit},
		{"enterprise", c.EnterpriseTierLimit},
	}
	for _, l := range limits {
		if l.value < 0 {
			return fmt.Errorf("%w: %s limit must be >= 0", ErrInvalidConfig, l.name)
		}
	}

	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			return fmt.Errorf("%w: trusted proxy %q is not an IP address", ErrInvalidConfig, p)
		}
	}
	return nil
}
