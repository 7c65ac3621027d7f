// Package config loads gateway settings from an optional JSON file and then
// from environment variables, which always win.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/metafuse/tenant-gateway/internal/circuitbreaker"
	"github.com/metafuse/tenant-gateway/internal/pool"
	"github.com/metafuse/tenant-gateway/internal/ratelimit"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Catalog   CatalogConfig   `json:"catalog"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Pool      PoolConfig      `json:"pool"`
	Tenancy   TenancyConfig   `json:"tenancy"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type DatabaseConfig struct {
	URL string `json:"url"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CatalogConfig describes the upstream catalog service the gateway fronts.
type CatalogConfig struct {
	Upstreams          []string `json:"upstreams"`
	LBStrategy         string   `json:"lb_strategy"`
	HealthPath         string   `json:"health_path"`
	HealthIntervalSecs int      `json:"health_interval_secs"`
	RequestTimeoutSecs int      `json:"request_timeout_secs"`
}

type RateLimitConfig struct {
	Anonymous      int      `json:"anonymous"`
	Authenticated  int      `json:"authenticated"`
	WindowSecs     int      `json:"window_secs"`
	TrustedProxies []string `json:"trusted_proxies"`
	MaxBuckets     int      `json:"max_buckets"`
	BucketTTLSecs  int      `json:"bucket_ttl_secs"`
	Free           int      `json:"free"`
	Standard       int      `json:"standard"`
	Premium        int      `json:"premium"`
	Enterprise     int      `json:"enterprise"`
	// StatsEnabled records allowed/denied counters in redis.
	StatsEnabled bool `json:"stats_enabled"`
}

type PoolConfig struct {
	MaxConnections     int  `json:"max_connections"`
	AcquireTimeoutSecs int  `json:"acquire_timeout_secs"`
	MetricsEnabled     bool `json:"metrics_enabled"`
	BreakerThreshold   int  `json:"circuit_breaker_threshold"`
	BreakerResetSecs   int  `json:"circuit_breaker_reset_secs"`
	BreakerEnabled     bool `json:"circuit_breaker_enabled"`
}

type TenancyConfig struct {
	AllowHeaderOnly bool `json:"allow_header_only"`
	KeyCacheTTLSecs int  `json:"key_cache_ttl_secs"`
}

func Default() *Config {
	rl := ratelimit.DefaultConfig()
	pc := pool.DefaultConfig()

	return &Config{
		Server: ServerConfig{Port: "8080", Environment: "development"},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Catalog: CatalogConfig{
			Upstreams:          []string{"http://localhost:3001"},
			LBStrategy:         "round_robin",
			HealthPath:         "/health",
			HealthIntervalSecs: 10,
			RequestTimeoutSecs: 30,
		},
		RateLimit: RateLimitConfig{
			Anonymous:     rl.AnonymousLimit,
			Authenticated: rl.AuthenticatedLimit,
			WindowSecs:    int(rl.Window / time.Second),
			MaxBuckets:    rl.MaxBuckets,
			BucketTTLSecs: int(rl.BucketTTL / time.Second),
			Free:          rl.FreeTierLimit,
			Standard:      rl.StandardTierLimit,
			Premium:       rl.PremiumTierLimit,
			Enterprise:    rl.EnterpriseTierLimit,
			StatsEnabled:  true,
		},
		Pool: PoolConfig{
			MaxConnections:     pc.MaxConnectionsPerTenant,
			AcquireTimeoutSecs: int(pc.AcquireTimeout / time.Second),
			MetricsEnabled:     pc.EnableMetrics,
			BreakerThreshold:   pc.CircuitBreaker.FailureThreshold,
			BreakerResetSecs:   int(pc.CircuitBreaker.ResetTimeout / time.Second),
			BreakerEnabled:     pc.CircuitBreaker.Enabled,
		},
		Tenancy: TenancyConfig{KeyCacheTTLSecs: 300},
	}
}

// Load starts from Default, overlays path when it exists and then the
// environment. Environment values that fail to parse keep the previous value
// and are reported in the returned warnings.
func Load(path string) (*Config, []string, error) {
	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := json.Unmarshal(file, cfg); err != nil {
				return nil, nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	e := &envReader{lookup: os.LookupEnv}
	cfg.applyEnv(e)
	return cfg, e.warnings, nil
}

func (c *Config) applyEnv(e *envReader) {
	e.setString("PORT", &c.Server.Port)
	e.setString("ENVIRONMENT", &c.Server.Environment)
	e.setString("DATABASE_URL", &c.Database.URL)

	e.setString("REDIS_HOST", &c.Redis.Host)
	e.setInt("REDIS_PORT", &c.Redis.Port)
	e.setString("REDIS_PASSWORD", &c.Redis.Password)
	e.setInt("REDIS_DB", &c.Redis.DB)

	e.setList("CATALOG_UPSTREAMS", &c.Catalog.Upstreams)
	e.setString("CATALOG_LB_STRATEGY", &c.Catalog.LBStrategy)
	e.setString("CATALOG_HEALTH_PATH", &c.Catalog.HealthPath)
	e.setInt("CATALOG_HEALTH_INTERVAL_SECS", &c.Catalog.HealthIntervalSecs)

	e.setInt("METAFUSE_RATE_LIMIT_ANONYMOUS", &c.RateLimit.Anonymous)
	e.setInt("METAFUSE_RATE_LIMIT_AUTHENTICATED", &c.RateLimit.Authenticated)
	e.setInt("METAFUSE_RATE_LIMIT_WINDOW_SECS", &c.RateLimit.WindowSecs)
	e.setList("METAFUSE_TRUSTED_PROXIES", &c.RateLimit.TrustedProxies)
	e.setInt("METAFUSE_RATE_LIMIT_MAX_BUCKETS", &c.RateLimit.MaxBuckets)
	e.setInt("METAFUSE_RATE_LIMIT_BUCKET_TTL_SECS", &c.RateLimit.BucketTTLSecs)
	e.setInt("METAFUSE_RATE_LIMIT_FREE", &c.RateLimit.Free)
	e.setInt("METAFUSE_RATE_LIMIT_STANDARD", &c.RateLimit.Standard)
	e.setInt("METAFUSE_RATE_LIMIT_PREMIUM", &c.RateLimit.Premium)
	e.setInt("METAFUSE_RATE_LIMIT_ENTERPRISE", &c.RateLimit.Enterprise)
	e.setBool("METAFUSE_RATE_LIMIT_STATS_ENABLED", &c.RateLimit.StatsEnabled)

	e.setInt("METAFUSE_CONN_LIMIT", &c.Pool.MaxConnections)
	e.setInt("METAFUSE_CONN_ACQUIRE_TIMEOUT_SECS", &c.Pool.AcquireTimeoutSecs)
	e.setBool("METAFUSE_CONN_METRICS_ENABLED", &c.Pool.MetricsEnabled)
	e.setInt("METAFUSE_CIRCUIT_BREAKER_THRESHOLD", &c.Pool.BreakerThreshold)
	e.setInt("METAFUSE_CIRCUIT_BREAKER_RESET_SECS", &c.Pool.BreakerResetSecs)
	e.setBool("METAFUSE_CIRCUIT_BREAKER_ENABLED", &c.Pool.BreakerEnabled)

	e.setBool("METAFUSE_ALLOW_HEADER_ONLY_TENANT", &c.Tenancy.AllowHeaderOnly)
	e.setInt("METAFUSE_KEY_CACHE_TTL_SECS", &c.Tenancy.KeyCacheTTLSecs)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) RateLimiter() ratelimit.Config {
	r := c.RateLimit
	return ratelimit.Config{
		AnonymousLimit:      r.Anonymous,
		AuthenticatedLimit:  r.Authenticated,
		Window:              seconds(r.WindowSecs),
		TrustedProxies:      r.TrustedProxies,
		MaxBuckets:          r.MaxBuckets,
		BucketTTL:           seconds(r.BucketTTLSecs),
		FreeTierLimit:       r.Free,
		StandardTierLimit:   r.Standard,
		PremiumTierLimit:    r.Premium,
		EnterpriseTierLimit: r.Enterprise,
	}
}

// ConnectionPool is validated by pool.New, not here.
func (c *Config) ConnectionPool() pool.Config {
	p := c.Pool
	return pool.Config{
		MaxConnectionsPerTenant: p.MaxConnections,
		AcquireTimeout:          seconds(p.AcquireTimeoutSecs),
		EnableMetrics:           p.MetricsEnabled,
		CircuitBreaker: circuitbreaker.Config{
			FailureThreshold: p.BreakerThreshold,
			ResetTimeout:     seconds(p.BreakerResetSecs),
			Enabled:          p.BreakerEnabled,
		},
	}
}

func (c *Config) KeyCacheTTL() time.Duration {
	return seconds(c.Tenancy.KeyCacheTTLSecs)
}

func (c *Config) HealthInterval() time.Duration {
	return seconds(c.Catalog.HealthIntervalSecs)
}

func (c *Config) RequestTimeout() time.Duration {
	return seconds(c.Catalog.RequestTimeoutSecs)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

type envReader struct {
	lookup   func(string) (string, bool)
	warnings []string
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) warn(key, value, want string) {
	e.warnings = append(e.warnings, fmt.Sprintf("%s=%q is not a valid %s, keeping default", key, value, want))
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.warn(key, v, "integer")
		return
	}
	*dst = n
}

func (e *envReader) setBool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.warn(key, v, "boolean")
		return
	}
	*dst = b
}

func (e *envReader) setList(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
