package pool

import (
	"errors"
	"fmt"
	"time"

	"github.com/metafuse/tenant-gateway/internal/circuitbreaker"
)

const (
	DefaultMaxConnections = 10
	DefaultAcquireTimeout = 5 * time.Second
)

var ErrInvalidConfig = errors.New("invalid connection pool config")

// Config controls per-tenant connection limiting and circuit breaking.
type Config struct {
	MaxConnectionsPerTenant int
	AcquireTimeout          time.Duration
	EnableMetrics           bool
	CircuitBreaker          circuitbreaker.Config
}

func DefaultConfig() Config {
	return Config{
		MaxConnectionsPerTenant: DefaultMaxConnections,
		AcquireTimeout:          DefaultAcquireTimeout,
		EnableMetrics:           true,
		CircuitBreaker:          circuitbreaker.DefaultConfig(),
	}
}

func (c Config) WithMaxConnections(max int) Config {
	c.MaxConnectionsPerTenant = max
	return c
}

func (c Config) WithAcquireTimeout(d time.Duration) Config {
	c.AcquireTimeout = d
	return c
}

func (c Config) WithMetrics(enabled bool) Config {
	c.EnableMetrics = enabled
	return c
}

func (c Config) WithCircuitBreaker(cb circuitbreaker.Config) Config {
	c.CircuitBreaker = cb
	return c
}

func (c Config) WithoutCircuitBreaker() Config {
	c.CircuitBreaker.Enabled = false
	return c
}

// Validate is meant to run once at startup. Breaker settings are only
// checked while the breaker is enabled.
func (c Config) Validate() error {
	if c.MaxConnectionsPerTenant <= 0 {
		return fmt.Errorf("%w: max_connections_per_tenant must be > 0", ErrInvalidConfig)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("%w: acquire_timeout must be > 0", ErrInvalidConfig)
	}
	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("%w: circuit_breaker.failure_threshold must be > 0", ErrInvalidConfig)
		}
		if c.CircuitBreaker.ResetTimeout <= 0 {
			return fmt.Errorf("%w: circuit_breaker.reset_timeout must be > 0", ErrInvalidConfig)
		}
	}
	return nil
}
