// Package pool caps concurrent backend connections per tenant and guards
// each tenant's backend with its own circuit breaker.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/metafuse/tenant-gateway/internal/circuitbreaker"
	"github.com/metafuse/tenant-gateway/internal/metrics"
	"go.uber.org/zap"
)

// ErrAcquireTimeout is returned when no permit frees up within the acquire
// timeout. It is distinct from circuitbreaker.ErrCircuitOpen and from
// backend errors.
var ErrAcquireTimeout = errors.New("timed out waiting for connection permit")

// Conn is a backend connection handle.
type Conn interface {
	Close() error
}

// Backend opens connections to the catalog backend.
type Backend interface {
	Connect(ctx context.Context) (Conn, error)
}

type tenantPool struct {
	id      string
	sem     *semaphore
	breaker *circuitbreaker.CircuitBreaker
}

type Pool struct {
	cfg     Config
	backend Backend
	logger  *zap.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	tenants sync.Map // map[string]*tenantPool

	breakerOpts []circuitbreaker.Option
}

type Option func(*Pool)

// WithBreakerOptions passes extra options to every tenant breaker.
func WithBreakerOptions(opts ...circuitbreaker.Option) Option {
	return func(p *Pool) {
		p.breakerOpts = append(p.breakerOpts, opts...)
	}
}

// New validates cfg and returns an empty pool. reg may be nil; it is also
// ignored when cfg.EnableMetrics is false.
func New(cfg Config, backend Backend, logger *zap.Logger, reg *metrics.Registry, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, errors.New("pool: backend is required")
	}
	if !cfg.EnableMetrics {
		reg = nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
		metrics: reg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pool) Config() Config {
	return p.cfg
}

func (p *Pool) tenant(id string) *tenantPool {
	if v, ok := p.tenants.Load(id); ok {
		return v.(*tenantPool)
	}

	// Serialize creation so a breaker listener is never attached to a
	// tenantPool that loses the LoadOrStore race.
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.tenants.Load(id); ok {
		return v.(*tenantPool)
	}

	opts := append([]circuitbreaker.Option{
		circuitbreaker.WithListener(p.breakerListener(id)),
	}, p.breakerOpts...)

	tp := &tenantPool{
		id:      id,
		sem:     newSemaphore(p.cfg.MaxConnectionsPerTenant),
		breaker: circuitbreaker.New(p.cfg.CircuitBreaker, opts...),
	}
	p.tenants.Store(id, tp)
	p.metrics.SetCircuitBreakerState(id, int(circuitbreaker.StateClosed))
	return tp
}

func (p *Pool) breakerListener(tenantID string) circuitbreaker.Listener {
	return func(from, to circuitbreaker.State) {
		p.metrics.SetCircuitBreakerState(tenantID, int(to))
		switch {
		case from == circuitbreaker.StateClosed && to == circuitbreaker.StateOpen:
			p.metrics.CircuitBreakerTrip(tenantID)
			p.logger.Warn("circuit breaker opened",
				zap.String("tenant_id", tenantID),
				zap.Int("failure_threshold", p.cfg.CircuitBreaker.FailureThreshold),
			)
		case to == circuitbreaker.StateClosed:
			p.logger.Info("circuit breaker closed", zap.String("tenant_id", tenantID))
		case from == circuitbreaker.StateHalfOpen && to == circuitbreaker.StateOpen:
			p.logger.Warn("circuit breaker trial failed", zap.String("tenant_id", tenantID))
		}
	}
}

// Acquire obtains a permit and a backend connection for tenantID.
//
// An open breaker fails fast with circuitbreaker.ErrCircuitOpen without
// waiting for a permit. If no permit frees up within the acquire timeout it
// returns ErrAcquireTimeout. If ctx ends first, ctx.Err() is returned. No
// permit is held after any error.
func (p *Pool) Acquire(ctx context.Context, tenantID string) (*Lease, error) {
	tp := p.tenant(tenantID)

	ticket, err := tp.breaker.Allow()
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, err)
	}

	start := time.Now()
	acqCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	ok := tp.sem.acquire(acqCtx)
	cancel()
	p.metrics.ConnectionWait(tenantID, time.Since(start))

	if !ok {
		tp.breaker.Abandon(ticket)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.metrics.ConnectionTimeout(tenantID)
		p.logger.Warn("connection permit timeout",
			zap.String("tenant_id", tenantID),
			zap.Duration("acquire_timeout", p.cfg.AcquireTimeout),
		)
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrAcquireTimeout)
	}

	conn, err := p.backend.Connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			tp.breaker.Abandon(ticket)
		} else {
			tp.breaker.Failure(ticket)
		}
		tp.sem.release()
		return nil, fmt.Errorf("tenant %s: connect: %w", tenantID, err)
	}

	p.metrics.ConnectionAcquired(tenantID)
	return &Lease{pool: p, tp: tp, conn: conn, ticket: ticket}, nil
}

// Lease is a held permit plus its connection.
type Lease struct {
	pool   *Pool
	tp     *tenantPool
	conn   Conn
	ticket circuitbreaker.Ticket
	once   sync.Once
}

func (l *Lease) Conn() Conn {
	return l.conn
}

func (l *Lease) TenantID() string {
	return l.tp.id
}

// Release reports the outcome of using the connection to the tenant's
// breaker, closes the connection and frees the permit. Only the first call
// has any effect.
func (l *Lease) Release(err error) {
	l.once.Do(func() {
		switch {
		case err == nil:
			l.tp.breaker.Success(l.ticket)
		case errors.Is(err, context.Canceled):
			l.tp.breaker.Abandon(l.ticket)
		default:
			l.tp.breaker.Failure(l.ticket)
		}

		if cerr := l.conn.Close(); cerr != nil {
			l.pool.logger.Debug("failed to close backend connection",
				zap.String("tenant_id", l.tp.id), zap.Error(cerr))
		}

		l.tp.sem.release()
		l.pool.metrics.ConnectionReleased(l.tp.id)
	})
}

// TenantStats is a point in time view of one tenant's pool.
type TenantStats struct {
	TenantID       string
	Active         int
	MaxConnections int
	Breaker        circuitbreaker.Metrics
	BreakerEnabled bool
}

// Stats lists every tenant that has acquired at least once, ordered by id.
func (p *Pool) Stats() []TenantStats {
	var out []TenantStats
	p.tenants.Range(func(_, v any) bool {
		tp := v.(*tenantPool)
		out = append(out, TenantStats{
			TenantID:       tp.id,
			Active:         tp.sem.inUse(),
			MaxConnections: tp.sem.capacity(),
			Breaker:        tp.breaker.Metrics(),
			BreakerEnabled: tp.breaker.Enabled(),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}

// ResetBreaker closes tenantID's breaker. It reports false for unknown tenants.
func (p *Pool) ResetBreaker(tenantID string) bool {
	v, ok := p.tenants.Load(tenantID)
	if !ok {
		return false
	}
	v.(*tenantPool).breaker.Reset()
	return true
}
