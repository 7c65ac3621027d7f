package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when circuit is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

type Config struct {
	FailureThreshold int           // Consecutive failures before opening. Default: 5
	ResetTimeout     time.Duration // How long to stay open. Default: 30 seconds
	Enabled          bool
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		ResetTimeout:     DefaultResetTimeout,
		Enabled:          true,
	}
}

// Listener observes state transitions. It runs with the breaker lock held
// and must not call back into the breaker.
type Listener func(from, to State)

// CircuitBreaker protects one tenant backend.
//
// Closed counts consecutive failures and opens at the threshold. Open fails
// every attempt until ResetTimeout has passed, then admits exactly one trial
// (half-open). The trial's success closes the breaker; its failure reopens it
// and restarts the timer.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	trialInFlight   bool
	generation      uint64
	trips           uint64
	openedAt        time.Time
	lastFailureTime time.Time
	lastStateChange time.Time

	cfg      Config
	now      func() time.Time
	listener Listener
}

type Option func(*CircuitBreaker)

func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.now = now }
}

func WithListener(l Listener) Option {
	return func(cb *CircuitBreaker) { cb.listener = l }
}

func New(cfg Config, opts ...Option) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}

	cb := &CircuitBreaker{
		state: StateClosed,
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.lastStateChange = cb.now()
	return cb
}

// Ticket identifies one admitted attempt. Outcomes are only counted against
// the state the attempt was admitted in, so a slow attempt from before a trip
// cannot close or reopen the breaker while a half-open trial is running.
type Ticket struct {
	generation uint64
	trial      bool
}

// Allow reports whether an attempt may proceed. Every nil error must be
// followed by exactly one of Success, Failure or Abandon with the returned
// ticket.
func (cb *CircuitBreaker) Allow() (Ticket, error) {
	if !cb.cfg.Enabled {
		return Ticket{}, nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return Ticket{}, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.trialInFlight = true
		return Ticket{generation: cb.generation, trial: true}, nil
	case StateHalfOpen:
		if cb.trialInFlight {
			return Ticket{}, ErrCircuitOpen
		}
		cb.trialInFlight = true
		return Ticket{generation: cb.generation, trial: true}, nil
	default:
		return Ticket{generation: cb.generation}, nil
	}
}

// current reports whether t was issued in the present state. Callers hold mu.
func (cb *CircuitBreaker) current(t Ticket) bool {
	return t.generation == cb.generation
}

// Success records a successful attempt.
func (cb *CircuitBreaker) Success(t Ticket) {
	if !cb.cfg.Enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.current(t) {
		return
	}
	switch cb.state {
	case StateHalfOpen:
		if !t.trial {
			return
		}
		cb.trialInFlight = false
		cb.failureCount = 0
		cb.setState(StateClosed)
	case StateClosed:
		cb.failureCount = 0
	}
}

// Failure records a failed attempt.
func (cb *CircuitBreaker) Failure(t Ticket) {
	if !cb.cfg.Enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.lastFailureTime = now
	if !cb.current(t) {
		return
	}

	switch cb.state {
	case StateHalfOpen:
		if !t.trial {
			return
		}
		cb.failureCount++
		cb.trialInFlight = false
		cb.openedAt = now
		cb.setState(StateOpen)
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.openedAt = now
			cb.trips++
			cb.setState(StateOpen)
		}
	}
}

// Abandon gives back an admitted attempt that never reached the backend,
// such as one that timed out waiting for a permit.
func (cb *CircuitBreaker) Abandon(t Ticket) {
	if !cb.cfg.Enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && t.trial && cb.current(t) {
		cb.trialInFlight = false
	}
}

// Executes the given function with circuit breaker protection
func (cb *CircuitBreaker) Call(fn func() error) error {
	t, err := cb.Allow()
	if err != nil {
		return err
	}

	if err := fn(); err != nil {
		cb.Failure(t)
		return err
	}

	cb.Success(t)
	return nil
}

// Changes the circuit breaker state
func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	cb.generation++
	cb.lastStateChange = cb.now()
	if cb.listener != nil {
		cb.listener(old, newState)
	}
}

// Returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Enabled() bool {
	return cb.cfg.Enabled
}

// Manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.trialInFlight = false
	cb.setState(StateClosed)
}

// Returns current circuit breaker metrics
func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Metrics{
		State:               cb.state,
		ConsecutiveFailures: cb.failureCount,
		Trips:               cb.trips,
		OpenedAt:            cb.openedAt,
		LastFailureTime:     cb.lastFailureTime,
		LastStateChange:     cb.lastStateChange,
	}
}

// Holds circuit breaker metrics
type Metrics struct {
	State               State
	ConsecutiveFailures int
	Trips               uint64
	OpenedAt            time.Time
	LastFailureTime     time.Time
	LastStateChange     time.Time
}
