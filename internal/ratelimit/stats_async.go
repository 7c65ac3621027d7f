package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStatsDropped is returned by AsyncStats.Record when the queue is full or closed.
var ErrStatsDropped = errors.New("rate limit stats event dropped")

// AsyncStats queues events for a single background writer so recording never
// waits on the backing store. Events that do not fit in the queue are dropped.
type AsyncStats struct {
	next    StatsRecorder
	events  chan StatsEvent
	timeout time.Duration
	onError func(error)

	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type AsyncStatsOption func(*AsyncStats)

// WithStatsQueueSize sets the number of events buffered ahead of the writer.
func WithStatsQueueSize(n int) AsyncStatsOption {
	return func(s *AsyncStats) {
		if n > 0 {
			s.events = make(chan StatsEvent, n)
		}
	}
}

// WithStatsWriteTimeout bounds each write to the underlying recorder.
func WithStatsWriteTimeout(d time.Duration) AsyncStatsOption {
	return func(s *AsyncStats) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithStatsErrorHandler receives write errors from the background writer.
func WithStatsErrorHandler(fn func(error)) AsyncStatsOption {
	return func(s *AsyncStats) { s.onError = fn }
}

// NewAsyncStats starts the writer goroutine; call Close to stop it.
func NewAsyncStats(next StatsRecorder, opts ...AsyncStatsOption) *AsyncStats {
	s := &AsyncStats{
		next:    next,
		events:  make(chan StatsEvent, 1024),
		timeout: 500 * time.Millisecond,
		onError: func(error) {},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

var _ StatsRecorder = (*AsyncStats)(nil)

// Record enqueues ev and returns immediately. ctx is not used by the write,
// which runs after the request may already have finished.
func (s *AsyncStats) Record(_ context.Context, ev StatsEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return ErrStatsDropped
	}

	select {
	case s.events <- ev:
		return nil
	default:
		s.dropped.Add(1)
		return ErrStatsDropped
	}
}

// Dropped reports how many events were discarded.
func (s *AsyncStats) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be written or for
// ctx to end.
func (s *AsyncStats) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncStats) run() {
	defer close(s.done)
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.next.Record(ctx, ev); err != nil {
			s.onError(err)
		}
		cancel()
	}
}
