package ratelimit

import (
	"context"
	"time"
)

// StatsEvent describes one limiter decision.
type StatsEvent struct {
	Key     string
	Allowed bool
	At      time.Time
}

// StatsRecorder persists decision counters outside the process. Recording is
// advisory; callers ignore its errors beyond logging them.
type StatsRecorder interface {
	Record(ctx context.Context, ev StatsEvent) error
}
