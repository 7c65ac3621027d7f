package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStats keeps cumulative and per-minute allowed/denied counters in Redis.
type RedisStats struct {
	rdb redis.Cmdable

	prefix string
	// ttl applies to per-minute and per-tenant hashes; the total never expires.
	ttl time.Duration
}

type RedisStatsOption func(*RedisStats)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStats) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

func NewRedisStats(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStats {
	s := &RedisStats{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ StatsRecorder = (*RedisStats)(nil)

func (s *RedisStats) Record(ctx context.Context, ev StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := statsField(ev.Allowed)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	minuteKey := s.minuteKey(at)
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, minuteKey, s.ttl)
	}

	if tid := tenantOf(ev.Key); tid != "" {
		tenantKey := s.prefix + ":tenant:" + tid
		pipe.HIncrBy(ctx, tenantKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, tenantKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStats) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

func statsField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

// tenantOf extracts the tenant id from a tenant:{id}:... bucket key.
func tenantOf(key string) string {
	rest, ok := strings.CutPrefix(key, "tenant:")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, ":")
	return id
}
