package controlplane

import (
	"context"
	"time"

	"github.com/metafuse/tenant-gateway/internal/tenant"
	"go.uber.org/zap"
)

type Logger struct {
	logger *zap.Logger
	next   ControlPlane
}

var _ ControlPlane = (*Logger)(nil)

// NewLogger returns a logging middleware for a ControlPlane.
func NewLogger(log *zap.Logger, next ControlPlane) *Logger {
	return &Logger{logger: log, next: next}
}

func (l *Logger) ValidateTenantAPIKey(ctx context.Context, key string) (v *ValidatedTenantKey, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to validate tenant api key", zap.Error(err), dur)
			return
		}
		if v == nil {
			l.logger.Debug("tenant api key rejected", dur)
			return
		}
		l.logger.Debug("validate tenant api key", zap.Stringer("tenant_id", v.TenantID), dur)
	}(time.Now())
	return l.next.ValidateTenantAPIKey(ctx, key)
}

func (l *Logger) GetTenant(ctx context.Context, id tenant.ID) (r *tenant.Record, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to find tenant", zap.Stringer("tenant_id", id), zap.Error(err), dur)
			return
		}
		l.logger.Debug("find tenant", zap.Stringer("tenant_id", id), zap.Bool("found", r != nil), dur)
	}(time.Now())
	return l.next.GetTenant(ctx, id)
}
