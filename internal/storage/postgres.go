package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/metafuse/tenant-gateway/internal/models"
	"go.uber.org/zap"
	"golang.org/x/net/context"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Postgres struct {
	DB *gorm.DB
}

// NewPostgres opens dsn. SQL logging goes through log at the given gorm
// level; a nil log keeps gorm's default stdout writer.
func NewPostgres(dsn string, log *zap.Logger, level logger.LogLevel) (*Postgres, error) {
	return open(postgres.Open(dsn), gormLogger(log, level))
}

// NewPostgresWithConn wraps an existing *sql.DB, used with sqlmock in tests.
func NewPostgresWithConn(conn *sql.DB) (*Postgres, error) {
	return open(postgres.New(postgres.Config{Conn: conn}), logger.Default.LogMode(logger.Silent))
}

func open(dialector gorm.Dialector, gormLog logger.Interface) (*Postgres, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLog,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Postgres{DB: db}, nil
}

// zapWriter adapts a sugared zap logger to gorm's Printf writer.
type zapWriter struct {
	log *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.log.Infof(format, args...)
}

func gormLogger(log *zap.Logger, level logger.LogLevel) logger.Interface {
	if log == nil {
		return logger.Default.LogMode(level)
	}
	return logger.New(zapWriter{log: log.Named("gorm").Sugar()}, logger.Config{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      level,
		// Lookups report a missing row as (nil, nil); it is not an error.
		IgnoreRecordNotFoundError: true,
	})
}

func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

func (p *Postgres) AutoMigrate() error {
	return p.DB.AutoMigrate(
		&models.Tenant{},
		&models.TenantAPIKey{},
		&models.APIKey{},
	)
}

func (p *Postgres) Close() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
