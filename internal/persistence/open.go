// Package persistence selects and opens the configured relational store.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"example.com/gymlog/internal/config"
	"example.com/gymlog/internal/domain"
	"example.com/gymlog/internal/persistence/postgres"
	"example.com/gymlog/internal/persistence/sqlite"
)

// Handle is an opened store. Pool is nil unless the driver is Postgres.
type Handle struct {
	Store domain.Store
	Pool  *pgxpool.Pool
	close func()
}

// Close releases the underlying connections.
func (h *Handle) Close() {
	if h.close != nil {
		h.close()
	}
}

// Open connects to the store named by cfg.StoreDriver and applies pending migrations.
func Open(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*Handle, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		applied, err := postgres.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logMigrations(logger, config.DriverPostgres, applied)
		return &Handle{Store: postgres.NewStore(pool), Pool: pool, close: pool.Close}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.WithField("path", cfg.SQLitePath).Info("using sqlite store; domain events are not published")
		return &Handle{Store: store, close: func() { _ = store.Close() }}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func logMigrations(logger logrus.FieldLogger, driver string, applied []string) {
	if len(applied) == 0 {
		return
	}
	logger.WithFields(logrus.Fields{"driver": driver, "migrations": applied}).Info("applied migrations")
}
