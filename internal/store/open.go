package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ad-tracker/viral-video-detector/internal/config"
)

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg *config.StoreConfig) (Repository, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		path := cfg.Path
		if path == "" {
			path = config.DefaultSQLitePath
		}
		return OpenSQLite(ctx, path)
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return NewPostgresRepository(pool), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// NewMigrator creates a golang-migrate instance for the Postgres schema.
func NewMigrator(databaseURL, migrationsPath string) (*migrate.Migrate, error) {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

// Migrate applies every pending up migration. An up-to-date schema is not an
// error.
func Migrate(databaseURL, migrationsPath string) error {
	m, err := NewMigrator(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
