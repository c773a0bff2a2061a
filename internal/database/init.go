package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/melbournemould/leadboard/internal/config"
)

// InitFromConfig initializes a database connection from application config
func InitFromConfig(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	dbConfig := Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
	}

	db, err := New(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// RunMigrations runs all pending database migrations found in source
func RunMigrations(ctx context.Context, db *sql.DB, source fs.FS) error {
	runner := NewMigrationRunner(db, source)
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationStatus reports which migrations in source have been applied
func MigrationStatus(ctx context.Context, db *sql.DB, source fs.FS) ([]MigrationState, error) {
	runner := NewMigrationRunner(db, source)
	return runner.Status(ctx)
}
