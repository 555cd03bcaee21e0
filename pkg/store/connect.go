package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds PostgreSQL connection and pool settings, grounded in the
// teacher's pkg/database.Config (codeready-toolchain/tarsy).
type Config struct {
	DatabaseURL string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ConnectTimeout bounds the initial ping; spec.md §5 specifies 10s.
	ConnectTimeout time.Duration
}

// DefaultConfig returns pool defaults matching spec.md §5 (≤10 connections,
// 10s connect timeout, 20s idle timeout).
func DefaultConfig(databaseURL string) Config {
	return Config{
		DatabaseURL:     databaseURL,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 20 * time.Second,
		ConnectTimeout:  10 * time.Second,
	}
}

// Connect opens a pooled connection, runs embedded migrations, and returns a
// Store. Mirrors pkg/database.NewClient's shape in the teacher.
func Connect(cfg Config) (Store, *sqlx.DB, error) {
	sqlDB, err := stdsql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("store: open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	db := sqlx.NewDb(sqlDB, "pgx")

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("store: ping database: %w", err)
	}

	if err := runMigrations(cfg.DatabaseURL, sqlDB); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("store: migrate: %w", err)
	}

	return NewPostgresStore(db), db, nil
}

// runMigrations applies embedded SQL migrations using golang-migrate, the
// same embed.FS + iofs source pattern as the teacher's pkg/database/migrations.go.
func runMigrations(databaseURL string, sqlDB *stdsql.DB) error {
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "promptctl", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Close only the source driver — closing m would also close sqlDB,
	// which the caller still owns (see database/migrations.go in the teacher).
	return sourceDriver.Close()
}
