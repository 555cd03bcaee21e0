// Package store implements the persistence boundary of spec.md §4.A over
// PostgreSQL. It replaces the teacher's (codeready-toolchain/tarsy) ent
// client — whose generated package was never checked into the retrieved
// snapshot and cannot be hand-authored — with hand-written SQL over
// jmoiron/sqlx (grounded in jordigilh-kubernaut's repository layer), kept
// behind the same "typed operations, single serializable transaction per
// multi-step write" shape the teacher's pkg/services exercised over ent.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
)

// dbtx is satisfied by both *sqlx.DB and *sqlx.Tx, letting every query
// method below run unmodified whether or not it is inside a transaction.
type dbtx interface {
	sqlx.ExecerContext
	sqlx.QueryerContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// pgStore is the PostgreSQL-backed Store. A zero-value-free pgStore is
// either top-level (db set, tx nil) or transaction-scoped (tx set, db nil).
type pgStore struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

// NewPostgresStore wraps an already-connected sqlx.DB.
func NewPostgresStore(db *sqlx.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) ext() dbtx {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// WithTx implements Store.
func (s *pgStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.db == nil {
		return fmt.Errorf("store: nested transactions are not supported")
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	// Mirrors the teacher's `defer tx.Rollback()` shape (pkg/services/session_service.go):
	// rollback is a no-op once Commit has succeeded.
	defer func() { _ = tx.Rollback() }()

	scoped := &pgStore{tx: tx}
	if err := fn(ctx, scoped); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *pgStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}
