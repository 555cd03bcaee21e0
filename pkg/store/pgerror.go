package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// postgres error codes we branch on; see
// https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// isUniqueViolation reports whether err is a unique or exclusion constraint
// violation, letting callers translate a database-level conflict (e.g. the
// one-vote-per-reviewer or one-main-branch-per-agent constraints) into a
// ConflictError instead of a bare wrapped SQL error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation || pgErr.Code == pgExclusionViolation
	}
	return false
}
