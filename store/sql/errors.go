package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/xraph/credits"
	"github.com/xraph/credits/store"
)

// Postgres SQLSTATE codes that mean the unit lost a race and may be retried.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
)

// isConflict reports whether err is a transient concurrency failure.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// isDuplicate reports whether err is a unique constraint violation.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// classify maps driver errors onto the errors the engine understands.
// Errors that are already domain errors pass through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return err
	case isConflict(err):
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	default:
		return err
	}
}

// notFound maps gorm.ErrRecordNotFound to the given domain error.
func notFound(err, domain error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain
	}
	return classify(err)
}

// created maps an insert error: duplicates become credits.ErrAlreadyExists.
func created(err error) error {
	if err == nil {
		return nil
	}
	if isDuplicate(err) {
		return credits.ErrAlreadyExists
	}
	return classify(err)
}
