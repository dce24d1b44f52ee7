package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
)

// Postgres error codes the lifecycle engines care about.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqQueryCanceled        = "57014"
)

// translateDBError maps driver-level failures onto the domain taxonomy.
// Unique violations are left to callers because their meaning depends on
// the constraint; contention and timeouts become retryable errors.
func translateDBError(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFoundMsg)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "database call timed out")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable, pqQueryCanceled:
			return appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "database contention, retry the operation")
		}
	}
	return err
}

// isUniqueViolation reports whether err is a unique-constraint violation,
// optionally scoped to a named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
