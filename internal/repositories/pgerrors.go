package repositories

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entity-history/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the store translates.
const (
	codeUniqueViolation      = "23505"
	codeExclusionViolation   = "23P01"
	codeCheckViolation       = "23514"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Partial unique indexes guarding is_current end with this suffix.
const currentIndexSuffix = "_current_uidx"

// mapError converts driver errors into the domain error set. Errors that are
// already domain errors pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", models.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation, codeExclusionViolation:
		// Two writers opening the same current row raced; a retry sees the winner.
		racing := pgErr.Code == codeUniqueViolation && strings.HasSuffix(pgErr.ConstraintName, currentIndexSuffix)
		return models.NewConflict(pgErr.ConstraintName, racing, errors.New(pgErr.Message))
	case codeSerializationFailure:
		return models.NewConflict("serialization_failure", true, errors.New(pgErr.Message))
	case codeDeadlockDetected:
		return models.NewConflict("deadlock_detected", true, errors.New(pgErr.Message))
	case codeCheckViolation:
		return models.InvalidRangef("%s: %s", pgErr.ConstraintName, pgErr.Message)
	case codeForeignKeyViolation:
		return models.UnknownReferencef("%s: %s", pgErr.ConstraintName, pgErr.Detail)
	}
	return fmt.Errorf("postgres %s: %s", pgErr.Code, pgErr.Message)
}

// notFound maps pgx.ErrNoRows to a descriptive not-found error.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NotFoundf(format, args...)
	}
	return mapError(err)
}
