package repositories

import (
	"errors"
	"fmt"
	"testing"

	"github.com/entity-history/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      error
		retryable bool
	}{
		{"no rows", pgx.ErrNoRows, models.ErrNotFound, false},
		{"current row race", &pgconn.PgError{Code: "23505", ConstraintName: "entity_current_uidx"}, models.ErrConflict, true},
		{"detail current row race", &pgconn.PgError{Code: "23505", ConstraintName: "entity_detail_current_uidx"}, models.ErrConflict, true},
		{"type key", &pgconn.PgError{Code: "23505", ConstraintName: "entity_type_pkey"}, models.ErrConflict, false},
		{"exclusion", &pgconn.PgError{Code: "23P01", ConstraintName: "entity_no_overlap"}, models.ErrConflict, false},
		{"check", &pgconn.PgError{Code: "23514", ConstraintName: "entity_valid_range"}, models.ErrInvalidRange, false},
		{"fk", &pgconn.PgError{Code: "23503", ConstraintName: "entity_entity_type_fkey"}, models.ErrUnknownReference, false},
		{"serialization", &pgconn.PgError{Code: "40001"}, models.ErrConflict, true},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), models.ErrConflict, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Fatalf("mapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
			if models.IsRetryable(got) != tt.retryable {
				t.Errorf("retryable = %v, want %v", models.IsRetryable(got), tt.retryable)
			}
		})
	}
}

func TestMapErrorConstraintName(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "23505", ConstraintName: "entity_detail_current_uidx"})
	var ce *models.ConflictError
	if !errors.As(err, &ce) || ce.Constraint != "entity_detail_current_uidx" {
		t.Fatalf("constraint not carried: %v", err)
	}
}

func TestMapErrorPassthrough(t *testing.T) {
	if mapError(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	domain := models.NotFoundf("x")
	if got := mapError(domain); got != domain {
		t.Errorf("domain error rewrapped: %v", got)
	}
	other := &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
	var pgErr *pgconn.PgError
	if errors.As(mapError(other), &pgErr) {
		t.Error("raw driver error leaked")
	}
}
