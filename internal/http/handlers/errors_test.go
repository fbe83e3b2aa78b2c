package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/entity-history/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", models.NotFoundf("entity x"), fiber.StatusNotFound},
		{"conflict", models.NewConflict("entity_no_overlap", false, nil), fiber.StatusConflict},
		{"wrapped conflict", fmt.Errorf("apply: %w", models.NewConflict("entity_current_uidx", true, nil)), fiber.StatusConflict},
		{"invalid range", models.InvalidRangef("too early"), fiber.StatusUnprocessableEntity},
		{"unknown reference", models.UnknownReferencef("ROBOT"), fiber.StatusUnprocessableEntity},
		{"parse", fmt.Errorf("%w: bad", models.ErrParse), fiber.StatusBadRequest},
		{"validation", models.Validationf("missing"), fiber.StatusBadRequest},
		{"fiber error", fiber.ErrUpgradeRequired, fiber.StatusUpgradeRequired},
		{"other", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}
