package dto

import (
	"github.com/entity-history/backend/internal/models"
)

type DetailRequest struct {
	DetailType  string `json:"detail_type" validate:"required,max=50"`
	DetailValue string `json:"detail_value" validate:"required,max=2000"`
}

type CreateEntityRequest struct {
	EntityUID   string          `json:"entity_uid,omitempty" validate:"omitempty,uuid"`
	EntityType  string          `json:"entity_type" validate:"required,max=50"`
	DisplayName string          `json:"display_name" validate:"required,max=500"`
	Details     []DetailRequest `json:"details,omitempty" validate:"omitempty,dive"`
	ChangeTS    string          `json:"change_ts" validate:"required"`
}

// UpdateEntityRequest carries a partial write; omitted entity fields keep their current value.
type UpdateEntityRequest struct {
	EntityType  *string         `json:"entity_type,omitempty" validate:"omitempty,max=50"`
	DisplayName *string         `json:"display_name,omitempty" validate:"omitempty,max=500"`
	Details     []DetailRequest `json:"details,omitempty" validate:"omitempty,dive"`
	ChangeTS    string          `json:"change_ts" validate:"required"`
}

type CreateRefTypeRequest struct {
	Code        string `json:"code" validate:"required,max=50"`
	Name        string `json:"name,omitempty" validate:"max=200"`
	Description string `json:"description,omitempty" validate:"max=2000"`
}

func DetailWrites(in []DetailRequest) []models.DetailWrite {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.DetailWrite, 0, len(in))
	for _, d := range in {
		out = append(out, models.DetailWrite{DetailType: d.DetailType, DetailValue: d.DetailValue})
	}
	return out
}
