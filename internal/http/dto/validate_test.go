package dto

import (
	"strings"
	"testing"

	"github.com/entity-history/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCreateEntity(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateEntityRequest
		wantErr string
	}{
		{
			name: "valid",
			req:  CreateEntityRequest{EntityType: "PERSON", DisplayName: "Ann", ChangeTS: "2024-01-01"},
		},
		{
			name:    "missing type",
			req:     CreateEntityRequest{DisplayName: "Ann", ChangeTS: "2024-01-01"},
			wantErr: "EntityType is required",
		},
		{
			name:    "bad uid",
			req:     CreateEntityRequest{EntityUID: "nope", EntityType: "PERSON", DisplayName: "Ann", ChangeTS: "2024-01-01"},
			wantErr: "EntityUID must be a uuid",
		},
		{
			name: "detail without value",
			req: CreateEntityRequest{
				EntityType: "PERSON", DisplayName: "Ann", ChangeTS: "2024-01-01",
				Details: []DetailRequest{{DetailType: "EMAIL"}},
			},
			wantErr: "DetailValue is required",
		},
		{
			name:    "long name",
			req:     CreateEntityRequest{EntityType: "PERSON", DisplayName: strings.Repeat("x", 501), ChangeTS: "2024-01-01"},
			wantErr: "DisplayName must be at most 500 characters",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, models.ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDetailWrites(t *testing.T) {
	assert.Nil(t, DetailWrites(nil))
	got := DetailWrites([]DetailRequest{{DetailType: "EMAIL", DetailValue: "a@b.c"}})
	assert.Equal(t, []models.DetailWrite{{DetailType: "EMAIL", DetailValue: "a@b.c"}}, got)
}
