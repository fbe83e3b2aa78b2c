package timeparse

import (
	"errors"
	"testing"
	"time"

	"github.com/entity-history/backend/internal/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-01-01T10:30", time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"2024-01-01T10:30:15", time.Date(2024, 1, 1, 10, 30, 15, 0, time.UTC)},
		{"2024-01-01T10:30:15.250", time.Date(2024, 1, 1, 10, 30, 15, 250_000_000, time.UTC)},
		{"2024-01-01T10:30:15Z", time.Date(2024, 1, 1, 10, 30, 15, 0, time.UTC)},
		{"2024-01-01T12:30:15+02:00", time.Date(2024, 1, 1, 10, 30, 15, 0, time.UTC)},
		{" 2024-06-01T00:00:00.5Z ", time.Date(2024, 6, 1, 0, 0, 0, 500_000_000, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "yesterday", "2024-13-01", "01/02/2024", "2024-01-01 10:00"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			if !errors.Is(err, models.ErrParse) {
				t.Errorf("Parse(%q) err = %v, want ErrParse", in, err)
			}
		})
	}
}

func TestParseOr(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	got, err := ParseOr("", now)
	if err != nil || !got.Equal(now) {
		t.Fatalf("ParseOr empty = %v, %v", got, err)
	}
}
