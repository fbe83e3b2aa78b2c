// Package timeparse turns user supplied timestamps into UTC instants.
package timeparse

import (
	"fmt"
	"strings"
	"time"

	"github.com/entity-history/backend/internal/models"
)

// Offset-free layouts are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	time.DateOnly,
}

// Parse accepts YYYY-MM-DD, RFC 3339 with optional fractional seconds, and
// YYYY-MM-DDTHH:MM[:SS] without an offset. The result is always UTC.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", models.ErrParse)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unsupported timestamp %q", models.ErrParse, s)
}

// ParseOr returns fallback when s is empty.
func ParseOr(s string, fallback time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return fallback.UTC(), nil
	}
	return Parse(s)
}
