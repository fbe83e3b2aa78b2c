package models

import (
	"regexp"
	"strings"
	"time"
)

// Reference type kinds.
const (
	RefKindEntity = "entity"
	RefKindDetail = "detail"
)

var refCodePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,49}$`)

// RefType is an EntityType or DetailType row. Rows are only added or (de)activated.
type RefType struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// NormalizeRefCode upper-cases and trims a type code.
func NormalizeRefCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsValidRefCode(code string) bool {
	return refCodePattern.MatchString(code)
}

func IsValidRefKind(kind string) bool {
	return kind == RefKindEntity || kind == RefKindDetail
}
