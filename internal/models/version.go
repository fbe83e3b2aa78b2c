package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stream names, also used as audit table names.
const (
	StreamEntity = "entity"
	StreamDetail = "entity_detail"
)

// Interval is a half-open validity range [ValidFrom, ValidTo). A nil ValidTo is open-ended.
type Interval struct {
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to"`
}

// Contains reports whether ts falls inside the interval.
func (i Interval) Contains(ts time.Time) bool {
	if ts.Before(i.ValidFrom) {
		return false
	}
	return i.ValidTo == nil || ts.Before(*i.ValidTo)
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	if i.ValidTo != nil && !o.ValidFrom.Before(*i.ValidTo) {
		return false
	}
	if o.ValidTo != nil && !i.ValidFrom.Before(*o.ValidTo) {
		return false
	}
	return true
}

// IsOpen reports whether the interval has no end.
func (i Interval) IsOpen() bool {
	return i.ValidTo == nil
}

type EntityVersion struct {
	ID          int64     `json:"id"`
	EntityUID   uuid.UUID `json:"entity_uid"`
	EntityType  string    `json:"entity_type"`
	DisplayName string    `json:"display_name"`
	Hashdiff    string    `json:"hashdiff"`
	Interval
	IsCurrent bool      `json:"is_current"`
	CreatedAt time.Time `json:"created_at"`
}

// Fields returns the business attributes that feed the hashdiff.
func (v EntityVersion) Fields() map[string]any {
	return map[string]any{
		"entity_type":  v.EntityType,
		"display_name": v.DisplayName,
	}
}

// DetailKey identifies one detail stream.
type DetailKey struct {
	EntityUID  uuid.UUID `json:"entity_uid"`
	DetailType string    `json:"detail_type"`
}

func (k DetailKey) String() string {
	return k.EntityUID.String() + "/" + k.DetailType
}

type DetailVersion struct {
	ID          int64     `json:"id"`
	EntityUID   uuid.UUID `json:"entity_uid"`
	DetailType  string    `json:"detail_type"`
	DetailValue string    `json:"detail_value"`
	Hashdiff    string    `json:"hashdiff"`
	Interval
	IsCurrent bool      `json:"is_current"`
	CreatedAt time.Time `json:"created_at"`
}

func (v DetailVersion) Key() DetailKey {
	return DetailKey{EntityUID: v.EntityUID, DetailType: v.DetailType}
}

func (v DetailVersion) Fields() map[string]any {
	return map[string]any{
		"detail_type":  v.DetailType,
		"detail_value": v.DetailValue,
	}
}

// EntityFilter narrows list and as-of queries.
type EntityFilter struct {
	EntityType string
	Query      string
	EntityUIDs []uuid.UUID
	Limit      int
	Offset     int
}

// Matches applies the filter's predicates to a version. Paging fields are ignored.
func (f EntityFilter) Matches(v EntityVersion) bool {
	if f.EntityType != "" && v.EntityType != f.EntityType {
		return false
	}
	if f.Query != "" && !strings.Contains(strings.ToLower(v.DisplayName), strings.ToLower(f.Query)) {
		return false
	}
	if len(f.EntityUIDs) > 0 && !slices.Contains(f.EntityUIDs, v.EntityUID) {
		return false
	}
	return true
}
