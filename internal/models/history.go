package models

import (
	"github.com/google/uuid"
)

// HistoryVersion is one entity version with the detail versions active during its interval.
type HistoryVersion struct {
	Version EntityVersion   `json:"version"`
	Details []DetailVersion `json:"details"`
}

// TimelineEvent is a single version of either stream in a merged timeline.
type TimelineEvent struct {
	Stream     string                 `json:"stream"`
	DetailType string                 `json:"detail_type,omitempty"`
	Hashdiff   string                 `json:"hashdiff"`
	IsCurrent  bool                   `json:"is_current"`
	Changes    map[string]FieldChange `json:"changes"`
	Interval
}

type History struct {
	EntityUID uuid.UUID        `json:"entity_uid"`
	Versions  []HistoryVersion `json:"versions"`
	Timeline  []TimelineEvent  `json:"timeline"`
}
