package models

import (
	"time"

	"github.com/google/uuid"
)

// Transition outcomes
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
)

// Actor identifies who issued a write, plus the request context captured for the audit trail.
type Actor struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type DetailWrite struct {
	DetailType  string `json:"detail_type"`
	DetailValue string `json:"detail_value"`
}

// EntityWrite is one inbound transition request. Nil entity fields keep their current value.
type EntityWrite struct {
	EntityUID   uuid.UUID
	EntityType  *string
	DisplayName *string
	Details     []DetailWrite
	ChangeTS    time.Time
	Actor       Actor
}

type DetailOutcome struct {
	DetailType string         `json:"detail_type"`
	Outcome    string         `json:"outcome"`
	Version    *DetailVersion `json:"version"`
}

type TransitionResult struct {
	EntityUID     uuid.UUID       `json:"entity_uid"`
	Outcome       string          `json:"outcome"`
	EntityOutcome string          `json:"entity_outcome"`
	Entity        *EntityVersion  `json:"entity"`
	Details       []DetailOutcome `json:"details"`
}

// Changed reports whether the write committed any new version.
func (r TransitionResult) Changed() bool {
	return r.Outcome != OutcomeUnchanged
}
