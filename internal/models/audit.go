package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
)

type AuditRecord struct {
	ID         uuid.UUID      `json:"audit_id"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	TableName  string         `json:"table_name"`
	EntityUID  uuid.UUID      `json:"entity_uid"`
	DetailCode *string        `json:"detail_code,omitempty"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after"`
	ChangeTS   time.Time      `json:"change_ts"`
	RecordedAt time.Time      `json:"recorded_at"`
	RequestID  *string        `json:"request_id,omitempty"`
	IPAddress  *string        `json:"ip_address,omitempty"`
	UserAgent  *string        `json:"user_agent,omitempty"`
}
