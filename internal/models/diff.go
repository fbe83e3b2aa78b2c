package models

import (
	"time"

	"github.com/google/uuid"
)

// Change kinds
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeClosed  = "closed"
)

// VersionView is the stream-agnostic part of a version used in diffs.
type VersionView struct {
	Fields   map[string]any `json:"fields"`
	Hashdiff string         `json:"hashdiff"`
	Interval
}

func EntityView(v EntityVersion) *VersionView {
	return &VersionView{Fields: v.Fields(), Hashdiff: v.Hashdiff, Interval: v.Interval}
}

func DetailView(v DetailVersion) *VersionView {
	return &VersionView{Fields: v.Fields(), Hashdiff: v.Hashdiff, Interval: v.Interval}
}

type FieldChange struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// Change describes one key whose version differs between the two diff instants.
type Change struct {
	Kind       string        `json:"kind"`
	Stream     string        `json:"stream"`
	EntityUID  uuid.UUID     `json:"entity_uid"`
	DetailType string        `json:"detail_type,omitempty"`
	Before     *VersionView  `json:"before"`
	After      *VersionView  `json:"after"`
	Fields     []FieldChange `json:"fields,omitempty"`
}

type DiffResult struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Created []Change  `json:"created"`
	Updated []Change  `json:"updated"`
	Closed  []Change  `json:"closed"`
}

func NewDiffResult(from, to time.Time) DiffResult {
	return DiffResult{From: from, To: to, Created: []Change{}, Updated: []Change{}, Closed: []Change{}}
}

func (d DiffResult) IsEmpty() bool {
	return len(d.Created) == 0 && len(d.Updated) == 0 && len(d.Closed) == 0
}

// Len is the number of changed keys across all partitions.
func (d DiffResult) Len() int {
	return len(d.Created) + len(d.Updated) + len(d.Closed)
}
