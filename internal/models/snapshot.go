package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is an entity reconstructed at one instant together with the details valid at that instant.
type Snapshot struct {
	AsOf    time.Time       `json:"as_of"`
	Entity  EntityVersion   `json:"entity"`
	Details []DetailVersion `json:"details"`
}

func (s Snapshot) EntityUID() uuid.UUID {
	return s.Entity.EntityUID
}

// Detail returns the detail version of the given type, if any.
func (s Snapshot) Detail(detailType string) (DetailVersion, bool) {
	for _, d := range s.Details {
		if d.DetailType == detailType {
			return d, true
		}
	}
	return DetailVersion{}, false
}
