package events

import "context"

// Channel carrying entity change events.
const StreamEntity = "events:entity"

// Event types
const (
	EventEntityCreated = "entity_created"
	EventEntityUpdated = "entity_updated"
	EventTypeChanged   = "reference_type_changed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
