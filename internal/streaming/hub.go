package streaming

import (
	"context"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// EventFilter specifies which editor events a subscriber wants to receive.
type EventFilter struct {
	SessionID  string   `json:"session_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for editor change notifications.
type EventHub interface {
	Publish(ctx context.Context, event schema.EditorEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan schema.EditorEvent, func(), error)
}
