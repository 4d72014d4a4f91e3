package broker

import (
	"context"
	"time"
)

// PresenceChannel carries join/leave events emitted by relay instances.
const PresenceChannel = "checklist-presence"

const (
	EventClientJoined = "client_joined"
	EventClientLeft   = "client_left"
)

// Event describes a change in checklist room membership. Relayed payloads
// are never published.
type Event struct {
	Type         string    `json:"type"`
	ClientID     string    `json:"client_id"`
	ChecklistID  string    `json:"checklist_id"`
	ConnectionID string    `json:"connection_id"`
	InstanceID   string    `json:"instance_id,omitempty"`
	At           time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan Event, error)
}

type MessageBroker interface {
	Publisher
	Subscriber

	Close() error
}
