// Package eventbus carries lifecycle events and act requests between engine processes.
package eventbus

import (
	"context"

	"github.com/dukex/actflow/pkg/events"
)

// Event is anything published on the bus; its type selects the topic.
type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	// Publish sends event keyed by key. Events sharing a key keep their order.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	// Handle registers the handler of one event type. A later call replaces it.
	Handle(eventType events.EventType, handler EventHandler) error

	// Subscribe starts delivering the registered event types until ctx is done.
	Subscribe(ctx context.Context) error
}

// EventHandler receives a decoded event. Returning an error asks for redelivery.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
