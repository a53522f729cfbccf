package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/actflow/pkg/events"
)

// decoders maps every event type a subscriber can receive to a fresh value to decode into.
var decoders = map[events.EventType]func() any{
	events.ActRequestedEvent:        func() any { return &events.ActRequested{} },
	events.ActCreatedEvent:          func() any { return &events.ActLifecycle{} },
	events.ActStartedEvent:          func() any { return &events.ActLifecycle{} },
	events.ActCompletedEvent:        func() any { return &events.ActLifecycle{} },
	events.ActFailedEvent:           func() any { return &events.ActLifecycle{} },
	events.ActCancelledEvent:        func() any { return &events.ActLifecycle{} },
	events.TaskStartedEvent:         func() any { return &events.TaskLifecycle{} },
	events.TaskCompletedEvent:       func() any { return &events.TaskLifecycle{} },
	events.TaskFailedEvent:          func() any { return &events.TaskLifecycle{} },
	events.TaskCancelledEvent:       func() any { return &events.TaskLifecycle{} },
	events.GenerationCreatedEvent:   func() any { return &events.GenerationLifecycle{} },
	events.GenerationStartedEvent:   func() any { return &events.GenerationLifecycle{} },
	events.GenerationCompletedEvent: func() any { return &events.GenerationLifecycle{} },
	events.GenerationFailedEvent:    func() any { return &events.GenerationLifecycle{} },
	events.GenerationCancelledEvent: func() any { return &events.GenerationLifecycle{} },
	events.GenerationRetriedEvent:   func() any { return &events.GenerationLifecycle{} },
	events.TriggerCreatedEvent:      func() any { return &events.TriggerChanged{} },
	events.TriggerDeletedEvent:      func() any { return &events.TriggerChanged{} },
}

type WatermillEventBus struct {
	logger     *slog.Logger
	publisher  message.Publisher
	subscriber message.Subscriber

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		logger:        logger.With("module", "eventbus"),
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.TopicFor(event.GetType()), msg)
}

// Subscribe starts consuming the topics of every registered handler.
// Handlers must be registered before Subscribe is called.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	topics := make(map[string]bool)

	eb.mu.RLock()
	for eventType := range eb.subscriptions {
		topics[events.TopicFor(eventType)] = true
	}
	eb.mu.RUnlock()

	for topic := range topics {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		eb.mu.RLock()
		handler, exists := eb.subscriptions[eventType]
		eb.mu.RUnlock()

		if !exists {
			msg.Ack()

			continue
		}

		newEvent, known := decoders[eventType]
		if !known {
			msg.Nack()

			continue
		}

		event := newEvent()

		err := json.Unmarshal(msg.Payload, event)
		if err != nil {
			eb.logger.ErrorContext(ctx, "Failed to decode event", "event_type", eventType, "error", err)
			// a payload that cannot be decoded never will be
			msg.Ack()

			continue
		}

		err = handler(ctx, event)
		if err != nil {
			eb.logger.ErrorContext(ctx, "Event handler failed", "event_type", eventType, "error", err)
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
