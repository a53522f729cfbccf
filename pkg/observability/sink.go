// Package observability delivers engine lifecycle events to logs and the event bus.
package observability

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/actflow/pkg/eventbus"
)

// Event is a lifecycle event with a partition key.
type Event interface {
	eventbus.Event
	Key() string
}

// Sink receives lifecycle events. Emit never fails the caller: delivery
// problems are the sink's own concern.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

type nopSink struct{}

func (nopSink) Emit(context.Context, Event) {}

// Nop discards every event.
func Nop() Sink {
	return nopSink{}
}

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("module", "lifecycle")}
}

func (s *LogSink) Emit(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if strings.HasSuffix(string(event.GetType()), ".failed") {
		level = slog.LevelWarn
	}

	s.logger.Log(ctx, level, "Lifecycle event", "event_type", event.GetType(), "key", event.Key())
}

// BusSink publishes events on the event bus.
type BusSink struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewBusSink(publisher eventbus.EventPublisher, logger *slog.Logger) *BusSink {
	return &BusSink{publisher: publisher, logger: logger.With("module", "lifecycle_bus")}
}

func (s *BusSink) Emit(ctx context.Context, event Event) {
	err := s.publisher.Publish(ctx, event.Key(), event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish lifecycle event", "event_type", event.GetType(), "error", err)
	}
}

type multiSink []Sink

func (m multiSink) Emit(ctx context.Context, event Event) {
	for _, sink := range m {
		sink.Emit(ctx, event)
	}
}

// Multi fans every event out to sinks in order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	var result multiSink

	for _, sink := range sinks {
		if sink != nil {
			result = append(result, sink)
		}
	}

	return result
}
