package testutil

import (
	"context"
	"sync"

	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/observability"
)

// RecordingSink keeps every emitted event in memory.
type RecordingSink struct {
	mu     sync.Mutex
	events []observability.Event
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Emit(_ context.Context, event observability.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
}

// Types returns the types of the recorded events in emission order.
func (s *RecordingSink) Types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]events.EventType, 0, len(s.events))
	for _, event := range s.events {
		types = append(types, event.GetType())
	}

	return types
}

// Count returns how many events of eventType were recorded.
func (s *RecordingSink) Count(eventType events.EventType) int {
	count := 0

	for _, t := range s.Types() {
		if t == eventType {
			count++
		}
	}

	return count
}
