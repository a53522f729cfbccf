// Package events defines the lifecycle events the engine emits and the act
// requests ingestors publish.
package events

import (
	"time"

	"github.com/dukex/actflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topics.
const (
	Topic           = "actflow.events"       // lifecycle events
	ActRequestTopic = "actflow.act.requests" // act creation requests consumed by workers
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ActRequestedEvent EventType = "act.requested"

	ActCreatedEvent   EventType = "act.created"
	ActStartedEvent   EventType = "act.started"
	ActCompletedEvent EventType = "act.completed"
	ActFailedEvent    EventType = "act.failed"
	ActCancelledEvent EventType = "act.cancelled"

	TaskStartedEvent   EventType = "task.started"
	TaskCompletedEvent EventType = "task.completed"
	TaskFailedEvent    EventType = "task.failed"
	TaskCancelledEvent EventType = "task.cancelled"

	GenerationCreatedEvent   EventType = "generation.created"
	GenerationStartedEvent   EventType = "generation.started"
	GenerationCompletedEvent EventType = "generation.completed"
	GenerationFailedEvent    EventType = "generation.failed"
	GenerationCancelledEvent EventType = "generation.cancelled"
	GenerationRetriedEvent   EventType = "generation.retried"
)

// TopicFor returns the topic events of the given type are published on.
func TopicFor(eventType EventType) string {
	if eventType == ActRequestedEvent {
		return ActRequestTopic
	}

	return Topic
}

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkspaceID string         `json:"workspace_id"`
	ActID       string         `json:"act_id,omitempty"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Key is the partition key of the event: the act id when there is one.
func (e BaseEvent) Key() string {
	if e.ActID != "" {
		return e.ActID
	}

	return e.WorkspaceID
}

func NewBaseEvent(eventType EventType, workspaceID, actID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
		ActID:       actID,
		Metadata:    make(map[string]any),
	}
}

// ActRequested asks a worker to create and start an act.
type ActRequested struct {
	BaseEvent

	Request models.ActCreationRequest `json:"request"`
}

func (e ActRequested) GetType() EventType {
	return ActRequestedEvent
}

func NewActRequested(request models.ActCreationRequest) ActRequested {
	return ActRequested{
		BaseEvent: NewBaseEvent(ActRequestedEvent, request.WorkspaceID, ""),
		Request:   request,
	}
}

// ActLifecycle reports an act status change.
type ActLifecycle struct {
	BaseEvent

	Status             models.ExecutionStatus `json:"status"`
	TaskIDs            []string               `json:"task_ids,omitempty"`
	FailedTaskID       string                 `json:"failed_task_id,omitempty"`
	FailedGenerationID string                 `json:"failed_generation_id,omitempty"`
	Error              string                 `json:"error,omitempty"`
}

func (e ActLifecycle) GetType() EventType {
	return e.Type
}

func NewActLifecycle(eventType EventType, act *models.Act) ActLifecycle {
	return ActLifecycle{
		BaseEvent:          NewBaseEvent(eventType, act.WorkspaceID, act.ID),
		Status:             act.Status,
		TaskIDs:            act.TaskIDs,
		FailedTaskID:       act.FailedTaskID,
		FailedGenerationID: act.FailedGenerationID,
		Error:              act.Error,
	}
}

// TaskLifecycle reports a task status change.
type TaskLifecycle struct {
	BaseEvent

	TaskID             string                 `json:"task_id"`
	Status             models.ExecutionStatus `json:"status"`
	FailedGenerationID string                 `json:"failed_generation_id,omitempty"`
	Error              string                 `json:"error,omitempty"`
	DurationMs         int64                  `json:"duration_ms,omitempty"`
}

func (e TaskLifecycle) GetType() EventType {
	return e.Type
}

func NewTaskLifecycle(eventType EventType, task *models.Task) TaskLifecycle {
	event := TaskLifecycle{
		BaseEvent:          NewBaseEvent(eventType, task.WorkspaceID, task.ActID),
		TaskID:             task.ID,
		Status:             task.Status,
		FailedGenerationID: task.FailedGenerationID,
		Error:              task.Error,
	}

	if task.StartedAt != nil && task.EndedAt != nil {
		event.DurationMs = task.EndedAt.Sub(*task.StartedAt).Milliseconds()
	}

	return event
}

// GenerationLifecycle reports a generation status change.
type GenerationLifecycle struct {
	BaseEvent

	TaskID       string                  `json:"task_id"`
	GenerationID string                  `json:"generation_id"`
	NodeID       string                  `json:"node_id"`
	NodeType     models.NodeType         `json:"node_type"`
	Status       models.ExecutionStatus  `json:"status"`
	RetryCount   int                     `json:"retry_count"`
	Error        *models.GenerationError `json:"error,omitempty"`
	DurationMs   int64                   `json:"duration_ms,omitempty"`
}

func (e GenerationLifecycle) GetType() EventType {
	return e.Type
}

func NewGenerationLifecycle(eventType EventType, generation *models.Generation) GenerationLifecycle {
	event := GenerationLifecycle{
		BaseEvent:    NewBaseEvent(eventType, generation.WorkspaceID, generation.ActID),
		TaskID:       generation.TaskID,
		GenerationID: generation.ID,
		NodeID:       generation.NodeID,
		NodeType:     generation.NodeType,
		Status:       generation.Status,
		RetryCount:   generation.RetryCount,
		Error:        generation.Error,
	}

	if generation.StartedAt != nil && generation.EndedAt != nil {
		event.DurationMs = generation.EndedAt.Sub(*generation.StartedAt).Milliseconds()
	}

	return event
}
