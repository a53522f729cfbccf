package generation_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/generation"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/store/memory"
	"github.com/dukex/actflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMachine(t *testing.T) (*generation.Machine, *testutil.RecordingSink) {
	t.Helper()

	sink := testutil.NewRecordingSink()
	p := persistence.New(memory.NewStore(), slog.Default(), persistence.WithConflictRetries(50))

	return generation.NewMachine(p, sink, slog.Default()), sink
}

func createGeneration(t *testing.T, m *generation.Machine, id string) *models.Generation {
	t.Helper()

	g, err := m.Create(context.Background(), &models.Generation{
		ID:       id,
		TaskID:   "task-1",
		ActID:    "act-1",
		NodeID:   "node-" + id,
		NodeType: models.NodeTypeText,
	})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusQueued, g.Status)

	return g
}

func TestMachine_HappyPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, sink := newMachine(t)
	createGeneration(t, m, "g1")

	g, err := m.Start(ctx, "g1", map[string]any{"input": "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, g.Status)
	assert.NotNil(t, g.StartedAt)

	g, err = m.Complete(ctx, "g1", map[string]any{"output": "world"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, g.Status)
	assert.Equal(t, "world", g.Output["output"])
	assert.NotNil(t, g.EndedAt)

	stored, err := m.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Input["input"])

	assert.Equal(t, []events.EventType{
		events.GenerationCreatedEvent,
		events.GenerationStartedEvent,
		events.GenerationCompletedEvent,
	}, sink.Types())
}

func TestMachine_CreateIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, sink := newMachine(t)
	createGeneration(t, m, "g1")

	_, err := m.Start(ctx, "g1", nil)
	require.NoError(t, err)

	again, err := m.Create(ctx, &models.Generation{ID: "g1", TaskID: "task-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, again.Status)
	assert.Equal(t, 1, sink.Count(events.GenerationCreatedEvent))
}

func TestMachine_Start(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("completed generation is returned unchanged", func(t *testing.T) {
		m, sink := newMachine(t)
		createGeneration(t, m, "g1")
		_, err := m.Start(ctx, "g1", map[string]any{"v": "first"})
		require.NoError(t, err)
		_, err = m.Complete(ctx, "g1", map[string]any{"output": "done"})
		require.NoError(t, err)

		g, err := m.Start(ctx, "g1", map[string]any{"v": "second"})
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCompleted, g.Status)
		assert.Equal(t, "done", g.Output["output"])
		assert.Equal(t, "first", g.Input["v"])
		assert.Equal(t, 1, sink.Count(events.GenerationStartedEvent))
	})

	t.Run("running generation keeps its first input snapshot", func(t *testing.T) {
		m, sink := newMachine(t)
		createGeneration(t, m, "g1")
		_, err := m.Start(ctx, "g1", map[string]any{"v": "first"})
		require.NoError(t, err)

		g, err := m.Start(ctx, "g1", map[string]any{"v": "second"})
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusRunning, g.Status)
		assert.Equal(t, "first", g.Input["v"])
		assert.Equal(t, 1, sink.Count(events.GenerationStartedEvent))
	})

	t.Run("cancelled generation is returned unchanged", func(t *testing.T) {
		m, _ := newMachine(t)
		createGeneration(t, m, "g1")
		_, err := m.Cancel(ctx, "g1")
		require.NoError(t, err)

		g, err := m.Start(ctx, "g1", nil)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCancelled, g.Status)
		assert.Nil(t, g.StartedAt)
	})

	t.Run("failed generation must be retried first", func(t *testing.T) {
		m, _ := newMachine(t)
		createGeneration(t, m, "g1")
		_, err := m.Start(ctx, "g1", nil)
		require.NoError(t, err)
		_, err = m.Fail(ctx, "g1", &models.GenerationError{Message: "boom"})
		require.NoError(t, err)

		_, err = m.Start(ctx, "g1", nil)
		require.Error(t, err)
		assert.True(t, generation.IsInvalidTransition(err))
	})

	t.Run("missing generation", func(t *testing.T) {
		m, _ := newMachine(t)

		_, err := m.Start(ctx, "missing", nil)
		require.Error(t, err)
		assert.True(t, persistence.IsNotFound(err))
	})
}

func TestMachine_CompleteAndFailRequireRunning(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newMachine(t)
	createGeneration(t, m, "g1")

	_, err := m.Complete(ctx, "g1", map[string]any{"output": 1})
	require.Error(t, err)

	var transitionErr *generation.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.ExecutionStatusQueued, transitionErr.From)
	assert.Equal(t, models.ExecutionStatusCompleted, transitionErr.To)

	_, err = m.Fail(ctx, "g1", &models.GenerationError{Message: "boom"})
	assert.True(t, generation.IsInvalidTransition(err))

	g, err := m.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusQueued, g.Status)
}

func TestMachine_FirstTerminalWriteWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for range 20 {
		m, _ := newMachine(t)
		createGeneration(t, m, "g1")
		_, err := m.Start(ctx, "g1", nil)
		require.NoError(t, err)

		var wg sync.WaitGroup

		var completeErr, failErr error

		wg.Add(2)

		go func() {
			defer wg.Done()

			_, completeErr = m.Complete(ctx, "g1", map[string]any{"output": "out1"})
		}()

		go func() {
			defer wg.Done()

			_, failErr = m.Fail(ctx, "g1", &models.GenerationError{Message: "err"})
		}()

		wg.Wait()

		g, err := m.Get(ctx, "g1")
		require.NoError(t, err)

		switch g.Status {
		case models.ExecutionStatusCompleted:
			require.NoError(t, completeErr)
			assert.True(t, generation.IsInvalidTransition(failErr))
			assert.Nil(t, g.Error)
		case models.ExecutionStatusFailed:
			require.NoError(t, failErr)
			assert.True(t, generation.IsInvalidTransition(completeErr))
			assert.Nil(t, g.Output)
		default:
			t.Fatalf("unexpected status %s", g.Status)
		}
	}
}

func TestMachine_Cancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, sink := newMachine(t)

	createGeneration(t, m, "queued")
	g, err := m.Cancel(ctx, "queued")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, g.Status)

	_, err = m.Cancel(ctx, "queued")
	require.NoError(t, err)
	assert.Equal(t, 1, sink.Count(events.GenerationCancelledEvent))

	createGeneration(t, m, "running")
	_, err = m.Start(ctx, "running", nil)
	require.NoError(t, err)
	g, err = m.Cancel(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, g.Status)

	_, err = m.Complete(ctx, "running", map[string]any{"output": "late"})
	require.Error(t, err)
	assert.True(t, generation.IsInvalidTransition(err))

	createGeneration(t, m, "done")
	_, err = m.Start(ctx, "done", nil)
	require.NoError(t, err)
	_, err = m.Complete(ctx, "done", nil)
	require.NoError(t, err)

	_, err = m.Cancel(ctx, "done")
	require.Error(t, err)
	assert.True(t, errors.Is(err, generation.ErrAlreadyTerminal))
}

func TestMachine_Retry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, sink := newMachine(t)
	createGeneration(t, m, "g1")

	fail := func() {
		t.Helper()

		_, err := m.Start(ctx, "g1", map[string]any{"v": "snapshot"})
		require.NoError(t, err)
		_, err = m.Fail(ctx, "g1", &models.GenerationError{Message: "boom", Code: "provider"})
		require.NoError(t, err)
	}

	fail()

	_, err := m.Retry(ctx, "g1", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, generation.ErrRetryLimitExceeded)

	g, err := m.Retry(ctx, "g1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusQueued, g.Status)
	assert.Equal(t, 1, g.RetryCount)
	assert.Nil(t, g.Error)
	assert.Equal(t, "snapshot", g.Input["v"])

	_, err = m.Retry(ctx, "g1", 1)
	assert.True(t, generation.IsInvalidTransition(err))

	fail()

	_, err = m.Retry(ctx, "g1", 1)
	assert.ErrorIs(t, err, generation.ErrRetryLimitExceeded)

	g, err = m.Retry(ctx, "g1", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, g.RetryCount)
	assert.Equal(t, 2, sink.Count(events.GenerationRetriedEvent))
}
