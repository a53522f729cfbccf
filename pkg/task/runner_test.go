package task_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/generation"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/protocol"
	"github.com/dukex/actflow/pkg/registry"
	"github.com/dukex/actflow/pkg/store"
	"github.com/dukex/actflow/pkg/store/memory"
	"github.com/dukex/actflow/pkg/task"
	"github.com/dukex/actflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	p          *persistence.Persistence
	machine    *generation.Machine
	runner     *task.Runner
	triggers   *testutil.FakeExecutorFactory
	generators *testutil.FakeExecutorFactory
	sink       *testutil.RecordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	return newFixtureWithStore(t, memory.NewStore())
}

func newFixtureWithStore(t *testing.T, s store.Store) *fixture {
	t.Helper()

	p := persistence.New(s, slog.Default())
	sink := testutil.NewRecordingSink()

	triggers := testutil.NewFakeExecutorFactory(models.NodeTypeTrigger)
	generators := testutil.NewFakeExecutorFactory(models.NodeTypeTextGeneration)

	reg := registry.NewRegistry(slog.Default())
	reg.Register(triggers)
	reg.Register(generators)

	machine := generation.NewMachine(p, sink, slog.Default())

	return &fixture{
		p:          p,
		machine:    machine,
		runner:     task.NewRunner(p, machine, reg, sink, slog.Default()),
		triggers:   triggers,
		generators: generators,
		sink:       sink,
	}
}

// createTask persists a task whose steps are given as node ids; generation
// ids are "gen-" + node id.
func (f *fixture) createTask(t *testing.T, nodes []*models.Node, connections []*models.Connection, steps [][]string) *models.Task {
	t.Helper()

	tk := &models.Task{
		ID:          "task-1",
		ActID:       "act-1",
		WorkspaceID: "ws-1",
		Status:      models.ExecutionStatusQueued,
		Nodes:       nodes,
		Connections: connections,
		Payload:     map[string]any{"topic": "go"},
	}

	for i, ids := range steps {
		step := models.Step{Index: i}
		for _, id := range ids {
			step.Entries = append(step.Entries, models.StepEntry{NodeID: id, GenerationID: "gen-" + id})
		}

		tk.Steps = append(tk.Steps, step)
	}

	require.NoError(t, f.p.Tasks().Create(context.Background(), tk))

	return tk
}

func (f *fixture) chainTask(t *testing.T) *models.Task {
	t.Helper()

	return f.createTask(t,
		[]*models.Node{
			testutil.TriggerNode("A"),
			testutil.CreateTestNode(testutil.WithID("B"), testutil.WithType(models.NodeTypeTextGeneration)),
			testutil.CreateTestNode(testutil.WithID("C"), testutil.WithType(models.NodeTypeTextGeneration)),
		},
		[]*models.Connection{testutil.Connect("A", "B"), testutil.Connect("B", "C")},
		[][]string{{"A"}, {"B"}, {"C"}},
	)
}

func TestRunner_Run_Completes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	tk := f.chainTask(t)

	result, err := f.runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, "C", result.Outputs["C"]["output"])

	triggerGen, err := f.machine.Get(ctx, "gen-A")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"topic": "go"}, triggerGen.Input[models.PayloadPort])

	c, err := f.machine.Get(ctx, "gen-C")
	require.NoError(t, err)
	assert.Equal(t, "B", c.Input["input"])
	assert.Equal(t, 2, c.StepIndex)

	stored, err := f.p.Tasks().Get(ctx, "act-1", "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 3, stored.DispatchedSteps)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.EndedAt)

	assert.Equal(t, 1, f.sink.Count(events.TaskStartedEvent))
	assert.Equal(t, 1, f.sink.Count(events.TaskCompletedEvent))
	assert.Equal(t, 3, f.sink.Count(events.GenerationCompletedEvent))
}

func TestRunner_Run_FailureStopsBeforeNextStep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	tk := f.chainTask(t)

	f.generators.On("B", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, protocol.NewExecutorError("", "rate_limited", "provider rate limited", map[string]any{"retry_after": 30})
	})

	result, err := f.runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Equal(t, "gen-B", result.FailedGenerationID)
	assert.Equal(t, "provider rate limited", result.Error)
	assert.Equal(t, "A", result.Outputs["A"]["output"])

	assert.Equal(t, 0, f.generators.Calls("C"))

	_, err = f.machine.Get(ctx, "gen-C")
	assert.True(t, persistence.IsNotFound(err))

	b, err := f.machine.Get(ctx, "gen-B")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, b.Status)
	assert.Equal(t, "rate_limited", b.Error.Code)
	assert.Equal(t, "text-generation", string(b.NodeType))

	a, err := f.machine.Get(ctx, "gen-A")
	require.NoError(t, err)
	assert.Equal(t, "A", a.Output["output"])

	stored, err := f.p.Tasks().Get(ctx, "act-1", "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, "gen-B", stored.FailedGenerationID)
	assert.Equal(t, 1, f.sink.Count(events.TaskFailedEvent))
}

func TestRunner_Run_ResumesAfterCompletedGeneration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	tk := f.chainTask(t)

	// State left by a crash after A completed.
	_, err := f.machine.Create(ctx, &models.Generation{ID: "gen-A", TaskID: "task-1", ActID: "act-1", NodeID: "A", NodeType: models.NodeTypeTrigger})
	require.NoError(t, err)
	_, err = f.machine.Start(ctx, "gen-A", map[string]any{models.PayloadPort: map[string]any{"topic": "go"}})
	require.NoError(t, err)
	_, err = f.machine.Complete(ctx, "gen-A", map[string]any{"output": "stored"})
	require.NoError(t, err)
	_, err = f.p.Tasks().Update(ctx, "act-1", "task-1", func(t *models.Task) error {
		t.Status = models.ExecutionStatusRunning
		t.DispatchedSteps = 1

		return nil
	})
	require.NoError(t, err)

	result, err := f.runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)

	assert.Equal(t, 0, f.triggers.Calls("A"))
	assert.Equal(t, 1, f.generators.Calls("B"))
	assert.Equal(t, "stored", result.Outputs["A"]["output"])

	b, err := f.machine.Get(ctx, "gen-B")
	require.NoError(t, err)
	assert.Equal(t, "stored", b.Input["input"])

	// A second run over a terminal task does not execute anything.
	again, err := f.runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, again.Status)
	assert.Equal(t, 1, f.generators.Calls("B"))
	assert.Equal(t, 1, f.generators.Calls("C"))
}

func TestRunner_Run_ResumesRunningGenerationWithStoredInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	tk := f.chainTask(t)

	_, err := f.machine.Create(ctx, &models.Generation{ID: "gen-A", TaskID: "task-1", ActID: "act-1", NodeID: "A", NodeType: models.NodeTypeTrigger})
	require.NoError(t, err)
	_, err = f.machine.Start(ctx, "gen-A", map[string]any{models.PayloadPort: map[string]any{"topic": "snapshot"}})
	require.NoError(t, err)

	var seen map[string]any

	f.triggers.On("A", func(_ context.Context, input map[string]any) (map[string]any, error) {
		seen = input

		return map[string]any{"output": "A"}, nil
	})

	result, err := f.runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, map[string]any{"topic": "snapshot"}, seen[models.PayloadPort])
}

func TestRunner_Run_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	tk := f.chainTask(t)

	require.NoError(t, f.p.Acts().RequestCancel(ctx, &models.ActCancellation{ActID: "act-1", RequestedAt: time.Now()}))

	result, err := f.runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, result.Status)
	assert.Equal(t, 0, f.triggers.Calls("A"))

	stored, err := f.p.Tasks().Get(ctx, "act-1", "task-1")
	require.NoError(t, err)
	assert.Nil(t, stored.StartedAt)

	generations, err := f.p.Generations().ListByTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Empty(t, generations)
}

func TestRunner_Run_CancelledMidFlight(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tk := f.chainTask(t)

	started := make(chan struct{})

	f.generators.On("B", func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		close(started)
		<-ctx.Done()

		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		result *models.TaskResult
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		result, err := f.runner.Run(ctx, tk)
		done <- outcome{result, err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("generation B never started")
	}

	require.NoError(t, f.p.Acts().RequestCancel(context.Background(), &models.ActCancellation{ActID: "act-1", RequestedAt: time.Now()}))
	cancel()

	var got outcome
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not stop after cancellation")
	}

	require.NoError(t, got.err)
	assert.Equal(t, models.ExecutionStatusCancelled, got.result.Status)
	assert.Equal(t, 0, f.generators.Calls("C"))

	b, err := f.machine.Get(context.Background(), "gen-B")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, b.Status)
}

func TestRunner_Run_ShutdownLeavesTaskResumable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tk := f.chainTask(t)

	ctx, cancel := context.WithCancel(context.Background())

	f.generators.On("B", func(context.Context, map[string]any) (map[string]any, error) {
		cancel()

		return nil, context.Canceled
	})

	_, err := f.runner.Run(ctx, tk)
	require.ErrorIs(t, err, context.Canceled)

	b, err := f.machine.Get(context.Background(), "gen-B")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, b.Status)

	f.generators.On("B", nil)

	result, err := f.runner.Run(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, 1, f.triggers.Calls("A"))
	assert.Equal(t, 2, f.generators.Calls("B"))
}

func TestRunner_Run_DispatchesStepConcurrently(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	tk := f.createTask(t,
		[]*models.Node{
			testutil.TriggerNode("A"),
			testutil.CreateTestNode(testutil.WithID("B1"), testutil.WithType(models.NodeTypeTextGeneration)),
			testutil.CreateTestNode(testutil.WithID("B2"), testutil.WithType(models.NodeTypeTextGeneration)),
		},
		[]*models.Connection{testutil.Connect("A", "B1"), testutil.Connect("A", "B2")},
		[][]string{{"A"}, {"B1", "B2"}},
	)

	var arrived sync.WaitGroup

	arrived.Add(2)

	release := make(chan struct{})

	go func() {
		arrived.Wait()
		close(release)
	}()

	both := func(context.Context, map[string]any) (map[string]any, error) {
		arrived.Done()

		select {
		case <-release:
			return map[string]any{"output": "ok"}, nil
		case <-time.After(5 * time.Second):
			return nil, protocol.NewExecutorError("", "timeout", "sibling never started", nil)
		}
	}

	f.generators.On("B1", both).On("B2", both)

	result, err := f.runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)
	assert.Len(t, result.Outputs, 3)
}

func TestRunner_Cancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.chainTask(t)

	tk, err := f.runner.Cancel(ctx, "act-1", "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, tk.Status)

	result, err := f.runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, result.Status)
	assert.Equal(t, 0, f.triggers.Calls("A"))
	assert.Equal(t, 1, f.sink.Count(events.TaskCancelledEvent))
}

// flakyIndexStore fails the first put under prefix.
type flakyIndexStore struct {
	store.Store

	prefix string
	failed atomic.Bool
}

func (s *flakyIndexStore) Put(ctx context.Context, key string, value []byte, opts ...store.PutOption) (store.ETag, error) {
	if strings.HasPrefix(key, s.prefix) && s.failed.CompareAndSwap(false, true) {
		return "", errors.New("store unavailable")
	}

	return s.Store.Put(ctx, key, value, opts...)
}

func TestRunner_Run_ResumeRepairsLostGenerationIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixtureWithStore(t, &flakyIndexStore{Store: memory.NewStore(), prefix: "tasks/task-1/generations/"})
	tk := f.chainTask(t)

	_, err := f.runner.Run(ctx, tk)
	require.Error(t, err)

	result, err := f.runner.Run(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)

	generations, err := f.p.Generations().ListByTask(ctx, tk.ID)
	require.NoError(t, err)

	ids := make([]string, 0, len(generations))
	for _, g := range generations {
		ids = append(ids, g.ID)
	}

	assert.Equal(t, []string{"gen-A", "gen-B", "gen-C"}, ids)
}
