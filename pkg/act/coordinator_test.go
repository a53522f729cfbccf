package act_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/generation"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/protocol"
	"github.com/dukex/actflow/pkg/registry"
	"github.com/dukex/actflow/pkg/store/memory"
	"github.com/dukex/actflow/pkg/task"
	"github.com/dukex/actflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	p           *persistence.Persistence
	coordinator *act.Coordinator
	triggers    *testutil.FakeExecutorFactory
	generators  *testutil.FakeExecutorFactory
	sink        *testutil.RecordingSink
}

func newFixture(t *testing.T, config act.Config) *fixture {
	t.Helper()

	p := persistence.New(memory.NewStore(), slog.Default())
	sink := testutil.NewRecordingSink()

	triggers := testutil.NewFakeExecutorFactory(models.NodeTypeTrigger)
	generators := testutil.NewFakeExecutorFactory(models.NodeTypeTextGeneration)

	reg := registry.NewRegistry(slog.Default())
	reg.Register(triggers)
	reg.Register(generators)

	machine := generation.NewMachine(p, sink, slog.Default())
	runner := task.NewRunner(p, machine, reg, sink, slog.Default())

	if config.CancelPollInterval == 0 {
		config.CancelPollInterval = 10 * time.Millisecond
	}

	return &fixture{
		p:           p,
		coordinator: act.NewCoordinator(p, runner, machine, sink, slog.Default(), config),
		triggers:    triggers,
		generators:  generators,
		sink:        sink,
	}
}

func (f *fixture) saveWorkspace(t *testing.T, ws *models.Workspace) {
	t.Helper()

	require.NoError(t, f.p.Workspaces().Save(context.Background(), ws))
}

func TestPlan(t *testing.T) {
	t.Parallel()

	ws := testutil.CreateChainWorkspace("ws-1", models.NodeTypeTextGeneration)

	a, tasks, err := act.Plan(ws, models.ActCreationRequest{WorkspaceID: "ws-1", Requester: "ada", PlanTier: "pro"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	assert.Equal(t, models.ExecutionStatusQueued, a.Status)
	assert.Equal(t, []string{tasks[0].ID}, a.TaskIDs)
	assert.Equal(t, "ada", a.Requester)
	assert.Equal(t, "pro", a.PlanTier)

	tk := tasks[0]
	require.Len(t, tk.Steps, 3)
	assert.Equal(t, "A", tk.Steps[0].Entries[0].NodeID)
	assert.Equal(t, "B", tk.Steps[1].Entries[0].NodeID)
	assert.Equal(t, "C", tk.Steps[2].Entries[0].NodeID)
	assert.Len(t, tk.Nodes, 3)

	_, ok := tk.NodeByID("D")
	assert.False(t, ok)

	ids := map[string]bool{}
	for _, id := range tk.GenerationIDs() {
		ids[id] = true
	}

	assert.Len(t, ids, 3)

	_, again, err := act.Plan(ws, models.ActCreationRequest{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.NotEqual(t, tk.ID, again[0].ID)
	assert.NotEqual(t, tk.Steps[0].Entries[0].GenerationID, again[0].Steps[0].Entries[0].GenerationID)
}

func TestPlan_Errors(t *testing.T) {
	t.Parallel()

	t.Run("cycle", func(t *testing.T) {
		ws := testutil.CreateTestWorkspace("ws", []*models.Node{
			testutil.TriggerNode("T"),
			testutil.CreateTestNode(testutil.WithID("A")),
			testutil.CreateTestNode(testutil.WithID("B")),
		}, []*models.Connection{testutil.Connect("T", "A"), testutil.Connect("A", "B"), testutil.Connect("B", "A")})

		_, _, err := act.Plan(ws, models.ActCreationRequest{WorkspaceID: "ws"})
		require.Error(t, err)
	})

	t.Run("no trigger", func(t *testing.T) {
		ws := testutil.CreateTestWorkspace("ws", []*models.Node{testutil.CreateTestNode(testutil.WithID("memo"))}, nil)

		_, _, err := act.Plan(ws, models.ActCreationRequest{WorkspaceID: "ws"})
		require.ErrorIs(t, err, act.ErrNoExecutableTasks)
	})

	t.Run("unknown trigger node", func(t *testing.T) {
		ws := testutil.CreateChainWorkspace("ws", models.NodeTypeTextGeneration)

		_, _, err := act.Plan(ws, models.ActCreationRequest{WorkspaceID: "ws", NodeID: "B"})
		require.ErrorIs(t, err, act.ErrTriggerNodeNotFound)
	})
}

func TestPlan_RestrictsToTriggerComponent(t *testing.T) {
	t.Parallel()

	ws := testutil.CreateTestWorkspace("ws", []*models.Node{
		testutil.TriggerNode("T1"),
		testutil.TriggerNode("T2"),
		testutil.CreateTestNode(testutil.WithID("X")),
		testutil.CreateTestNode(testutil.WithID("Y")),
	}, []*models.Connection{testutil.Connect("T1", "X"), testutil.Connect("T2", "Y")})

	_, all, err := act.Plan(ws, models.ActCreationRequest{WorkspaceID: "ws"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, only, err := act.Plan(ws, models.ActCreationRequest{WorkspaceID: "ws", NodeID: "T2"})
	require.NoError(t, err)
	require.Len(t, only, 1)

	_, ok := only[0].NodeByID("Y")
	assert.True(t, ok)
}

func TestCoordinator_RunCompletes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, act.Config{})
	f.saveWorkspace(t, testutil.CreateChainWorkspace("ws-1", models.NodeTypeTextGeneration))

	created, err := f.coordinator.CreateAct(ctx, models.ActCreationRequest{WorkspaceID: "ws-1", Payload: map[string]any{"q": "hi"}})
	require.NoError(t, err)

	done, err := f.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, done.Status)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.EndedAt)

	report, err := f.coordinator.Status(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count[models.ExecutionStatusCompleted])
	require.Len(t, report.Tasks, 1)
	assert.Len(t, report.Tasks[0].Generations, 3)

	acts, err := f.coordinator.ListActs(ctx, "ws-1")
	require.NoError(t, err)
	assert.Len(t, acts, 1)

	assert.Equal(t, 1, f.sink.Count(events.ActCreatedEvent))
	assert.Equal(t, 1, f.sink.Count(events.ActStartedEvent))
	assert.Equal(t, 1, f.sink.Count(events.ActCompletedEvent))

	again, err := f.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, again.Status)
	assert.Equal(t, 1, f.generators.Calls("B"))
}

func TestCoordinator_FailedGenerationFailsAct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, act.Config{})
	f.saveWorkspace(t, testutil.CreateChainWorkspace("ws-1", models.NodeTypeTextGeneration))

	f.generators.On("B", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("model overloaded")
	})

	created, err := f.coordinator.CreateAct(ctx, models.ActCreationRequest{WorkspaceID: "ws-1"})
	require.NoError(t, err)

	done, err := f.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, done.Status)
	assert.Equal(t, created.TaskIDs[0], done.FailedTaskID)
	assert.Equal(t, "model overloaded", done.Error)
	assert.Equal(t, 0, f.generators.Calls("C"))

	report, err := f.coordinator.Status(ctx, created.ID)
	require.NoError(t, err)

	tk := report.Tasks[0].Task
	assert.Equal(t, models.ExecutionStatusFailed, tk.Status)

	genB, _ := tk.GenerationIDFor("B")
	assert.Equal(t, genB, done.FailedGenerationID)

	var outputA map[string]any

	for _, g := range report.Tasks[0].Generations {
		if g.NodeID == "A" {
			outputA = g.Output
		}
	}

	assert.Equal(t, "A", outputA["output"])
	assert.Len(t, report.Tasks[0].Generations, 2)
	assert.Equal(t, 1, f.sink.Count(events.ActFailedEvent))
}

func TestCoordinator_FailureIsContainedToItsTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, act.Config{})
	f.saveWorkspace(t, testutil.CreateTestWorkspace("ws", []*models.Node{
		testutil.TriggerNode("T1"),
		testutil.TriggerNode("T2"),
		testutil.CreateTestNode(testutil.WithID("X"), testutil.WithType(models.NodeTypeTextGeneration)),
		testutil.CreateTestNode(testutil.WithID("Y"), testutil.WithType(models.NodeTypeTextGeneration)),
	}, []*models.Connection{testutil.Connect("T1", "X"), testutil.Connect("T2", "Y")}))

	f.generators.On("X", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	created, err := f.coordinator.CreateAct(ctx, models.ActCreationRequest{WorkspaceID: "ws"})
	require.NoError(t, err)

	done, err := f.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, done.Status)

	report, err := f.coordinator.Status(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count[models.ExecutionStatusFailed])
	assert.Equal(t, 1, report.Count[models.ExecutionStatusCompleted])
	assert.Equal(t, 1, f.generators.Calls("Y"))
}

func TestCoordinator_CancelWhileRunning(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, act.Config{MaxConcurrentTasks: 1})
	f.saveWorkspace(t, testutil.CreateTestWorkspace("ws", []*models.Node{
		testutil.TriggerNode("T1"),
		testutil.TriggerNode("T2"),
	}, nil))

	var (
		once    sync.Once
		startMu sync.Mutex
		first   string
	)

	started := make(chan struct{})

	block := func(nodeID string) protocol.ExecutorFunc {
		return func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			startMu.Lock()
			if first == "" {
				first = nodeID
			}
			startMu.Unlock()

			once.Do(func() { close(started) })
			<-ctx.Done()

			return nil, ctx.Err()
		}
	}

	f.triggers.On("T1", block("T1")).On("T2", block("T2"))

	created, err := f.coordinator.CreateAct(ctx, models.ActCreationRequest{WorkspaceID: "ws"})
	require.NoError(t, err)
	require.Len(t, created.TaskIDs, 2)

	require.NoError(t, f.coordinator.Start(ctx, created.ID))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no task started")
	}

	_, err = f.coordinator.Cancel(ctx, created.ID, "user request", "ada")
	require.NoError(t, err)

	f.coordinator.Wait()

	report, err := f.coordinator.Status(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, report.Act.Status)

	startMu.Lock()
	runningNode := first
	startMu.Unlock()

	for _, tr := range report.Tasks {
		assert.Equal(t, models.ExecutionStatusCancelled, tr.Task.Status)

		if _, ok := tr.Task.NodeByID(runningNode); ok {
			require.Len(t, tr.Generations, 1)
			assert.Equal(t, models.ExecutionStatusCancelled, tr.Generations[0].Status)
			assert.NotNil(t, tr.Generations[0].StartedAt)

			continue
		}

		// The queued task never started.
		assert.Nil(t, tr.Task.StartedAt)
		assert.Empty(t, tr.Generations)
	}

	assert.Equal(t, 1, f.triggers.Calls(runningNode))
	assert.Equal(t, 1, f.sink.Count(events.ActCancelledEvent))
}

func TestCoordinator_CancelQueuedAct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, act.Config{})
	f.saveWorkspace(t, testutil.CreateChainWorkspace("ws-1", models.NodeTypeTextGeneration))

	created, err := f.coordinator.CreateAct(ctx, models.ActCreationRequest{WorkspaceID: "ws-1"})
	require.NoError(t, err)

	cancelled, err := f.coordinator.Cancel(ctx, created.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)

	done, err := f.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, done.Status)
	assert.Equal(t, 0, f.triggers.Calls("A"))

	again, err := f.coordinator.Cancel(ctx, created.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, again.Status)
}

func TestCoordinator_RetryFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, act.Config{MaxGenerationRetries: 1})
	f.saveWorkspace(t, testutil.CreateChainWorkspace("ws-1", models.NodeTypeTextGeneration))

	attempts := 0

	f.generators.On("B", func(context.Context, map[string]any) (map[string]any, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}

		return map[string]any{"output": "B ok"}, nil
	})

	created, err := f.coordinator.CreateAct(ctx, models.ActCreationRequest{WorkspaceID: "ws-1"})
	require.NoError(t, err)

	done, err := f.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusFailed, done.Status)

	requeued, err := f.coordinator.RetryFailed(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusQueued, requeued.Status)
	assert.Empty(t, requeued.FailedGenerationID)

	done, err = f.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, done.Status)
	assert.Equal(t, 1, f.triggers.Calls("A"))
	assert.Equal(t, 2, f.generators.Calls("B"))

	_, err = f.coordinator.RetryFailed(ctx, created.ID)
	require.ErrorIs(t, err, act.ErrActNotFailed)
}

func TestCoordinator_RetryFailedRespectsCeiling(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, act.Config{})
	f.saveWorkspace(t, testutil.CreateChainWorkspace("ws-1", models.NodeTypeTextGeneration))

	f.generators.On("B", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("always")
	})

	created, err := f.coordinator.CreateAct(ctx, models.ActCreationRequest{WorkspaceID: "ws-1"})
	require.NoError(t, err)

	_, err = f.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)

	_, err = f.coordinator.RetryFailed(ctx, created.ID)
	require.ErrorIs(t, err, generation.ErrRetryLimitExceeded)
}

func TestCoordinator_ResumesRunningAct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, act.Config{})
	f.saveWorkspace(t, testutil.CreateChainWorkspace("ws-1", models.NodeTypeTextGeneration))

	created, err := f.coordinator.CreateAct(ctx, models.ActCreationRequest{WorkspaceID: "ws-1"})
	require.NoError(t, err)

	// A previous process marked the act running and then died.
	_, err = f.p.Acts().Update(ctx, created.ID, func(a *models.Act) error {
		a.Status = models.ExecutionStatusRunning

		return nil
	})
	require.NoError(t, err)

	done, err := f.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, done.Status)
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	tasks := func(statuses ...models.ExecutionStatus) []*models.Task {
		out := make([]*models.Task, 0, len(statuses))
		for i, s := range statuses {
			out = append(out, &models.Task{ID: string(rune('a' + i)), Status: s})
		}

		return out
	}

	status, failed := act.Aggregate(tasks(models.ExecutionStatusCompleted, models.ExecutionStatusCompleted))
	assert.Equal(t, models.ExecutionStatusCompleted, status)
	assert.Nil(t, failed)

	status, failed = act.Aggregate(tasks(models.ExecutionStatusCancelled, models.ExecutionStatusFailed, models.ExecutionStatusFailed))
	assert.Equal(t, models.ExecutionStatusFailed, status)
	assert.Equal(t, "b", failed.ID)

	status, _ = act.Aggregate(tasks(models.ExecutionStatusCompleted, models.ExecutionStatusCancelled))
	assert.Equal(t, models.ExecutionStatusCancelled, status)
}

func TestCoordinator_HandleActRequested(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, act.Config{})
	f.saveWorkspace(t, testutil.CreateChainWorkspace("ws-1", models.NodeTypeTextGeneration))

	event := events.NewActRequested(models.ActCreationRequest{WorkspaceID: "ws-1", Payload: map[string]any{"q": "hi"}})
	require.NoError(t, f.coordinator.HandleActRequested(ctx, &event))

	acts, err := f.coordinator.ListActs(ctx, "ws-1")
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, models.ExecutionStatusCompleted, acts[0].Status)

	missing := events.NewActRequested(models.ActCreationRequest{WorkspaceID: "ws-404"})
	require.NoError(t, f.coordinator.HandleActRequested(ctx, &missing))

	require.Error(t, f.coordinator.HandleActRequested(ctx, "not an event"))
}

func TestCoordinator_HandleActRequested_RedeliveryResumesTheSameAct(t *testing.T) {
	t.Parallel()

	f := newFixture(t, act.Config{})
	f.saveWorkspace(t, testutil.CreateChainWorkspace("ws-1", models.NodeTypeTextGeneration))

	started := make(chan struct{})

	var once sync.Once

	f.generators.On("B", func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		first := false
		once.Do(func() {
			first = true
			close(started)
		})

		if first {
			<-ctx.Done()

			return nil, ctx.Err()
		}

		return map[string]any{"output": "B ok"}, nil
	})

	event := events.NewActRequested(models.ActCreationRequest{WorkspaceID: "ws-1"})

	ctx, shutdown := context.WithCancel(context.Background())
	errs := make(chan error, 1)

	go func() {
		errs <- f.coordinator.HandleActRequested(ctx, &event)
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("B never started")
	}

	shutdown()

	var err error
	select {
	case err = <-errs:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after shutdown")
	}

	require.Error(t, err, "an interrupted act must not be acknowledged")

	acts, err := f.coordinator.ListActs(context.Background(), "ws-1")
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, models.ExecutionStatusRunning, acts[0].Status)
	assert.Equal(t, act.ActIDForRequest(event.ID), acts[0].ID)

	require.NoError(t, f.coordinator.HandleActRequested(context.Background(), &event))

	acts, err = f.coordinator.ListActs(context.Background(), "ws-1")
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, models.ExecutionStatusCompleted, acts[0].Status)
	assert.Equal(t, 1, f.triggers.Calls("A"))
	assert.Equal(t, 2, f.generators.Calls("B"))
	assert.Equal(t, 1, f.generators.Calls("C"))
}

func TestPlan_RequestIDMakesIDsStable(t *testing.T) {
	t.Parallel()

	ws := testutil.CreateChainWorkspace("ws-1", models.NodeTypeTextGeneration)
	request := models.ActCreationRequest{WorkspaceID: "ws-1", RequestID: "req-1"}

	first, firstTasks, err := act.Plan(ws, request)
	require.NoError(t, err)

	second, secondTasks, err := act.Plan(ws, request)
	require.NoError(t, err)

	assert.Equal(t, act.ActIDForRequest("req-1"), first.ID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.TaskIDs, second.TaskIDs)
	assert.Equal(t, firstTasks[0].GenerationIDs(), secondTasks[0].GenerationIDs())
	assert.Empty(t, act.ActIDForRequest(""))
}

func TestCoordinator_ObservesCancellationMarkerFromAnotherProcess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, act.Config{CancelPollInterval: 5 * time.Millisecond})
	f.saveWorkspace(t, testutil.CreateChainWorkspace("ws-1", models.NodeTypeTextGeneration))

	started := make(chan struct{})
	interrupted := make(chan error, 1)

	f.generators.On("B", func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		close(started)
		<-ctx.Done()
		interrupted <- ctx.Err()

		return nil, ctx.Err()
	})

	created, err := f.coordinator.CreateAct(ctx, models.ActCreationRequest{WorkspaceID: "ws-1"})
	require.NoError(t, err)

	type outcome struct {
		act *models.Act
		err error
	}

	done := make(chan outcome, 1)

	go func() {
		a, err := f.coordinator.Run(ctx, created.ID)
		done <- outcome{act: a, err: err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("B never started")
	}

	// The marker is written straight to the store, as another process would.
	require.NoError(t, f.p.Acts().RequestCancel(ctx, &models.ActCancellation{
		ActID:       created.ID,
		Reason:      "cancelled elsewhere",
		RequestedAt: time.Now().UTC(),
	}))

	select {
	case err := <-interrupted:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("executor context was never cancelled")
	}

	var result outcome
	select {
	case result = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}

	require.NoError(t, result.err)
	assert.Equal(t, models.ExecutionStatusCancelled, result.act.Status)
	assert.Equal(t, 0, f.generators.Calls("C"))

	report, err := f.coordinator.Status(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, report.Tasks, 1)
	assert.Equal(t, models.ExecutionStatusCancelled, report.Tasks[0].Task.Status)
}

func TestCoordinator_RetryFailedChangesNothingWhenOneGenerationIsAtTheCeiling(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, act.Config{MaxGenerationRetries: 1})
	f.saveWorkspace(t, testutil.CreateTestWorkspace("ws", []*models.Node{
		testutil.TriggerNode("A"),
		testutil.CreateTestNode(testutil.WithID("B1"), testutil.WithType(models.NodeTypeTextGeneration)),
		testutil.CreateTestNode(testutil.WithID("B2"), testutil.WithType(models.NodeTypeTextGeneration)),
	}, []*models.Connection{testutil.Connect("A", "B1"), testutil.Connect("A", "B2")}))

	fail := func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("always")
	}

	f.generators.On("B1", fail).On("B2", fail)

	created, err := f.coordinator.CreateAct(ctx, models.ActCreationRequest{WorkspaceID: "ws"})
	require.NoError(t, err)

	done, err := f.coordinator.Run(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusFailed, done.Status)

	generationsByNode := func() map[string]*models.Generation {
		report, err := f.coordinator.Status(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, report.Tasks, 1)

		byNode := map[string]*models.Generation{}
		for _, g := range report.Tasks[0].Generations {
			byNode[g.NodeID] = g
		}

		return byNode
	}

	before := generationsByNode()
	require.Contains(t, before, "B2")

	// B2 has already used its retry.
	_, err = f.p.Generations().Update(ctx, before["B2"].ID, func(g *models.Generation) error {
		g.RetryCount = 1

		return nil
	})
	require.NoError(t, err)

	_, err = f.coordinator.RetryFailed(ctx, created.ID)
	require.ErrorIs(t, err, generation.ErrRetryLimitExceeded)

	report, err := f.coordinator.Status(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, report.Act.Status)
	assert.Equal(t, models.ExecutionStatusFailed, report.Tasks[0].Task.Status)

	after := generationsByNode()
	assert.Equal(t, models.ExecutionStatusFailed, after["B1"].Status)
	assert.Equal(t, 0, after["B1"].RetryCount)
	assert.Equal(t, models.ExecutionStatusFailed, after["B2"].Status)
	assert.Equal(t, 1, after["B2"].RetryCount)
}
