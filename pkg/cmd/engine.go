package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/config"
	"github.com/dukex/actflow/pkg/eventbus"
	"github.com/dukex/actflow/pkg/generation"
	"github.com/dukex/actflow/pkg/observability"
	"github.com/dukex/actflow/pkg/otelhelper"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/registry"
	"github.com/dukex/actflow/pkg/store"
	"github.com/dukex/actflow/pkg/task"
	"github.com/dukex/actflow/pkg/trigger"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the set of components one process runs, wired over one store and one bus.
type Engine struct {
	Store       store.Store
	Bus         eventbus.EventBus
	Persistence *persistence.Persistence
	Registry    *registry.Registry
	Machine     *generation.Machine
	Runner      *task.Runner
	Coordinator *act.Coordinator
	Triggers    *trigger.Service
	Ingestor    *trigger.Ingestor
}

// NewEngine opens the store and the event bus described by cfg and wires
// the engine components over them. Lifecycle events go to the log and the bus.
func NewEngine(ctx context.Context, cfg config.Engine, logger *slog.Logger, tracer trace.Tracer, serviceName string) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	s, err := NewStore(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	bus, err := NewEventBus(logger, cfg.EventBus, cfg.KafkaBrokers, serviceName)
	if err != nil {
		_ = s.Close(ctx)

		return nil, err
	}

	return Assemble(s, bus, cfg, logger, tracer), nil
}

// Assemble wires the engine components over an open store and bus. A nil
// tracer records nothing.
func Assemble(s store.Store, bus eventbus.EventBus, cfg config.Engine, logger *slog.Logger, tracer trace.Tracer) *Engine {
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	p := persistence.New(s, logger, persistence.WithConflictRetries(cfg.StoreConflictRetries))
	sink := observability.Multi(observability.NewLogSink(logger), observability.NewBusSink(bus, logger))
	reg := NewRegistry(logger)
	machine := generation.NewMachine(p, sink, logger)
	runner := task.NewRunner(p, machine, reg, sink, logger, task.WithTracer(tracer))
	coordinator := act.NewCoordinator(p, runner, machine, sink, logger, cfg.ActConfig(), act.WithTracer(tracer))

	return &Engine{
		Store:       s,
		Bus:         bus,
		Persistence: p,
		Registry:    reg,
		Machine:     machine,
		Runner:      runner,
		Coordinator: coordinator,
		Triggers:    trigger.NewService(p, bus, logger),
		Ingestor:    trigger.NewIngestor(p, logger),
	}
}

// Close waits for acts started in this process and releases the bus and the store.
func (e *Engine) Close(ctx context.Context) error {
	e.Coordinator.Wait()

	var errs []error

	err := e.Bus.Close()
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to close event bus: %w", err))
	}

	err = e.Store.Close(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}

	return errors.Join(errs...)
}
