// Package main provides the actflow worker, which runs requested acts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/actflow/pkg/cmd"
	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "actflow-worker"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Run acts requested by schedules and webhooks",
		EnableShellCompletion: true,
		Flags: append(cmd.EngineFlags(),
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
		),
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	cfg, err := cmd.LoadEngineConfig(command)
	if err != nil {
		return err
	}

	log.Setup(cfg.LogLevel)

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule(serviceName).With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing actflow worker")

	tracer, shutdownTracer := cmd.NewTracer(ctx, command, serviceName, logger)
	defer func() {
		if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
		}
	}()

	engine, err := cmd.NewEngine(ctx, cfg, logger, tracer, serviceName)
	if err != nil {
		return err
	}

	defer func() {
		if err := engine.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close engine", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = engine.Bus.Handle(events.ActRequestedEvent, engine.Coordinator.HandleActRequested)
	if err != nil {
		return err
	}

	err = engine.Bus.Subscribe(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Worker started", "max_concurrent_tasks", cfg.MaxConcurrentTasks)

	<-ctx.Done()
	logger.Info("Shutting down worker")

	return nil
}
