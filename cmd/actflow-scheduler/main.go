// Package main provides the actflow scheduler, which fires schedule triggers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/actflow/pkg/cmd"
	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/log"
	"github.com/dukex/actflow/pkg/trigger"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "actflow-scheduler"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Request acts for schedule triggers",
		EnableShellCompletion: true,
		Flags: append(cmd.EngineFlags(),
			&cli.StringFlag{
				Name:    "timezone",
				Usage:   "Time zone cron expressions are evaluated in",
				Value:   "UTC",
				Sources: cli.EnvVars("TZ"),
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

	logger := log.WithModule(serviceName)
	logger.InfoContext(ctx, "Initializing actflow scheduler")

	location, err := time.LoadLocation(command.String("timezone"))
	if err != nil {
		return err
	}

	engine, err := cmd.NewEngine(ctx, cfg, logger, nil, serviceName)
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

	scheduler := trigger.NewScheduler(engine.Persistence, engine.Ingestor, engine.Bus, logger, trigger.WithLocation(location))

	for _, eventType := range []events.EventType{events.TriggerCreatedEvent, events.TriggerDeletedEvent} {
		err = engine.Bus.Handle(eventType, scheduler.HandleTriggerChanged)
		if err != nil {
			return err
		}
	}

	err = engine.Bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	err = scheduler.Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down scheduler")
	scheduler.Stop()

	return nil
}
