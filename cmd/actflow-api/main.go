// Package main provides the actflow API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dukex/actflow/pkg/cmd"
	"github.com/dukex/actflow/pkg/log"
	"github.com/dukex/actflow/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const (
	serviceName = "actflow-api"
	defaultPort = 9091
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Serve the workspace, act and trigger API",
		EnableShellCompletion: true,
		Flags: append(cmd.EngineFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
	logger.InfoContext(ctx, "Initializing actflow API")

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

	handlers := web.NewAPIHandlers(engine.Persistence, engine.Coordinator, engine.Triggers, engine.Ingestor, engine.Registry, logger)
	app := web.NewApp(handlers)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API")

		if err := app.Shutdown(); err != nil {
			logger.Error("Failed to shutdown API", "error", err)
		}
	}()

	port := cfg.Port
	if command.IsSet("port") {
		port = command.Int("port")
	}

	return app.Listen(":" + strconv.Itoa(port))
}
