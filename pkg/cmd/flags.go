package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/actflow/pkg/config"
	"github.com/dukex/actflow/pkg/otelhelper"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// EngineFlags are the flags every engine binary accepts. Flags that are set
// override the YAML file given with --config.
func EngineFlags() []cli.Flag {
	defaults := config.Default()

	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to a YAML configuration file",
			Sources: cli.EnvVars("ACTFLOW_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Store URL (memory://, file://path, redis://..., postgres://...)",
			Value:   defaults.DatabaseURL,
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus provider (gochannel, kafka)",
			Value:   defaults.EventBus,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   defaults.LogLevel,
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.IntFlag{
			Name:    "max-concurrent-tasks",
			Usage:   "Tasks run at once by this process",
			Value:   defaults.MaxConcurrentTasks,
			Sources: cli.EnvVars("MAX_CONCURRENT_TASKS"),
		},
		&cli.IntFlag{
			Name:    "max-generation-retries",
			Usage:   "Times a failed generation may be retried",
			Value:   defaults.MaxGenerationRetries,
			Sources: cli.EnvVars("MAX_GENERATION_RETRIES"),
		},
		&cli.IntFlag{
			Name:    "store-conflict-retries",
			Usage:   "Attempts of an optimistic store update before giving up",
			Value:   defaults.StoreConflictRetries,
			Sources: cli.EnvVars("STORE_CONFLICT_RETRIES"),
		},
		&cli.DurationFlag{
			Name:    "cancel-poll-interval",
			Usage:   "How often running acts check for cancellation",
			Value:   defaults.CancelPollInterval,
			Sources: cli.EnvVars("CANCEL_POLL_INTERVAL"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP (configured by OTEL_EXPORTER_OTLP_*)",
			Sources: cli.EnvVars("ACTFLOW_TRACING"),
		},
	}
}

// LoadEngineConfig reads --config and applies the flags set on command over it.
func LoadEngineConfig(command *cli.Command) (config.Engine, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return cfg, err
	}

	if command.IsSet("database-url") || command.String("config") == "" {
		cfg.DatabaseURL = command.String("database-url")
	}

	if command.IsSet("event-bus") || command.String("config") == "" {
		cfg.EventBus = command.String("event-bus")
	}

	if command.IsSet("kafka-brokers") {
		cfg.KafkaBrokers = strings.Split(command.String("kafka-brokers"), ",")
	}

	if command.IsSet("log-level") {
		cfg.LogLevel = command.String("log-level")
	}

	if command.IsSet("max-concurrent-tasks") {
		cfg.MaxConcurrentTasks = command.Int("max-concurrent-tasks")
	}

	if command.IsSet("max-generation-retries") {
		cfg.MaxGenerationRetries = command.Int("max-generation-retries")
	}

	if command.IsSet("store-conflict-retries") {
		cfg.StoreConflictRetries = command.Int("store-conflict-retries")
	}

	if command.IsSet("cancel-poll-interval") {
		cfg.CancelPollInterval = command.Duration("cancel-poll-interval")
	}

	return cfg, cfg.Validate()
}

// NewTracer returns an OTLP tracer when --tracing is set and a no-op tracer otherwise.
// nolint:ireturn // tracer implementation depends on the flag
func NewTracer(ctx context.Context, command *cli.Command, serviceName string, logger *slog.Logger) (trace.Tracer, otelhelper.ShutdownFunc) {
	nop := func(context.Context) error { return nil }

	if !command.Bool("tracing") {
		return otelhelper.NoopTracer(), nop
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize tracer, tracing disabled", "error", err)

		return otelhelper.NoopTracer(), nop
	}

	return tracer, shutdown
}
