// Package config holds the engine configuration shared by the binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/actflow/pkg/act"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Engine is the configuration of an engine process. Zero values are
// replaced by Default before validation.
type Engine struct {
	DatabaseURL  string   `yaml:"database_url"  validate:"required"`
	EventBus     string   `yaml:"event_bus"     validate:"required,oneof=gochannel kafka"`
	KafkaBrokers []string `yaml:"kafka_brokers" validate:"required_if=EventBus kafka,dive,hostname_port"`
	LogLevel     string   `yaml:"log_level"     validate:"omitempty,oneof=debug info warn warning error"`
	Port         int      `yaml:"port"          validate:"gte=0,lte=65535"`

	MaxConcurrentTasks   int           `yaml:"max_concurrent_tasks"   validate:"gte=1"`
	MaxGenerationRetries int           `yaml:"max_generation_retries" validate:"gte=0"`
	StoreConflictRetries int           `yaml:"store_conflict_retries" validate:"gte=0"`
	CancelPollInterval   time.Duration `yaml:"cancel_poll_interval"   validate:"gt=0"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Engine {
	return Engine{
		DatabaseURL:          "memory://",
		EventBus:             "gochannel",
		LogLevel:             "info",
		Port:                 9091,
		MaxConcurrentTasks:   4,
		MaxGenerationRetries: 0,
		StoreConflictRetries: 5,
		CancelPollInterval:   500 * time.Millisecond,
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Engine, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration with its struct tags.
func (e Engine) Validate() error {
	err := validator.New().Struct(e)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// ActConfig maps the engine settings onto the act coordinator configuration.
func (e Engine) ActConfig() act.Config {
	return act.Config{
		MaxConcurrentTasks:   e.MaxConcurrentTasks,
		MaxGenerationRetries: e.MaxGenerationRetries,
		CancelPollInterval:   e.CancelPollInterval,
	}
}
