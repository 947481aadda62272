// Package engine wires the loader, flattener and writer into runs
package engine

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/mlbdfs/pkg/api"
	"github.com/ethpandaops/mlbdfs/pkg/flatten"
	"github.com/ethpandaops/mlbdfs/pkg/redis"
	"github.com/ethpandaops/mlbdfs/pkg/registry"
	"github.com/ethpandaops/mlbdfs/pkg/scheduler"
	"github.com/ethpandaops/mlbdfs/pkg/storage"
)

var (
	// ErrInvalidLogLevel is returned when the logging level is unknown
	ErrInvalidLogLevel = errors.New("invalid logging level")
)

// Config represents the complete engine configuration
type Config struct {
	// Core settings
	Logging         string `yaml:"logging" default:"info"`
	MetricsAddr     string `yaml:"metricsAddr" default:":9091"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`

	Flatten   flatten.Config   `yaml:"flatten"`
	Storage   storage.Config   `yaml:"storage"`
	Redis     redis.Config     `yaml:"redis"`
	Registry  registry.Config  `yaml:"registry"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	API       api.Config       `yaml:"api"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Logging {
	case "panic", "fatal", "error", "warn", "info", "debug", "trace":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging)
	}

	if err := c.Flatten.Validate(); err != nil {
		return fmt.Errorf("flatten: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
