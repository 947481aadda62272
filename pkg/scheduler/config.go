// Package scheduler runs the flatten job on a cron schedule
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrScheduleRequired is returned when no schedule is configured
	ErrScheduleRequired = errors.New("schedule is required")
	// ErrInvalidTimeout is returned when the run timeout is not positive
	ErrInvalidTimeout = errors.New("run timeout must be positive")
)

// Config defines scheduler configuration
type Config struct {
	// Schedule is a five field cron expression or descriptor, evaluated in the flatten timezone
	Schedule        string        `yaml:"schedule" default:"0 10 * * *"`
	RunTimeout      time.Duration `yaml:"runTimeout" default:"30m"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
	// CatchUp runs immediately on start when the last successful run missed a scheduled slot
	CatchUp bool `yaml:"catchUp" default:"true"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if c.Schedule == "" {
		return ErrScheduleRequired
	}

	if _, err := parseSchedule(c.Schedule); err != nil {
		return err
	}

	if c.RunTimeout <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}

func parseSchedule(schedule string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule format: %w", err)
	}

	return sched, nil
}
