package flatten

import (
	"fmt"
	"time"
)

// DateLayout is the ISO date format used for game dates and the run date
const DateLayout = "2006-01-02"

// Config controls how the flattener decides which games are today's
type Config struct {
	// Timezone in which the run date is taken from the clock
	Timezone string `yaml:"timezone" default:"America/New_York"`
	// RunDate overrides the clock date (YYYY-MM-DD)
	RunDate string `yaml:"runDate"`
}

// Validate checks the timezone and run date
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.RunDate != "" {
		if _, err := time.Parse(DateLayout, c.RunDate); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidRunDate, c.RunDate)
		}
	}

	return nil
}

// Location loads the configured timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidTimezone, c.Timezone, err)
	}

	return loc, nil
}
