// Package testutil provides test utilities for mlbdfs, including:
//   - In-memory Redis backed by miniredis (redis.go)
//   - A silent logger for components under test
//
// None of the helpers need Docker or network access.
package testutil

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger that discards output
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}
