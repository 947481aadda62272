package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Full key pattern: {prefix}:scheduler:job:{jobID}
const jobKeyPrefix = "scheduler:job:"

// RunTracker records when a job last completed successfully
type RunTracker interface {
	// GetLastRun returns the zero time if the job has never run
	GetLastRun(ctx context.Context, jobID string) (time.Time, error)
	// SetLastRun persists with no TTL
	SetLastRun(ctx context.Context, jobID string, timestamp time.Time) error
	DeleteLastRun(ctx context.Context, jobID string) error
}

type redisRunTracker struct {
	log    logrus.FieldLogger
	redis  *redis.Client
	prefix string
}

// NewRunTracker creates a Redis-backed run tracker. The tracker does not own the client.
func NewRunTracker(log logrus.FieldLogger, client *redis.Client, keyPrefix string) RunTracker {
	prefix := jobKeyPrefix
	if keyPrefix != "" {
		prefix = keyPrefix + ":" + jobKeyPrefix
	}

	return &redisRunTracker{
		log:    log.WithField("component", "run_tracker"),
		redis:  client,
		prefix: prefix,
	}
}

func (r *redisRunTracker) GetLastRun(ctx context.Context, jobID string) (time.Time, error) {
	val, err := r.redis.Get(ctx, r.prefix+jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.WithField("job_id", jobID).Debug("No last run found for job")
			return time.Time{}, nil
		}

		return time.Time{}, fmt.Errorf("failed to get last run for job %s: %w", jobID, err)
	}

	timestamp, err := time.Parse(time.RFC3339, val)
	if err != nil {
		r.log.WithError(err).
			WithFields(logrus.Fields{
				"job_id":    jobID,
				"raw_value": val,
			}).
			Error("Failed to parse timestamp")
		return time.Time{}, fmt.Errorf("failed to parse timestamp for job %s: %w", jobID, err)
	}

	return timestamp, nil
}

func (r *redisRunTracker) SetLastRun(ctx context.Context, jobID string, timestamp time.Time) error {
	if err := r.redis.Set(ctx, r.prefix+jobID, timestamp.UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("failed to set last run for job %s: %w", jobID, err)
	}

	r.log.WithFields(logrus.Fields{
		"job_id":    jobID,
		"timestamp": timestamp,
	}).Debug("Updated last run for job")

	return nil
}

func (r *redisRunTracker) DeleteLastRun(ctx context.Context, jobID string) error {
	if err := r.redis.Del(ctx, r.prefix+jobID).Err(); err != nil {
		return fmt.Errorf("failed to delete last run for job %s: %w", jobID, err)
	}

	return nil
}

// memoryRunTracker keeps run history for a single process when Redis is not configured
type memoryRunTracker struct {
	mu       sync.Mutex
	lastRuns map[string]time.Time
}

// NewMemoryRunTracker creates a process-local run tracker
func NewMemoryRunTracker() RunTracker {
	return &memoryRunTracker{lastRuns: make(map[string]time.Time)}
}

func (m *memoryRunTracker) GetLastRun(_ context.Context, jobID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastRuns[jobID], nil
}

func (m *memoryRunTracker) SetLastRun(_ context.Context, jobID string, timestamp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastRuns[jobID] = timestamp

	return nil
}

func (m *memoryRunTracker) DeleteLastRun(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.lastRuns, jobID)

	return nil
}

// Verify interface compliance at compile time
var (
	_ RunTracker = (*redisRunTracker)(nil)
	_ RunTracker = (*memoryRunTracker)(nil)
)
