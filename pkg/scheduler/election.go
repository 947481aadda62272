package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/mlbdfs/pkg/observability"
)

const (
	leaderKey     = "scheduler:leader"
	leaseTTL      = 10 * time.Second
	renewInterval = 3 * time.Second
)

var (
	// ErrElectorStopped is returned when the elector is stopped while waiting for leadership
	ErrElectorStopped = errors.New("elector stopped while waiting for leadership")
)

// The lease is only touched by its owner. Checking ownership and acting on it
// in one script keeps an expired lease taken by another instance intact.
//
//nolint:gochecknoglobals // scripts are loaded once per client
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// LeaderElector decides which instance runs the scheduled flatten when several
// share a Redis server
type LeaderElector interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	WaitForLeadership(ctx context.Context) error
}

type elector struct {
	log        logrus.FieldLogger
	redis      *redis.Client
	instanceID string
	leaderKey  string

	mu       sync.RWMutex
	isLeader bool
	// leading is closed while this instance holds the lease
	leading chan struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLeaderElector creates a new leader elector instance. keyPrefix namespaces
// the lock so several deployments can share a Redis server. The elector does
// not own the client.
func NewLeaderElector(log logrus.FieldLogger, client *redis.Client, keyPrefix string) LeaderElector {
	key := leaderKey
	if keyPrefix != "" {
		key = keyPrefix + ":" + leaderKey
	}

	return &elector{
		log:        log.WithField("component", "election"),
		redis:      client,
		instanceID: uuid.New().String(),
		leaderKey:  key,
		leading:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (e *elector) Start(ctx context.Context) error {
	e.log.WithField("instance_id", e.instanceID).Info("Starting leader election")

	e.wg.Add(1)
	go e.run(ctx)

	return nil
}

func (e *elector) Stop() error {
	e.log.Info("Stopping leader election")
	close(e.done)

	e.wg.Wait()

	if e.IsLeader() {
		e.release(context.Background())
		e.setLeader(false)
	}

	e.log.Info("Leader election stopped")

	return nil
}

func (e *elector) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	e.setLeader(e.holdLease(ctx))

	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.setLeader(e.holdLease(ctx))
		}
	}
}

// holdLease renews the lease this instance owns or takes a free one
func (e *elector) holdLease(ctx context.Context) bool {
	ttl := leaseTTL.Milliseconds()

	renewed, err := renewScript.Run(ctx, e.redis, []string{e.leaderKey}, e.instanceID, ttl).Int()
	if err != nil {
		e.log.WithError(err).Warn("Failed to renew leader lease")
		return false
	}

	if renewed == 1 {
		return true
	}

	acquired, err := e.redis.SetNX(ctx, e.leaderKey, e.instanceID, leaseTTL).Result()
	if err != nil {
		e.log.WithError(err).Debug("Failed to acquire leader lock")
		return false
	}

	if !acquired {
		e.log.WithField("instance_id", e.instanceID).Debug("Another instance holds leadership")
	}

	return acquired
}

func (e *elector) release(ctx context.Context) {
	released, err := releaseScript.Run(ctx, e.redis, []string{e.leaderKey}, e.instanceID).Int()
	if err != nil {
		e.log.WithError(err).Warn("Failed to release leader lock")
		return
	}

	if released == 1 {
		e.log.WithField("instance_id", e.instanceID).Info("Relinquished leader lock")
	}
}

func (e *elector) setLeader(isLeader bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isLeader == isLeader {
		return
	}
	e.isLeader = isLeader

	log := e.log.WithField("instance_id", e.instanceID)

	if isLeader {
		close(e.leading)
		observability.SchedulerLeader.Set(1)
		log.Info("Promoted to leader")

		return
	}

	e.leading = make(chan struct{})
	observability.SchedulerLeader.Set(0)
	log.Info("Demoted from leader")
}

func (e *elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.isLeader
}

func (e *elector) WaitForLeadership(ctx context.Context) error {
	e.mu.RLock()
	leading := e.leading
	e.mu.RUnlock()

	select {
	case <-leading:
		return nil
	default:
	}

	e.log.Info("Waiting for leadership promotion")

	select {
	case <-leading:
		e.log.Info("Leadership acquired")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context canceled while waiting for leadership: %w", ctx.Err())
	case <-e.done:
		return ErrElectorStopped
	}
}

var _ LeaderElector = (*elector)(nil)
