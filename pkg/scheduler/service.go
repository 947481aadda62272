package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/mlbdfs/pkg/observability"
)

// JobID identifies the flatten job in the run tracker
const JobID = "flatten"

// Job is the scheduled work. trigger is "schedule" or "catch_up".
type Job func(ctx context.Context, trigger string) error

// Service defines the public interface for the scheduler
type Service interface {
	// Start registers the cron entry and returns immediately
	Start(ctx context.Context) error

	// Stop waits for a running job to finish and shuts down
	Stop() error
}

type service struct {
	log logrus.FieldLogger
	cfg *Config

	done chan struct{}
	wg   sync.WaitGroup

	cron     *cron.Cron
	schedule cron.Schedule
	location *time.Location
	clock    clockwork.Clock
	job      Job

	// elector is nil when Redis is not configured and this instance always runs
	elector LeaderElector
	tracker RunTracker
}

// NewService creates a new scheduler service. Schedules are evaluated in loc.
// elector may be nil for a single instance deployment.
func NewService(
	log logrus.FieldLogger,
	cfg *Config,
	loc *time.Location,
	job Job,
	elector LeaderElector,
	tracker RunTracker,
	clock clockwork.Clock,
) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	schedule, err := parseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	if tracker == nil {
		tracker = NewMemoryRunTracker()
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	if loc == nil {
		loc = time.UTC
	}

	log = log.WithField("service", "scheduler")
	logger := cron.PrintfLogger(log)

	return &service{
		log:  log,
		cfg:  cfg,
		done: make(chan struct{}),
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		schedule: schedule,
		location: loc,
		clock:    clock,
		job:      job,
		elector:  elector,
		tracker:  tracker,
	}, nil
}

// Start initializes and starts the scheduler service
func (s *service) Start(ctx context.Context) error {
	if s.elector != nil {
		if err := s.elector.Start(ctx); err != nil {
			return err
		}
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.run(ctx, "schedule") }); err != nil {
		return err
	}

	s.cron.Start()

	if s.cfg.CatchUp {
		s.wg.Add(1)
		go s.catchUp(ctx)
	}

	s.log.WithFields(logrus.Fields{
		"schedule": s.cfg.Schedule,
		"next":     s.schedule.Next(s.clock.Now().In(s.location)),
	}).Info("Scheduler service started")

	return nil
}

// Stop gracefully shuts down the scheduler service
func (s *service) Stop() error {
	close(s.done)

	// Stop returns a context done once running jobs complete
	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
	case <-time.After(s.cfg.ShutdownTimeout):
		s.log.Warn("Timed out waiting for running job")
	}

	if s.elector != nil {
		if err := s.elector.Stop(); err != nil {
			s.log.WithError(err).Warn("Failed to stop leader elector")
		}
	}

	s.wg.Wait()

	s.log.Info("Scheduler service stopped successfully")

	return nil
}

// catchUp runs the job once leadership is held if a scheduled slot passed
// since the last successful run
func (s *service) catchUp(ctx context.Context) {
	defer s.wg.Done()

	if s.elector != nil {
		if err := s.elector.WaitForLeadership(ctx); err != nil {
			s.log.WithError(err).Debug("Catch up abandoned")
			return
		}
	}

	select {
	case <-s.done:
		return
	default:
	}

	lastRun, err := s.tracker.GetLastRun(ctx, JobID)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read last run, skipping catch up")
		return
	}

	if !missedRun(s.schedule, lastRun.In(s.location), s.clock.Now().In(s.location)) {
		return
	}

	s.log.WithField("last_run", lastRun).Info("Scheduled run was missed, running now")
	s.run(ctx, "catch_up")
}

// missedRun reports whether a slot of the schedule fell between lastRun and now
func missedRun(schedule cron.Schedule, lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}

	return !schedule.Next(lastRun).After(now)
}

func (s *service) run(parent context.Context, trigger string) {
	log := s.log.WithField("trigger", trigger)

	if s.elector != nil && !s.elector.IsLeader() {
		log.Debug("Not the leader, skipping run")
		return
	}

	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	started := s.clock.Now()

	if err := s.job(ctx, trigger); err != nil {
		log.WithError(err).Error("Scheduled run failed")
		observability.RecordError("scheduler", "run_failed")

		return
	}

	if err := s.tracker.SetLastRun(ctx, JobID, started); err != nil {
		log.WithError(err).Warn("Failed to record last run")
	}
}

var _ Service = (*service)(nil)
