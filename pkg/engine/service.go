package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/mlbdfs/pkg/api"
	"github.com/ethpandaops/mlbdfs/pkg/cache"
	"github.com/ethpandaops/mlbdfs/pkg/flatten"
	"github.com/ethpandaops/mlbdfs/pkg/identity"
	"github.com/ethpandaops/mlbdfs/pkg/observability"
	"github.com/ethpandaops/mlbdfs/pkg/registry"
	"github.com/ethpandaops/mlbdfs/pkg/scheduler"
	"github.com/ethpandaops/mlbdfs/pkg/storage"
	"github.com/ethpandaops/mlbdfs/pkg/table"
)

// Run triggers
const (
	TriggerCLI = "cli"
	TriggerAPI = "api"
)

// ErrRunInProgress is returned when a run starts while another is active
var ErrRunInProgress = errors.New("a run is already in progress")

// Option customizes a Service
type Option func(*Service)

// WithStore replaces the S3 store, used by tests and local runs
func WithStore(store storage.ObjectStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithClock replaces the wall clock
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// RunOptions control a single flatten run
type RunOptions struct {
	Trigger string
	// DryRun flattens without writing outputs
	DryRun bool
}

// Report describes a finished run
type Report struct {
	RunID      string
	Trigger    string
	DryRun     bool
	Stats      flatten.Stats
	FinishedAt time.Time
	Duration   time.Duration
	// Keys maps output table name to the object key it was (or would be) written to
	Keys map[string]string
}

// Relations is the identity report over the current snapshot
type Relations struct {
	Unlinked  *table.Table
	Conflicts []identity.Conflict
}

// Service encapsulates the flatten application
type Service struct {
	config *Config
	log    logrus.FieldLogger
	clock  clockwork.Clock

	store     storage.ObjectStore
	registry  *registry.Registry
	loader    *storage.Loader
	writer    *storage.Writer
	flattener *flatten.Flattener

	redisClient *goredis.Client
	scheduler   scheduler.Service
	api         api.Service

	// runMu serializes runs from the schedule and the API
	runMu      sync.Mutex
	lastMu     sync.RWMutex
	lastReport *Report

	healthServer *http.Server
}

// NewService creates a new flatten application
func NewService(ctx context.Context, log logrus.FieldLogger, cfg *Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Service{
		config: cfg,
		log:    log.WithField("component", "engine"),
		clock:  clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(s)
	}

	reg, err := registry.New(&cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to load table registry: %w", err)
	}
	s.registry = reg

	if s.store == nil {
		store, err := storage.NewS3Store(ctx, log, &cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create object store: %w", err)
		}
		s.store = store
	}

	var bodies storage.BodyCache
	if cfg.Redis.Enabled() {
		client, err := cfg.Redis.NewClient()
		if err != nil {
			return nil, err
		}
		s.redisClient = client
		bodies = cache.NewManager(client, cfg.Redis.Prefix, cfg.Redis.CacheTTL)
	}

	s.loader = storage.NewLoader(log, s.store, reg, bodies, cfg.Storage.DataPrefix)

	s.writer, err = storage.NewWriter(log, s.store, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create writer: %w", err)
	}

	s.flattener, err = flatten.NewFlattener(log, &cfg.Flatten, s.clock)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Registry returns the table registry
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Flattener returns the flattener
func (s *Service) Flattener() *flatten.Flattener {
	return s.flattener
}

// Run loads the snapshot, flattens it and writes both outputs. Nothing is
// written unless loading and flattening succeed.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	if opts.Trigger == "" {
		opts.Trigger = TriggerCLI
	}

	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	report := &Report{
		RunID:   uuid.New().String(),
		Trigger: opts.Trigger,
		DryRun:  opts.DryRun,
		Keys:    make(map[string]string, 2),
	}

	log := s.log.WithFields(logrus.Fields{
		"run_id":  report.RunID,
		"trigger": opts.Trigger,
	})

	started := s.clock.Now()
	observability.RecordRunStart()

	err := s.run(ctx, log, opts, report)

	report.FinishedAt = s.clock.Now()
	report.Duration = report.FinishedAt.Sub(started)

	status := "success"
	if err != nil {
		status = "failed"
		observability.RecordError("engine", "run_failed")
	} else {
		observability.LastSuccess.Set(float64(report.FinishedAt.Unix()))
	}
	observability.RecordRunComplete(opts.Trigger, status, report.Duration.Seconds())

	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"run_date": report.Stats.RunDate,
		"train":    report.Stats.Train,
		"valid":    report.Stats.Valid,
		"duration": report.Duration,
		"dry_run":  opts.DryRun,
	}).Info("Run complete")

	s.lastMu.Lock()
	s.lastReport = report
	s.lastMu.Unlock()

	return report, nil
}

func (s *Service) run(ctx context.Context, log logrus.FieldLogger, opts RunOptions, report *Report) error {
	log.Info("Loading data")

	tables, err := s.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tables: %w", err)
	}

	result, err := s.flattener.Flatten(ctx, tables)
	if err != nil {
		return fmt.Errorf("failed to flatten: %w", err)
	}
	report.Stats = result.Stats

	for _, stage := range result.Stats.Stages {
		observability.RecordStep(stage.Step, stage.Rows, stage.Duration.Seconds())
	}
	observability.RecordDropped("park_factor", result.Stats.DroppedByParkFactor)
	observability.RecordDropped("result_date", result.Stats.DroppedByResultDate)

	date, err := time.Parse(flatten.DateLayout, result.Stats.RunDate)
	if err != nil {
		return fmt.Errorf("%w: %q", flatten.ErrInvalidRunDate, result.Stats.RunDate)
	}

	// Both keys are rendered before anything is written
	for _, out := range []*table.Table{result.Train, result.Valid} {
		key, err := s.writer.Key(out.Name(), date)
		if err != nil {
			return err
		}
		report.Keys[out.Name()] = key
	}

	if opts.DryRun {
		log.Info("Dry run, skipping output")
		return nil
	}

	log.Info("Writing output")

	for _, out := range []*table.Table{result.Train, result.Valid} {
		if _, err := s.writer.Write(ctx, out, date); err != nil {
			return fmt.Errorf("failed to write %s: %w", out.Name(), err)
		}
		observability.RecordOutput(out.Name(), out.Len())
	}

	return nil
}

// LastReport returns the most recent successful run of this process
func (s *Service) LastReport() (*Report, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()

	return s.lastReport, s.lastReport != nil
}

// Relations loads the snapshot and reports players the link table cannot
// place together with ids that map to more than one name
func (s *Service) Relations(ctx context.Context) (*Relations, error) {
	tables, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}

	unlinked, err := identity.NewResolver(s.log, identity.DefaultSources()).Unlinked(tables)
	if err != nil {
		return nil, err
	}
	observability.UnlinkedPlayers.Set(float64(unlinked.Len()))

	conflicts, err := identity.Conflicts(tables[identity.LinkTable])
	if err != nil {
		return nil, err
	}

	return &Relations{Unlinked: unlinked, Conflicts: conflicts}, nil
}

// Start runs the scheduler, metrics and health servers until Stop
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("Starting mlbdfs scheduler...")

	observability.StartMetricsServer(s.log, s.config.MetricsAddr)

	if s.config.HealthCheckAddr != "" {
		s.startHealthCheck()
	}

	loc, err := s.config.Flatten.Location()
	if err != nil {
		return err
	}

	var (
		elector scheduler.LeaderElector
		tracker scheduler.RunTracker
	)
	if s.redisClient != nil {
		elector = scheduler.NewLeaderElector(s.log, s.redisClient, s.config.Redis.Prefix)
		tracker = scheduler.NewRunTracker(s.log, s.redisClient, s.config.Redis.Prefix)
	}

	job := func(ctx context.Context, trigger string) error {
		_, err := s.Run(ctx, RunOptions{Trigger: trigger})
		return err
	}

	s.scheduler, err = scheduler.NewService(s.log, &s.config.Scheduler, loc, job, elector, tracker, s.clock)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	s.api = api.NewService(&s.config.API, &apiBackend{svc: s}, s.log)
	if err := s.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start api: %w", err)
	}

	s.log.Info("mlbdfs scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the application
func (s *Service) Stop() error {
	s.log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopService := func(name string, stopFunc func() error) {
		if err := stopFunc(); err != nil {
			s.log.WithError(err).Errorf("Failed to stop %s", name)
		}
	}

	// 1. Stop taking triggers, then let the scheduler finish an in-flight run
	if s.api != nil {
		stopService("api service", s.api.Stop)
	}
	if s.scheduler != nil {
		stopService("scheduler service", s.scheduler.Stop)
	}

	// 2. Close Redis (now safe, nothing is using it)
	if s.redisClient != nil {
		stopService("Redis client", s.redisClient.Close)
	}

	// 3. Stop HTTP servers
	if s.healthServer != nil {
		stopService("health check server", func() error { return s.healthServer.Shutdown(ctx) })
	}
	stopService("metrics server", func() error { return observability.StopMetricsServer(ctx) })

	return nil
}

func (s *Service) startHealthCheck() {
	s.log.WithField("addr", s.config.HealthCheckAddr).Info("Starting health check server")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.healthServer = &http.Server{
		Addr:              s.config.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Health check server failed")
		}
	}()
}
