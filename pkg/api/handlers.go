package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRunInProgress is returned when a trigger arrives while a run is active
	ErrRunInProgress = fiber.NewError(fiber.StatusConflict, "a run is already in progress")
	// ErrNoRuns is returned when nothing has run since the process started
	ErrNoRuns = fiber.NewError(fiber.StatusNotFound, "no run has completed yet")
)

// Backend is what the API reads from and triggers
type Backend interface {
	Trigger(ctx context.Context, dryRun bool) (*RunSummary, error)
	LastRun() (*RunSummary, bool)
	Tables() []TableInfo
	Steps() ([]StepInfo, error)
	Players(ctx context.Context) (*PlayersReport, error)
}

// RunSummary describes a finished run
type RunSummary struct {
	RunID      string            `json:"run_id"`
	Trigger    string            `json:"trigger"`
	DryRun     bool              `json:"dry_run"`
	RunDate    string            `json:"run_date"`
	FinishedAt time.Time         `json:"finished_at"`
	Duration   string            `json:"duration"`
	Batters    int               `json:"batters"`
	Train      int               `json:"train"`
	Valid      int               `json:"valid"`
	Dropped    map[string]int    `json:"dropped"`
	Keys       map[string]string `json:"keys"`
}

// TableInfo describes a source table
type TableInfo struct {
	Name            string `json:"name"`
	Filename        string `json:"filename"`
	URL             string `json:"url,omitempty"`
	RequiredColumns int    `json:"required_columns"`
	Registered      bool   `json:"registered"`
}

// StepInfo describes a flatten step
type StepInfo struct {
	Name      string   `json:"name"`
	DependsOn []string `json:"depends_on"`
}

// Player is a row of the unlinked player report
type Player struct {
	Name  string `json:"dk_name"`
	MLBID string `json:"mlb_id,omitempty"`
	FGID  string `json:"fg_id,omitempty"`
}

// Conflict is an id that maps to more than one name
type Conflict struct {
	IDColumn string   `json:"id_column"`
	ID       string   `json:"id"`
	Names    []string `json:"names"`
}

// PlayersReport is the identity report over the current snapshot
type PlayersReport struct {
	Unlinked  []Player   `json:"unlinked"`
	Conflicts []Conflict `json:"conflicts"`
}

type triggerParams struct {
	DryRun bool `query:"dry_run"`
}

// Server holds the request handlers
type Server struct {
	backend Backend
	log     logrus.FieldLogger

	// ctx bounds triggered runs, requests only wait on them
	ctx context.Context //nolint:containedctx // runs outlive the request
}

// NewServer creates a new API server instance
func NewServer(ctx context.Context, backend Backend, log logrus.FieldLogger) *Server {
	return &Server{
		backend: backend,
		log:     log.WithField("component", "api.handlers"),
		ctx:     ctx,
	}
}

// Register adds every route to the router
func (s *Server) Register(router fiber.Router) {
	router.Get("/tables", s.ListTables)
	router.Get("/steps", s.ListSteps)
	router.Get("/players/unlinked", s.ListPlayers)
	router.Get("/runs/latest", s.GetLatestRun)
	router.Post("/runs", s.TriggerRun)
}

// ListTables handles GET /api/v1/tables
func (s *Server) ListTables(c fiber.Ctx) error {
	tables := s.backend.Tables()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"tables": tables,
		"total":  len(tables),
	})
}

// ListSteps handles GET /api/v1/steps
func (s *Server) ListSteps(c fiber.Ctx) error {
	steps, err := s.backend.Steps()
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"steps": steps,
		"total": len(steps),
	})
}

// ListPlayers handles GET /api/v1/players/unlinked
func (s *Server) ListPlayers(c fiber.Ctx) error {
	report, err := s.backend.Players(s.ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to build player report")
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(report)
}

// GetLatestRun handles GET /api/v1/runs/latest
func (s *Server) GetLatestRun(c fiber.Ctx) error {
	run, ok := s.backend.LastRun()
	if !ok {
		return ErrNoRuns
	}

	return c.Status(fiber.StatusOK).JSON(run)
}

// TriggerRun handles POST /api/v1/runs and blocks until the run finishes
func (s *Server) TriggerRun(c fiber.Ctx) error {
	params := triggerParams{}
	if err := c.Bind().Query(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	run, err := s.backend.Trigger(s.ctx, params.DryRun)
	if err != nil {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return fiberErr
		}

		s.log.WithError(err).Error("Triggered run failed")

		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(run)
}
