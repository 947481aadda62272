// Package flatten joins the raw source tables into the batter training and
// validation tables
package flatten

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/mlbdfs/pkg/features"
	"github.com/ethpandaops/mlbdfs/pkg/table"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Output table names
const (
	TrainTable = "batters_train"
	ValidTable = "batters_valid"
)

// Stats summarizes a flatten run
type Stats struct {
	RunDate string
	// Batters is the number of hitter rows on the slate
	Batters int
	// Joined is the number of rows after every join, before the split
	Joined int
	// DroppedByParkFactor counts rows with no park factor for the batter's side
	DroppedByParkFactor int
	// DroppedByResultDate counts historical rows with no result for the game date
	DroppedByResultDate int
	Train               int
	Valid               int
	Stages              []StageStat
}

// Result holds the published tables of a run
type Result struct {
	Train *table.Table
	Valid *table.Table
	Stats Stats
}

// Flattener turns a snapshot of raw tables into training and validation data
type Flattener struct {
	log      logrus.FieldLogger
	clock    clockwork.Clock
	location *time.Location
	runDate  string
	schema   *Schema
}

// NewFlattener creates a flattener. A nil clock uses the wall clock.
func NewFlattener(log logrus.FieldLogger, cfg *Config, clock clockwork.Clock) (*Flattener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flatten configuration: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Flattener{
		log:      log.WithField("component", "flatten"),
		clock:    clock,
		location: loc,
		runDate:  cfg.RunDate,
		schema:   DefaultSchema(),
	}, nil
}

// Schema returns the layout the flattener reads and publishes
func (f *Flattener) Schema() *Schema {
	return f.schema
}

// Today returns the run date as YYYY-MM-DD
func (f *Flattener) Today() string {
	if f.runDate != "" {
		return f.runDate
	}

	return f.clock.Now().In(f.location).Format(DateLayout)
}

// PlannedStep is a pipeline step together with the steps it waits on
type PlannedStep struct {
	Name      string
	DependsOn []string
}

// Steps returns the pipeline step names in execution order
func (f *Flattener) Steps() ([]string, error) {
	pipeline, err := f.pipeline()
	if err != nil {
		return nil, err
	}

	return pipeline.Order(), nil
}

// Plan returns every step in execution order with its transitive dependencies
func (f *Flattener) Plan() ([]PlannedStep, error) {
	pipeline, err := f.pipeline()
	if err != nil {
		return nil, err
	}

	order := pipeline.Order()
	plan := make([]PlannedStep, 0, len(order))

	for _, name := range order {
		plan = append(plan, PlannedStep{Name: name, DependsOn: pipeline.Dependencies(name)})
	}

	return plan, nil
}

func (f *Flattener) pipeline() (*Pipeline, error) {
	state := &runState{schema: f.schema, src: &sourceSet{}}

	return NewPipeline(f.log, state.steps())
}

// Flatten joins every source table onto the daily fantasy slate, cleans the
// features and splits the rows into today's games and historical games with
// their actual results. Any schema error aborts the run with no output.
func (f *Flattener) Flatten(ctx context.Context, tables map[string]*table.Table) (*Result, error) {
	today := f.Today()
	log := f.log.WithField("run_date", today)

	if err := f.schema.checkInputs(tables); err != nil {
		return nil, err
	}

	src, err := f.schema.prepare(tables)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare source tables: %w", err)
	}

	state := &runState{schema: f.schema, src: src, today: today}

	pipeline, err := NewPipeline(f.log, state.steps())
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	log.Info("Merging tables")

	joined, stages, err := pipeline.Run(ctx, src.slate)
	if err != nil {
		return nil, err
	}

	stats := Stats{
		RunDate:             today,
		Joined:              joined.Len(),
		DroppedByParkFactor: state.parkDropped,
		Stages:              stages,
	}
	if len(stages) > 0 {
		stats.Batters = stages[0].Rows
	}

	log.WithField("rows", joined.Len()).Info("Datasets merged")

	if stats.DroppedByParkFactor > 0 {
		log.WithField("dropped", stats.DroppedByParkFactor).Warn("Rows dropped with no park factor for batter side")
	}

	train, valid, err := Partition(joined, today)
	if err != nil {
		return nil, err
	}

	train, stats.DroppedByResultDate, err = f.attachTargets(train, src.daily)
	if err != nil {
		return nil, err
	}

	valid, err = f.clearTargets(valid)
	if err != nil {
		return nil, err
	}

	trainOut, err := project(train, f.schema.all())
	if err != nil {
		return nil, err
	}

	validOut, err := project(valid, f.schema.all())
	if err != nil {
		return nil, err
	}

	stats.Train = trainOut.Len()
	stats.Valid = validOut.Len()

	log.WithFields(logrus.Fields{
		"features": len(f.schema.Features),
		"train":    stats.Train,
		"valid":    stats.Valid,
	}).Info("Flattened batters")

	return &Result{
		Train: trainOut.WithName(TrainTable),
		Valid: validOut.WithName(ValidTable),
		Stats: stats,
	}, nil
}

// Partition splits rows into historical games (train) and today's games (valid)
func Partition(t *table.Table, today string) (*table.Table, *table.Table, error) {
	if err := t.Require(columnGameDate); err != nil {
		return nil, nil, err
	}

	isToday := func(row table.RowView) bool {
		return row.Get(columnGameDate).String() == today
	}

	train := t.Filter(func(row table.RowView) bool { return !isToday(row) })
	valid := t.Filter(isToday)

	return train, valid, nil
}

// attachTargets joins each historical row to the batter's result on that date.
// It also returns how many rows had no result for their date and were dropped.
func (f *Flattener) attachTargets(train, daily *table.Table) (*table.Table, int, error) {
	resultDate := table.Qualified(aliasDaily, columnGameDate)
	sameDate := func(row table.RowView) bool {
		d := row.Get(resultDate)

		return !d.IsMissing() && d.String() == row.Get(columnGameDate).String()
	}

	matched, dropped, err := train.JoinWhere(daily, sameDate, table.On(table.Qualified(aliasBatterLink, "fg_id"), table.Qualified(aliasDaily, "fg_id")))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to join results: %w", err)
	}

	cleaned, err := features.CleanColumns(matched, sources(f.schema.Targets)...)
	if err != nil {
		return nil, 0, err
	}

	return cleaned, dropped, nil
}

// clearTargets blanks every target on rows whose outcome is not yet known
func (f *Flattener) clearTargets(valid *table.Table) (*table.Table, error) {
	out := valid
	for _, col := range sources(f.schema.Targets) {
		missing := make([]table.Value, out.Len())
		for i := range missing {
			missing[i] = table.NaN()
		}

		var err error
		if out, err = out.ReplaceColumn(col, missing); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func project(t *table.Table, cols []Column) (*table.Table, error) {
	selected, err := t.Select(sources(cols)...)
	if err != nil {
		return nil, err
	}

	renames := make(map[string]string, len(cols))
	for _, c := range cols {
		if c.Source != c.Output {
			renames[c.Source] = c.Output
		}
	}

	return selected.Rename(renames)
}
