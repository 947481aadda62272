package flatten

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/mlbdfs/pkg/table"
	"github.com/heimdalr/dag"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnknownStep is returned when a step runs after a step that was never declared
	ErrUnknownStep = errors.New("step depends on unknown step")
	// ErrInvalidStepType is returned when a graph vertex is not a step
	ErrInvalidStepType = errors.New("invalid step type")
	// ErrUnorderedSteps is returned when the step graph has no valid order
	ErrUnorderedSteps = errors.New("steps cannot be ordered")
)

// StepFunc transforms the working table
type StepFunc func(ctx context.Context, in *table.Table) (*table.Table, error)

// Step is one named stage of the flattening pipeline
type Step struct {
	Name  string
	After []string
	Run   StepFunc
}

// StageStat records the outcome of a single step
type StageStat struct {
	Step     string
	Rows     int
	Duration time.Duration
}

// Pipeline runs steps in dependency order. Steps with no ordering constraint
// between them run in declaration order.
type Pipeline struct {
	log   logrus.FieldLogger
	graph *dag.DAG
	order []string
}

// NewPipeline builds the step graph and resolves its execution order
func NewPipeline(log logrus.FieldLogger, steps []Step) (*Pipeline, error) {
	graph := dag.NewDAG()
	steps = append([]Step(nil), steps...)

	for i := range steps {
		step := &steps[i]
		if err := graph.AddVertexByID(step.Name, step); err != nil {
			return nil, fmt.Errorf("failed to add step %s: %w", step.Name, err)
		}
	}

	for _, step := range steps {
		for _, dep := range step.After {
			if _, err := graph.GetVertex(dep); err != nil {
				return nil, fmt.Errorf("%w: %s runs after %s", ErrUnknownStep, step.Name, dep)
			}

			// AddEdge returns error if it would create a cycle
			if err := graph.AddEdge(dep, step.Name); err != nil {
				return nil, fmt.Errorf("invalid step order %s → %s: %w", dep, step.Name, err)
			}
		}
	}

	order, err := resolveOrder(graph, steps)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		log:   log.WithField("component", "pipeline"),
		graph: graph,
		order: order,
	}, nil
}

// resolveOrder is Kahn's algorithm with ties broken by declaration order
func resolveOrder(graph *dag.DAG, steps []Step) ([]string, error) {
	done := make(map[string]bool, len(steps))
	order := make([]string, 0, len(steps))

	for len(order) < len(steps) {
		next := ""
		for _, step := range steps {
			if done[step.Name] {
				continue
			}

			parents, err := graph.GetParents(step.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to get parents of %s: %w", step.Name, err)
			}

			ready := true
			for id := range parents {
				if !done[id] {
					ready = false
					break
				}
			}

			if ready {
				next = step.Name
				break
			}
		}

		if next == "" {
			return nil, ErrUnorderedSteps
		}

		done[next] = true
		order = append(order, next)
	}

	return order, nil
}

// Order returns the step names in execution order
func (p *Pipeline) Order() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)

	return out
}

// Dependencies returns every step that must run before the named step
func (p *Pipeline) Dependencies(name string) []string {
	ancestors, err := p.graph.GetAncestors(name)
	if err != nil {
		return nil
	}

	deps := make([]string, 0, len(ancestors))
	for _, id := range p.order {
		if _, ok := ancestors[id]; ok {
			deps = append(deps, id)
		}
	}

	return deps
}

// Run feeds the input through every step and returns the final table
func (p *Pipeline) Run(ctx context.Context, in *table.Table) (*table.Table, []StageStat, error) {
	stats := make([]StageStat, 0, len(p.order))
	current := in

	for _, name := range p.order {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		step, err := p.step(name)
		if err != nil {
			return nil, stats, err
		}

		start := time.Now()

		out, err := step.Run(ctx, current)
		if err != nil {
			return nil, stats, fmt.Errorf("step %s failed: %w", name, err)
		}

		stat := StageStat{Step: name, Rows: out.Len(), Duration: time.Since(start)}
		stats = append(stats, stat)

		p.log.WithFields(logrus.Fields{
			"step":     name,
			"rows_in":  current.Len(),
			"rows_out": stat.Rows,
			"duration": stat.Duration,
		}).Debug("Completed step")

		current = out
	}

	return current, stats, nil
}

func (p *Pipeline) step(name string) (*Step, error) {
	vertex, err := p.graph.GetVertex(name)
	if err != nil {
		return nil, err
	}

	step, ok := vertex.(*Step)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrInvalidStepType, name)
	}

	return step, nil
}
