package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/ethpandaops/mlbdfs/pkg/api"
	"github.com/ethpandaops/mlbdfs/pkg/identity"
)

// apiBackend serves the HTTP API from the engine
type apiBackend struct {
	svc *Service
}

func (b *apiBackend) Trigger(ctx context.Context, dryRun bool) (*api.RunSummary, error) {
	report, err := b.svc.Run(ctx, RunOptions{Trigger: TriggerAPI, DryRun: dryRun})
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			return nil, api.ErrRunInProgress
		}

		return nil, err
	}

	return summarize(report), nil
}

func (b *apiBackend) LastRun() (*api.RunSummary, bool) {
	report, ok := b.svc.LastReport()
	if !ok {
		return nil, false
	}

	return summarize(report), true
}

func (b *apiBackend) Tables() []api.TableInfo {
	inputs := b.svc.flattener.Schema().Inputs
	out := make([]api.TableInfo, 0, len(inputs))

	for _, name := range sortedKeys(inputs) {
		info := api.TableInfo{Name: name, Filename: name, RequiredColumns: len(inputs[name])}

		for _, t := range b.svc.registry.Tables() {
			if t.Name != name {
				continue
			}

			info.Registered = true
			info.URL = t.URL
			if t.Filename != "" {
				info.Filename = t.Filename
			}
		}

		out = append(out, info)
	}

	return out
}

func (b *apiBackend) Steps() ([]api.StepInfo, error) {
	plan, err := b.svc.flattener.Plan()
	if err != nil {
		return nil, err
	}

	out := make([]api.StepInfo, 0, len(plan))
	for _, step := range plan {
		deps := step.DependsOn
		if deps == nil {
			deps = []string{}
		}
		out = append(out, api.StepInfo{Name: step.Name, DependsOn: deps})
	}

	return out, nil
}

func (b *apiBackend) Players(ctx context.Context) (*api.PlayersReport, error) {
	relations, err := b.svc.Relations(ctx)
	if err != nil {
		return nil, err
	}

	report := &api.PlayersReport{
		Unlinked:  make([]api.Player, 0, relations.Unlinked.Len()),
		Conflicts: make([]api.Conflict, 0, len(relations.Conflicts)),
	}

	for i := 0; i < relations.Unlinked.Len(); i++ {
		row := relations.Unlinked.Row(i)
		report.Unlinked = append(report.Unlinked, api.Player{
			Name:  row.Get(identity.ColumnName).String(),
			MLBID: row.Get(identity.ColumnMLBID).String(),
			FGID:  row.Get(identity.ColumnFGID).String(),
		})
	}

	for _, c := range relations.Conflicts {
		report.Conflicts = append(report.Conflicts, api.Conflict{IDColumn: c.IDColumn, ID: c.ID, Names: c.Names})
	}

	return report, nil
}

func summarize(report *Report) *api.RunSummary {
	return &api.RunSummary{
		RunID:      report.RunID,
		Trigger:    report.Trigger,
		DryRun:     report.DryRun,
		RunDate:    report.Stats.RunDate,
		FinishedAt: report.FinishedAt,
		Duration:   report.Duration.String(),
		Batters:    report.Stats.Batters,
		Train:      report.Stats.Train,
		Valid:      report.Stats.Valid,
		Dropped: map[string]int{
			"park_factor": report.Stats.DroppedByParkFactor,
			"result_date": report.Stats.DroppedByResultDate,
		},
		Keys: report.Keys,
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
