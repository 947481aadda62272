package flatten

import (
	"fmt"
	"sort"

	"github.com/ethpandaops/mlbdfs/pkg/table"
)

// sourceSet holds every source table trimmed to its declared columns and
// qualified with its alias, ready to be joined onto the slate
type sourceSet struct {
	slate       *table.Table
	batterLink  *table.Table
	pitcherLink *table.Table
	team        *table.Table
	batting     *table.Table
	vsHand      *table.Table
	homeAway    *table.Table
	statcast    *table.Table
	park        *table.Table
	pitching    *table.Table
	weather     *table.Table
	daily       *table.Table
}

// checkInputs fails before any work when a table or column is absent
func (s *Schema) checkInputs(tables map[string]*table.Table) error {
	names := make([]string, 0, len(s.Inputs))
	for name := range s.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t, ok := tables[name]
		if !ok || t == nil {
			return fmt.Errorf("%w: %s", ErrMissingTable, name)
		}

		if err := t.Require(s.Inputs[name]...); err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
	}

	return nil
}

func (s *Schema) trimmed(tables map[string]*table.Table, name string) (*table.Table, error) {
	return tables[name].Select(s.Inputs[name]...)
}

func (s *Schema) qualified(tables map[string]*table.Table, name, alias string) (*table.Table, error) {
	t, err := s.trimmed(tables, name)
	if err != nil {
		return nil, err
	}

	return t.Qualify(alias), nil
}

// tagged unions two split tables, tagging each row with the split it came from
func (s *Schema) tagged(tables map[string]*table.Table, alias, tag string, splits map[string]string) (*table.Table, error) {
	names := make([]string, 0, len(splits))
	for name := range splits {
		names = append(names, name)
	}
	sort.Strings(names)

	var out *table.Table
	for _, name := range names {
		t, err := s.trimmed(tables, name)
		if err != nil {
			return nil, err
		}

		value := table.String(splits[name])
		t = t.WithColumn(tag, func(table.RowView) table.Value { return value })

		if out == nil {
			out = t
			continue
		}

		out, err = out.Concat(t)
		if err != nil {
			return nil, fmt.Errorf("failed to combine %s: %w", name, err)
		}
	}

	return out.Qualify(alias), nil
}

func (s *Schema) prepare(tables map[string]*table.Table) (*sourceSet, error) {
	var (
		set sourceSet
		err error
	)

	if set.slate, err = s.trimmed(tables, TableDFS); err != nil {
		return nil, err
	}

	if set.batterLink, err = s.qualified(tables, TablePlayerLink, aliasBatterLink); err != nil {
		return nil, err
	}

	if set.pitcherLink, err = s.qualified(tables, TablePlayerLink, aliasPitcherLink); err != nil {
		return nil, err
	}

	if set.team, err = s.qualified(tables, TableTeamLink, aliasTeam); err != nil {
		return nil, err
	}

	if set.batting, err = s.qualified(tables, TableBatters, aliasBatting); err != nil {
		return nil, err
	}

	if set.vsHand, err = s.tagged(tables, aliasVsHand, columnPitcherHand, map[string]string{
		TableBattersLHP: "L",
		TableBattersRHP: "R",
	}); err != nil {
		return nil, err
	}

	if set.homeAway, err = s.tagged(tables, aliasHomeAway, columnHomeAway, map[string]string{
		TableBattersHome: "H",
		TableBattersAway: "A",
	}); err != nil {
		return nil, err
	}

	if set.statcast, err = s.qualified(tables, TableStatcastBatters, aliasStatcast); err != nil {
		return nil, err
	}

	if set.pitching, err = s.tagged(tables, aliasPitching, columnBatterHandFaced, map[string]string{
		TablePitchersLHB: "L",
		TablePitchersRHB: "R",
	}); err != nil {
		return nil, err
	}

	if set.weather, err = s.qualified(tables, TableWeatherToday, aliasWeather); err != nil {
		return nil, err
	}

	park, err := s.trimmed(tables, TableParkFactor)
	if err != nil {
		return nil, err
	}
	// Park factors are published per "Left"/"Right" side; only the initial is matched
	set.park = park.WithColumn("side", func(row table.RowView) table.Value {
		v := row.Get("side")
		if v.IsMissing() {
			return v
		}

		side := v.String()
		if side == "" {
			return table.Null()
		}

		return table.String(side[:1])
	}).Qualify(aliasPark)

	daily, err := s.trimmed(tables, TableBattersDaily)
	if err != nil {
		return nil, err
	}

	dates, err := daily.Column(columnGameDate)
	if err != nil {
		return nil, err
	}

	for i, v := range dates {
		if dates[i], err = parseResultDate(v); err != nil {
			return nil, err
		}
	}

	if daily, err = daily.ReplaceColumn(columnGameDate, dates); err != nil {
		return nil, err
	}
	set.daily = daily.Qualify(aliasDaily)

	return &set, nil
}
