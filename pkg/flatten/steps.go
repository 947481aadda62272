package flatten

import (
	"context"
	"strings"

	"github.com/ethpandaops/mlbdfs/pkg/features"
	"github.com/ethpandaops/mlbdfs/pkg/table"
)

// Step names
const (
	StepFilterBatters      = "filter_batters"
	StepLinkBatter         = "link_batter"
	StepLinkPitcher        = "link_pitcher"
	StepParkTeam           = "park_team"
	StepLinkTeam           = "link_team"
	StepJoinBatting        = "join_batting"
	StepJoinBattingVsHand  = "join_batting_vs_hand"
	StepJoinHomeAway       = "join_home_away"
	StepJoinStatcast       = "join_statcast"
	StepResolveHand        = "resolve_hand"
	StepJoinParkFactor     = "join_park_factor"
	StepJoinPitchingVsHand = "join_pitching_vs_hand"
	StepParseGameDate      = "parse_game_date"
	StepJoinWeather        = "join_weather"
	StepOverrideWeather    = "override_weather"
	StepEncodeWind         = "encode_wind"
	StepCleanFeatures      = "clean_features"
)

// runState is shared by the steps of a single run
type runState struct {
	schema *Schema
	src    *sourceSet
	today  string

	parkDropped int
}

func leftJoin(right *table.Table, keys ...table.JoinKey) StepFunc {
	return func(_ context.Context, in *table.Table) (*table.Table, error) {
		return in.LeftJoin(right, keys...)
	}
}

func (r *runState) steps() []Step {
	q := table.Qualified

	return []Step{
		{
			Name: StepFilterBatters,
			Run:  r.filterBatters,
		},
		{
			Name:  StepLinkBatter,
			After: []string{StepFilterBatters},
			Run:   leftJoin(r.src.batterLink, table.On("mlb_id", q(aliasBatterLink, "mlb_id"))),
		},
		{
			Name:  StepLinkPitcher,
			After: []string{StepFilterBatters},
			Run:   leftJoin(r.src.pitcherLink, table.On("oppt_pitch_mlb_id", q(aliasPitcherLink, "mlb_id"))),
		},
		{
			Name:  StepParkTeam,
			After: []string{StepFilterBatters},
			Run:   r.parkTeam,
		},
		{
			Name:  StepLinkTeam,
			After: []string{StepParkTeam},
			Run:   leftJoin(r.src.team, table.On(columnParkTeam, q(aliasTeam, "team_guru"))),
		},
		{
			Name:  StepJoinBatting,
			After: []string{StepLinkBatter},
			Run:   leftJoin(r.src.batting, table.On(q(aliasBatterLink, "fg_id"), q(aliasBatting, "fg_id"))),
		},
		{
			Name:  StepJoinBattingVsHand,
			After: []string{StepLinkBatter},
			Run: leftJoin(r.src.vsHand,
				table.On(q(aliasBatterLink, "fg_id"), q(aliasVsHand, "fg_id")),
				table.On(columnPitcherHand, q(aliasVsHand, columnPitcherHand)),
			),
		},
		{
			Name:  StepJoinHomeAway,
			After: []string{StepLinkBatter, StepParkTeam},
			Run:   r.joinHomeAway,
		},
		{
			Name:  StepJoinStatcast,
			After: []string{StepFilterBatters},
			Run:   leftJoin(r.src.statcast, table.On("mlb_id", q(aliasStatcast, "mlb_id"))),
		},
		{
			Name:  StepResolveHand,
			After: []string{StepJoinStatcast},
			Run:   r.resolveHand,
		},
		{
			Name:  StepJoinParkFactor,
			After: []string{StepLinkTeam, StepResolveHand},
			Run:   r.joinParkFactor,
		},
		{
			Name:  StepJoinPitchingVsHand,
			After: []string{StepLinkPitcher, StepResolveHand},
			Run: leftJoin(r.src.pitching,
				table.On(q(aliasPitcherLink, "fg_id"), q(aliasPitching, "fg_id")),
				table.On(columnHand, q(aliasPitching, columnBatterHandFaced)),
			),
		},
		{
			Name:  StepParseGameDate,
			After: []string{StepFilterBatters},
			Run:   r.parseGameDate,
		},
		{
			Name:  StepJoinWeather,
			After: []string{StepLinkTeam},
			Run:   leftJoin(r.src.weather, table.On(q(aliasTeam, "team_weather"), q(aliasWeather, "team"))),
		},
		{
			Name:  StepOverrideWeather,
			After: []string{StepParseGameDate, StepJoinWeather},
			Run:   r.overrideWeather,
		},
		{
			Name:  StepEncodeWind,
			After: []string{StepOverrideWeather},
			Run:   r.encodeWind,
		},
		{
			Name: StepCleanFeatures,
			After: []string{
				StepEncodeWind,
				StepJoinBatting,
				StepJoinBattingVsHand,
				StepJoinHomeAway,
				StepJoinParkFactor,
				StepJoinPitchingVsHand,
			},
			Run: r.cleanFeatures,
		},
	}
}

func (r *runState) filterBatters(_ context.Context, in *table.Table) (*table.Table, error) {
	return in.Filter(func(row table.RowView) bool {
		return strings.EqualFold(strings.TrimSpace(row.Get("p_h").String()), "H")
	}), nil
}

// parkTeam picks the team whose park and weather apply to the game
func (r *runState) parkTeam(_ context.Context, in *table.Table) (*table.Table, error) {
	return in.WithColumn(columnParkTeam, func(row table.RowView) table.Value {
		if isHome(row.Get(columnHomeAway)) {
			return row.Get("team")
		}

		return row.Get("oppt")
	}), nil
}

func isHome(v table.Value) bool {
	return strings.EqualFold(strings.TrimSpace(v.String()), "h")
}

func (r *runState) joinHomeAway(_ context.Context, in *table.Table) (*table.Table, error) {
	normalized := in.WithColumn(columnHomeAway, func(row table.RowView) table.Value {
		v := row.Get(columnHomeAway)
		if v.IsMissing() {
			return v
		}

		return table.String(strings.ToUpper(strings.TrimSpace(v.String())))
	})

	return normalized.LeftJoin(r.src.homeAway,
		table.On(table.Qualified(aliasBatterLink, "fg_id"), table.Qualified(aliasHomeAway, "fg_id")),
		table.On(columnHomeAway, table.Qualified(aliasHomeAway, columnHomeAway)),
	)
}

func (r *runState) resolveHand(_ context.Context, in *table.Table) (*table.Table, error) {
	raw := table.Qualified(aliasStatcast, columnHand)

	return in.WithColumn(columnHand, func(row table.RowView) table.Value {
		hand := row.Get(raw)
		if hand.IsMissing() {
			return table.Null()
		}

		return table.String(ResolveHand(strings.TrimSpace(hand.String()), strings.TrimSpace(row.Get(columnPitcherHand).String())))
	}), nil
}

// joinParkFactor keeps only the park factors for the side the batter hits
// from. Rows without a matching side are dropped.
func (r *runState) joinParkFactor(_ context.Context, in *table.Table) (*table.Table, error) {
	side := table.Qualified(aliasPark, "side")
	matchesSide := func(row table.RowView) bool {
		s, hand := row.Get(side), row.Get(columnHand)

		return !s.IsMissing() && !hand.IsMissing() && s.String() == hand.String()
	}

	out, dropped, err := in.JoinWhere(r.src.park, matchesSide, table.On(table.Qualified(aliasTeam, "team_park"), table.Qualified(aliasPark, "team")))
	if err != nil {
		return nil, err
	}
	r.parkDropped = dropped

	return out, nil
}

func (r *runState) parseGameDate(_ context.Context, in *table.Table) (*table.Table, error) {
	dates, err := in.Column(columnGameDate)
	if err != nil {
		return nil, err
	}

	parsed := make([]table.Value, len(dates))
	for i, v := range dates {
		d, err := ParseGameDate(v)
		if err != nil {
			return nil, err
		}
		parsed[i] = table.String(d)
	}

	return in.ReplaceColumn(columnGameDate, parsed)
}

// overrideWeather swaps recorded weather for the live feed on today's games
func (r *runState) overrideWeather(_ context.Context, in *table.Table) (*table.Table, error) {
	out := in
	for _, col := range weatherColumns {
		live := table.Qualified(aliasWeather, col)
		out = out.WithColumn(col, func(row table.RowView) table.Value {
			if row.Get(columnGameDate).String() == r.today {
				return row.Get(live)
			}

			return row.Get(col)
		})
	}

	return out, nil
}

func (r *runState) encodeWind(_ context.Context, in *table.Table) (*table.Table, error) {
	dirs, err := in.Column("w_dir")
	if err != nil {
		return nil, err
	}

	return in.ReplaceColumn("w_dir", features.ParseWindDirection(dirs))
}

func (r *runState) cleanFeatures(_ context.Context, in *table.Table) (*table.Table, error) {
	return features.CleanColumns(in, sources(r.schema.Features)...)
}
