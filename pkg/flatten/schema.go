package flatten

import "github.com/ethpandaops/mlbdfs/pkg/table"

// Source table names
const (
	TableDFS              = "dfs"
	TablePlayerLink       = "player_link"
	TableTeamLink         = "team_link"
	TableBatters          = "fg_batters"
	TableBattersLHP       = "fg_batters_lhp"
	TableBattersRHP       = "fg_batters_rhp"
	TableBattersHome      = "fg_batters_home"
	TableBattersAway      = "fg_batters_away"
	TableStatcastBatters  = "statcast_batters"
	TableParkFactor       = "park_factor"
	TablePitchersLHB      = "fg_pitchers_lhb"
	TablePitchersRHB      = "fg_pitchers_rhb"
	TableBattersDaily     = "fg_batters_daily"
	TableWeatherToday     = "weather_today"
	columnGameDate        = "game_date"
	columnHand            = "hand"
	columnParkTeam        = "park_team"
	columnHomeAway        = "h_a"
	columnPitcherHand     = "oppt_pitch_hand"
	columnBatterHandFaced = "oppt_bat_hand"
)

// Aliases qualify the columns each source contributes to the joined table
const (
	aliasBatterLink  = "link"
	aliasPitcherLink = "pl"
	aliasTeam        = "team"
	aliasBatting     = "b"
	aliasVsHand      = "bh"
	aliasHomeAway    = "ha"
	aliasStatcast    = "sc"
	aliasPark        = "pf"
	aliasPitching    = "ph"
	aliasWeather     = "wt"
	aliasDaily       = "bd"
)

// Column maps a column of the joined table to its name in the output
type Column struct {
	// Output is the published column name
	Output string
	// Source is the column in the joined table, qualified by source alias
	Source string
}

// Schema declares what the flattener reads and what it publishes
type Schema struct {
	// IDs identify the player-game
	IDs []Column
	// Features are cleaned to numbers and fed to the model
	Features []Column
	// Targets are actual outcomes, only known for historical games
	Targets []Column
	// Inputs lists the columns each source table must carry
	Inputs map[string][]string
}

// OutputColumns returns the published column names in order
func (s *Schema) OutputColumns() []string {
	cols := make([]string, 0, len(s.IDs)+len(s.Features)+len(s.Targets))
	for _, group := range [][]Column{s.IDs, s.Features, s.Targets} {
		for _, c := range group {
			cols = append(cols, c.Output)
		}
	}

	return cols
}

func (s *Schema) all() []Column {
	cols := make([]Column, 0, len(s.IDs)+len(s.Features)+len(s.Targets))
	cols = append(cols, s.IDs...)
	cols = append(cols, s.Features...)

	return append(cols, s.Targets...)
}

func sources(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Source
	}

	return out
}

// fromSource publishes alias.col as col_alias
func fromSource(alias string, cols ...string) []Column {
	out := make([]Column, len(cols))
	for i, col := range cols {
		out[i] = Column{Output: col + "_" + alias, Source: table.Qualified(alias, col)}
	}

	return out
}

func fromBase(cols ...string) []Column {
	out := make([]Column, len(cols))
	for i, col := range cols {
		out[i] = Column{Output: col, Source: col}
	}

	return out
}

//nolint:gochecknoglobals // Fixed column lists shared by the schema
var (
	battingColumns = []string{
		"age", "bb_perc", "k_perc", "bb_k", "obp", "ld_perc", "gb_perc", "fb_perc",
		"iffb_perc", "ifh_perc", "buh_perc", "woba", "wraa", "wrc", "spd",
		"wrc_plus", "wpa", "o_swing_perc", "z_swing_perc", "swing_perc",
		"o_contact_perc", "z_contact_perc", "contact_perc", "zone_perc", "f_strike_perc",
		"swstr_perc", "bsr", "pull_perc", "cent_perc", "oppo_perc", "soft_perc",
		"med_perc", "hard_perc",
	}

	splitBattingColumns = []string{
		"bb_perc", "k_perc", "bb_k", "obp", "w_rc", "w_raa", "w_oba", "wrc_plus",
		"ld_perc", "gb_perc", "fb_perc", "iffb_perc", "ifh_perc", "buh_perc",
		"pull_perc", "cent_perc", "oppo_perc", "soft_perc", "med_perc", "hard_perc",
	}

	statcastColumns = []string{
		"max_hit_speed", "avg_hit_speed", "fbld", "gb", "max_distance",
		"avg_distance", "avg_hr_distance", "barrels", "brl_percent", "brl_pa",
		"ev95plus", "ev95percent",
	}

	parkFactorColumns = []string{
		"fb_factor", "gb_factor", "ld_factor", "pu_factor", "factor_1b",
		"factor_2b", "factor_3b", "hr_factor", "runs_factor",
	}

	pitchingColumns = []string{
		"obp", "w_oba", "k_9", "bb_9", "k_bb", "hr_9", "k_perc", "bb_perc",
		"k_bb_perc", "whip", "x_fip", "fip", "ld_perc", "gb_perc", "fb_perc",
		"iffb_perc", "ifh_perc", "buh_perc", "pull_perc", "cent_perc",
		"oppo_perc", "soft_perc", "med_perc", "hard_perc",
	}

	weatherColumns = []string{"temp", "w_speed", "w_dir"}

	dailyTargetColumns = []string{"one_b", "two_b", "three_b", "hr", "rbi", "r", "bb", "hbp", "sb"}
)

// DefaultSchema returns the batter feature table layout consumed by model training
func DefaultSchema() *Schema {
	var features []Column
	features = append(features, fromSource(aliasBatting, battingColumns...)...)
	features = append(features, fromSource(aliasVsHand, splitBattingColumns...)...)
	features = append(features, fromSource(aliasHomeAway, splitBattingColumns...)...)
	features = append(features, fromSource(aliasStatcast, statcastColumns...)...)
	features = append(features, fromSource(aliasPark, parkFactorColumns...)...)
	features = append(features, fromSource(aliasPitching, pitchingColumns...)...)
	features = append(features, fromBase(weatherColumns...)...)
	features = append(features, fromBase("prior_adi")...)

	var targets []Column
	targets = append(targets, fromSource(aliasDaily, dailyTargetColumns...)...)
	targets = append(targets, fromBase("dk_points", "fd_points")...)

	ids := fromBase("name_first_last", "team", columnGameDate, "dk_pos", "fd_pos", "dk_salary", "fd_salary")

	dfsColumns := []string{
		"p_h", "mlb_id", "oppt_pitch_mlb_id", columnHomeAway, "team", "oppt", columnPitcherHand,
		columnGameDate, "name_first_last", "dk_pos", "fd_pos", "dk_salary", "fd_salary",
		"prior_adi", "dk_points", "fd_points",
	}
	dfsColumns = append(dfsColumns, weatherColumns...)

	return &Schema{
		IDs:      ids,
		Features: features,
		Targets:  targets,
		Inputs: map[string][]string{
			TableDFS:             dfsColumns,
			TablePlayerLink:      {"dk_name", "mlb_id", "fg_id"},
			TableTeamLink:        {"team_guru", "team_park", "team_weather"},
			TableBatters:         withKeys(battingColumns, "fg_id"),
			TableBattersLHP:      withKeys(splitBattingColumns, "fg_id"),
			TableBattersRHP:      withKeys(splitBattingColumns, "fg_id"),
			TableBattersHome:     withKeys(splitBattingColumns, "fg_id"),
			TableBattersAway:     withKeys(splitBattingColumns, "fg_id"),
			TableStatcastBatters: withKeys(statcastColumns, "mlb_id", columnHand),
			TableParkFactor:      withKeys(parkFactorColumns, "team", "side"),
			TablePitchersLHB:     withKeys(pitchingColumns, "fg_id"),
			TablePitchersRHB:     withKeys(pitchingColumns, "fg_id"),
			TableWeatherToday:    withKeys(weatherColumns, "team"),
			TableBattersDaily:    withKeys(dailyTargetColumns, "fg_id", columnGameDate),
		},
	}
}

func withKeys(cols []string, keys ...string) []string {
	out := make([]string, 0, len(keys)+len(cols))
	out = append(out, keys...)

	return append(out, cols...)
}
