package engine

import (
	"bytes"
	"context"
	"sort"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/mlbdfs/internal/testutil"
	"github.com/ethpandaops/mlbdfs/pkg/api"
	"github.com/ethpandaops/mlbdfs/pkg/flatten"
	"github.com/ethpandaops/mlbdfs/pkg/storage"
	"github.com/ethpandaops/mlbdfs/pkg/table"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const historicalDate = "20180612"

func testConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))

	cfg.MetricsAddr = ""
	cfg.Storage.Bucket = "mlb"
	cfg.Storage.DataPrefix = "data/"
	cfg.Flatten.RunDate = "2018-06-13"

	return cfg
}

// csvBody renders rows over the columns the flattener reads plus any extra
// columns the rows name. Unset cells default to "1".
func csvBody(t *testing.T, name string, rows ...map[string]string) []byte {
	t.Helper()

	cols := append([]string(nil), flatten.DefaultSchema().Inputs[name]...)
	known := make(map[string]bool, len(cols))
	for _, col := range cols {
		known[col] = true
	}

	var extra []string
	for _, row := range rows {
		for col := range row {
			if !known[col] {
				known[col] = true
				extra = append(extra, col)
			}
		}
	}
	sort.Strings(extra)
	cols = append(cols, extra...)

	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		record := make([]string, len(cols))
		for i, col := range cols {
			v, ok := row[col]
			if !ok {
				v = "1"
			}
			record[i] = v
		}
		records = append(records, record)
	}

	tbl, err := table.FromRecords(name, cols, records)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))

	return buf.Bytes()
}

func fixtureStore(t *testing.T, skip ...string) *storage.MemoryStore {
	t.Helper()

	bodies := map[string][]byte{
		flatten.TableDFS: csvBody(t, flatten.TableDFS,
			map[string]string{
				"p_h": "H", "mlb_id": "1", "oppt_pitch_mlb_id": "100", "h_a": "h", "team": "nyy", "oppt": "bos",
				"oppt_pitch_hand": "R", "game_date": historicalDate, "name_first_last": "Hist Player",
				"temp": "70", "w_speed": "5", "w_dir": "Out to CF",
			},
			map[string]string{
				"p_h": "H", "mlb_id": "2", "oppt_pitch_mlb_id": "200", "h_a": "a", "team": "laa", "oppt": "sea",
				"oppt_pitch_hand": "L", "game_date": "20180613", "name_first_last": "Today Player",
				"temp": "", "w_speed": "", "w_dir": "", "dk_points": "", "fd_points": "",
			},
			map[string]string{
				"p_h": "P", "mlb_id": "100", "oppt_pitch_mlb_id": "1", "h_a": "a", "team": "bos", "oppt": "nyy",
				"oppt_pitch_hand": "R", "game_date": historicalDate, "name_first_last": "Pitcher One",
			},
		),
		flatten.TablePlayerLink: csvBody(t, flatten.TablePlayerLink,
			map[string]string{"dk_name": "Hist Player", "mlb_id": "1", "fg_id": "f1"},
			map[string]string{"dk_name": "Today Player", "mlb_id": "2", "fg_id": "f2"},
			map[string]string{"dk_name": "Pitcher One", "mlb_id": "100", "fg_id": "p100"},
			map[string]string{"dk_name": "Pitcher Two", "mlb_id": "200", "fg_id": "p200"},
		),
		flatten.TableTeamLink: csvBody(t, flatten.TableTeamLink,
			map[string]string{"team_guru": "nyy", "team_park": "NYY", "team_weather": "New York"},
			map[string]string{"team_guru": "sea", "team_park": "SEA", "team_weather": "Seattle"},
		),
		flatten.TableBatters: csvBody(t, flatten.TableBatters,
			map[string]string{"fg_id": "f1", "name": "Hist Player", "woba": ".400"},
			map[string]string{"fg_id": "f2", "name": "Today Player", "woba": ".300"},
			map[string]string{"fg_id": "f9", "name": "New Guy", "woba": ".310"},
		),
		flatten.TableBattersLHP:  csvBody(t, flatten.TableBattersLHP, map[string]string{"fg_id": "f1"}, map[string]string{"fg_id": "f2"}),
		flatten.TableBattersRHP:  csvBody(t, flatten.TableBattersRHP, map[string]string{"fg_id": "f1"}, map[string]string{"fg_id": "f2"}),
		flatten.TableBattersHome: csvBody(t, flatten.TableBattersHome, map[string]string{"fg_id": "f1"}, map[string]string{"fg_id": "f2"}),
		flatten.TableBattersAway: csvBody(t, flatten.TableBattersAway, map[string]string{"fg_id": "f1"}, map[string]string{"fg_id": "f2"}),
		flatten.TableStatcastBatters: csvBody(t, flatten.TableStatcastBatters,
			map[string]string{"mlb_id": "1", "name": "Player, Hist", "hand": "B"},
			map[string]string{"mlb_id": "2", "name": "Player, Today", "hand": "R"},
			map[string]string{"mlb_id": "3", "name": "Rookie, Sam", "hand": "R"},
		),
		flatten.TableParkFactor: csvBody(t, flatten.TableParkFactor,
			map[string]string{"team": "NYY", "side": "Left"},
			map[string]string{"team": "NYY", "side": "Right"},
			map[string]string{"team": "SEA", "side": "Left"},
			map[string]string{"team": "SEA", "side": "Right"},
		),
		flatten.TablePitchersLHB: csvBody(t, flatten.TablePitchersLHB, map[string]string{"fg_id": "p100"}, map[string]string{"fg_id": "p200"}),
		flatten.TablePitchersRHB: csvBody(t, flatten.TablePitchersRHB, map[string]string{"fg_id": "p100"}, map[string]string{"fg_id": "p200"}),
		flatten.TableWeatherToday: csvBody(t, flatten.TableWeatherToday,
			map[string]string{"team": "New York", "temp": "99", "w_speed": "30", "w_dir": "Out to LF"},
			map[string]string{"team": "Seattle", "temp": "55", "w_speed": "10", "w_dir": "In from CF"},
		),
		flatten.TableBattersDaily: csvBody(t, flatten.TableBattersDaily,
			map[string]string{"fg_id": "f1", "game_date": "2018-06-12"},
			map[string]string{"fg_id": "f2", "game_date": "2018-06-12"},
		),
		"fg_pitchers": csvBody(t, "fg_pitchers",
			map[string]string{"fg_id": "p100", "name": "Pitcher One"},
		),
	}

	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	store := storage.NewMemoryStore()
	for name, body := range bodies {
		if skipped[name] {
			continue
		}
		require.NoError(t, store.Put(context.Background(), "data/"+name+".csv", body))
	}

	return store
}

func newTestService(t *testing.T, store storage.ObjectStore) *Service {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2018, 6, 13, 14, 0, 0, 0, time.UTC))

	svc, err := NewService(context.Background(), testutil.NewLogger(), testConfig(t), WithStore(store), WithClock(clock))
	require.NoError(t, err)

	return svc
}

func outputKeys(t *testing.T, store storage.ObjectStore) []string {
	t.Helper()

	objects, err := store.List(context.Background(), "output/")
	require.NoError(t, err)

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}

	return keys
}

func TestService_Run(t *testing.T) {
	store := fixtureStore(t)
	svc := newTestService(t, store)

	report, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, TriggerCLI, report.Trigger)
	assert.Equal(t, "2018-06-13", report.Stats.RunDate)
	assert.Equal(t, 1, report.Stats.Train)
	assert.Equal(t, 1, report.Stats.Valid)

	trainKey := "output/batters_train/batters_train20180613.csv"
	validKey := "output/batters_valid/batters_valid20180613.csv"
	assert.Equal(t, map[string]string{
		flatten.TrainTable: trainKey,
		flatten.ValidTable: validKey,
	}, report.Keys)
	assert.Equal(t, []string{trainKey, validKey}, outputKeys(t, store))

	rc, err := store.Get(context.Background(), validKey)
	require.NoError(t, err)
	defer rc.Close()

	valid, err := table.ReadCSV(flatten.ValidTable, rc)
	require.NoError(t, err)
	assert.Equal(t, svc.Flattener().Schema().OutputColumns(), valid.Columns())
	require.Equal(t, 1, valid.Len())
	assert.Equal(t, "Today Player", valid.Row(0).Get("name_first_last").String())
}

func TestService_RunDryRun(t *testing.T) {
	store := fixtureStore(t)
	svc := newTestService(t, store)

	report, err := svc.Run(context.Background(), RunOptions{DryRun: true, Trigger: "test"})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, "test", report.Trigger)
	assert.Len(t, report.Keys, 2)
	assert.Empty(t, outputKeys(t, store))
}

func TestService_RunSchemaErrorWritesNothing(t *testing.T) {
	store := fixtureStore(t, flatten.TableParkFactor)
	svc := newTestService(t, store)

	_, err := svc.Run(context.Background(), RunOptions{})
	require.ErrorIs(t, err, flatten.ErrMissingTable)
	assert.Empty(t, outputKeys(t, store))
}

func TestService_Relations(t *testing.T) {
	svc := newTestService(t, fixtureStore(t))

	relations, err := svc.Relations(context.Background())
	require.NoError(t, err)

	assert.Empty(t, relations.Conflicts)

	unlinked := relations.Unlinked
	require.Equal(t, 2, unlinked.Len())

	assert.Equal(t, "New Guy", unlinked.Row(0).Get("dk_name").String())
	assert.Equal(t, "f9", unlinked.Row(0).Get("fg_id").String())
	assert.True(t, unlinked.Row(0).Get("mlb_id").IsMissing())

	assert.Equal(t, "Sam Rookie", unlinked.Row(1).Get("dk_name").String())
	assert.Equal(t, "3", unlinked.Row(1).Get("mlb_id").String())
	assert.True(t, unlinked.Row(1).Get("fg_id").IsMissing())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
		anyErr  bool
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "bad log level", modify: func(c *Config) { c.Logging = "loud" }, wantErr: ErrInvalidLogLevel},
		{name: "missing bucket", modify: func(c *Config) { c.Storage.Bucket = "" }, wantErr: storage.ErrBucketRequired},
		{name: "bad timezone", modify: func(c *Config) { c.Flatten.Timezone = "Mars/Olympus" }, wantErr: flatten.ErrInvalidTimezone},
		{name: "bad run date", modify: func(c *Config) { c.Flatten.RunDate = "06/13/2018" }, wantErr: flatten.ErrInvalidRunDate},
		{name: "bad schedule", modify: func(c *Config) { c.Scheduler.Schedule = "daily" }, anyErr: true},
		{name: "bad redis url", modify: func(c *Config) { c.Redis.URL = "http://cache" }, anyErr: true},
		{name: "api without addr", modify: func(c *Config) { c.API.Enabled = true; c.API.Addr = "" }, wantErr: api.ErrAPIAddrRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(cfg)

			err := cfg.Validate()
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestNewService_RedisCache(t *testing.T) {
	mr, _ := testutil.NewRedis(t)

	cfg := testConfig(t)
	cfg.Redis.URL = testutil.RedisURL(mr)

	store := fixtureStore(t)
	svc, err := NewService(context.Background(), testutil.NewLogger(), cfg, WithStore(store))
	require.NoError(t, err)
	defer svc.Stop()

	_, err = svc.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)

	keys := mr.Keys()
	assert.Contains(t, keys, "mlbdfs:cache:table:data/dfs.csv")
}

func TestService_RunInProgress(t *testing.T) {
	svc := newTestService(t, fixtureStore(t))

	svc.runMu.Lock()
	_, err := svc.Run(context.Background(), RunOptions{})
	svc.runMu.Unlock()

	require.ErrorIs(t, err, ErrRunInProgress)

	_, ok := svc.LastReport()
	assert.False(t, ok)
}

func TestService_LastReport(t *testing.T) {
	svc := newTestService(t, fixtureStore(t))

	_, ok := svc.LastReport()
	assert.False(t, ok)

	report, err := svc.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)

	last, ok := svc.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.RunID, last.RunID)
	assert.Equal(t, time.Date(2018, 6, 13, 14, 0, 0, 0, time.UTC), last.FinishedAt)

	// A failed run keeps the previous report
	svc.store = fixtureStore(t, flatten.TableDFS)
	svc.loader = storage.NewLoader(svc.log, svc.store, svc.registry, nil, "data/")

	_, err = svc.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	last, ok = svc.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.RunID, last.RunID)
}

func TestAPIBackend(t *testing.T) {
	ctx := context.Background()
	store := fixtureStore(t)
	svc := newTestService(t, store)
	backend := &apiBackend{svc: svc}

	_, ok := backend.LastRun()
	assert.False(t, ok)

	run, err := backend.Trigger(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, TriggerAPI, run.Trigger)
	assert.True(t, run.DryRun)
	assert.Equal(t, "2018-06-13", run.RunDate)
	assert.Equal(t, 1, run.Train)
	assert.Contains(t, run.Dropped, "park_factor")
	assert.Empty(t, outputKeys(t, store))

	last, ok := backend.LastRun()
	require.True(t, ok)
	assert.Equal(t, run.RunID, last.RunID)

	svc.runMu.Lock()
	_, err = backend.Trigger(ctx, false)
	svc.runMu.Unlock()
	require.ErrorIs(t, err, api.ErrRunInProgress)

	tables := backend.Tables()
	require.Len(t, tables, len(flatten.DefaultSchema().Inputs))
	for i := 1; i < len(tables); i++ {
		assert.Less(t, tables[i-1].Name, tables[i].Name)
	}

	steps, err := backend.Steps()
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	assert.Equal(t, flatten.StepFilterBatters, steps[0].Name)
	assert.NotNil(t, steps[0].DependsOn)

	players, err := backend.Players(ctx)
	require.NoError(t, err)
	require.Len(t, players.Unlinked, 2)
	assert.Equal(t, "New Guy", players.Unlinked[0].Name)
	assert.Equal(t, "f9", players.Unlinked[0].FGID)
	assert.Empty(t, players.Unlinked[0].MLBID)
	assert.Empty(t, players.Conflicts)
}
