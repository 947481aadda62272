package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	last       *RunSummary
	triggerErr error
	playersErr error
	dryRuns    []bool
}

func (m *mockBackend) Trigger(_ context.Context, dryRun bool) (*RunSummary, error) {
	m.dryRuns = append(m.dryRuns, dryRun)
	if m.triggerErr != nil {
		return nil, m.triggerErr
	}

	m.last = &RunSummary{RunID: "run-1", Trigger: "api", DryRun: dryRun, RunDate: "2018-06-13", Train: 1, Valid: 1}

	return m.last, nil
}

func (m *mockBackend) LastRun() (*RunSummary, bool) {
	return m.last, m.last != nil
}

func (m *mockBackend) Tables() []TableInfo {
	return []TableInfo{
		{Name: "dfs", Filename: "dfs", RequiredColumns: 7, Registered: true},
		{Name: "park_factors", Filename: "park_factor", RequiredColumns: 4},
	}
}

func (m *mockBackend) Steps() ([]StepInfo, error) {
	return []StepInfo{
		{Name: "filter_batters", DependsOn: []string{}},
		{Name: "join_fg_batters", DependsOn: []string{"filter_batters"}},
	}, nil
}

func (m *mockBackend) Players(_ context.Context) (*PlayersReport, error) {
	if m.playersErr != nil {
		return nil, m.playersErr
	}

	return &PlayersReport{
		Unlinked:  []Player{{Name: "New Guy", FGID: "f9"}},
		Conflicts: []Conflict{},
	}, nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func do(t *testing.T, backend Backend, method, target string) (int, map[string]interface{}) {
	t.Helper()

	app := newApp(context.Background(), backend, testLogger())

	req := httptest.NewRequest(method, target, http.NoBody)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))

	return resp.StatusCode, decoded
}

func TestServer_Routes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		backend    func() *mockBackend
		wantStatus int
		check      func(t *testing.T, body map[string]interface{})
	}{
		{
			name:       "list tables",
			method:     http.MethodGet,
			target:     "/api/v1/tables",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.InDelta(t, 2, body["total"], 0)
			},
		},
		{
			name:       "list steps",
			method:     http.MethodGet,
			target:     "/api/v1/steps",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				steps, ok := body["steps"].([]interface{})
				require.True(t, ok)
				require.Len(t, steps, 2)
				assert.Equal(t, "join_fg_batters", steps[1].(map[string]interface{})["name"])
			},
		},
		{
			name:       "no run yet",
			method:     http.MethodGet,
			target:     "/api/v1/runs/latest",
			wantStatus: http.StatusNotFound,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "no run has completed yet", body["error"])
			},
		},
		{
			name:       "latest run",
			method:     http.MethodGet,
			target:     "/api/v1/runs/latest",
			backend:    func() *mockBackend { return &mockBackend{last: &RunSummary{RunID: "abc"}} },
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "abc", body["run_id"])
			},
		},
		{
			name:       "trigger dry run",
			method:     http.MethodPost,
			target:     "/api/v1/runs?dry_run=true",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, true, body["dry_run"])
				assert.Equal(t, "2018-06-13", body["run_date"])
			},
		},
		{
			name:       "trigger while running",
			method:     http.MethodPost,
			target:     "/api/v1/runs",
			backend:    func() *mockBackend { return &mockBackend{triggerErr: ErrRunInProgress} },
			wantStatus: http.StatusConflict,
		},
		{
			name:       "trigger failure",
			method:     http.MethodPost,
			target:     "/api/v1/runs",
			backend:    func() *mockBackend { return &mockBackend{triggerErr: errors.New("missing table dfs")} },
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "missing table dfs", body["error"])
			},
		},
		{
			name:       "invalid dry run flag",
			method:     http.MethodPost,
			target:     "/api/v1/runs?dry_run=maybe",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unlinked players",
			method:     http.MethodGet,
			target:     "/api/v1/players/unlinked",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				unlinked, ok := body["unlinked"].([]interface{})
				require.True(t, ok)
				require.Len(t, unlinked, 1)
				assert.Equal(t, "New Guy", unlinked[0].(map[string]interface{})["dk_name"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{}
			if tt.backend != nil {
				backend = tt.backend()
			}

			status, body := do(t, backend, tt.method, tt.target)
			assert.Equal(t, tt.wantStatus, status)

			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestServer_TriggerPassesDryRun(t *testing.T) {
	backend := &mockBackend{}

	do(t, backend, http.MethodPost, "/api/v1/runs")
	do(t, backend, http.MethodPost, "/api/v1/runs?dry_run=true")

	assert.Equal(t, []bool{false, true}, backend.dryRuns)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, (&Config{}).Validate())
	require.NoError(t, (&Config{Enabled: true, Addr: ":8080"}).Validate())
	require.ErrorIs(t, (&Config{Enabled: true}).Validate(), ErrAPIAddrRequired)
}

func TestService_DisabledDoesNotListen(t *testing.T) {
	svc := NewService(&Config{}, &mockBackend{}, testLogger())

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())
}
