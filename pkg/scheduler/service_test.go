package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethpandaops/mlbdfs/internal/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeElector struct {
	mu     sync.Mutex
	leader bool
}

func (f *fakeElector) Start(context.Context) error { return nil }
func (f *fakeElector) Stop() error                  { return nil }

func (f *fakeElector) IsLeader() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leader
}

func (f *fakeElector) WaitForLeadership(ctx context.Context) error {
	if f.IsLeader() {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func testConfig() *Config {
	return &Config{
		Schedule:        "0 10 * * *",
		RunTimeout:      time.Minute,
		ShutdownTimeout: time.Second,
		CatchUp:         true,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
		anyErr  bool
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "descriptor", modify: func(c *Config) { c.Schedule = "@daily" }},
		{name: "missing schedule", modify: func(c *Config) { c.Schedule = "" }, wantErr: ErrScheduleRequired},
		{name: "bad cron", modify: func(c *Config) { c.Schedule = "61 * * * *" }, anyErr: true},
		{name: "seconds field rejected", modify: func(c *Config) { c.Schedule = "0 0 10 * * *" }, anyErr: true},
		{name: "zero timeout", modify: func(c *Config) { c.RunTimeout = 0 }, wantErr: ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
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

func TestMissedRun(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	schedule, err := parseSchedule("0 10 * * *")
	require.NoError(t, err)

	tests := []struct {
		name     string
		lastRun  time.Time
		now      time.Time
		expected bool
	}{
		{
			name:     "never ran",
			now:      time.Date(2018, 6, 13, 9, 0, 0, 0, loc),
			expected: true,
		},
		{
			name:     "ran this morning",
			lastRun:  time.Date(2018, 6, 13, 10, 0, 5, 0, loc),
			now:      time.Date(2018, 6, 13, 18, 0, 0, 0, loc),
			expected: false,
		},
		{
			name:     "ran yesterday, today's slot not reached",
			lastRun:  time.Date(2018, 6, 12, 10, 0, 5, 0, loc),
			now:      time.Date(2018, 6, 13, 9, 59, 0, 0, loc),
			expected: false,
		},
		{
			name:     "ran yesterday, today's slot passed",
			lastRun:  time.Date(2018, 6, 12, 10, 0, 5, 0, loc),
			now:      time.Date(2018, 6, 13, 10, 30, 0, 0, loc),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, missedRun(schedule, tt.lastRun, tt.now))
		})
	}
}

func TestService_Run(t *testing.T) {
	tests := []struct {
		name       string
		elector    LeaderElector
		jobErr     error
		wantCalls  int32
		wantRecord bool
	}{
		{name: "single instance runs", wantCalls: 1, wantRecord: true},
		{name: "leader runs", elector: &fakeElector{leader: true}, wantCalls: 1, wantRecord: true},
		{name: "follower skips", elector: &fakeElector{}, wantCalls: 0},
		{name: "failed run is not recorded", jobErr: errors.New("boom"), wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			job := func(_ context.Context, trigger string) error {
				assert.Equal(t, "schedule", trigger)
				calls.Add(1)
				return tt.jobErr
			}

			clock := clockwork.NewFakeClockAt(time.Date(2018, 6, 13, 14, 0, 0, 0, time.UTC))
			tracker := NewMemoryRunTracker()

			svc, err := NewService(testutil.NewLogger(), testConfig(), time.UTC, job, tt.elector, tracker, clock)
			require.NoError(t, err)

			svc.(*service).run(context.Background(), "schedule")

			assert.Equal(t, tt.wantCalls, calls.Load())

			lastRun, err := tracker.GetLastRun(context.Background(), JobID)
			require.NoError(t, err)
			if tt.wantRecord {
				assert.Equal(t, clock.Now(), lastRun)
			} else {
				assert.True(t, lastRun.IsZero())
			}
		})
	}
}

func TestService_CatchUpOnStart(t *testing.T) {
	var calls atomic.Int32
	triggers := make(chan string, 1)

	job := func(_ context.Context, trigger string) error {
		calls.Add(1)
		triggers <- trigger
		return nil
	}

	svc, err := NewService(testutil.NewLogger(), testConfig(), time.UTC, job, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))

	select {
	case trigger := <-triggers:
		assert.Equal(t, "catch_up", trigger)
	case <-time.After(2 * time.Second):
		t.Fatal("catch up run did not happen")
	}

	require.NoError(t, svc.Stop())
	assert.Equal(t, int32(1), calls.Load())
}

func TestService_NoCatchUpAfterRecentRun(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2018, 6, 13, 14, 0, 0, 0, time.UTC))
	tracker := NewMemoryRunTracker()
	require.NoError(t, tracker.SetLastRun(context.Background(), JobID, time.Date(2018, 6, 13, 10, 0, 1, 0, time.UTC)))

	var calls atomic.Int32
	job := func(context.Context, string) error {
		calls.Add(1)
		return nil
	}

	svc, err := NewService(testutil.NewLogger(), testConfig(), time.UTC, job, nil, tracker, clock)
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())

	assert.Equal(t, int32(0), calls.Load())
}
