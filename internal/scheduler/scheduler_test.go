package scheduler

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/orchestrator"
)

type fakeSweeper struct {
	mu       sync.Mutex
	requests []orchestrator.Request
	errs     map[string]error
}

func (f *fakeSweeper) Run(_ context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err, ok := f.errs[req.IPRange]; ok {
		return nil, err
	}
	return &orchestrator.Result{ScanID: uuid.New(), Range: req.IPRange}, nil
}

func (f *fakeSweeper) ranges() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.IPRange
	}
	return out
}

func TestAddSweep(t *testing.T) {
	s := NewScheduler(&fakeSweeper{})

	t.Run("valid job", func(t *testing.T) {
		id, err := s.AddSweep("lan", "*/5 * * * *", []string{"192.168.1.0/24"})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)
	})

	t.Run("descriptor schedules are accepted", func(t *testing.T) {
		_, err := s.AddSweep("hourly", "@every 1h", []string{"10.0.0.0/28"})
		require.NoError(t, err)
	})

	t.Run("invalid cron", func(t *testing.T) {
		_, err := s.AddSweep("bad", "sometimes", []string{"10.0.0.0/28"})
		require.Error(t, err)
		assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
	})

	t.Run("no ranges", func(t *testing.T) {
		_, err := s.AddSweep("empty", "@hourly", nil)
		require.Error(t, err)
	})

	t.Run("invalid range", func(t *testing.T) {
		_, err := s.AddSweep("bad-range", "@hourly", []string{"10.0.0.0/24", "10.0.0.0/40"})
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidRange, errors.GetCode(err))
	})

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "hourly", jobs[0].Name)
	assert.Equal(t, "lan", jobs[1].Name)
	assert.False(t, jobs[1].NextRun.IsZero())
}

func TestRemoveJob(t *testing.T) {
	s := NewScheduler(&fakeSweeper{})
	id, err := s.AddSweep("lan", "@hourly", []string{"192.168.1.0/24"})
	require.NoError(t, err)

	require.NoError(t, s.RemoveJob(id))
	assert.Empty(t, s.Jobs())

	err = s.RemoveJob(id)
	assert.True(t, errors.IsNotFound(err))
}

func TestRunNow(t *testing.T) {
	sweeper := &fakeSweeper{errs: map[string]error{
		"10.0.1.0/24": errors.ErrScanInProgress("10.9.9.0/24"),
	}}
	s := NewScheduler(sweeper)

	id, err := s.AddSweep("all", "@daily", []string{"10.0.0.0/24", "10.0.1.0/24", "10.0.2.0/24"})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(id))

	assert.Equal(t, []string{"10.0.0.0/24", "10.0.1.0/24", "10.0.2.0/24"}, sweeper.ranges())
	for _, req := range sweeper.requests {
		assert.Equal(t, orchestrator.TriggerSchedule, req.Trigger)
	}

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Runs)
	assert.Equal(t, 1, jobs[0].Skipped, "an in-progress sweep is a skip, not a failure")
	assert.Empty(t, jobs[0].LastError)
	assert.False(t, jobs[0].Running)
	assert.False(t, jobs[0].LastRun.IsZero())
}

func TestRunNowRecordsFailure(t *testing.T) {
	sweeper := &fakeSweeper{errs: map[string]error{
		"10.0.0.0/24": stderrors.New("database unavailable"),
	}}
	s := NewScheduler(sweeper)

	id, err := s.AddSweep("lan", "@daily", []string{"10.0.0.0/24"})
	require.NoError(t, err)
	require.NoError(t, s.RunNow(id))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "database unavailable", jobs[0].LastError)

	assert.True(t, errors.IsNotFound(s.RunNow(uuid.New())))
}

func TestStartStop(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := NewScheduler(sweeper)

	_, err := s.AddSweep("fast", "@every 1s", []string{"10.0.0.0/30"})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "second start is rejected")

	require.Eventually(t, func() bool {
		return len(sweeper.ranges()) > 0
	}, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)

	assert.Error(t, s.Start(), "a stopped scheduler cannot restart")
}
