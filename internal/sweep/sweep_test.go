package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls []time.Duration
	n     int
	err   error
}

func (f *fakeSweeper) SweepStale(_ context.Context, staleAfter time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, staleAfter)
	return f.n, f.err
}

func (f *fakeSweeper) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestRun_Validation(t *testing.T) {
	ctx := context.Background()
	assert.ErrorContains(t, Run(ctx, Opts{}), "sweeper is required")
	assert.ErrorContains(t, Run(ctx, Opts{Sweeper: &fakeSweeper{}}), "stale_after")
	assert.ErrorContains(t, Run(ctx, Opts{Sweeper: &fakeSweeper{}, StaleAfter: time.Minute, Schedule: "not a cron expr"}), "parse schedule")
}

func TestRun_RunAtStartThenStops(t *testing.T) {
	f := &fakeSweeper{n: 2}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Opts{Sweeper: f, Schedule: "0 0 1 1 *", StaleAfter: 10 * time.Minute, RunAtStart: true})
	}()

	require.Eventually(t, func() bool { return f.Calls() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Equal(t, 10*time.Minute, f.calls[0])
}

func TestOnce(t *testing.T) {
	assert.Equal(t, 3, Once(context.Background(), &fakeSweeper{n: 3}, time.Minute))
	assert.Equal(t, 0, Once(context.Background(), &fakeSweeper{err: errors.New("db down")}, time.Minute))
}

func TestUntilNext(t *testing.T) {
	sched, err := cronParser.Parse("*/5 * * * *")
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 3, 30, 0, time.UTC)
	assert.Equal(t, 90*time.Second, untilNext(sched, now))

	sched, err = cronParser.Parse("0 9 * * *")
	require.NoError(t, err)
	d := untilNext(sched, now)
	assert.True(t, d > 0 && d <= 24*time.Hour, "got %v", d)
}
