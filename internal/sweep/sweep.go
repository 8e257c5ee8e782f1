// Package sweep periodically fails SOS events whose dispatch never
// completed.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Sweeper fails events left active longer than staleAfter.
type Sweeper interface {
	SweepStale(ctx context.Context, staleAfter time.Duration) (int, error)
}

// Opts holds parameters for Run.
type Opts struct {
	Sweeper    Sweeper
	Schedule   string
	StaleAfter time.Duration
	// RunAtStart sweeps once before waiting for the first tick, catching
	// events left behind by a previous process.
	RunAtStart bool
	// Lock, when set, must be acquired before each sweep.
	Lock Locker
	// For testing: override the clock.
	Now func() time.Time
}

// Run sweeps on schedule until ctx is cancelled.
func Run(ctx context.Context, opts Opts) error {
	if opts.Sweeper == nil {
		return fmt.Errorf("sweep: sweeper is required")
	}
	if opts.StaleAfter <= 0 {
		return fmt.Errorf("sweep: stale_after must be positive")
	}
	sched, err := cronParser.Parse(opts.Schedule)
	if err != nil {
		return fmt.Errorf("sweep: parse schedule %q: %w", opts.Schedule, err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	log := logrus.WithField("schedule", opts.Schedule)
	log.WithField("stale_after", opts.StaleAfter).Info("sweep: started")

	if opts.RunAtStart {
		locked(ctx, opts)
	}

	timer := time.NewTimer(untilNext(sched, now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweep: stopped")
			return nil
		case <-timer.C:
			locked(ctx, opts)
			timer.Reset(untilNext(sched, now()))
		}
	}
}

// locked runs one sweep under opts.Lock, skipping it when another
// replica holds the lock.
func locked(ctx context.Context, opts Opts) int {
	if opts.Lock == nil {
		return Once(ctx, opts.Sweeper, opts.StaleAfter)
	}
	ok, err := opts.Lock.Acquire(ctx)
	if err != nil {
		logrus.WithError(err).Error("sweep: skipped")
		return 0
	}
	if !ok {
		logrus.Debug("sweep: lease held by another replica, skipping")
		return 0
	}
	defer func() {
		if err := opts.Lock.Release(context.WithoutCancel(ctx)); err != nil {
			logrus.WithError(err).Warn("sweep: release lease")
		}
	}()
	return Once(ctx, opts.Sweeper, opts.StaleAfter)
}

// Once runs a single sweep and logs the outcome.
func Once(ctx context.Context, s Sweeper, staleAfter time.Duration) int {
	n, err := s.SweepStale(ctx, staleAfter)
	if err != nil {
		logrus.WithError(err).Error("sweep: failed")
		return 0
	}
	if n > 0 {
		logrus.WithField("count", n).Warn("sweep: marked stale events failed")
	}
	return n
}

// untilNext returns the wait until sched next fires after now.
func untilNext(sched cron.Schedule, now time.Time) time.Duration {
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
