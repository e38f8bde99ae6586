package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler is the tick body the scheduler drives. core.Service implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, now time.Time)
}

// Scheduler fires the reconciler once per wall-clock hour, aligned to the
// top of the hour. Time-driven transitions live entirely in the tick, which
// compares stored timestamps to "now"; there are no per-item timers to lose
// across restarts.
type Scheduler struct {
	rec Reconciler
	log *zap.Logger
}

func New(rec Reconciler, log *zap.Logger) *Scheduler {
	return &Scheduler{rec: rec, log: log}
}

// Run ticks until ctx is canceled. One catch-up tick fires immediately so a
// restart picks up anything the downtime skipped.
func (s *Scheduler) Run(ctx context.Context) {
	s.rec.Reconcile(ctx, time.Now().UTC())

	for {
		wait := time.Until(NextHour(time.Now().UTC()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("scheduler stopping")
			return
		case now := <-timer.C:
			s.log.Debug("hourly tick", zap.Time("at", now.UTC()))
			s.rec.Reconcile(ctx, now.UTC())
		}
	}
}

// NextHour returns the next top-of-hour instant after t.
func NextHour(t time.Time) time.Time {
	return t.Truncate(time.Hour).Add(time.Hour)
}
