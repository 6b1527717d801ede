// Package scheduler runs curation cycles at the top of every hour.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/feedcurator/internal/retry"
)

// NextHour returns the first top of the hour strictly after t, in t's own
// location (Truncate would round within the UTC hour).
func NextHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location()).Add(time.Hour)
}

// Cycle runs one pass over every feed.
type Cycle func(ctx context.Context) error

// Evict removes old history and reports how many records went away.
type Evict func(ctx context.Context) (int64, error)

type Scheduler struct {
	Cycle      Cycle
	Evict      Evict
	RunOnStart bool

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	// OnCycleError is told about cycle or eviction failures.
	OnCycleError func(err error)

	Logger *slog.Logger
}

// Run loops until ctx is cancelled. A failing or panicking cycle is logged and
// the loop waits for the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	now, sleep, log := s.clock()

	if !s.RunOnStart {
		if err := s.waitNextHour(ctx, now, sleep, log); err != nil {
			return err
		}
	}

	for {
		s.tick(ctx, log)
		if err := s.waitNextHour(ctx, now, sleep, log); err != nil {
			return err
		}
	}
}

// Tick runs a single cycle followed by eviction.
func (s *Scheduler) Tick(ctx context.Context) {
	_, _, log := s.clock()
	s.tick(ctx, log)
}

func (s *Scheduler) tick(ctx context.Context, log *slog.Logger) {
	if err := s.safeCycle(ctx); err != nil {
		log.Error("cycle failed", "error", err)
		s.report(err)
	}
	if s.Evict == nil {
		return
	}
	if _, err := s.Evict(ctx); err != nil {
		log.Error("eviction failed", "error", err)
		s.report(err)
	}
}

func (s *Scheduler) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return s.Cycle(ctx)
}

func (s *Scheduler) waitNextHour(ctx context.Context, now func() time.Time, sleep func(context.Context, time.Duration) error, log *slog.Logger) error {
	t := now()
	next := NextHour(t)
	wait := next.Sub(t)
	log.Info("sleeping until next run", "next_run", next.Format(time.RFC3339), "wait", wait.Round(time.Second))
	return sleep(ctx, wait)
}

func (s *Scheduler) report(err error) {
	if s.OnCycleError != nil {
		s.OnCycleError(err)
	}
}

func (s *Scheduler) clock() (func() time.Time, func(context.Context, time.Duration) error, *slog.Logger) {
	now, sleep, log := s.Now, s.Sleep, s.Logger
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = retry.Sleep
	}
	if log == nil {
		log = slog.Default()
	}
	return now, sleep, log
}
