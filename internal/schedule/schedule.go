// Package schedule runs a job on a standard 5-field cron schedule.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Job is one scheduled run. A returned error is logged and the schedule
// continues.
type Job func(ctx context.Context) error

// Scheduler fires a job at the times a cron expression selects.
type Scheduler struct {
	expr  string
	sched cron.Schedule
	loc   *time.Location
	log   *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger for run and error messages.
func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithClock replaces the wall clock and timer, for tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) { s.now, s.after = now, after }
}

// New parses expr, e.g. "0 17 * * 1-5" for weekdays at 17:00, evaluated in
// loc (UTC when nil).
func New(expr string, loc *time.Location, opts ...Option) (*Scheduler, error) {
	expr = strings.TrimSpace(expr)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		expr:  expr,
		sched: sched,
		loc:   loc,
		log:   slog.New(slog.DiscardHandler),
		now:   time.Now,
		after: time.After,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Next returns the first activation strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.sched.Next(t.In(s.loc))
}

// Run calls job at every activation until ctx is done. Runs never overlap:
// the next activation is computed after a run finishes.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.now().In(s.loc)
		next := s.sched.Next(now)
		wait := next.Sub(now)
		s.log.Info("next scheduled run", "at", next.Format("Mon Jan 2 15:04"), "in", wait.Round(time.Minute), "cron", s.expr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(wait):
		}

		started := s.now()
		if err := job(ctx); err != nil {
			s.log.Error("scheduled run failed", "err", err)
			continue
		}
		s.log.Info("scheduled run complete", "took", s.now().Sub(started).Round(time.Millisecond))
	}
}
