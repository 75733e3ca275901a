// Package pipeline runs the guided flow from calendar sync to push as an
// ordered list of steps over an explicit State.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/autolink"
	"github.com/Tiliavir/worklog-sync/internal/gapfill"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

// MeetingSource returns meetings in [from, to).
type MeetingSource interface {
	Meetings(ctx context.Context, from, to time.Time) ([]model.Meeting, error)
}

// IssueSource returns the issues a query selects.
type IssueSource interface {
	SearchIssues(ctx context.Context, jql string) ([]model.Issue, error)
}

// State is what flows between steps. A step returns a new State and never
// mutates the one it received.
type State struct {
	From time.Time
	To   time.Time

	Meetings []model.Meeting
	Sessions []model.Session
	Issues   []model.Issue
	// Entries is the store content the fill step treats as committed time.
	Entries []model.Entry

	Imported int
	Updated  int

	Links     autolink.Report
	Proposals []gapfill.Proposal

	// Candidates are drafts proposed by the link and fill steps.
	Candidates []model.Entry
	// Drafts are the candidates review accepted and created in the store.
	Drafts   []model.Entry
	Rejected []worklog.Outcome
	Staged   []string

	Push *worklog.PushResult
}

// Step is one stage of the flow.
type Step interface {
	Name() string
	Run(ctx context.Context, s State) (State, error)
}

// Runner executes steps in order and stops at the first error.
type Runner struct {
	Steps []Step
	Log   *slog.Logger
	// After is called with the state produced by each step.
	After func(step string, s State)
}

// Run feeds s through every step. On error the state returned by the
// failing step is returned with it.
func (r *Runner) Run(ctx context.Context, s State) (State, error) {
	log := r.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	for _, step := range r.Steps {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		started := time.Now()
		next, err := step.Run(ctx, s)
		if err != nil {
			log.Warn("pipeline step failed", "step", step.Name(), "err", err)
			return next, fmt.Errorf("%s: %w", step.Name(), err)
		}
		log.Debug("pipeline step done", "step", step.Name(), "took", time.Since(started))
		s = next
		if r.After != nil {
			r.After(step.Name(), s)
		}
	}
	return s, nil
}
