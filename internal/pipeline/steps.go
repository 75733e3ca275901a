package pipeline

import (
	"context"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/autolink"
	"github.com/Tiliavir/worklog-sync/internal/gapfill"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/msgraph"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

// Sync pulls meetings and the known issue set. Either source may be nil.
type Sync struct {
	Meetings MeetingSource
	Issues   IssueSource
	JQL      string
}

func (Sync) Name() string { return "sync" }

func (st Sync) Run(ctx context.Context, s State) (State, error) {
	if st.Meetings != nil {
		fresh, err := st.Meetings.Meetings(ctx, s.From, s.To)
		if err != nil {
			return s, err
		}
		merged, res := msgraph.MergeMeetings(s.Meetings, fresh, false)
		s.Meetings = merged
		s.Imported += res.Imported
		s.Updated += res.Updated
	}
	if st.Issues != nil {
		issues, err := st.Issues.SearchIssues(ctx, st.JQL)
		if err != nil {
			return s, err
		}
		s.Issues = issues
	}
	return s, nil
}

// Link attaches issue keys to meetings and proposes a draft for every
// linked meeting and every coding session inside the range.
type Link struct {
	Linker *autolink.Linker
	Force  bool
}

func (Link) Name() string { return "link" }

func (st Link) Run(_ context.Context, s State) (State, error) {
	s.Meetings, s.Links = st.Linker.Link(s.Meetings, s.Issues, autolink.Options{Force: st.Force})
	s.Candidates = append(append([]model.Entry(nil), s.Candidates...),
		worklog.MeetingCandidates(inRange(s.Meetings, s.From, s.To))...)
	for _, ss := range s.Sessions {
		if !ss.Start.Before(s.From) && ss.Start.Before(s.To) {
			s.Candidates = append(s.Candidates, worklog.SessionCandidates([]model.Session{ss})...)
		}
	}
	return s, nil
}

// Fill proposes drafts for the uncovered working time of each day. Existing
// entries, meetings and already proposed candidates all count as covered.
// The fallback issue for a gap comes from s.Issues when that set is known.
type Fill struct {
	Config gapfill.Config
}

func (Fill) Name() string { return "fill" }

func (st Fill) Run(_ context.Context, s State) (State, error) {
	committed := gapfill.FromEntries(s.Entries)
	committed = append(committed, gapfill.FromMeetings(inRange(s.Meetings, s.From, s.To))...)
	committed = append(committed, gapfill.FromEntries(s.Candidates)...)

	last := s.To.Add(-time.Nanosecond)
	s.Proposals = gapfill.FillRange(s.From, last, committed, gapfill.SprintTotals(s.Entries, s.Issues), st.Config)
	candidates := append([]model.Entry(nil), s.Candidates...)
	for _, p := range s.Proposals {
		candidates = append(candidates, p.Drafts...)
	}
	s.Candidates = candidates
	return s, nil
}

// Approver decides which candidates become drafts. It may edit them.
type Approver func(ctx context.Context, candidates []model.Entry) ([]model.Entry, error)

// Review creates the approved candidates as drafts and optionally stages
// them. A nil Approve accepts every candidate.
type Review struct {
	Staging *worklog.Staging
	Approve Approver
	Stage   bool
}

func (Review) Name() string { return "review" }

func (st Review) Run(ctx context.Context, s State) (State, error) {
	approved := s.Candidates
	if st.Approve != nil {
		var err error
		if approved, err = st.Approve(ctx, append([]model.Entry(nil), s.Candidates...)); err != nil {
			return s, err
		}
	}

	drafts, outcomes := st.Staging.CreateDrafts(approved)
	s.Drafts = drafts
	s.Rejected = nil
	for _, o := range outcomes {
		if o.Err != nil {
			s.Rejected = append(s.Rejected, o)
		}
	}
	if !st.Stage || len(drafts) == 0 {
		return s, nil
	}

	ids := make([]string, len(drafts))
	for i, d := range drafts {
		ids[i] = d.ID
	}
	s.Staged = nil
	for _, o := range st.Staging.Stage(ids) {
		if o.Err != nil {
			s.Rejected = append(s.Rejected, o)
			continue
		}
		s.Staged = append(s.Staged, o.ID)
	}
	return s, nil
}

// Push sends the entries staged by review.
type Push struct {
	Reconciler *worklog.Reconciler
}

func (Push) Name() string { return "push" }

func (st Push) Run(ctx context.Context, s State) (State, error) {
	if len(s.Staged) == 0 {
		return s, nil
	}
	res, err := st.Reconciler.Push(ctx, s.Staged)
	s.Push = &res
	return s, err
}

func inRange(meetings []model.Meeting, from, to time.Time) []model.Meeting {
	var out []model.Meeting
	for _, m := range meetings {
		if !m.Start.Before(from) && m.Start.Before(to) {
			out = append(out, m)
		}
	}
	return out
}
