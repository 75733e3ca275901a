package worklog

import (
	"fmt"
	"strings"

	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

// Outcome is the per-entry result of a staging operation. Changed is false
// when the operation was a no-op for that entry.
type Outcome struct {
	ID      string
	Changed bool
	Err     error
}

// Staging moves entries between draft and staged and creates new drafts.
type Staging struct {
	store *Store
	opts  options
}

// NewStaging returns a staging manager over store.
func NewStaging(store *Store, opts ...Option) *Staging {
	return &Staging{store: store, opts: buildOptions(opts)}
}

// Stage moves drafts to staged. Already staged entries are left alone.
func (s *Staging) Stage(ids []string) []Outcome {
	return s.each(ids, func(id string) (bool, error) {
		return s.move(id, model.StatusStaged, model.StatusStaged)
	})
}

// Unstage moves staged entries back to draft. Drafts are left alone.
func (s *Staging) Unstage(ids []string) []Outcome {
	return s.each(ids, func(id string) (bool, error) {
		return s.move(id, model.StatusDraft, model.StatusDraft)
	})
}

// StageAll stages every draft in the store.
func (s *Staging) StageAll() []Outcome {
	drafts := s.store.ByStatus(model.StatusDraft)
	ids := make([]string, len(drafts))
	for i, e := range drafts {
		ids[i] = e.ID
	}
	return s.Stage(ids)
}

// Reset moves staged entries to draft. Unlike Unstage it fails on any
// entry that is not currently staged.
func (s *Staging) Reset(ids []string) []Outcome {
	return s.each(ids, func(id string) (bool, error) {
		return s.move(id, model.StatusDraft, "")
	})
}

// CreateDraft validates e and inserts it as a new draft. Entries created
// from a meeting or session are refused when the same origin was already
// drafted on that day.
func (s *Staging) CreateDraft(e model.Entry) (model.Entry, error) {
	if err := e.Validate(); err != nil {
		return model.Entry{}, err
	}
	if e.Source == "" {
		e.Source = model.SourceManual
	}
	if e.ID == "" {
		e.ID = timecalc.GenerateID(e.Start)
	}
	e.IssueKey = strings.ToUpper(strings.TrimSpace(e.IssueKey))
	e.Status = model.StatusDraft
	e.RemoteID = nil
	e.PushedAt = nil
	e.LastError = ""

	if e.OriginID != "" {
		for _, other := range s.store.OnDay(e.Start) {
			if other.OriginID == e.OriginID {
				return model.Entry{}, &model.ValidationError{
					Field:   "origin_id",
					Message: fmt.Sprintf("%s already logged on %s as %s", e.OriginID, e.Start.Format("2006-01-02"), other.ID),
				}
			}
		}
	}
	if err := s.store.insert(e); err != nil {
		return model.Entry{}, err
	}
	s.opts.log.Debug("draft created", "id", e.ID, "issue", e.IssueKey, "seconds", e.DurationSeconds)
	if err := s.opts.save(); err != nil {
		return e, err
	}
	return e, nil
}

// CreateDrafts creates a draft per candidate and reports each outcome.
func (s *Staging) CreateDrafts(candidates []model.Entry) ([]model.Entry, []Outcome) {
	var created []model.Entry
	outcomes := make([]Outcome, 0, len(candidates))
	for _, c := range candidates {
		e, err := s.CreateDraft(c)
		if err != nil {
			outcomes = append(outcomes, Outcome{ID: c.ID, Err: err})
			continue
		}
		created = append(created, e)
		outcomes = append(outcomes, Outcome{ID: e.ID, Changed: true})
	}
	return created, outcomes
}

// move transitions id to target. When the entry is already in noop the
// call succeeds without change.
func (s *Staging) move(id string, target, noop model.Status) (bool, error) {
	release, ok := s.store.tryClaim(id)
	if !ok {
		return false, fmt.Errorf("%s: %w", id, ErrBusy)
	}
	defer release()

	cur, err := s.store.Get(id)
	if err != nil {
		return false, err
	}
	if noop != "" && cur.Status == noop {
		return false, nil
	}
	if _, err := s.store.transition(id, target, nil); err != nil {
		return false, err
	}
	s.opts.log.Debug("entry moved", "id", id, "from", cur.Status, "to", target)
	return true, nil
}

func (s *Staging) each(ids []string, fn func(string) (bool, error)) []Outcome {
	out := make([]Outcome, 0, len(ids))
	changed := false
	for _, id := range dedupe(ids) {
		ok, err := fn(id)
		out = append(out, Outcome{ID: id, Changed: ok, Err: err})
		changed = changed || ok
	}
	if changed {
		if err := s.opts.save(); err != nil {
			for i := range out {
				if out[i].Changed && out[i].Err == nil {
					out[i].Err = err
				}
			}
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
