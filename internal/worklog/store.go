package worklog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

// Store is the authoritative set of worklog entries. Reads are exported;
// every mutation goes through Staging, Reconciler or Reconstructor.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*model.Entry
	claims  *claimTable
}

// NewStore builds a store from persisted entries, rejecting any entry that
// breaks the status/remote id invariant.
func NewStore(entries []model.Entry) (*Store, error) {
	s := &Store{
		entries: make(map[string]*model.Entry, len(entries)),
		claims:  newClaimTable(),
	}
	for _, e := range entries {
		if e.ID == "" {
			return nil, &model.ConsistencyError{Message: "entry without id"}
		}
		if err := e.CheckInvariants(); err != nil {
			return nil, err
		}
		if _, dup := s.entries[e.ID]; dup {
			return nil, &model.ConsistencyError{Subject: e.ID, Message: "duplicate entry id"}
		}
		c := clone(e)
		s.entries[e.ID] = &c
	}
	return s, nil
}

// Get returns a copy of the entry with the given id.
func (s *Store) Get(id string) (model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return model.Entry{}, fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
	}
	return clone(*e), nil
}

// All returns every entry ordered by start time, then id.
func (s *Store) All() []model.Entry {
	return s.filter(func(model.Entry) bool { return true })
}

// ByStatus returns the entries in any of the given states.
func (s *Store) ByStatus(statuses ...model.Status) []model.Entry {
	want := make(map[model.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	return s.filter(func(e model.Entry) bool { return want[e.Status] })
}

// OnDay returns the entries starting on the same calendar day as day.
func (s *Store) OnDay(day time.Time) []model.Entry {
	return s.filter(func(e model.Entry) bool {
		return timecalc.SameDay(e.Start.In(day.Location()), day)
	})
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) filter(keep func(model.Entry) bool) []model.Entry {
	s.mu.RLock()
	out := make([]model.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if keep(*e) {
			out = append(out, clone(*e))
		}
	}
	s.mu.RUnlock()
	sortEntries(out)
	return out
}

func (s *Store) insert(e model.Entry) error {
	if err := e.CheckInvariants(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[e.ID]; dup {
		return &model.ConsistencyError{Subject: e.ID, Message: "duplicate entry id"}
	}
	c := clone(e)
	s.entries[e.ID] = &c
	return nil
}

// update applies fn to a copy of the entry and commits it only when fn
// succeeds and the result still satisfies the entry invariants.
func (s *Store) update(id string, fn func(*model.Entry) error) (model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[id]
	if !ok {
		return model.Entry{}, fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
	}
	next := clone(*cur)
	if err := fn(&next); err != nil {
		return clone(*cur), err
	}
	if err := next.CheckInvariants(); err != nil {
		return clone(*cur), err
	}
	s.entries[id] = &next
	return clone(next), nil
}

func (s *Store) transition(id string, to model.Status, apply func(*model.Entry)) (model.Entry, error) {
	return s.update(id, func(e *model.Entry) error {
		if !model.CanTransition(e.Status, to) {
			return &model.TransitionError{ID: id, From: string(e.Status), To: string(to)}
		}
		e.Status = to
		if apply != nil {
			apply(e)
		}
		return nil
	})
}

func (s *Store) recordFailure(id string, err error) {
	_, _ = s.update(id, func(e *model.Entry) error {
		e.LastError = err.Error()
		return nil
	})
}

func (s *Store) claim(ctx context.Context, keys []string) (func(), error) {
	return s.claims.acquire(ctx, keys)
}

func (s *Store) tryClaim(keys ...string) (func(), bool) {
	return s.claims.tryAcquire(keys)
}

func clone(e model.Entry) model.Entry {
	if e.RemoteID != nil {
		id := *e.RemoteID
		e.RemoteID = &id
	}
	if e.PushedAt != nil {
		at := *e.PushedAt
		e.PushedAt = &at
	}
	return e
}

func sortEntries(es []model.Entry) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].Start.Equal(es[j].Start) {
			return es[i].Start.Before(es[j].Start)
		}
		return es[i].ID < es[j].ID
	})
}
