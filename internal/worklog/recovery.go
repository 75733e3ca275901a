package worklog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
)

// DefaultRecoveryWindow is the largest gap between two push times that
// still places the entries in the same recovered batch.
const DefaultRecoveryWindow = 10 * time.Minute

// Reconstructor rebuilds missing history batches from pushed entries.
type Reconstructor struct {
	store  *Store
	ledger *Ledger
	window time.Duration
	opts   options
}

// NewReconstructor returns a reconstructor. A non-positive window selects
// DefaultRecoveryWindow.
func NewReconstructor(store *Store, ledger *Ledger, window time.Duration, opts ...Option) *Reconstructor {
	if window <= 0 {
		window = DefaultRecoveryWindow
	}
	return &Reconstructor{store: store, ledger: ledger, window: window, opts: buildOptions(opts)}
}

// Reconstruct creates recovered batches for every pushed entry that no
// batch references. Running it again without new pushes creates nothing.
//
// Entries with a push time are grouped by proximity: a new batch starts
// whenever two consecutive push times are more than the window apart.
// Entries without a push time are grouped per UTC day of their start.
func (r *Reconstructor) Reconstruct(ctx context.Context) ([]model.Batch, error) {
	orphans := r.orphans(nil)
	if len(orphans) == 0 {
		return nil, nil
	}
	ids := make([]string, len(orphans))
	claimed := make(map[string]bool, len(orphans))
	for i, e := range orphans {
		ids[i] = e.ID
		claimed[e.ID] = true
	}
	release, err := r.store.claim(ctx, ids)
	if err != nil {
		return nil, err
	}
	defer release()

	// A push holding some of these entries may have recorded its batch
	// while we waited.
	orphans = r.orphans(claimed)

	var created []model.Batch
	for _, group := range groupOrphans(orphans, r.window) {
		members := make([]model.BatchMember, len(group))
		for i, e := range group {
			members[i] = model.MemberFromEntry(e)
		}
		b := model.NewBatch(r.opts.newID(), createdAt(group), members, true)
		if err := r.ledger.append(b); err != nil {
			return created, fmt.Errorf("recovering batch: %w", err)
		}
		r.opts.log.Info("batch recovered", "batch", b.ID, "members", len(members), "seconds", b.TotalSeconds)
		created = append(created, b)
	}
	if len(created) > 0 {
		if err := r.opts.save(); err != nil {
			return created, err
		}
	}
	return created, nil
}

// orphans lists pushed entries not covered by any batch,
// restricted to only when it is non-nil.
func (r *Reconstructor) orphans(only map[string]bool) []model.Entry {
	var out []model.Entry
	for _, e := range r.store.ByStatus(model.StatusPushed) {
		if only != nil && !only[e.ID] {
			continue
		}
		if _, ok := r.ledger.BatchOf(e.ID); ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

func groupOrphans(entries []model.Entry, window time.Duration) [][]model.Entry {
	var timed, legacy []model.Entry
	for _, e := range entries {
		if e.PushedAt != nil {
			timed = append(timed, e)
		} else {
			legacy = append(legacy, e)
		}
	}

	sort.SliceStable(timed, func(i, j int) bool {
		a, b := *timed[i].PushedAt, *timed[j].PushedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return timed[i].ID < timed[j].ID
	})

	var groups [][]model.Entry
	var cur []model.Entry
	for _, e := range timed {
		if len(cur) > 0 && e.PushedAt.Sub(*cur[len(cur)-1].PushedAt) > window {
			groups = append(groups, cur)
			cur = nil
		}
		cur = append(cur, e)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	byDay := make(map[string][]model.Entry)
	var days []string
	for _, e := range legacy {
		day := e.Start.UTC().Format("2006-01-02")
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], e)
	}
	sort.Strings(days)
	for _, day := range days {
		g := byDay[day]
		sortEntries(g)
		groups = append(groups, g)
	}
	return groups
}

// createdAt is the latest push time in the group, or the end of the last
// entry when no push time is known.
func createdAt(group []model.Entry) time.Time {
	var latest time.Time
	for _, e := range group {
		t := e.End()
		if e.PushedAt != nil {
			t = *e.PushedAt
		}
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}
