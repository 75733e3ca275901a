package worklog

import (
	"context"
	"fmt"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

// RemoteLedger is the external system of record for worklogs.
type RemoteLedger interface {
	// CreateWorklog creates a worklog and returns its remote id.
	CreateWorklog(ctx context.Context, issueKey string, seconds int64, started time.Time, comment string) (string, error)
	// DeleteWorklog removes a previously created worklog.
	DeleteWorklog(ctx context.Context, issueKey, remoteID string) error
}

// Config holds the reconciliation settings.
type Config struct {
	// DailyLimitSeconds caps the pushed total per calendar day. Zero disables it.
	DailyLimitSeconds int64
}

// Failure pairs an entry with the reason it was not processed.
type Failure struct {
	EntryID string
	Err     error
}

// PushResult reports the outcome of a push.
type PushResult struct {
	Succeeded []string
	Failed    []Failure
	Skipped   []Failure
	BatchID   string
	Canceled  bool
}

// RevertResult reports the outcome of a revert.
type RevertResult struct {
	BatchID         string
	Reverted        []string
	AlreadyReverted []string
	Failed          []Failure
	Status          model.BatchStatus
	Canceled        bool
}

// Reconciler pushes staged entries to the remote ledger and reverts
// recorded batches.
type Reconciler struct {
	store  *Store
	ledger *Ledger
	remote RemoteLedger
	cfg    Config
	opts   options
}

// NewReconciler wires a reconciler over the given store and ledger.
func NewReconciler(store *Store, ledger *Ledger, remote RemoteLedger, cfg Config, opts ...Option) *Reconciler {
	return &Reconciler{
		store:  store,
		ledger: ledger,
		remote: remote,
		cfg:    cfg,
		opts:   buildOptions(opts),
	}
}

// Push sends the given staged entries to the remote ledger one at a time.
// A failing entry never aborts the rest. When at least one entry succeeds
// a single batch covering exactly the succeeded entries is recorded.
//
// If ctx is canceled the remaining entries are left untouched and the
// returned error is ctx.Err(); succeeded entries are still recorded.
func (r *Reconciler) Push(ctx context.Context, ids []string) (PushResult, error) {
	ids = dedupe(ids)
	var res PushResult
	if len(ids) == 0 {
		return res, nil
	}

	release, err := r.store.claim(ctx, ids)
	if err != nil {
		return res, err
	}
	defer release()

	entries := make([]model.Entry, 0, len(ids))
	for _, id := range ids {
		e, err := r.store.Get(id)
		if err != nil {
			res.Failed = append(res.Failed, Failure{EntryID: id, Err: err})
			continue
		}
		entries = append(entries, e)
	}
	sortEntries(entries)

	var (
		members []model.BatchMember
		runErr  error
	)
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			res.Canceled = true
			runErr = err
			break
		}
		p := Progress{Op: "push", Index: i + 1, Total: len(entries), EntryID: e.ID, IssueKey: e.IssueKey}

		if reason := pushable(e); reason != nil {
			res.Skipped = append(res.Skipped, Failure{EntryID: e.ID, Err: reason})
			p.Err = reason
			r.opts.report(p)
			continue
		}
		if err := r.checkDailyLimit(e); err != nil {
			r.store.recordFailure(e.ID, err)
			res.Failed = append(res.Failed, Failure{EntryID: e.ID, Err: err})
			p.Err = err
			r.opts.report(p)
			continue
		}

		remoteID, err := r.remote.CreateWorklog(context.WithoutCancel(ctx), e.IssueKey, e.DurationSeconds, e.Start, e.Comment)
		if err == nil && remoteID == "" {
			err = &model.RemoteError{Kind: model.RemoteRejected, Op: "create", IssueKey: e.IssueKey, Message: "empty worklog id in response"}
		}
		if err != nil {
			r.opts.log.Warn("push failed", "entry", e.ID, "issue", e.IssueKey, "err", err)
			r.store.recordFailure(e.ID, err)
			res.Failed = append(res.Failed, Failure{EntryID: e.ID, Err: err})
			p.Err = err
			r.opts.report(p)
			continue
		}

		pushedAt := r.opts.now()
		updated, err := r.store.transition(e.ID, model.StatusPushed, func(x *model.Entry) {
			x.RemoteID = &remoteID
			x.PushedAt = &pushedAt
			x.LastError = ""
		})
		if err != nil {
			// The remote worklog exists but the local state refused it.
			runErr = fmt.Errorf("entry %s pushed as %s but not recorded: %w", e.ID, remoteID, err)
			break
		}
		members = append(members, model.MemberFromEntry(updated))
		res.Succeeded = append(res.Succeeded, e.ID)
		r.opts.log.Info("pushed", "entry", e.ID, "issue", e.IssueKey, "remote_id", remoteID)
		r.opts.report(p)

		if err := r.opts.save(); err != nil {
			runErr = fmt.Errorf("checkpoint after %s: %w", e.ID, err)
			break
		}
	}

	if len(members) > 0 {
		batch := model.NewBatch(r.opts.newID(), r.opts.now(), members, false)
		if err := r.ledger.append(batch); err != nil {
			return res, fmt.Errorf("recording batch: %w", err)
		}
		res.BatchID = batch.ID
		if err := r.opts.save(); err != nil && runErr == nil {
			runErr = fmt.Errorf("checkpoint after batch %s: %w", batch.ID, err)
		}
	}
	return res, runErr
}

// pushable returns why an entry must be skipped, or nil.
func pushable(e model.Entry) error {
	if e.RemoteID != nil || e.Status != model.StatusStaged {
		return &model.TransitionError{ID: e.ID, From: string(e.Status), To: string(model.StatusPushed)}
	}
	return nil
}

func (r *Reconciler) checkDailyLimit(e model.Entry) error {
	if r.cfg.DailyLimitSeconds <= 0 {
		return nil
	}
	var total int64
	for _, other := range r.store.OnDay(e.Start) {
		if other.Status == model.StatusPushed {
			total += other.DurationSeconds
		}
	}
	if total+e.DurationSeconds > r.cfg.DailyLimitSeconds {
		return &model.ValidationError{
			Field: "duration_seconds",
			Message: fmt.Sprintf("pushing %sh would exceed the daily limit of %sh on %s (already %sh)",
				timecalc.FormatHours(e.DurationSeconds), timecalc.FormatHours(r.cfg.DailyLimitSeconds),
				e.Start.Format("2006-01-02"), timecalc.FormatHours(total)),
		}
	}
	return nil
}

// Revert deletes the remote worklogs of a batch. confirmation must equal the
// batch total formatted as hours with one decimal (for example "12.5");
// otherwise nothing is touched. Members already reverted are not retried.
func (r *Reconciler) Revert(ctx context.Context, batchID, confirmation string) (RevertResult, error) {
	res := RevertResult{BatchID: batchID}
	batch, err := r.ledger.Get(batchID)
	if err != nil {
		return res, err
	}

	keys := []string{"batch:" + batchID}
	for _, m := range batch.Members {
		keys = append(keys, m.EntryID)
	}
	release, err := r.store.claim(ctx, keys)
	if err != nil {
		return res, err
	}
	defer release()

	batch, err = r.ledger.Get(batchID)
	if err != nil {
		return res, err
	}
	res.Status = batch.Status
	if err := batch.Verify(); err != nil {
		return res, err
	}
	if want := timecalc.FormatHours(batch.TotalSeconds); confirmation != want {
		return res, &model.ConsistencyError{
			Subject: batchID,
			Message: fmt.Sprintf("confirmation %q does not match batch total %q", confirmation, want),
		}
	}
	if batch.Status == model.BatchReverted {
		return res, &model.TransitionError{ID: batchID, From: string(batch.Status), To: string(model.BatchReverted)}
	}
	if err := r.checkMembers(batch); err != nil {
		return res, err
	}

	var runErr error
	for i, m := range batch.Members {
		if err := ctx.Err(); err != nil {
			res.Canceled = true
			runErr = err
			break
		}
		p := Progress{Op: "revert", Index: i + 1, Total: len(batch.Members), EntryID: m.EntryID, IssueKey: m.IssueKey}

		e, err := r.store.Get(m.EntryID)
		if err != nil {
			return res, err
		}
		if e.Status == model.StatusReverted {
			res.AlreadyReverted = append(res.AlreadyReverted, m.EntryID)
			r.opts.report(p)
			continue
		}

		if err := r.remote.DeleteWorklog(context.WithoutCancel(ctx), m.IssueKey, m.RemoteID); err != nil {
			r.opts.log.Warn("revert failed", "entry", m.EntryID, "issue", m.IssueKey, "remote_id", m.RemoteID, "err", err)
			r.store.recordFailure(m.EntryID, err)
			res.Failed = append(res.Failed, Failure{EntryID: m.EntryID, Err: err})
			p.Err = err
			r.opts.report(p)
			continue
		}
		if _, err := r.store.transition(m.EntryID, model.StatusReverted, func(x *model.Entry) { x.LastError = "" }); err != nil {
			runErr = fmt.Errorf("entry %s deleted remotely but not recorded: %w", m.EntryID, err)
			break
		}
		res.Reverted = append(res.Reverted, m.EntryID)
		r.opts.log.Info("reverted", "entry", m.EntryID, "issue", m.IssueKey, "remote_id", m.RemoteID)
		r.opts.report(p)

		if err := r.opts.save(); err != nil {
			runErr = fmt.Errorf("checkpoint after %s: %w", m.EntryID, err)
			break
		}
	}

	status := r.batchStatus(batch)
	res.Status = status
	if status != batch.Status {
		if err := r.ledger.setStatus(batchID, status); err != nil {
			return res, err
		}
		if err := r.opts.save(); err != nil && runErr == nil {
			runErr = fmt.Errorf("checkpoint after batch %s: %w", batchID, err)
		}
	}
	return res, runErr
}

// checkMembers verifies every member still matches its snapshot before any
// remote call is made.
func (r *Reconciler) checkMembers(b model.Batch) error {
	for _, m := range b.Members {
		e, err := r.store.Get(m.EntryID)
		if err != nil {
			return &model.ConsistencyError{Subject: b.ID, Message: fmt.Sprintf("member %s is missing from the store", m.EntryID)}
		}
		switch e.Status {
		case model.StatusPushed, model.StatusReverted:
			if e.Remote() != m.RemoteID {
				return &model.ConsistencyError{Subject: b.ID, Message: fmt.Sprintf("member %s has remote id %q, batch recorded %q", m.EntryID, e.Remote(), m.RemoteID)}
			}
		case model.StatusDraft, model.StatusStaged:
			return &model.ConsistencyError{Subject: b.ID, Message: fmt.Sprintf("member %s is %s", m.EntryID, e.Status)}
		}
	}
	return nil
}

func (r *Reconciler) batchStatus(b model.Batch) model.BatchStatus {
	reverted := 0
	for _, m := range b.Members {
		if e, err := r.store.Get(m.EntryID); err == nil && e.Status == model.StatusReverted {
			reverted++
		}
	}
	switch {
	case reverted == len(b.Members):
		return model.BatchReverted
	case reverted > 0:
		return model.BatchPartiallyReverted
	default:
		return b.Status
	}
}
