package worklog_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

// fakeRemote records calls and fails for the configured issue keys or
// remote ids.
type fakeRemote struct {
	mu          sync.Mutex
	next        int
	created     map[string]string // remote id -> issue key
	deleted     []string
	createCalls int
	deleteCalls int
	failCreate  map[string]bool // by issue key
	failDelete  map[string]bool // by remote id
	onCreate    func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		created:    make(map[string]string),
		failCreate: make(map[string]bool),
		failDelete: make(map[string]bool),
	}
}

func (f *fakeRemote) CreateWorklog(_ context.Context, issueKey string, _ int64, _ time.Time, _ string) (string, error) {
	f.mu.Lock()
	f.createCalls++
	hook := f.onCreate
	if f.failCreate[issueKey] {
		f.mu.Unlock()
		return "", &model.RemoteError{Kind: model.RemoteRejected, Op: "create", IssueKey: issueKey, Status: 400, Message: "rejected"}
	}
	f.next++
	id := fmt.Sprintf("wl-%d", f.next)
	f.created[id] = issueKey
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return id, nil
}

func (f *fakeRemote) DeleteWorklog(_ context.Context, issueKey, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.failDelete[remoteID] {
		return &model.RemoteError{Kind: model.RemoteNetwork, Op: "delete", IssueKey: issueKey, Message: "connection reset"}
	}
	if _, ok := f.created[remoteID]; !ok {
		return &model.RemoteError{Kind: model.RemoteNotFound, Op: "delete", IssueKey: issueKey, Status: 404}
	}
	delete(f.created, remoteID)
	f.deleted = append(f.deleted, remoteID)
	return nil
}

var day = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func entry(id, issue string, seconds int64, offset time.Duration, status model.Status) model.Entry {
	return model.Entry{
		ID:              id,
		IssueKey:        issue,
		DurationSeconds: seconds,
		Start:           day.Add(offset),
		Comment:         "work on " + issue,
		Source:          model.SourceManual,
		Status:          status,
	}
}

func pushed(e model.Entry, remoteID string, at time.Time) model.Entry {
	e.Status = model.StatusPushed
	e.RemoteID = &remoteID
	e.PushedAt = &at
	return e
}

func mustStore(t *testing.T, entries ...model.Entry) *worklog.Store {
	t.Helper()
	s, err := worklog.NewStore(entries)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func mustLedger(t *testing.T, batches ...model.Batch) *worklog.Ledger {
	t.Helper()
	l, err := worklog.NewLedger(batches)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

func mustGet(t *testing.T, s *worklog.Store, id string) model.Entry {
	t.Helper()
	e, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return e
}

func sequentialIDs() worklog.Option {
	n := 0
	return worklog.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("batch-%d", n)
	})
}

// pushAll stages and pushes entries through the public API and returns
// the batch id.
func pushAll(t *testing.T, store *worklog.Store, rec *worklog.Reconciler, ids ...string) string {
	t.Helper()
	for _, o := range worklog.NewStaging(store).Stage(ids) {
		if o.Err != nil {
			t.Fatalf("Stage(%s): %v", o.ID, o.Err)
		}
	}
	res, err := rec.Push(context.Background(), ids)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(res.Failed) != 0 || res.BatchID == "" {
		t.Fatalf("Push result = %+v, want all succeeded", res)
	}
	return res.BatchID
}
