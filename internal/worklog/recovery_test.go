package worklog_test

import (
	"context"
	"testing"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

func TestReconstructLostLedger(t *testing.T) {
	at := day.Add(10 * time.Hour)
	store := mustStore(t,
		pushed(entry("a", "X-1", 3600, 0, model.StatusStaged), "wl-1", at),
		pushed(entry("b", "X-2", 1800, time.Hour, model.StatusStaged), "wl-2", at.Add(5*time.Second)),
		entry("c", "X-3", 900, 2*time.Hour, model.StatusStaged),
	)
	ledger := mustLedger(t)
	r := worklog.NewReconstructor(store, ledger, 0, sequentialIDs())

	created, err := r.Reconstruct(context.Background())
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("recovered batches = %d, want 1", len(created))
	}
	b := created[0]
	if !b.Recovered || b.Status != model.BatchActive || b.TotalSeconds != 5400 || len(b.Members) != 2 {
		t.Errorf("recovered batch = %+v", b)
	}
	if b.Members[0].EntryID != "a" || b.Members[1].EntryID != "b" {
		t.Errorf("recovered batch members = %+v", b.Members)
	}
	if _, ok := ledger.BatchOf("c"); ok {
		t.Error("unpushed entry c is covered by a batch")
	}
	if !b.CreatedAt.Equal(at.Add(5 * time.Second)) {
		t.Errorf("CreatedAt = %v", b.CreatedAt)
	}

	again, err := r.Reconstruct(context.Background())
	if err != nil || len(again) != 0 {
		t.Errorf("second Reconstruct = %d batches, %v; want none", len(again), err)
	}
	if ledger.Len() != 1 {
		t.Errorf("batches = %d, want 1", ledger.Len())
	}
}

func TestReconstructGrouping(t *testing.T) {
	morning := day.Add(time.Hour)
	store := mustStore(t,
		pushed(entry("a", "X-1", 600, 0, model.StatusStaged), "wl-1", morning),
		pushed(entry("b", "X-1", 600, time.Hour, model.StatusStaged), "wl-2", morning.Add(9*time.Minute)),
		pushed(entry("c", "X-1", 600, 2*time.Hour, model.StatusStaged), "wl-3", morning.Add(30*time.Minute)),
		legacy(entry("d", "X-1", 600, 0, model.StatusStaged), "wl-4"),
		legacy(entry("e", "X-1", 600, 24*time.Hour, model.StatusStaged), "wl-5"),
		legacy(entry("f", "X-1", 600, time.Hour, model.StatusStaged), "wl-6"),
	)
	created, err := worklog.NewReconstructor(store, mustLedger(t), 10*time.Minute).Reconstruct(context.Background())
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	want := [][]string{{"a", "b"}, {"c"}, {"d", "f"}, {"e"}}
	if len(created) != len(want) {
		t.Fatalf("batches = %d, want %d", len(created), len(want))
	}
	for i, ids := range want {
		got := created[i].Members
		if len(got) != len(ids) {
			t.Errorf("batch %d members = %+v, want %v", i, got, ids)
			continue
		}
		for j, id := range ids {
			if got[j].EntryID != id {
				t.Errorf("batch %d member %d = %s, want %s", i, j, got[j].EntryID, id)
			}
		}
	}
}

func TestReconstructSkipsCoveredEntries(t *testing.T) {
	store := mustStore(t, entry("a", "X-1", 600, 0, model.StatusDraft), entry("b", "X-1", 600, time.Hour, model.StatusDraft))
	ledger := mustLedger(t)
	rec := worklog.NewReconciler(store, ledger, newFakeRemote(), worklog.Config{})
	pushAll(t, store, rec, "a", "b")

	created, err := worklog.NewReconstructor(store, ledger, 0).Reconstruct(context.Background())
	if err != nil || len(created) != 0 {
		t.Errorf("Reconstruct = %d, %v; want nothing to recover", len(created), err)
	}
}

func legacy(e model.Entry, remoteID string) model.Entry {
	e.Status = model.StatusPushed
	e.RemoteID = &remoteID
	return e
}
