package storage_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/storage"
)

func sample() storage.Snapshot {
	day := time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)
	remote := "10001"
	pushedAt := day.Add(8 * time.Hour)
	pushed := model.Entry{
		ID: "e1", IssueKey: "ABC-1", DurationSeconds: 3600, Start: day,
		Comment: "standup", Source: model.SourceMeeting, Status: model.StatusPushed,
		RemoteID: &remote, OriginID: "evt-1", PushedAt: &pushedAt,
	}
	draft := model.Entry{
		ID: "e2", IssueKey: "ABC-2", DurationSeconds: 900, Start: day.Add(time.Hour),
		Source: model.SourceManual, Status: model.StatusStaged, LastError: "remote create ABC-2 failed",
	}
	return storage.Snapshot{
		Entries:  []model.Entry{pushed, draft},
		Batches:  []model.Batch{model.NewBatch("b1", pushedAt, []model.BatchMember{model.MemberFromEntry(pushed)}, false)},
		Meetings: []model.Meeting{{ID: "m1", ExternalID: "evt-1", Title: "Standup", Start: day, End: day.Add(15 * time.Minute), IssueKey: "ABC-1"}},
		Issues:   []model.Issue{{Key: "ABC-1", Summary: "Platform"}},
		Sessions: []model.Session{{ID: "s1", Repo: "api", Start: day, End: day.Add(time.Hour), IssueKeys: []string{"ABC-1", "ABC-2"}}},
	}
}

func backends(t *testing.T) map[string]storage.Backend {
	t.Helper()
	dir := t.TempDir()
	out := make(map[string]storage.Backend)
	for _, kind := range []string{storage.KindJSON, storage.KindSQLite} {
		b, err := storage.Open(kind, dir, "")
		if err != nil {
			t.Fatalf("Open(%s): %v", kind, err)
		}
		t.Cleanup(func() { b.Close() })
		out[kind] = b
	}
	return out
}

func TestLoadEmpty(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			snap, err := b.Load()
			if err != nil {
				t.Fatalf("Load on empty store: %v", err)
			}
			if len(snap.Entries) != 0 || len(snap.Batches) != 0 {
				t.Errorf("Load = %+v, want empty", snap)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	want := sample()
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			if err := b.Save(want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := b.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got.Entries) != 2 {
				t.Fatalf("entries = %d, want 2", len(got.Entries))
			}
			e := got.Entries[0]
			if e.ID != "e1" || e.Remote() != "10001" || e.PushedAt == nil || !e.PushedAt.Equal(*want.Entries[0].PushedAt) {
				t.Errorf("pushed entry = %+v", e)
			}
			if !e.Start.Equal(want.Entries[0].Start) || e.OriginID != "evt-1" || e.Source != model.SourceMeeting {
				t.Errorf("pushed entry fields = %+v", e)
			}
			if d := got.Entries[1]; d.RemoteID != nil || d.Status != model.StatusStaged || d.LastError == "" {
				t.Errorf("staged entry = %+v", d)
			}
			if len(got.Batches) != 1 || got.Batches[0].Verify() != nil || got.Batches[0].Members[0].RemoteID != "10001" {
				t.Errorf("batches = %+v", got.Batches)
			}
			if len(got.Meetings) != 1 || got.Meetings[0].IssueKey != "ABC-1" || !got.Meetings[0].End.Equal(want.Meetings[0].End) {
				t.Errorf("meetings = %+v", got.Meetings)
			}
			if len(got.Issues) != 1 || got.Issues[0].Summary != "Platform" {
				t.Errorf("issues = %+v", got.Issues)
			}
			if len(got.Sessions) != 1 || len(got.Sessions[0].IssueKeys) != 2 {
				t.Errorf("sessions = %+v", got.Sessions)
			}
			if got.SavedAt.IsZero() {
				t.Error("SavedAt not set")
			}
		})
	}
}

func TestSaveReplacesState(t *testing.T) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			if err := b.Save(sample()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			smaller := sample()
			smaller.Batches = nil
			smaller.Entries = smaller.Entries[1:]
			if err := b.Save(smaller); err != nil {
				t.Fatalf("second Save: %v", err)
			}
			got, err := b.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got.Entries) != 1 || len(got.Batches) != 0 {
				t.Errorf("after replace: %d entries, %d batches", len(got.Entries), len(got.Batches))
			}
		})
	}
}

func TestSQLiteSaveIsAllOrNothing(t *testing.T) {
	b, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "wsync.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer b.Close()
	if err := b.Save(sample()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	bad := sample()
	bad.Entries[0].RemoteID = nil // pushed without remote id violates the table check
	if err := b.Save(bad); err == nil {
		t.Fatal("Save of inconsistent snapshot succeeded")
	}
	got, err := b.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Entries) != 2 || got.Entries[0].Remote() != "10001" {
		t.Errorf("state after failed save = %+v, want previous snapshot", got.Entries)
	}
}

func TestJSONCorruptFileBackedUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := storage.NewJSON(path).Load()
	if !errors.Is(err, storage.ErrCorrupt) {
		t.Fatalf("Load err = %v, want ErrCorrupt", err)
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Errorf("backup missing: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("corrupt file still in place: %v", err)
	}
}

func TestJSONSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := storage.NewJSON(path).Save(sample()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestBaseDirOverride(t *testing.T) {
	t.Setenv("WSYNC_HOME", "/tmp/wsync-test")
	got, err := storage.BaseDir()
	if err != nil || got != "/tmp/wsync-test" {
		t.Errorf("BaseDir = %q, %v", got, err)
	}
}

func TestOpenUnknownKind(t *testing.T) {
	if _, err := storage.Open("csv", t.TempDir(), ""); err == nil {
		t.Error("expected error for unknown backend")
	}
}
