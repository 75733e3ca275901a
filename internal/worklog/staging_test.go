package worklog_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

func TestStageTransitions(t *testing.T) {
	store := mustStore(t,
		entry("d", "ABC-1", 3600, 0, model.StatusDraft),
		entry("s", "ABC-1", 3600, time.Hour, model.StatusStaged),
		pushed(entry("p", "ABC-1", 3600, 2*time.Hour, model.StatusStaged), "wl-1", day),
	)
	staging := worklog.NewStaging(store)

	out := staging.Stage([]string{"d", "s", "p", "missing"})
	if len(out) != 4 {
		t.Fatalf("Stage outcomes = %d, want 4", len(out))
	}
	if !out[0].Changed || out[0].Err != nil {
		t.Errorf("Stage(draft) = %+v, want changed", out[0])
	}
	if out[1].Changed || out[1].Err != nil {
		t.Errorf("Stage(staged) = %+v, want no-op", out[1])
	}
	if !model.IsTransition(out[2].Err) {
		t.Errorf("Stage(pushed) err = %v, want TransitionError", out[2].Err)
	}
	if !errors.Is(out[3].Err, model.ErrNotFound) {
		t.Errorf("Stage(missing) err = %v, want ErrNotFound", out[3].Err)
	}
	if got := mustGet(t, store, "p"); got.Status != model.StatusPushed || got.Remote() != "wl-1" {
		t.Errorf("pushed entry changed: %+v", got)
	}
}

func TestUnstageAndReset(t *testing.T) {
	store := mustStore(t,
		entry("d", "ABC-1", 3600, 0, model.StatusDraft),
		entry("s1", "ABC-1", 3600, time.Hour, model.StatusStaged),
		entry("s2", "ABC-1", 3600, 2*time.Hour, model.StatusStaged),
	)
	staging := worklog.NewStaging(store)

	out := staging.Unstage([]string{"d", "s1"})
	if out[0].Changed || out[0].Err != nil {
		t.Errorf("Unstage(draft) = %+v, want no-op", out[0])
	}
	if !out[1].Changed || mustGet(t, store, "s1").Status != model.StatusDraft {
		t.Errorf("Unstage(staged) = %+v, want draft", out[1])
	}

	out = staging.Reset([]string{"d", "s2"})
	if !model.IsTransition(out[0].Err) {
		t.Errorf("Reset(draft) err = %v, want TransitionError", out[0].Err)
	}
	if !out[1].Changed || mustGet(t, store, "s2").Status != model.StatusDraft {
		t.Errorf("Reset(staged) = %+v, want draft", out[1])
	}
}

func TestStageAll(t *testing.T) {
	store := mustStore(t,
		entry("a", "ABC-1", 3600, 0, model.StatusDraft),
		entry("b", "ABC-2", 3600, time.Hour, model.StatusDraft),
		entry("c", "ABC-2", 3600, 2*time.Hour, model.StatusStaged),
	)
	saves := 0
	staging := worklog.NewStaging(store, worklog.WithCheckpoint(func() error { saves++; return nil }))

	out := staging.StageAll()
	if len(out) != 2 {
		t.Fatalf("StageAll outcomes = %d, want 2", len(out))
	}
	if got := len(store.ByStatus(model.StatusStaged)); got != 3 {
		t.Errorf("staged entries = %d, want 3", got)
	}
	if saves != 1 {
		t.Errorf("checkpoints = %d, want 1", saves)
	}
}

func TestCreateDraft(t *testing.T) {
	store := mustStore(t)
	staging := worklog.NewStaging(store)

	tests := []struct {
		name  string
		entry model.Entry
		field string
	}{
		{"empty issue", model.Entry{DurationSeconds: 60, Start: day}, "issue_key"},
		{"zero duration", model.Entry{IssueKey: "ABC-1", Start: day}, "duration_seconds"},
		{"no start", model.Entry{IssueKey: "ABC-1", DurationSeconds: 60}, "start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := staging.CreateDraft(tt.entry)
			var ve *model.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("CreateDraft err = %v, want ValidationError on %s", err, tt.field)
			}
		})
	}
	if store.Len() != 0 {
		t.Fatalf("store has %d entries after rejected drafts", store.Len())
	}

	e, err := staging.CreateDraft(model.Entry{IssueKey: " abc-7 ", DurationSeconds: 900, Start: day})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if e.ID == "" || e.IssueKey != "ABC-7" || e.Status != model.StatusDraft || e.Source != model.SourceManual {
		t.Errorf("CreateDraft = %+v", e)
	}
}

func TestCreateDraftsSkipsMeetingAlreadyLogged(t *testing.T) {
	store := mustStore(t)
	staging := worklog.NewStaging(store)
	meetings := []model.Meeting{
		{ID: "m1", ExternalID: "evt-1", Title: "Standup", Start: day, End: day.Add(15 * time.Minute), IssueKey: "ABC-1"},
		{ID: "m2", Title: "Unlinked", Start: day.Add(time.Hour), End: day.Add(2 * time.Hour)},
	}

	created, out := staging.CreateDrafts(worklog.MeetingCandidates(meetings))
	if len(created) != 1 || len(out) != 1 {
		t.Fatalf("first CreateDrafts = %d created, %d outcomes; want 1, 1", len(created), len(out))
	}
	if created[0].OriginID != "evt-1" || created[0].Source != model.SourceMeeting || created[0].DurationSeconds != 900 {
		t.Errorf("meeting draft = %+v", created[0])
	}

	created, out = staging.CreateDrafts(worklog.MeetingCandidates(meetings))
	if len(created) != 0 || !model.IsValidation(out[0].Err) {
		t.Errorf("second CreateDrafts = %d created, err %v; want duplicate rejected", len(created), out[0].Err)
	}
}

func TestSessionCandidates(t *testing.T) {
	sessions := []model.Session{
		{ID: "s1", Repo: "api", Start: day, End: day.Add(90 * time.Minute), IssueKeys: []string{"abc-3", "ABC-4"}},
		{ID: "s2", Repo: "api", Start: day, End: day.Add(time.Hour)},
	}
	got := worklog.SessionCandidates(sessions)
	if len(got) != 1 {
		t.Fatalf("SessionCandidates = %d, want 1", len(got))
	}
	if got[0].IssueKey != "ABC-3" || got[0].DurationSeconds != 5400 || got[0].Comment != "Work in api" {
		t.Errorf("SessionCandidates[0] = %+v", got[0])
	}
}
