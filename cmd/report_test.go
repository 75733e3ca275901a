package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
)

func reportEntries() []model.Entry {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rid := "10001"
	return []model.Entry{
		{ID: "a", IssueKey: "ABC-1", DurationSeconds: 3600, Start: day, Status: model.StatusDraft},
		{ID: "b", IssueKey: "ABC-1", DurationSeconds: 1800, Start: day.Add(time.Hour), Status: model.StatusPushed, RemoteID: &rid},
		{ID: "c", IssueKey: "DEF-7", DurationSeconds: 900, Start: day.Add(2 * time.Hour), Status: model.StatusStaged},
		{ID: "d", IssueKey: "DEF-7", DurationSeconds: 7200, Start: day.Add(3 * time.Hour), Status: model.StatusReverted, RemoteID: &rid},
	}
}

func TestBuildReport(t *testing.T) {
	rep := buildReport("2026-W10", reportEntries())

	if rep.TotalMinutes != 105 {
		t.Errorf("TotalMinutes = %d, want 105", rep.TotalMinutes)
	}
	want := []issueTotal{
		{IssueKey: "ABC-1", PendingMinutes: 60, PushedMinutes: 30},
		{IssueKey: "DEF-7", PendingMinutes: 15},
	}
	if len(rep.Issues) != len(want) {
		t.Fatalf("got %d issues, want %d", len(rep.Issues), len(want))
	}
	for i, w := range want {
		if rep.Issues[i] != w {
			t.Errorf("Issues[%d] = %+v, want %+v", i, rep.Issues[i], w)
		}
	}
}

func TestWriteReportFormats(t *testing.T) {
	rep := buildReport("2026-W10", reportEntries())

	tests := []struct {
		format string
		want   []string
	}{
		{"csv", []string{"issue,pending_minutes,pushed_minutes", "ABC-1,60,30", "DEF-7,15,0"}},
		{"md", []string{"Week 2026-W10", "ABC-1", "1h 30m", "Total"}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := writeReport(&buf, rep, tt.format); err != nil {
			t.Fatalf("%s: %v", tt.format, err)
		}
		for _, w := range tt.want {
			if !strings.Contains(buf.String(), w) {
				t.Errorf("%s output missing %q:\n%s", tt.format, w, buf.String())
			}
		}
	}

	var buf bytes.Buffer
	if err := writeReport(&buf, rep, "json"); err != nil {
		t.Fatal(err)
	}
	var decoded weekReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded.Week != "2026-W10" || decoded.TotalMinutes != 105 {
		t.Errorf("decoded = %+v", decoded)
	}

	if err := writeReport(&buf, rep, "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
