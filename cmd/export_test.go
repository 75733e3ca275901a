package cmd

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
)

func TestWriteCSV(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rid := "10001"

	tests := []struct {
		name    string
		entry   model.Entry
		wantRow string
	}{
		{
			name:    "plain draft",
			entry:   model.Entry{IssueKey: "ABC-1", DurationSeconds: 1800, Start: start, Status: model.StatusDraft, Source: model.SourceManual, Comment: "standup"},
			wantRow: "2026-03-02,ABC-1,draft,manual,standup,2026-03-02T10:00:00Z,2026-03-02T10:30:00Z,30,",
		},
		{
			name:    "pushed with comma",
			entry:   model.Entry{IssueKey: "ABC-1", DurationSeconds: 1800, Start: start, Status: model.StatusPushed, RemoteID: &rid, Source: model.SourceMeeting, Comment: "review, round 2"},
			wantRow: `2026-03-02,ABC-1,pushed,meeting,"review, round 2",2026-03-02T10:00:00Z,2026-03-02T10:30:00Z,30,10001`,
		},
		{
			name:    "quotes in comment",
			entry:   model.Entry{IssueKey: "ABC-2", DurationSeconds: 3600, Start: start, Status: model.StatusStaged, Comment: `the "new" login`},
			wantRow: `2026-03-02,ABC-2,staged,,"the ""new"" login",2026-03-02T10:00:00Z,2026-03-02T11:00:00Z,60,`,
		},
		{
			name:    "comma in issue key",
			entry:   model.Entry{IssueKey: "ABC-3,X", DurationSeconds: 60, Start: start, Status: model.StatusDraft},
			wantRow: `2026-03-02,"ABC-3,X",draft,,,2026-03-02T10:00:00Z,2026-03-02T10:01:00Z,1,`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeCSV(&buf, []model.Entry{tt.entry}, time.UTC)
			lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
			if len(lines) != 2 {
				t.Fatalf("got %d lines, want header and one row:\n%s", len(lines), buf.String())
			}
			if lines[1] != tt.wantRow {
				t.Errorf("row = %q\nwant  %q", lines[1], tt.wantRow)
			}
		})
	}
}

func TestWriteCSVMultilineCommentParses(t *testing.T) {
	e := model.Entry{
		IssueKey:        "ABC-1",
		DurationSeconds: 900,
		Start:           time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Status:          model.StatusDraft,
		Comment:         "line one\nline \"two\", done",
	}
	var buf bytes.Buffer
	writeCSV(&buf, []model.Entry{e}, time.UTC)

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 2 || len(records[1]) != 9 {
		t.Fatalf("records = %q, want header and one 9-column row", records)
	}
	if records[1][4] != e.Comment {
		t.Errorf("comment = %q, want %q", records[1][4], e.Comment)
	}
}
