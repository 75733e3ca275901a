package autolink_test

import (
	"testing"

	"github.com/Tiliavir/worklog-sync/internal/autolink"
	"github.com/Tiliavir/worklog-sync/internal/model"
)

var issues = []model.Issue{
	{Key: "OPS-7", Summary: "Quarterly capacity planning"},
	{Key: "WEB-12", Summary: "Checkout redesign"},
	{Key: "WEB-3", Summary: "Checkout redesign"},
}

func newLinker(t *testing.T, cfg autolink.Config) *autolink.Linker {
	t.Helper()
	l, err := autolink.NewDefault(cfg, nil)
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	return l
}

func TestLinkResolverOrder(t *testing.T) {
	l := newLinker(t, autolink.Config{})
	tests := []struct {
		name    string
		meeting model.Meeting
		key     string
		method  autolink.Method
	}{
		{"title wins", model.Meeting{ID: "1", Title: "Sync on web-12", Description: "see OPS-7"}, "WEB-12", autolink.MethodTitle},
		{"description", model.Meeting{ID: "2", Title: "Weekly", Description: "Agenda: OPS-7"}, "OPS-7", autolink.MethodDescription},
		{"fuzzy", model.Meeting{ID: "3", Title: "Capacity planning (quarterly)"}, "OPS-7", autolink.MethodFuzzy},
		{"fuzzy tie lowest key", model.Meeting{ID: "4", Title: "Checkout redesign review"}, "WEB-12", autolink.MethodFuzzy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, rep := l.Link([]model.Meeting{tt.meeting}, issues, autolink.Options{})
			if out[0].IssueKey != tt.key {
				t.Fatalf("IssueKey = %q, want %q", out[0].IssueKey, tt.key)
			}
			if got := rep.Linked[tt.meeting.ID].Method; got != tt.method {
				t.Errorf("method = %s, want %s", got, tt.method)
			}
		})
	}
}

func TestLinkLeavesUnmatchedAndLinked(t *testing.T) {
	l := newLinker(t, autolink.Config{})
	in := []model.Meeting{
		{ID: "a", Title: "Lunch"},
		{ID: "b", Title: "About WEB-3", IssueKey: "OPS-7"},
	}
	out, rep := l.Link(in, issues, autolink.Options{})
	if out[0].IssueKey != "" || len(rep.Unlinked) != 1 || rep.Unlinked[0] != "a" {
		t.Errorf("unmatched meeting: %+v, report %+v", out[0], rep)
	}
	if out[1].IssueKey != "OPS-7" || len(rep.Untouched) != 1 {
		t.Errorf("linked meeting changed without force: %+v", out[1])
	}
	if in[0].IssueKey != "" || in[1].IssueKey != "OPS-7" {
		t.Error("input slice was modified")
	}

	out, _ = l.Link(in, issues, autolink.Options{Force: true})
	if out[1].IssueKey != "WEB-3" {
		t.Errorf("forced relink = %q, want WEB-3", out[1].IssueKey)
	}
}

func TestLinkRequireKnown(t *testing.T) {
	l := newLinker(t, autolink.Config{RequireKnown: true, FuzzyThreshold: 0.99})
	out, _ := l.Link([]model.Meeting{{ID: "a", Title: "ABC-1 then WEB-3"}}, issues, autolink.Options{})
	if out[0].IssueKey != "WEB-3" {
		t.Errorf("IssueKey = %q, want first known key WEB-3", out[0].IssueKey)
	}
	out, _ = l.Link([]model.Meeting{{ID: "b", Title: "ABC-1"}}, issues, autolink.Options{})
	if out[0].IssueKey != "" {
		t.Errorf("IssueKey = %q, want unknown key ignored", out[0].IssueKey)
	}
}

func TestLinkDeterministic(t *testing.T) {
	l := newLinker(t, autolink.Config{})
	in := []model.Meeting{
		{ID: "1", Title: "Checkout redesign"},
		{ID: "2", Title: "planning capacity"},
		{ID: "3", Title: "random"},
	}
	first, _ := l.Link(in, issues, autolink.Options{})
	for i := 0; i < 20; i++ {
		again, _ := l.Link(in, issues, autolink.Options{})
		for j := range first {
			if first[j].IssueKey != again[j].IssueKey {
				t.Fatalf("run %d: meeting %s linked to %q, first run %q", i, first[j].ID, again[j].IssueKey, first[j].IssueKey)
			}
		}
	}
}

type stubResolver struct{ key string }

func (s stubResolver) Resolve(model.Meeting, []model.Issue) (autolink.Match, bool) {
	if s.key == "" {
		return autolink.Match{}, false
	}
	return autolink.Match{Key: s.key, Method: "stub"}, true
}

func TestLinkWithStubResolvers(t *testing.T) {
	l := autolink.New(nil, stubResolver{}, stubResolver{key: "STUB-1"}, stubResolver{key: "STUB-2"})
	out, _ := l.Link([]model.Meeting{{ID: "x"}}, nil, autolink.Options{})
	if out[0].IssueKey != "STUB-1" {
		t.Errorf("IssueKey = %q, want STUB-1", out[0].IssueKey)
	}
}

func TestNewDefaultRejectsBadPattern(t *testing.T) {
	if _, err := autolink.NewDefault(autolink.Config{Patterns: []string{"("}}, nil); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestFuzzyTieBreakIgnoresKeyCase(t *testing.T) {
	mixed := []model.Issue{
		{Key: "ABD-1", Summary: "Release checklist"},
		{Key: "abc-9", Summary: "Release checklist"},
	}
	f := &autolink.FuzzyResolver{Threshold: 0.5}
	for i := 0; i < 2; i++ {
		m, ok := f.Resolve(model.Meeting{Title: "Release checklist"}, mixed)
		if !ok || m.Key != "ABC-9" {
			t.Fatalf("Resolve = %+v, %v; want ABC-9", m, ok)
		}
		mixed[0], mixed[1] = mixed[1], mixed[0]
	}
}
