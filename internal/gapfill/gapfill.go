// Package gapfill proposes draft entries for uncovered working time.
package gapfill

import (
	"sort"
	"strings"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

// Interval is a committed span of time, optionally tied to an issue.
type Interval struct {
	Start    time.Time
	End      time.Time
	IssueKey string
}

// Candidate is an issue eligible for gap time, with the time already
// spent on it in the current sprint.
type Candidate struct {
	IssueKey      string
	SprintSeconds int64
}

// Config controls gap detection. DayStart and DayEnd are offsets from
// local midnight.
type Config struct {
	DayStart    time.Duration
	DayEnd      time.Duration
	Granularity time.Duration
	// DailyLimit caps committed plus proposed time per day. Zero disables it.
	DailyLimit time.Duration
	// SkipAbove skips days whose committed time already reaches it. Zero disables it.
	SkipAbove    time.Duration
	SkipWeekends bool
	Comment      string
}

// DefaultConfig is a 09:00 to 17:00 day in 15 minute steps capped at 8h.
func DefaultConfig() Config {
	return Config{
		DayStart:     9 * time.Hour,
		DayEnd:       17 * time.Hour,
		Granularity:  15 * time.Minute,
		DailyLimit:   8 * time.Hour,
		SkipAbove:    6 * time.Hour,
		SkipWeekends: true,
		Comment:      "Gap fill",
	}
}

// Reason explains how a gap was attributed.
type Reason string

const (
	ReasonPreceding  Reason = "preceding"
	ReasonSprint     Reason = "sprint"
	ReasonUnassigned Reason = "unassigned"
	// ReasonDailyLimit marks a gap left open because the day is at its limit.
	ReasonDailyLimit Reason = "daily_limit"
)

// Gap is an uncovered span inside the working window.
type Gap struct {
	Start    time.Time
	End      time.Time
	IssueKey string
	Reason   Reason
}

// Seconds returns the gap length.
func (g Gap) Seconds() int64 { return int64(g.End.Sub(g.Start).Seconds()) }

// Proposal is the result of filling one day.
type Proposal struct {
	Day              time.Time
	Drafts           []model.Entry
	Gaps             []Gap
	Unassigned       []Gap
	CommittedSeconds int64
	Skipped          string
}

// ProposedSeconds sums the draft durations.
func (p Proposal) ProposedSeconds() int64 {
	var total int64
	for _, d := range p.Drafts {
		total += d.DurationSeconds
	}
	return total
}

// Fill computes the gaps of day and proposes a draft for every gap that
// can be attributed. Drafts never overlap committed intervals.
func Fill(day time.Time, committed []Interval, candidates []Candidate, cfg Config) Proposal {
	sod := timecalc.StartOfDay(day)
	p := Proposal{Day: sod}
	if cfg.SkipWeekends && timecalc.IsWeekend(sod) {
		p.Skipped = "weekend"
		return p
	}

	blocks := merge(clip(committed, sod, sod.AddDate(0, 0, 1)))
	for _, b := range blocks {
		p.CommittedSeconds += int64(b.End.Sub(b.Start).Seconds())
	}
	if cfg.SkipAbove > 0 && p.CommittedSeconds >= int64(cfg.SkipAbove.Seconds()) {
		p.Skipped = "already logged"
		return p
	}

	remaining := int64(-1)
	if cfg.DailyLimit > 0 {
		remaining = int64(cfg.DailyLimit.Seconds()) - p.CommittedSeconds
		if remaining < 0 {
			remaining = 0
		}
	}
	step := int64(cfg.Granularity.Seconds())
	if step <= 0 {
		step = 60
	}
	fallback := pickCandidate(candidates)

	for _, g := range gaps(blocks, sod.Add(cfg.DayStart), sod.Add(cfg.DayEnd)) {
		if g.Seconds() < step {
			continue
		}
		if key := preceding(blocks, g.Start); key != "" {
			g.IssueKey, g.Reason = key, ReasonPreceding
		} else if fallback != "" {
			g.IssueKey, g.Reason = fallback, ReasonSprint
		} else {
			g.Reason = ReasonUnassigned
			p.Gaps = append(p.Gaps, g)
			p.Unassigned = append(p.Unassigned, g)
			continue
		}
		secs := g.Seconds() / step * step
		if remaining >= 0 && secs > remaining {
			secs = remaining / step * step
		}
		if secs <= 0 {
			g.IssueKey, g.Reason = "", ReasonDailyLimit
			p.Gaps = append(p.Gaps, g)
			continue
		}
		p.Gaps = append(p.Gaps, g)
		if remaining >= 0 {
			remaining -= secs
		}
		p.Drafts = append(p.Drafts, model.Entry{
			IssueKey:        g.IssueKey,
			DurationSeconds: secs,
			Start:           g.Start,
			Comment:         cfg.Comment,
			Source:          model.SourceManual,
			Status:          model.StatusDraft,
		})
	}
	return p
}

// FillRange runs Fill for every day from from to to inclusive.
func FillRange(from, to time.Time, committed []Interval, candidates []Candidate, cfg Config) []Proposal {
	var out []Proposal
	for d := timecalc.StartOfDay(from); !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, Fill(d, committed, candidates, cfg))
	}
	return out
}

// FromEntries converts non-reverted entries into committed intervals.
func FromEntries(entries []model.Entry) []Interval {
	out := make([]Interval, 0, len(entries))
	for _, e := range entries {
		if e.Status == model.StatusReverted {
			continue
		}
		out = append(out, Interval{Start: e.Start, End: e.End(), IssueKey: e.IssueKey})
	}
	return out
}

// FromMeetings converts meetings into committed intervals.
func FromMeetings(meetings []model.Meeting) []Interval {
	out := make([]Interval, 0, len(meetings))
	for _, m := range meetings {
		if !m.End.After(m.Start) {
			continue
		}
		out = append(out, Interval{Start: m.Start, End: m.End, IssueKey: m.IssueKey})
	}
	return out
}

// SprintTotals accumulates non-reverted time per issue. When sprint is
// non-empty only its issues are candidates, each starting at zero, so time
// logged on issues outside the open sprints never wins a gap.
func SprintTotals(entries []model.Entry, sprint []model.Issue) []Candidate {
	totals := make(map[string]int64)
	for _, is := range sprint {
		totals[strings.ToUpper(is.Key)] = 0
	}
	for _, e := range entries {
		if e.Status == model.StatusReverted {
			continue
		}
		key := strings.ToUpper(e.IssueKey)
		if _, ok := totals[key]; !ok && len(sprint) > 0 {
			continue
		}
		totals[key] += e.DurationSeconds
	}
	out := make([]Candidate, 0, len(totals))
	for k, v := range totals {
		out = append(out, Candidate{IssueKey: k, SprintSeconds: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueKey < out[j].IssueKey })
	return out
}

func clip(in []Interval, from, to time.Time) []Interval {
	out := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.End.After(from) || !iv.Start.Before(to) {
			continue
		}
		if iv.Start.Before(from) {
			iv.Start = from
		}
		if iv.End.After(to) {
			iv.End = to
		}
		if iv.End.After(iv.Start) {
			out = append(out, iv)
		}
	}
	return out
}

// merge unions overlapping intervals. A merged block keeps the issue of the
// part that ends last.
func merge(in []Interval) []Interval {
	sorted := make([]Interval, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].End.Before(sorted[j].End)
	})
	var out []Interval
	for _, iv := range sorted {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			last := &out[n-1]
			if !iv.End.Before(last.End) {
				last.End = iv.End
				if iv.IssueKey != "" {
					last.IssueKey = iv.IssueKey
				}
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

func gaps(blocks []Interval, from, to time.Time) []Gap {
	var out []Gap
	cursor := from
	for _, b := range blocks {
		if !b.End.After(cursor) {
			continue
		}
		if !b.Start.Before(to) {
			break
		}
		if b.Start.After(cursor) {
			out = append(out, Gap{Start: cursor, End: b.Start})
		}
		cursor = b.End
	}
	if cursor.Before(to) {
		out = append(out, Gap{Start: cursor, End: to})
	}
	return out
}

// preceding returns the issue of the block ending closest before at.
func preceding(blocks []Interval, at time.Time) string {
	key := ""
	for _, b := range blocks {
		if b.End.After(at) {
			break
		}
		key = b.IssueKey
	}
	return key
}

// pickCandidate returns the candidate with the most sprint time, ties going
// to the lowest key.
func pickCandidate(cs []Candidate) string {
	best := Candidate{SprintSeconds: -1}
	for _, c := range cs {
		if c.IssueKey == "" {
			continue
		}
		if c.SprintSeconds > best.SprintSeconds || (c.SprintSeconds == best.SprintSeconds && c.IssueKey < best.IssueKey) {
			best = c
		}
	}
	return best.IssueKey
}
