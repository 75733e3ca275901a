package msgraph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

// Action says what a sync did with one event.
type Action string

const (
	ActionImported Action = "imported"
	ActionUpdated  Action = "updated"
	ActionSkipped  Action = "skipped"
	ActionError    Action = "error"
)

// Change records the outcome for one event.
type Change struct {
	Action  Action
	Meeting model.Meeting
	Subject string
	Err     error
}

// SyncResult holds counters for a sync operation.
type SyncResult struct {
	Imported int
	Skipped  int
	Updated  int
	Errors   int
	Changes  []Change
}

func (r *SyncResult) add(c Change) {
	switch c.Action {
	case ActionImported:
		r.Imported++
	case ActionUpdated:
		r.Updated++
	case ActionSkipped:
		r.Skipped++
	case ActionError:
		r.Errors++
	}
	r.Changes = append(r.Changes, c)
}

// parseGraphTime parses a Graph API dateTime string in the given timezone.
// Graph returns times like "2026-02-27T09:00:00.0000000" without a zone suffix
// when a Prefer: outlook.timezone header is set.
func parseGraphTime(dt, tz string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, dt); err == nil {
		return t, nil
	}

	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.0000000",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, dt, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse graph time %q", dt)
}

// shouldSkip returns true if the event should not be imported.
func shouldSkip(event CalendarEvent) bool {
	return event.IsCancelled ||
		event.IsAllDay ||
		event.Sensitivity == "private" ||
		event.ShowAs == "free" ||
		event.Start.DateTime == "" || event.End.DateTime == ""
}

// MapEvent converts a Graph CalendarEvent into a meeting. The meeting gets a
// fresh local id; callers merging into existing meetings keep the old one.
func MapEvent(event CalendarEvent, timezone string) (model.Meeting, error) {
	start, err := parseGraphTime(event.Start.DateTime, timezone)
	if err != nil {
		return model.Meeting{}, fmt.Errorf("parsing start time: %w", err)
	}
	end, err := parseGraphTime(event.End.DateTime, timezone)
	if err != nil {
		return model.Meeting{}, fmt.Errorf("parsing end time: %w", err)
	}
	if !end.After(start) {
		return model.Meeting{}, fmt.Errorf("event ends before it starts")
	}
	return model.Meeting{
		ID:          timecalc.GenerateID(start),
		ExternalID:  event.ID,
		Title:       strings.TrimSpace(event.Subject),
		Description: event.BodyPreview,
		Location:    event.Location.DisplayName,
		Start:       start,
		End:         end,
	}, nil
}

func sameContent(a, b model.Meeting) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Location == b.Location &&
		a.Start.Equal(b.Start) &&
		a.End.Equal(b.End)
}

// Merge folds events into existing meetings, matching on the Graph event id.
// Filtered events are ignored silently and unparseable ones are reported as
// errors. With dryRun the returned slice equals existing.
func Merge(existing []model.Meeting, events []CalendarEvent, timezone string, dryRun bool) ([]model.Meeting, SyncResult) {
	var (
		fresh  []model.Meeting
		failed []Change
	)
	for _, event := range events {
		if shouldSkip(event) {
			continue
		}
		m, err := MapEvent(event, timezone)
		if err != nil {
			failed = append(failed, Change{Action: ActionError, Subject: event.Subject, Err: err})
			continue
		}
		fresh = append(fresh, m)
	}
	merged, result := MergeMeetings(existing, fresh, dryRun)
	for _, c := range failed {
		result.add(c)
	}
	return merged, result
}

// MergeMeetings folds fresh meetings into existing ones by external id. An
// updated meeting keeps its local id and issue link.
func MergeMeetings(existing, fresh []model.Meeting, dryRun bool) ([]model.Meeting, SyncResult) {
	var result SyncResult

	merged := make([]model.Meeting, len(existing))
	copy(merged, existing)
	byExternal := make(map[string]int, len(merged))
	for i, m := range merged {
		if m.ExternalID != "" {
			byExternal[m.ExternalID] = i
		}
	}

	for _, m := range fresh {
		i, found := byExternal[m.ExternalID]
		switch {
		case m.ExternalID == "":
			result.add(Change{Action: ActionError, Subject: m.Title, Err: fmt.Errorf("meeting has no external id")})
		case found && sameContent(merged[i], m):
			result.add(Change{Action: ActionSkipped, Meeting: merged[i], Subject: m.Title})
		case found:
			m.ID = merged[i].ID
			m.IssueKey = merged[i].IssueKey
			if !dryRun {
				merged[i] = m
			}
			result.add(Change{Action: ActionUpdated, Meeting: m, Subject: m.Title})
		default:
			if !dryRun {
				byExternal[m.ExternalID] = len(merged)
				merged = append(merged, m)
			}
			result.add(Change{Action: ActionImported, Meeting: m, Subject: m.Title})
		}
	}
	return merged, result
}

// Source serves meetings straight from the Outlook calendar.
type Source struct {
	Client   *Client
	Timezone string
}

// Meetings returns the importable events in [from, to) as meetings.
func (s *Source) Meetings(ctx context.Context, from, to time.Time) ([]model.Meeting, error) {
	events, err := s.Client.GetCalendarView(ctx, from, to, s.Timezone)
	if err != nil {
		return nil, err
	}
	var out []model.Meeting
	for _, e := range events {
		if shouldSkip(e) {
			continue
		}
		m, err := MapEvent(e, s.Timezone)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", e.Subject, err)
		}
		out = append(out, m)
	}
	return out, nil
}
