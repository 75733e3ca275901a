package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a worklog entry.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusStaged   Status = "staged"
	StatusPushed   Status = "pushed"
	StatusReverted Status = "reverted"
)

// Valid reports whether s is one of the known entry states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusStaged, StatusPushed, StatusReverted:
		return true
	}
	return false
}

// HasRemote reports whether an entry in state s must carry a remote id.
func (s Status) HasRemote() bool {
	switch s {
	case StatusPushed, StatusReverted:
		return true
	case StatusDraft, StatusStaged:
		return false
	}
	return false
}

// CanTransition reports whether an entry may move from one state to another.
// Legal moves are draft→staged→pushed→reverted and staged→draft.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusStaged
	case StatusStaged:
		return to == StatusPushed || to == StatusDraft
	case StatusPushed:
		return to == StatusReverted
	case StatusReverted:
		return false
	}
	return false
}

// Source tags where an entry came from.
type Source string

const (
	SourceMeeting       Source = "meeting"
	SourceCodingSession Source = "coding_session"
	SourceManual        Source = "manual"
)

// Valid reports whether s is a known source tag.
func (s Source) Valid() bool {
	switch s {
	case SourceMeeting, SourceCodingSession, SourceManual:
		return true
	}
	return false
}

// Entry is a single unit of logged time tied to one issue.
type Entry struct {
	ID              string     `json:"id"`
	IssueKey        string     `json:"issue_key"`
	DurationSeconds int64      `json:"duration_seconds"`
	Start           time.Time  `json:"start"`
	Comment         string     `json:"comment"`
	Source          Source     `json:"source"`
	Status          Status     `json:"status"`
	RemoteID        *string    `json:"remote_id"`
	OriginID        string     `json:"origin_id,omitempty"`
	PushedAt        *time.Time `json:"pushed_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// End returns the instant the entry's time span ends.
func (e Entry) End() time.Time {
	return e.Start.Add(time.Duration(e.DurationSeconds) * time.Second)
}

// Remote returns the remote id or "" when the entry was never pushed.
func (e Entry) Remote() string {
	if e.RemoteID == nil {
		return ""
	}
	return *e.RemoteID
}

// Validate checks the fields a caller supplies when creating an entry.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.IssueKey) == "" {
		return &ValidationError{Field: "issue_key", Message: "must not be empty"}
	}
	if e.DurationSeconds <= 0 {
		return &ValidationError{Field: "duration_seconds", Message: fmt.Sprintf("must be positive, got %d", e.DurationSeconds)}
	}
	if e.Start.IsZero() {
		return &ValidationError{Field: "start", Message: "must be set"}
	}
	if e.Source != "" && !e.Source.Valid() {
		return &ValidationError{Field: "source", Message: fmt.Sprintf("unknown source %q", e.Source)}
	}
	return nil
}

// CheckInvariants verifies the status/remote id pairing of a stored entry.
func (e Entry) CheckInvariants() error {
	if !e.Status.Valid() {
		return &ConsistencyError{Subject: e.ID, Message: fmt.Sprintf("unknown status %q", e.Status)}
	}
	if e.Status.HasRemote() != (e.RemoteID != nil) {
		return &ConsistencyError{Subject: e.ID, Message: fmt.Sprintf("status %s with remote id %q", e.Status, e.Remote())}
	}
	return nil
}

// Issue is a remote issue known to the local cache.
type Issue struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
}

// Meeting is a calendar record that may be turned into a worklog.
type Meeting struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	IssueKey    string    `json:"issue_key,omitempty"`
}

// DurationSeconds returns the meeting length in whole seconds.
func (m Meeting) DurationSeconds() int64 {
	return int64(m.End.Sub(m.Start).Seconds())
}

// Session is a coding session derived from repository activity.
type Session struct {
	ID          string    `json:"id"`
	Repo        string    `json:"repo"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	IssueKeys   []string  `json:"issue_keys"`
}
