package model

import (
	"fmt"
	"time"
)

// BatchStatus is the revert state of a history batch.
type BatchStatus string

const (
	BatchActive            BatchStatus = "active"
	BatchPartiallyReverted BatchStatus = "partially_reverted"
	BatchReverted          BatchStatus = "reverted"
)

// Valid reports whether s is a known batch state.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchActive, BatchPartiallyReverted, BatchReverted:
		return true
	}
	return false
}

// BatchMember is the snapshot of one entry taken when it was pushed.
type BatchMember struct {
	EntryID         string `json:"entry_id"`
	IssueKey        string `json:"issue_key"`
	RemoteID        string `json:"remote_id"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// Batch records one successful push (or a recovered equivalent).
type Batch struct {
	ID           string        `json:"id"`
	CreatedAt    time.Time     `json:"created_at"`
	Members      []BatchMember `json:"members"`
	TotalSeconds int64         `json:"total_seconds"`
	Status       BatchStatus   `json:"status"`
	Recovered    bool          `json:"recovered"`
}

// NewBatch builds an active batch whose total is the sum of its members.
func NewBatch(id string, createdAt time.Time, members []BatchMember, recovered bool) Batch {
	ms := make([]BatchMember, len(members))
	copy(ms, members)
	return Batch{
		ID:           id,
		CreatedAt:    createdAt,
		Members:      ms,
		TotalSeconds: SumMembers(ms),
		Status:       BatchActive,
		Recovered:    recovered,
	}
}

// SumMembers adds up member durations.
func SumMembers(members []BatchMember) int64 {
	var total int64
	for _, m := range members {
		total += m.DurationSeconds
	}
	return total
}

// MemberFromEntry captures the push-time snapshot of a pushed entry.
func MemberFromEntry(e Entry) BatchMember {
	return BatchMember{
		EntryID:         e.ID,
		IssueKey:        e.IssueKey,
		RemoteID:        e.Remote(),
		DurationSeconds: e.DurationSeconds,
	}
}

// Verify checks that the batch is internally consistent.
func (b Batch) Verify() error {
	if len(b.Members) == 0 {
		return &ConsistencyError{Subject: b.ID, Message: "batch has no members"}
	}
	if !b.Status.Valid() {
		return &ConsistencyError{Subject: b.ID, Message: fmt.Sprintf("unknown batch status %q", b.Status)}
	}
	if sum := SumMembers(b.Members); sum != b.TotalSeconds {
		return &ConsistencyError{Subject: b.ID, Message: fmt.Sprintf("total %ds does not match member sum %ds", b.TotalSeconds, sum)}
	}
	seen := make(map[string]bool, len(b.Members))
	for _, m := range b.Members {
		if seen[m.EntryID] {
			return &ConsistencyError{Subject: b.ID, Message: fmt.Sprintf("entry %s listed twice", m.EntryID)}
		}
		seen[m.EntryID] = true
	}
	return nil
}
