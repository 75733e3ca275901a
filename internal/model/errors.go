package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entry or batch id is unknown.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input rejected before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return "invalid input: " + e.Message
}

// TransitionError reports an operation attempted on an entry or batch in an
// incompatible state. Nothing was mutated.
type TransitionError struct {
	ID   string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.ID, e.From, e.To)
}

// RemoteErrorKind classifies a remote ledger failure.
type RemoteErrorKind string

const (
	RemoteAuth     RemoteErrorKind = "auth"
	RemoteNetwork  RemoteErrorKind = "network"
	RemoteNotFound RemoteErrorKind = "not_found"
	RemoteRejected RemoteErrorKind = "rejected"
)

// RemoteError is a failure of a single remote ledger call.
type RemoteError struct {
	Kind     RemoteErrorKind
	Op       string
	IssueKey string
	Status   int
	Message  string
	Cause    error
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("remote %s %s failed (%s)", e.Op, e.IssueKey, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return e.Cause }

// ConsistencyError reports a confirmation mismatch or a broken invariant.
// The operation was aborted without mutation.
type ConsistencyError struct {
	Subject string
	Message string
}

func (e *ConsistencyError) Error() string {
	if e == nil {
		return ""
	}
	if e.Subject != "" {
		return fmt.Sprintf("consistency error (%s): %s", e.Subject, e.Message)
	}
	return "consistency error: " + e.Message
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsTransition reports whether err is a TransitionError.
func IsTransition(err error) bool {
	var target *TransitionError
	return errors.As(err, &target)
}

// IsRemote reports whether err is a RemoteError.
func IsRemote(err error) bool {
	var target *RemoteError
	return errors.As(err, &target)
}

// IsConsistency reports whether err is a ConsistencyError.
func IsConsistency(err error) bool {
	var target *ConsistencyError
	return errors.As(err, &target)
}
