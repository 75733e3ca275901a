package worklog

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Progress is a one-way notification emitted after each entry or member is
// processed by a reconciliation operation.
type Progress struct {
	Op       string // "push" or "revert"
	Index    int    // 1-based
	Total    int
	EntryID  string
	IssueKey string
	Err      error
}

type options struct {
	progress   func(Progress)
	checkpoint func() error
	log        *slog.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures a Staging, Reconciler or Reconstructor.
type Option func(*options)

// WithProgress installs a callback invoked after each processed entry.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) { o.progress = fn }
}

// WithCheckpoint installs a hook invoked after every successful state
// change, typically persisting the store and ledger.
func WithCheckpoint(fn func() error) Option {
	return func(o *options) { o.checkpoint = fn }
}

// WithLogger sets the logger. Logging is discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides the generator used for batch and entry ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		log:   slog.New(slog.DiscardHandler),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) report(p Progress) {
	if o.progress != nil {
		o.progress(p)
	}
}

func (o options) save() error {
	if o.checkpoint == nil {
		return nil
	}
	return o.checkpoint()
}
