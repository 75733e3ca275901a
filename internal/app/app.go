// Package app wires configuration, persistence and the remote clients into
// the worklog engine for the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/autolink"
	"github.com/Tiliavir/worklog-sync/internal/config"
	"github.com/Tiliavir/worklog-sync/internal/jira"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/msgraph"
	"github.com/Tiliavir/worklog-sync/internal/notify"
	"github.com/Tiliavir/worklog-sync/internal/storage"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

// StorageError marks a failure to load or save local state.
type StorageError struct{ Err error }

func (e *StorageError) Error() string { return "storage error: " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// App holds the loaded state and everything built on top of it.
type App struct {
	Config  config.Config
	BaseDir string
	Log     *slog.Logger

	Store  *worklog.Store
	Ledger *worklog.Ledger

	backend storage.Backend

	mu       sync.Mutex
	meetings []model.Meeting
	issues   []model.Issue
	sessions []model.Session
}

// Open loads the configured backend below the wsync base directory.
func Open(cfg config.Config, log *slog.Logger) (*App, error) {
	base, err := storage.BaseDir()
	if err != nil {
		return nil, &StorageError{Err: err}
	}
	backend, err := storage.Open(cfg.Storage.Backend, base, cfg.Storage.Path)
	if err != nil {
		return nil, &StorageError{Err: err}
	}
	a, err := New(cfg, base, backend, log)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return a, nil
}

// New builds an App over an already opened backend.
func New(cfg config.Config, baseDir string, backend storage.Backend, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	snap, err := backend.Load()
	if err != nil {
		return nil, &StorageError{Err: err}
	}
	store, err := worklog.NewStore(snap.Entries)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}
	ledger, err := worklog.NewLedger(snap.Batches)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	log.Debug("state loaded", "entries", store.Len(), "batches", ledger.Len(), "meetings", len(snap.Meetings))
	return &App{
		Config:   cfg,
		BaseDir:  baseDir,
		Log:      log,
		Store:    store,
		Ledger:   ledger,
		backend:  backend,
		meetings: snap.Meetings,
		issues:   snap.Issues,
		sessions: snap.Sessions,
	}, nil
}

// Save persists the current state in one all-or-nothing write.
func (a *App) Save() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := storage.Snapshot{
		Version:  storage.SnapshotVersion,
		SavedAt:  time.Now().UTC(),
		Entries:  a.Store.All(),
		Batches:  a.Ledger.All(),
		Meetings: append([]model.Meeting(nil), a.meetings...),
		Issues:   append([]model.Issue(nil), a.issues...),
		Sessions: append([]model.Session(nil), a.sessions...),
	}
	if err := a.backend.Save(snap); err != nil {
		return &StorageError{Err: err}
	}
	return nil
}

// Close releases the backend.
func (a *App) Close() error {
	return a.backend.Close()
}

// Meetings returns all known meetings ordered by start.
func (a *App) Meetings() []model.Meeting {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := append([]model.Meeting(nil), a.meetings...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// MeetingsBetween returns meetings starting in [from, to).
func (a *App) MeetingsBetween(from, to time.Time) []model.Meeting {
	var out []model.Meeting
	for _, m := range a.Meetings() {
		if !m.Start.Before(from) && m.Start.Before(to) {
			out = append(out, m)
		}
	}
	return out
}

// SetMeetings replaces the meeting list. Call Save to persist it.
func (a *App) SetMeetings(ms []model.Meeting) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.meetings = append([]model.Meeting(nil), ms...)
}

// UpdateMeetings replaces the meetings in ms by id, leaving the others.
func (a *App) UpdateMeetings(ms []model.Meeting) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byID := make(map[string]model.Meeting, len(ms))
	for _, m := range ms {
		byID[m.ID] = m
	}
	for i, m := range a.meetings {
		if u, ok := byID[m.ID]; ok {
			a.meetings[i] = u
		}
	}
}

// Issues returns the cached issue set.
func (a *App) Issues() []model.Issue {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Issue(nil), a.issues...)
}

// SetIssues replaces the cached issue set.
func (a *App) SetIssues(is []model.Issue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.issues = append([]model.Issue(nil), is...)
}

// Sessions returns the recorded coding sessions.
func (a *App) Sessions() []model.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Session(nil), a.sessions...)
}

// AddSessions appends coding sessions, ignoring ids already present.
func (a *App) AddSessions(ss []model.Session) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := make(map[string]bool, len(a.sessions))
	for _, s := range a.sessions {
		seen[s.ID] = true
	}
	added := 0
	for _, s := range ss {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		a.sessions = append(a.sessions, s)
		added++
	}
	return added
}

func (a *App) options(extra []worklog.Option) []worklog.Option {
	return append([]worklog.Option{
		worklog.WithCheckpoint(a.Save),
		worklog.WithLogger(a.Log),
	}, extra...)
}

// Staging returns a staging manager that saves after every change.
func (a *App) Staging(opts ...worklog.Option) *worklog.Staging {
	return worklog.NewStaging(a.Store, a.options(opts)...)
}

// Reconciler returns a push/revert engine against remote.
func (a *App) Reconciler(remote worklog.RemoteLedger, opts ...worklog.Option) *worklog.Reconciler {
	return worklog.NewReconciler(a.Store, a.Ledger, remote, a.Config.ReconcilerConfig(), a.options(opts)...)
}

// Reconstructor returns the history recovery engine.
func (a *App) Reconstructor(opts ...worklog.Option) *worklog.Reconstructor {
	return worklog.NewReconstructor(a.Store, a.Ledger, a.Config.RecoveryWindow(), a.options(opts)...)
}

// Jira returns a client for the configured Jira instance.
func (a *App) Jira(ctx context.Context) (*jira.Client, error) {
	j := a.Config.Jira
	return jira.NewClient(ctx, j.BaseURL, jira.Credentials{
		Email:       j.Email,
		APIToken:    j.APIToken,
		BearerToken: j.BearerToken,
	}, a.Config.JiraTimeout())
}

// Linker returns the configured auto-linker.
func (a *App) Linker() (*autolink.Linker, error) {
	return autolink.NewDefault(a.Config.LinkerConfig(), a.Log)
}

// Calendar authenticates against Microsoft Graph and returns the Outlook
// meeting source. Sign-in prompts are written to out.
func (a *App) Calendar(ctx context.Context, out io.Writer) (*msgraph.Source, error) {
	auth := &msgraph.Authenticator{
		TenantID: a.Config.Outlook.TenantID,
		ClientID: a.Config.Outlook.ClientID,
		Store:    msgraph.TokenStore{Path: msgraph.TokenPath(a.BaseDir)},
		Out:      out,
		Log:      a.Log,
	}
	ts, err := auth.TokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return &msgraph.Source{Client: msgraph.NewClient(ctx, ts), Timezone: a.Config.Outlook.Timezone}, nil
}

// Notifier returns the Slack notifier, nil when not configured.
func (a *App) Notifier() *notify.Notifier {
	return notify.New(a.Config.Notify.SlackToken, a.Config.Notify.SlackChannel)
}

// Location is the configured Outlook timezone, falling back to local time.
func (a *App) Location() *time.Location {
	if tz := a.Config.Outlook.Timezone; tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}
