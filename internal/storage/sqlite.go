package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Tiliavir/worklog-sync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
    id               TEXT PRIMARY KEY,
    issue_key        TEXT NOT NULL,
    duration_seconds INTEGER NOT NULL CHECK (duration_seconds > 0),
    start_at         TEXT NOT NULL,
    comment          TEXT NOT NULL DEFAULT '',
    source           TEXT NOT NULL,
    status           TEXT NOT NULL CHECK (status IN ('draft', 'staged', 'pushed', 'reverted')),
    remote_id        TEXT,
    origin_id        TEXT NOT NULL DEFAULT '',
    pushed_at        TEXT,
    last_error       TEXT NOT NULL DEFAULT '',
    CHECK ((remote_id IS NOT NULL) = (status IN ('pushed', 'reverted')))
);

CREATE TABLE IF NOT EXISTS batches (
    id            TEXT PRIMARY KEY,
    created_at    TEXT NOT NULL,
    total_seconds INTEGER NOT NULL,
    status        TEXT NOT NULL CHECK (status IN ('active', 'partially_reverted', 'reverted')),
    recovered     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS batch_members (
    batch_id         TEXT NOT NULL REFERENCES batches(id),
    position         INTEGER NOT NULL,
    entry_id         TEXT NOT NULL UNIQUE REFERENCES entries(id),
    issue_key        TEXT NOT NULL,
    remote_id        TEXT NOT NULL,
    duration_seconds INTEGER NOT NULL,
    PRIMARY KEY (batch_id, position)
);

CREATE TABLE IF NOT EXISTS meetings (
    id          TEXT PRIMARY KEY,
    external_id TEXT NOT NULL DEFAULT '',
    title       TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    location    TEXT NOT NULL DEFAULT '',
    start_at    TEXT NOT NULL,
    end_at      TEXT NOT NULL,
    issue_key   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS issues (
    key     TEXT PRIMARY KEY,
    summary TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    repo        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    start_at    TEXT NOT NULL,
    end_at      TEXT NOT NULL,
    issue_keys  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
CREATE INDEX IF NOT EXISTS idx_batch_members_batch ON batch_members(batch_id);
`

// SQLite stores the snapshot in a SQLite database. Each Save replaces the
// stored state inside one transaction.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Load reads the full snapshot.
func (s *SQLite) Load() (Snapshot, error) {
	snap := empty()
	var err error
	if snap.Entries, err = s.loadEntries(); err != nil {
		return Snapshot{}, err
	}
	if snap.Batches, err = s.loadBatches(); err != nil {
		return Snapshot{}, err
	}
	if snap.Meetings, err = s.loadMeetings(); err != nil {
		return Snapshot{}, err
	}
	if snap.Issues, err = s.loadIssues(); err != nil {
		return Snapshot{}, err
	}
	if snap.Sessions, err = s.loadSessions(); err != nil {
		return Snapshot{}, err
	}
	var savedAt string
	err = s.db.QueryRow(`SELECT value FROM meta WHERE key = 'saved_at'`).Scan(&savedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Snapshot{}, fmt.Errorf("reading meta: %w", err)
	default:
		snap.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
	}
	return snap, nil
}

// Save replaces the stored state with snap.
func (s *SQLite) Save(snap Snapshot) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"batch_members", "batches", "entries", "meetings", "issues", "sessions"} {
		if _, err = tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, e := range snap.Entries {
		_, err = tx.Exec(
			`INSERT INTO entries (id, issue_key, duration_seconds, start_at, comment, source, status, remote_id, origin_id, pushed_at, last_error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.IssueKey, e.DurationSeconds, formatTime(e.Start), e.Comment, string(e.Source), string(e.Status),
			nullString(e.RemoteID), e.OriginID, nullTime(e.PushedAt), e.LastError,
		)
		if err != nil {
			return fmt.Errorf("inserting entry %s: %w", e.ID, err)
		}
	}
	for _, b := range snap.Batches {
		_, err = tx.Exec(
			`INSERT INTO batches (id, created_at, total_seconds, status, recovered) VALUES (?, ?, ?, ?, ?)`,
			b.ID, formatTime(b.CreatedAt), b.TotalSeconds, string(b.Status), b.Recovered,
		)
		if err != nil {
			return fmt.Errorf("inserting batch %s: %w", b.ID, err)
		}
		for i, m := range b.Members {
			_, err = tx.Exec(
				`INSERT INTO batch_members (batch_id, position, entry_id, issue_key, remote_id, duration_seconds) VALUES (?, ?, ?, ?, ?, ?)`,
				b.ID, i, m.EntryID, m.IssueKey, m.RemoteID, m.DurationSeconds,
			)
			if err != nil {
				return fmt.Errorf("inserting member %s of batch %s: %w", m.EntryID, b.ID, err)
			}
		}
	}
	for _, m := range snap.Meetings {
		_, err = tx.Exec(
			`INSERT INTO meetings (id, external_id, title, description, location, start_at, end_at, issue_key) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ExternalID, m.Title, m.Description, m.Location, formatTime(m.Start), formatTime(m.End), m.IssueKey,
		)
		if err != nil {
			return fmt.Errorf("inserting meeting %s: %w", m.ID, err)
		}
	}
	for _, is := range snap.Issues {
		if _, err = tx.Exec(`INSERT INTO issues (key, summary) VALUES (?, ?)`, is.Key, is.Summary); err != nil {
			return fmt.Errorf("inserting issue %s: %w", is.Key, err)
		}
	}
	for _, ss := range snap.Sessions {
		_, err = tx.Exec(
			`INSERT INTO sessions (id, repo, description, start_at, end_at, issue_keys) VALUES (?, ?, ?, ?, ?, ?)`,
			ss.ID, ss.Repo, ss.Description, formatTime(ss.Start), formatTime(ss.End), strings.Join(ss.IssueKeys, ","),
		)
		if err != nil {
			return fmt.Errorf("inserting session %s: %w", ss.ID, err)
		}
	}

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	_, err = tx.Exec(
		`INSERT INTO meta (key, value) VALUES ('saved_at', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		formatTime(savedAt),
	)
	if err != nil {
		return fmt.Errorf("writing meta: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

func (s *SQLite) loadEntries() ([]model.Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, issue_key, duration_seconds, start_at, comment, source, status, remote_id, origin_id, pushed_at, last_error
		 FROM entries ORDER BY start_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	results := []model.Entry{}
	for rows.Next() {
		var (
			e              model.Entry
			start, src, st string
			remote, pushed sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.IssueKey, &e.DurationSeconds, &start, &e.Comment, &src, &st, &remote, &e.OriginID, &pushed, &e.LastError); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Source = model.Source(src)
		e.Status = model.Status(st)
		if e.Start, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		if remote.Valid {
			id := remote.String
			e.RemoteID = &id
		}
		if pushed.Valid {
			t, err := parseTime(pushed.String)
			if err != nil {
				return nil, fmt.Errorf("entry %s: %w", e.ID, err)
			}
			e.PushedAt = &t
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func (s *SQLite) loadBatches() ([]model.Batch, error) {
	rows, err := s.db.Query(`SELECT id, created_at, total_seconds, status, recovered FROM batches ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	var (
		results []model.Batch
		index   = make(map[string]int)
	)
	for rows.Next() {
		var (
			b           model.Batch
			created, st string
		)
		if err := rows.Scan(&b.ID, &created, &b.TotalSeconds, &st, &b.Recovered); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		b.Status = model.BatchStatus(st)
		if b.CreatedAt, err = parseTime(created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("batch %s: %w", b.ID, err)
		}
		index[b.ID] = len(results)
		results = append(results, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	members, err := s.db.Query(
		`SELECT batch_id, entry_id, issue_key, remote_id, duration_seconds FROM batch_members ORDER BY batch_id, position`)
	if err != nil {
		return nil, fmt.Errorf("listing batch members: %w", err)
	}
	defer members.Close()
	for members.Next() {
		var (
			batchID string
			m       model.BatchMember
		)
		if err := members.Scan(&batchID, &m.EntryID, &m.IssueKey, &m.RemoteID, &m.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scanning batch member: %w", err)
		}
		i, ok := index[batchID]
		if !ok {
			return nil, fmt.Errorf("%w: member %s references unknown batch %s", ErrCorrupt, m.EntryID, batchID)
		}
		results[i].Members = append(results[i].Members, m)
	}
	if results == nil {
		results = []model.Batch{}
	}
	return results, members.Err()
}

func (s *SQLite) loadMeetings() ([]model.Meeting, error) {
	rows, err := s.db.Query(`SELECT id, external_id, title, description, location, start_at, end_at, issue_key FROM meetings ORDER BY start_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing meetings: %w", err)
	}
	defer rows.Close()

	results := []model.Meeting{}
	for rows.Next() {
		var (
			m          model.Meeting
			start, end string
		)
		if err := rows.Scan(&m.ID, &m.ExternalID, &m.Title, &m.Description, &m.Location, &start, &end, &m.IssueKey); err != nil {
			return nil, fmt.Errorf("scanning meeting: %w", err)
		}
		if m.Start, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("meeting %s: %w", m.ID, err)
		}
		if m.End, err = parseTime(end); err != nil {
			return nil, fmt.Errorf("meeting %s: %w", m.ID, err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (s *SQLite) loadIssues() ([]model.Issue, error) {
	rows, err := s.db.Query(`SELECT key, summary FROM issues ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}
	defer rows.Close()

	results := []model.Issue{}
	for rows.Next() {
		var is model.Issue
		if err := rows.Scan(&is.Key, &is.Summary); err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		results = append(results, is)
	}
	return results, rows.Err()
}

func (s *SQLite) loadSessions() ([]model.Session, error) {
	rows, err := s.db.Query(`SELECT id, repo, description, start_at, end_at, issue_keys FROM sessions ORDER BY start_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	results := []model.Session{}
	for rows.Next() {
		var (
			ss               model.Session
			start, end, keys string
		)
		if err := rows.Scan(&ss.ID, &ss.Repo, &ss.Description, &start, &end, &keys); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if ss.Start, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("session %s: %w", ss.ID, err)
		}
		if ss.End, err = parseTime(end); err != nil {
			return nil, fmt.Errorf("session %s: %w", ss.ID, err)
		}
		if keys != "" {
			ss.IssueKeys = strings.Split(keys, ",")
		}
		results = append(results, ss)
	}
	return results, rows.Err()
}

func formatTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrCorrupt, s)
	}
	return t, nil
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return formatTime(*p)
}
