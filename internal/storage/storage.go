package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Tiliavir/worklog-sync/internal/model"
)

// SnapshotVersion is the current on-disk format version.
const SnapshotVersion = 1

// ErrCorrupt is wrapped by Load when the stored state cannot be decoded.
var ErrCorrupt = errors.New("corrupt state")

// Snapshot is everything wsync persists.
type Snapshot struct {
	Version  int             `json:"version"`
	SavedAt  time.Time       `json:"saved_at"`
	Entries  []model.Entry   `json:"entries"`
	Batches  []model.Batch   `json:"batches"`
	Meetings []model.Meeting `json:"meetings"`
	Issues   []model.Issue   `json:"issues"`
	Sessions []model.Session `json:"sessions"`
}

// Backend loads and saves snapshots. Save is all-or-nothing: after a
// failed Save the previously stored snapshot is still intact.
type Backend interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
	Close() error
}

// Kinds of backend accepted by Open.
const (
	KindJSON   = "json"
	KindSQLite = "sqlite"
)

// BaseDir returns the root data directory, ~/.wsync unless WSYNC_HOME is set.
func BaseDir() (string, error) {
	if dir := os.Getenv("WSYNC_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".wsync"), nil
}

// Open returns the backend of the given kind rooted at dir. An empty path
// selects the default file name inside dir.
func Open(kind, dir, path string) (Backend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage error creating %s: %w", dir, err)
	}
	switch kind {
	case KindJSON, "":
		if path == "" {
			path = filepath.Join(dir, "state.json")
		}
		return NewJSON(path), nil
	case KindSQLite:
		if path == "" {
			path = filepath.Join(dir, "wsync.db")
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

func empty() Snapshot {
	return Snapshot{
		Version:  SnapshotVersion,
		Entries:  []model.Entry{},
		Batches:  []model.Batch{},
		Meetings: []model.Meeting{},
		Issues:   []model.Issue{},
		Sessions: []model.Session{},
	}
}
