package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// JSON stores the snapshot in a single indented JSON file.
type JSON struct {
	path string
}

// NewJSON returns a JSON backend writing to path.
func NewJSON(path string) *JSON {
	return &JSON{path: path}
}

// Path returns the file the backend writes to.
func (j *JSON) Path() string { return j.path }

// Load reads the snapshot. A missing file yields an empty snapshot. A file
// that fails to parse is moved aside to <path>.corrupt and ErrCorrupt is
// returned.
func (j *JSON) Load() (Snapshot, error) {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return empty(), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("storage error reading %s: %w", j.path, err)
	}

	snap := empty()
	if err := json.Unmarshal(data, &snap); err != nil {
		backupPath := j.path + ".corrupt"
		_ = os.Rename(j.path, backupPath)
		return Snapshot{}, fmt.Errorf("%w: %s (backed up to %s): %v", ErrCorrupt, j.path, backupPath, err)
	}
	if snap.Version > SnapshotVersion {
		return Snapshot{}, fmt.Errorf("%s has format version %d, newer than supported %d", j.path, snap.Version, SnapshotVersion)
	}
	return snap, nil
}

// Save writes the snapshot atomically: the data is written and synced to
// a temp file which then replaces the target.
func (j *JSON) Save(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}
	snap.Version = SnapshotVersion
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}

	tmpPath := j.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (j *JSON) Close() error { return nil }
