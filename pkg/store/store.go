// Package store persists cluster snapshots as JSON files. Writes go to a
// temp file in the same directory followed by an atomic rename so readers
// never observe a half-written snapshot.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/procmap-io/procmap/pkg/models"
)

type SnapshotStore struct {
	path   string
	logger *zap.Logger
}

func NewSnapshotStore(path string, logger *zap.Logger) *SnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{path: path, logger: logger}
}

// Path returns the snapshot file location.
func (s *SnapshotStore) Path() string {
	return s.path
}

// Exists reports whether a snapshot file is present.
func (s *SnapshotStore) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Load reads and decodes the snapshot file.
func (s *SnapshotStore) Load() (*models.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	s.logger.Debug("snapshot loaded",
		zap.String("path", s.path),
		zap.Int("clusters", len(snap.Clusters)),
		zap.Int("groups", len(snap.ProcedureGroups)))
	return &snap, nil
}

// Save writes the snapshot atomically. The temp file lives in the target
// directory so the rename cannot cross filesystems.
func (s *SnapshotStore) Save(snap *models.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot %s: %w", s.path, err)
	}
	s.logger.Debug("snapshot saved", zap.String("path", s.path), zap.Int("bytes", len(data)))
	return nil
}
