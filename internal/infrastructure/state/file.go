package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/ports"
)

const (
	markerPrefix = "alert_"
	markerSuffix = ".txt"
)

// FileStore keeps the checkpoint in a plain-text file and one marker file per
// pending alert under a directory.
type FileStore struct {
	checkpointPath string
	pendingDir     string
}

var _ ports.StateStore = (*FileStore)(nil)

// NewFileStore binds the checkpoint file and pending directory.
func NewFileStore(checkpointPath, pendingDir string) *FileStore {
	return &FileStore{checkpointPath: checkpointPath, pendingDir: pendingDir}
}

// Read returns 0 when the file is absent or does not hold a valid id.
func (s *FileStore) Read(_ context.Context) (int64, error) {
	raw, err := os.ReadFile(s.checkpointPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	return parseCheckpoint(string(raw)), nil
}

// Write replaces the checkpoint atomically.
func (s *FileStore) Write(_ context.Context, value int64) error {
	if err := writeFileAtomic(s.checkpointPath, []byte(strconv.FormatInt(value, 10))); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Enqueue drops alert_<key>.txt containing the key.
func (s *FileStore) Enqueue(_ context.Context, key string) error {
	path, err := s.markerPath(key)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, []byte(key)); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

// Remove deletes the marker; a missing marker is not an error.
func (s *FileStore) Remove(_ context.Context, key string) error {
	path, err := s.markerPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove marker: %w", err)
	}
	return nil
}

// Pending lists marker keys in ascending order. Foreign files are ignored.
func (s *FileStore) Pending(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.pendingDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list markers: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := strings.CutPrefix(entry.Name(), markerPrefix)
		if !ok {
			continue
		}
		name, ok = strings.CutSuffix(name, markerSuffix)
		if !ok {
			continue
		}
		if _, ok := domain.KeySeq(name); !ok {
			continue
		}
		keys = append(keys, name)
	}
	domain.SortKeys(keys)
	return keys, nil
}

// Close is a no-op for files.
func (s *FileStore) Close() error { return nil }

// markerPath only accepts numeric keys, which cannot name another directory.
func (s *FileStore) markerPath(key string) (string, error) {
	if _, ok := domain.KeySeq(key); !ok || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid marker key %q", key)
	}
	return filepath.Join(s.pendingDir, markerPrefix+key+markerSuffix), nil
}

func parseCheckpoint(text string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// writeFileAtomic writes to a temp file in the same directory, syncs it and
// renames it over the target so readers never see a torn value.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
