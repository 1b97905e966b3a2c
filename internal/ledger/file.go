package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultStaleLock is how old a lock file may get before it is considered abandoned.
const DefaultStaleLock = 2 * time.Hour

type fileState struct {
	Seen []string `json:"seen"`
}

// FileStore keeps the ledger in a JSON document of the form {"seen": [...]}.
type FileStore struct {
	path      string
	staleLock time.Duration
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, staleLock: DefaultStaleLock}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (Set, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewSet(), nil
	}
	if err != nil {
		return NewSet(), fmt.Errorf("%w: read %s: %v", ErrCorrupt, s.path, err)
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return NewSet(), fmt.Errorf("%w: decode %s: %v", ErrCorrupt, s.path, err)
	}
	return NewSet(st.Seen...), nil
}

// Save writes to a temporary sibling and renames it over the ledger, so a
// crash mid-write leaves the previous file intact.
func (s *FileStore) Save(_ context.Context, seen Set) error {
	data, err := json.MarshalIndent(fileState{Seen: seen.IDs()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// Lock creates <path>.lock exclusively. Lock files older than the stale
// threshold are taken over.
func (s *FileStore) Lock(_ context.Context) (func(context.Context) error, error) {
	lockPath := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		info, statErr := os.Stat(lockPath)
		if statErr != nil || time.Since(info.ModTime()) < s.staleLock {
			return nil, ErrLocked
		}
		if rmErr := os.Remove(lockPath); rmErr != nil {
			return nil, ErrLocked
		}
		f, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if errors.Is(err, fs.ErrExist) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	f.Close()

	return func(context.Context) error {
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("release ledger lock: %w", err)
		}
		return nil
	}, nil
}
