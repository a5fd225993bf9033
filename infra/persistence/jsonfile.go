package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kilianp07/groundsched/core/schedule"
	"github.com/kilianp07/groundsched/core/timerange"
	"github.com/kilianp07/groundsched/internal/filelock"
)

// JSONFileStore keeps each generation in its own JSON file inside a
// directory. Files are replaced atomically through a rename. A writable
// store holds an exclusive lock on dir until Close.
type JSONFileStore struct {
	dir      string
	mu       sync.Mutex
	lock     *filelock.Lock
	readOnly bool
}

// NewJSONFileStore creates dir if needed and takes its writer lock. It
// fails with ErrLocked when another store writes to dir.
func NewJSONFileStore(dir string, opts ...Option) (*JSONFileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("jsonfile: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	lock, err := o.acquire(filepath.Join(dir, ".lock"))
	if err != nil {
		return nil, fmt.Errorf("jsonfile: %w", err)
	}
	return &JSONFileStore{dir: dir, lock: lock, readOnly: o.readOnly}, nil
}

func (s *JSONFileStore) path(gen schedule.Generation) string {
	return filepath.Join(s.dir, string(gen)+".json")
}

// ReplaceAll overwrites the file of gen with ranges.
func (s *JSONFileStore) ReplaceAll(ctx context.Context, gen schedule.Generation, ranges []timerange.TimeRange) error {
	if !gen.Valid() {
		return fmt.Errorf("unknown generation %q", gen)
	}
	if s.readOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ranges == nil {
		ranges = []timerange.TimeRange{}
	}
	b, err := json.MarshalIndent(ranges, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := os.CreateTemp(s.dir, string(gen)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(gen))
}

// LoadAll reads the file of gen. A missing file is an empty generation.
func (s *JSONFileStore) LoadAll(ctx context.Context, gen schedule.Generation) ([]timerange.TimeRange, error) {
	if !gen.Valid() {
		return nil, fmt.Errorf("unknown generation %q", gen)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path(gen))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ranges []timerange.TimeRange
	if err := json.Unmarshal(b, &ranges); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path(gen), err)
	}
	return ranges, nil
}

// Close releases the writer lock.
func (s *JSONFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Unlock()
}
