package persistence

import (
	"errors"

	"github.com/kilianp07/groundsched/internal/filelock"
)

// ErrReadOnly is returned by ReplaceAll on a backend opened with ReadOnly.
var ErrReadOnly = errors.New("persistence opened read-only")

// ErrLocked is returned when another writer already holds the storage.
var ErrLocked = filelock.ErrLocked

// Option tunes how a backend is opened.
type Option func(*options)

type options struct {
	readOnly bool
}

// ReadOnly opens the backend without taking the writer lock. Writes fail
// with ErrReadOnly.
func ReadOnly() Option { return func(o *options) { o.readOnly = true } }

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// acquire takes the writer lock at path unless the backend is read-only.
func (o options) acquire(path string) (*filelock.Lock, error) {
	if o.readOnly {
		return nil, nil
	}
	return filelock.TryLock(path)
}
