package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/groundsched/core/timerange"
)

// Generation names one of the three schedule collections kept by the Store.
type Generation string

const (
	// GenOrigin holds every appended range, unmerged.
	GenOrigin Generation = "origin"
	// GenPrevMerge holds the schedule as it was before the last mutation.
	GenPrevMerge Generation = "prev_merge"
	// GenSchedule holds the current conflict-free schedule.
	GenSchedule Generation = "schedule"
)

// Generations lists every generation in persistence order.
var Generations = []Generation{GenOrigin, GenPrevMerge, GenSchedule}

// Valid reports whether g is a known generation.
func (g Generation) Valid() bool {
	switch g {
	case GenOrigin, GenPrevMerge, GenSchedule:
		return true
	}
	return false
}

// Persistence durably stores schedule generations. Implementations own
// timeouts and cancellation of their I/O.
type Persistence interface {
	ReplaceAll(ctx context.Context, gen Generation, ranges []timerange.TimeRange) error
	LoadAll(ctx context.Context, gen Generation) ([]timerange.TimeRange, error)
	Close() error
}

// MemoryPersistence keeps generations in memory. It is the default when no
// durable backend is configured.
type MemoryPersistence struct {
	mu   sync.RWMutex
	data map[Generation][]timerange.TimeRange
}

// NewMemoryPersistence returns an empty MemoryPersistence.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{data: make(map[Generation][]timerange.TimeRange)}
}

// ReplaceAll stores a copy of ranges under gen.
func (m *MemoryPersistence) ReplaceAll(_ context.Context, gen Generation, ranges []timerange.TimeRange) error {
	if !gen.Valid() {
		return fmt.Errorf("unknown generation %q", gen)
	}
	cp := append([]timerange.TimeRange(nil), ranges...)
	m.mu.Lock()
	m.data[gen] = cp
	m.mu.Unlock()
	return nil
}

// LoadAll returns a copy of the ranges stored under gen.
func (m *MemoryPersistence) LoadAll(_ context.Context, gen Generation) ([]timerange.TimeRange, error) {
	if !gen.Valid() {
		return nil, fmt.Errorf("unknown generation %q", gen)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]timerange.TimeRange(nil), m.data[gen]...), nil
}

func (m *MemoryPersistence) Close() error { return nil }
