package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/groundsched/core/logger"
	"github.com/kilianp07/groundsched/core/metrics"
	"github.com/kilianp07/groundsched/core/monitoring"
	"github.com/kilianp07/groundsched/core/timerange"
)

// generations is one immutable snapshot of the store state. A published
// snapshot is never modified.
type generations struct {
	version  uint64
	origin   []timerange.TimeRange
	prev     []timerange.TimeRange
	schedule []timerange.TimeRange
}

// Store owns the origin, previous and current schedule generations of the
// ground station. Mutations are serialized; reads are lock-free and always
// observe a complete generation set.
type Store struct {
	mu      sync.Mutex
	state   atomic.Pointer[generations]
	dirty   atomic.Bool
	persist Persistence
	log     logger.Logger
	notify  Notifier
	metrics metrics.MetricsSink
	diag    DiagnosticSink
	monitor monitoring.Monitor
	now     func() time.Time
}

// NewStore loads the persisted generations and returns a ready Store. A
// failing backend is logged and the store starts empty. A nil persistence
// uses MemoryPersistence.
func NewStore(ctx context.Context, p Persistence, log logger.Logger) *Store {
	if p == nil {
		p = NewMemoryPersistence()
	}
	if log == nil {
		log = logger.Nop{}
	}
	s := &Store{
		persist: p,
		log:     log,
		metrics: metrics.NopSink{},
		monitor: monitoring.NopMonitor{},
		now:     time.Now,
	}
	s.state.Store(s.load(ctx))
	return s
}

func (s *Store) load(ctx context.Context) *generations {
	loaded := make(map[Generation][]timerange.TimeRange, len(Generations))
	for _, gen := range Generations {
		ranges, err := s.persist.LoadAll(ctx, gen)
		if err != nil {
			s.log.Warnf("load %s generation: %v; starting with an empty schedule", gen, err)
			return &generations{}
		}
		loaded[gen] = ranges
	}
	origin := loaded[GenOrigin]
	if len(origin) > 0 {
		valid, err := validateBatch(nil, origin)
		if err != nil {
			s.log.Warnf("discarding persisted origin: %v", err)
			return &generations{}
		}
		origin = valid
	}
	sched := timerange.Merge(origin)
	if len(sched) != len(loaded[GenSchedule]) {
		s.log.Warnf("persisted schedule has %d fragments, origin merges into %d; using the recomputed schedule",
			len(loaded[GenSchedule]), len(sched))
	}
	s.log.Infof("loaded %d reservations, %d scheduled fragments", len(origin), len(sched))
	return &generations{origin: origin, prev: loaded[GenPrevMerge], schedule: sched}
}

// SetNotifier registers the receiver of published mutations.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notify = n
	s.mu.Unlock()
}

// SetMetrics configures the metrics sink.
func (s *Store) SetMetrics(m metrics.MetricsSink) {
	if m == nil {
		m = metrics.NopSink{}
	}
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

// SetDiagnostics configures where classification records are written.
func (s *Store) SetDiagnostics(d DiagnosticSink) {
	s.mu.Lock()
	s.diag = d
	s.mu.Unlock()
}

// SetMonitor configures the defect reporter.
func (s *Store) SetMonitor(m monitoring.Monitor) {
	if m == nil {
		m = monitoring.NopMonitor{}
	}
	s.mu.Lock()
	s.monitor = m
	s.mu.Unlock()
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Append validates ranges as one batch and adds them to the origin set. A
// batch with any invalid range is rejected entirely with ErrValidation.
func (s *Store) Append(ctx context.Context, ranges ...timerange.TimeRange) (Mutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	batch, err := validateBatch(cur.origin, ranges)
	if err != nil {
		s.reject(OpAppend, err)
		return Mutation{}, err
	}
	origin := make([]timerange.TimeRange, 0, len(cur.origin)+len(batch))
	origin = append(origin, cur.origin...)
	origin = append(origin, batch...)

	added := make([]string, len(batch))
	for i, r := range batch {
		added[i] = r.ID
	}
	return s.apply(ctx, OpAppend, cur, origin, added, nil)
}

func validateBatch(origin, ranges []timerange.TimeRange) ([]timerange.TimeRange, error) {
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrValidation)
	}
	active := make(map[string]struct{}, len(origin)+len(ranges))
	for _, r := range origin {
		active[r.ID] = struct{}{}
	}
	batch := make([]timerange.TimeRange, len(ranges))
	for i, r := range ranges {
		switch {
		case r.ID == "":
			return nil, fmt.Errorf("%w: range %d has no id", ErrValidation, i)
		case r.Priority < 1:
			return nil, fmt.Errorf("%w: range %s has priority %d, must be at least 1", ErrValidation, r.ID, r.Priority)
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if _, dup := active[r.ID]; dup {
			return nil, fmt.Errorf("%w: range id %s is already active", ErrValidation, r.ID)
		}
		active[r.ID] = struct{}{}
		// an origin entry is the requested interval itself
		r.InitialStart = r.Start
		r.InitialDuration = r.Duration()
		r.Parts = 1
		batch[i] = r
	}
	return batch, nil
}

// Remove withdraws reservations by id. Every id must be in the origin set,
// otherwise ErrNotFound is returned and nothing changes.
func (s *Store) Remove(ctx context.Context, ids ...string) (Mutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(ctx, OpRemove, ids)
}

// Expire removes every reservation whose requested finish is at or before
// now. It returns a zero Mutation when nothing expired.
func (s *Store) Expire(ctx context.Context, now time.Time) (Mutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, r := range s.state.Load().origin {
		if !r.Finish.After(now) {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return Mutation{}, nil
	}
	return s.remove(ctx, OpExpire, ids)
}

func (s *Store) remove(ctx context.Context, op Operation, ids []string) (Mutation, error) {
	cur := s.state.Load()
	if len(ids) == 0 {
		err := fmt.Errorf("%w: no ids to remove", ErrValidation)
		s.reject(op, err)
		return Mutation{}, err
	}
	present := make(map[string]struct{}, len(cur.origin))
	for _, r := range cur.origin {
		present[r.ID] = struct{}{}
	}
	want := make(map[string]struct{}, len(ids))
	var uniq, missing []string
	for _, id := range ids {
		if _, seen := want[id]; seen {
			continue
		}
		want[id] = struct{}{}
		uniq = append(uniq, id)
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		err := fmt.Errorf("%w: %s", ErrNotFound, strings.Join(missing, ", "))
		s.reject(op, err)
		return Mutation{}, err
	}

	origin := make([]timerange.TimeRange, 0, len(cur.origin))
	for _, r := range cur.origin {
		if _, drop := want[r.ID]; !drop {
			origin = append(origin, r)
		}
	}
	return s.apply(ctx, op, cur, origin, nil, uniq)
}

// apply recomputes the schedule from origin, persists the new generations
// and publishes them. Must be called with s.mu held.
func (s *Store) apply(ctx context.Context, op Operation, cur *generations, origin []timerange.TimeRange, added, removed []string) (Mutation, error) {
	started := time.Now()
	next := timerange.Merge(origin)
	mergeDur := time.Since(started)

	if err := Verify(origin, next); err != nil {
		return Mutation{}, s.defect(op, err)
	}

	// reservations that were fully rejected have nothing to compare in the
	// previous schedule; report them here rather than as a consistency error
	scheduled := timerange.Fragments(cur.schedule)
	var analyzed []string
	var unscheduled []Classification
	for _, id := range removed {
		if _, ok := scheduled[id]; ok {
			analyzed = append(analyzed, id)
			continue
		}
		unscheduled = append(unscheduled, Classification{ID: id, Kind: KindRemoved})
	}
	classes, err := Analyze(cur.schedule, next, added, analyzed)
	if err != nil {
		return Mutation{}, s.defect(op, err)
	}
	classes = append(classes, unscheduled...)

	gen := &generations{
		version:  cur.version + 1,
		origin:   origin,
		prev:     cur.schedule,
		schedule: next,
	}
	perr := s.persistAll(ctx, gen)
	s.state.Store(gen)
	s.dirty.Store(perr != nil)

	m := Mutation{
		Version:         gen.version,
		Operation:       op,
		Added:           added,
		Removed:         removed,
		Classifications: classes,
		Schedule:        copyRanges(next),
		MergeDuration:   mergeDur,
		Time:            s.now(),
	}
	s.report(ctx, m, len(origin), perr != nil)
	if perr != nil {
		s.log.Errorf("%s v%d applied in memory but not persisted: %v", op, gen.version, perr)
		return m, perr
	}
	return m, nil
}

func (s *Store) persistAll(ctx context.Context, gen *generations) error {
	byGen := map[Generation][]timerange.TimeRange{
		GenOrigin:    gen.origin,
		GenPrevMerge: gen.prev,
		GenSchedule:  gen.schedule,
	}
	for _, g := range Generations {
		if err := s.persist.ReplaceAll(ctx, g, byGen[g]); err != nil {
			return fmt.Errorf("%w: generation %s: %w", ErrPersistence, g, err)
		}
	}
	return nil
}

// Sync writes the current generations again. It is used to catch up after
// a mutation whose persistence failed.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistAll(ctx, s.state.Load()); err != nil {
		s.dirty.Store(true)
		return err
	}
	s.dirty.Store(false)
	return nil
}

// Dirty reports whether the last persistence attempt failed.
func (s *Store) Dirty() bool { return s.dirty.Load() }

func (s *Store) defect(op Operation, err error) error {
	s.monitor.CaptureException(err, map[string]string{"module": "schedule", "operation": string(op)})
	s.log.Errorf("%s aborted: %v", op, err)
	return err
}

func (s *Store) reject(op Operation, err error) {
	s.log.Warnf("%s rejected: %v", op, err)
	if rec, ok := s.metrics.(metrics.RejectionRecorder); ok {
		reason := "validation"
		if errors.Is(err, ErrNotFound) {
			reason = "not_found"
		}
		if rerr := rec.RecordRejection(metrics.RejectionEvent{Operation: string(op), Reason: reason, Time: s.now()}); rerr != nil {
			s.log.Warnf("record rejection: %v", rerr)
		}
	}
}

// report hands a published mutation to the advisory collaborators. Their
// failures are logged and never undo the mutation.
func (s *Store) report(ctx context.Context, m Mutation, originSize int, persistFailed bool) {
	kinds := make(map[string]int)
	for _, c := range m.Classifications {
		kinds[string(c.Kind)]++
		s.log.Infow(c.String(), logger.Fields{
			"version": m.Version,
			"op":      string(m.Operation),
			"id":      c.ID,
			"kind":    string(c.Kind),
			"parts":   c.Parts,
		})
	}
	if s.diag != nil {
		if err := s.diag.RecordDiagnostics(ctx, NewDiagnosticRecord(m)); err != nil {
			s.log.Warnf("record diagnostics: %v", err)
		}
	}
	ev := metrics.MutationEvent{
		Version:           m.Version,
		Operation:         string(m.Operation),
		Added:             len(m.Added),
		Removed:           len(m.Removed),
		Kinds:             kinds,
		OriginSize:        originSize,
		ScheduleSize:      len(m.Schedule),
		MergeDuration:     m.MergeDuration,
		PersistenceFailed: persistFailed,
		Stats:             metrics.ComputeStats(m.Schedule),
		Time:              m.Time,
	}
	if err := s.metrics.RecordMutation(ev); err != nil {
		s.log.Warnf("record mutation metrics: %v", err)
	}
	if s.notify != nil {
		s.notify.Publish(m)
	}
}

// Schedule returns the current conflict-free schedule ordered by start.
func (s *Store) Schedule() []timerange.TimeRange { return copyRanges(s.state.Load().schedule) }

// Origin returns every active reservation as requested, in submission order.
func (s *Store) Origin() []timerange.TimeRange { return copyRanges(s.state.Load().origin) }

// Previous returns the schedule as it was before the last mutation.
func (s *Store) Previous() []timerange.TimeRange { return copyRanges(s.state.Load().prev) }

// Version returns the number of mutations applied since startup.
func (s *Store) Version() uint64 { return s.state.Load().version }

// Active returns the fragment owning the station at now, if any.
func (s *Store) Active(now time.Time) (timerange.TimeRange, bool) {
	for _, r := range s.state.Load().schedule {
		if r.Covers(now) {
			return r, true
		}
	}
	return timerange.TimeRange{}, false
}

// Upcoming returns up to limit fragments starting at or after now. A
// non-positive limit returns all of them.
func (s *Store) Upcoming(now time.Time, limit int) []timerange.TimeRange {
	sched := s.state.Load().schedule
	i := sort.Search(len(sched), func(i int) bool { return !sched[i].Start.Before(now) })
	rest := sched[i:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	return copyRanges(rest)
}

// Close releases the persistence backend.
func (s *Store) Close() error { return s.persist.Close() }

func copyRanges(rs []timerange.TimeRange) []timerange.TimeRange {
	if len(rs) == 0 {
		return []timerange.TimeRange{}
	}
	return append([]timerange.TimeRange(nil), rs...)
}
