package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/groundsched/core/metrics"
	"github.com/kilianp07/groundsched/core/timerange"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func rng(t *testing.T, id string, start, finish, prio int) timerange.TimeRange {
	t.Helper()
	r, err := timerange.New(id, at(start), at(finish), prio)
	require.NoError(t, err)
	return r
}

type bounds struct {
	ID     string
	Start  int
	Finish int
}

func boundsOf(rs []timerange.TimeRange) []bounds {
	res := make([]bounds, len(rs))
	for i, r := range rs {
		res[i] = bounds{r.ID, int(r.Start.Sub(t0).Seconds()), int(r.Finish.Sub(t0).Seconds())}
	}
	return res
}

type fakePersistence struct {
	*MemoryPersistence
	mu        sync.Mutex
	failWrite bool
	failLoad  bool
	writes    int
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{MemoryPersistence: NewMemoryPersistence()}
}

func (f *fakePersistence) ReplaceAll(ctx context.Context, gen Generation, ranges []timerange.TimeRange) error {
	f.mu.Lock()
	f.writes++
	fail := f.failWrite
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryPersistence.ReplaceAll(ctx, gen, ranges)
}

func (f *fakePersistence) LoadAll(ctx context.Context, gen Generation) ([]timerange.TimeRange, error) {
	if f.failLoad {
		return nil, errors.New("connection refused")
	}
	return f.MemoryPersistence.LoadAll(ctx, gen)
}

type recordNotifier struct{ got []Mutation }

func (r *recordNotifier) Publish(m Mutation) { r.got = append(r.got, m) }

type recordDiagnostics struct{ got []DiagnosticRecord }

func (r *recordDiagnostics) RecordDiagnostics(_ context.Context, rec DiagnosticRecord) error {
	r.got = append(r.got, rec)
	return nil
}

type recordMetrics struct {
	mutations  []metrics.MutationEvent
	rejections []metrics.RejectionEvent
}

func (r *recordMetrics) RecordMutation(ev metrics.MutationEvent) error {
	r.mutations = append(r.mutations, ev)
	return nil
}

func (r *recordMetrics) RecordRejection(ev metrics.RejectionEvent) error {
	r.rejections = append(r.rejections, ev)
	return nil
}

func kindsByID(cs []Classification) map[string]Kind {
	res := make(map[string]Kind, len(cs))
	for _, c := range cs {
		res[c.ID] = c.Kind
	}
	return res
}

func scenarioA(t *testing.T, s *Store) Mutation {
	t.Helper()
	m, err := s.Append(context.Background(),
		rng(t, "R1", 1, 11, 3),
		rng(t, "R2", 5, 25, 2),
		rng(t, "R3", 1, 31, 1),
	)
	require.NoError(t, err)
	return m
}

func TestStoreAppendTrimScenario(t *testing.T) {
	p := newFakePersistence()
	s := NewStore(context.Background(), p, nil)
	m := scenarioA(t, s)

	assert.Equal(t, []bounds{{"R1", 1, 11}, {"R2", 11, 25}, {"R3", 25, 31}}, boundsOf(s.Schedule()))
	assert.Empty(t, s.Previous())
	assert.Len(t, s.Origin(), 3)
	assert.Equal(t, uint64(1), m.Version)
	assert.Equal(t, map[string]Kind{"R1": KindAdded, "R2": KindPartiallyLost, "R3": KindPartiallyLost}, kindsByID(m.Classifications))

	for _, gen := range Generations {
		stored, err := p.MemoryPersistence.LoadAll(context.Background(), gen)
		require.NoError(t, err)
		switch gen {
		case GenOrigin:
			assert.Len(t, stored, 3)
		case GenPrevMerge:
			assert.Empty(t, stored)
		case GenSchedule:
			assert.Equal(t, s.Schedule(), stored)
		}
	}
}

func TestStoreAppendRejectedScenario(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	_, err := s.Append(context.Background(), rng(t, "R1", 1, 11, 3))
	require.NoError(t, err)

	m, err := s.Append(context.Background(), rng(t, "R4", 2, 4, 1))
	require.NoError(t, err)
	require.Len(t, m.Classifications, 1)
	assert.Equal(t, KindRejected, m.Classifications[0].Kind)
	assert.Equal(t, []bounds{{"R1", 1, 11}}, boundsOf(s.Schedule()))
	assert.Len(t, s.Origin(), 2, "rejected ranges stay in origin")
}

func TestStoreRemoveRestoresCoverage(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	scenarioA(t, s)

	m, err := s.Remove(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, []bounds{{"R3", 1, 5}, {"R2", 5, 25}, {"R3", 25, 31}}, boundsOf(s.Schedule()))
	assert.Equal(t, []bounds{{"R1", 1, 11}, {"R2", 11, 25}, {"R3", 25, 31}}, boundsOf(s.Previous()))

	assert.Equal(t, map[string]Kind{"R1": KindRemoved, "R2": KindRevealed, "R3": KindRevealed}, kindsByID(m.Classifications))
	for _, c := range m.Classifications {
		switch c.ID {
		case "R2":
			assert.Equal(t, 14*time.Second, c.Previous)
			assert.Equal(t, 20*time.Second, c.Scheduled)
		case "R3":
			assert.Equal(t, 1, c.PreviousParts)
			assert.Equal(t, 2, c.Parts)
		}
	}
}

func TestStoreRemoveRejectedReservation(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	_, err := s.Append(context.Background(), rng(t, "R1", 1, 11, 3), rng(t, "R4", 2, 4, 1))
	require.NoError(t, err)

	m, err := s.Remove(context.Background(), "R4")
	require.NoError(t, err)
	require.Len(t, m.Classifications, 1)
	assert.Equal(t, Classification{ID: "R4", Kind: KindRemoved}, m.Classifications[0])
}

func TestStoreValidationScenario(t *testing.T) {
	p := newFakePersistence()
	s := NewStore(context.Background(), p, nil)
	rec := &recordMetrics{}
	s.SetMetrics(rec)

	_, err := s.Append(context.Background(), timerange.TimeRange{ID: "x", Start: at(0), Finish: at(0), Priority: 1})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Empty(t, s.Origin())
	assert.Equal(t, 0, p.writes, "rejected batches must not reach persistence")
	require.Len(t, rec.rejections, 1)
	assert.Equal(t, "validation", rec.rejections[0].Reason)
}

func TestStoreValidationIsAllOrNothing(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	_, err := s.Append(context.Background(), rng(t, "A", 0, 10, 1))
	require.NoError(t, err)

	cases := map[string][]timerange.TimeRange{
		"zero priority":      {rng(t, "B", 0, 5, 1), rng(t, "C", 0, 5, 0)},
		"negative priority":  {rng(t, "B", 0, 5, -2)},
		"active duplicate":   {rng(t, "B", 0, 5, 1), rng(t, "A", 20, 30, 1)},
		"in-batch duplicate": {rng(t, "B", 0, 5, 1), rng(t, "B", 20, 30, 1)},
		"missing id":         {rng(t, "", 0, 5, 1)},
		"inverted":           {{ID: "B", Start: at(9), Finish: at(3), Priority: 1}},
		"empty batch":        nil,
	}
	for name, batch := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Append(context.Background(), batch...)
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
			assert.Len(t, s.Origin(), 1)
			assert.Equal(t, uint64(1), s.Version())
		})
	}
}

func TestStoreTieBreakScenario(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	_, err := s.Append(context.Background(), rng(t, "R5", 0, 10, 2), rng(t, "R6", 5, 15, 2))
	require.NoError(t, err)
	assert.Equal(t, []bounds{{"R5", 0, 10}, {"R6", 10, 15}}, boundsOf(s.Schedule()))
}

func TestStoreRemoveUnknown(t *testing.T) {
	p := newFakePersistence()
	s := NewStore(context.Background(), p, nil)
	scenarioA(t, s)
	writes := p.writes

	_, err := s.Remove(context.Background(), "R1", "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "nope")
	assert.Len(t, s.Origin(), 3, "no partial removal")
	assert.Equal(t, writes, p.writes)

	_, err = s.Remove(context.Background())
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestStoreRemoveDuplicateIDs(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	scenarioA(t, s)
	m, err := s.Remove(context.Background(), "R2", "R2")
	require.NoError(t, err)
	assert.Equal(t, []string{"R2"}, m.Removed)
}

func TestStorePersistenceFailureKeepsMemoryAuthoritative(t *testing.T) {
	p := newFakePersistence()
	s := NewStore(context.Background(), p, nil)
	scenarioA(t, s)

	p.failWrite = true
	m, err := s.Append(context.Background(), rng(t, "R7", 40, 50, 1))
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Equal(t, uint64(2), m.Version)
	assert.True(t, s.Dirty())
	assert.Len(t, s.Schedule(), 4)

	stored, _ := p.MemoryPersistence.LoadAll(context.Background(), GenOrigin)
	assert.Len(t, stored, 3)

	p.failWrite = false
	require.NoError(t, s.Sync(context.Background()))
	assert.False(t, s.Dirty())
	stored, _ = p.MemoryPersistence.LoadAll(context.Background(), GenOrigin)
	assert.Len(t, stored, 4)
}

func TestStoreStartsEmptyWhenBackendUnavailable(t *testing.T) {
	p := newFakePersistence()
	p.failLoad = true
	s := NewStore(context.Background(), p, nil)
	assert.Empty(t, s.Schedule())
	assert.Empty(t, s.Origin())

	_, err := s.Append(context.Background(), rng(t, "A", 0, 10, 1))
	require.NoError(t, err)
}

func TestStoreReloadsPersistedState(t *testing.T) {
	p := newFakePersistence()
	s := NewStore(context.Background(), p, nil)
	scenarioA(t, s)
	_, err := s.Remove(context.Background(), "R1")
	require.NoError(t, err)

	reloaded := NewStore(context.Background(), p, nil)
	assert.Equal(t, s.Schedule(), reloaded.Schedule())
	assert.Equal(t, s.Origin(), reloaded.Origin())
	assert.Equal(t, s.Previous(), reloaded.Previous())
}

func TestStoreExpire(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	scenarioA(t, s)

	m, err := s.Expire(context.Background(), at(0))
	require.NoError(t, err)
	assert.Zero(t, m.Version, "nothing expired")

	m, err = s.Expire(context.Background(), at(11))
	require.NoError(t, err)
	assert.Equal(t, OpExpire, m.Operation)
	assert.Equal(t, []string{"R1"}, m.Removed)
	assert.Len(t, s.Origin(), 2)
}

func TestStoreCollaborators(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	n := &recordNotifier{}
	d := &recordDiagnostics{}
	mt := &recordMetrics{}
	s.SetNotifier(n)
	s.SetDiagnostics(d)
	s.SetMetrics(mt)
	s.SetClock(func() time.Time { return t0 })

	scenarioA(t, s)
	require.Len(t, n.got, 1)
	require.Len(t, d.got, 1)
	require.Len(t, mt.mutations, 1)

	assert.Equal(t, t0, d.got[0].Time)
	assert.Len(t, d.got[0].Messages, 3)
	assert.Equal(t, "range R1 was fully added", d.got[0].Messages[0])
	ev := mt.mutations[0]
	assert.Equal(t, "append", ev.Operation)
	assert.Equal(t, 3, ev.ScheduleSize)
	assert.Equal(t, 2, ev.Kinds["partially_lost"])
	assert.Equal(t, 30*time.Second, ev.Stats.Busy)
}

func TestStoreActiveAndUpcoming(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	scenarioA(t, s)

	cur, ok := s.Active(at(12))
	require.True(t, ok)
	assert.Equal(t, "R2", cur.ID)
	_, ok = s.Active(at(40))
	assert.False(t, ok)

	next := s.Upcoming(at(2), 1)
	require.Len(t, next, 1)
	assert.Equal(t, "R2", next[0].ID)
	assert.Len(t, s.Upcoming(at(0), 0), 3)
}

func TestStoreSnapshotsAreCopies(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	scenarioA(t, s)
	snap := s.Schedule()
	snap[0].ID = "mutated"
	assert.Equal(t, "R1", s.Schedule()[0].ID)
}

func TestStoreConcurrentReadersSeeWholeGenerations(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				sched := s.Schedule()
				for i := 1; i < len(sched); i++ {
					if sched[i].Start.Before(sched[i-1].Finish) {
						t.Errorf("reader observed overlapping schedule")
						return
					}
				}
			}
		}()
	}

	var writers sync.WaitGroup
	for w := 0; w < 4; w++ {
		writers.Add(1)
		go func(w int) {
			defer writers.Done()
			for i := 0; i < 25; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				r, _ := timerange.New(id, at(i*3+w), at(i*3+w+20), 1+(i+w)%4)
				if _, err := s.Append(ctx, r); err != nil {
					t.Errorf("append %s: %v", id, err)
				}
			}
		}(w)
	}
	writers.Wait()
	close(stop)
	wg.Wait()

	assert.Equal(t, uint64(100), s.Version())
	assert.Len(t, s.Origin(), 100)
	require.NoError(t, Verify(s.Origin(), s.Schedule()))
}

func TestAppendResetsCallerProvenance(t *testing.T) {
	s := NewStore(context.Background(), nil, nil)
	r := timerange.TimeRange{
		ID:              "a",
		Start:           at(0),
		Finish:          at(10),
		Priority:        1,
		InitialStart:    at(3),
		InitialDuration: 5 * time.Second,
		Parts:           7,
	}
	m, err := s.Append(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, errors.Is(err, ErrConsistency))
	require.Len(t, m.Classifications, 1)
	assert.Equal(t, KindAdded, m.Classifications[0].Kind)

	got := s.Origin()[0]
	assert.Equal(t, at(0), got.InitialStart)
	assert.Equal(t, 10*time.Second, got.InitialDuration)
	assert.Equal(t, 1, got.Parts)
	assert.Equal(t, 10*time.Second, s.Schedule()[0].Duration())
}

func TestStoreDiscardsInvalidPersistedOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin []timerange.TimeRange
	}{
		{"duplicate id", []timerange.TimeRange{
			{ID: "a", Start: at(0), Finish: at(10), Priority: 1},
			{ID: "a", Start: at(20), Finish: at(30), Priority: 2},
		}},
		{"priority below one", []timerange.TimeRange{
			{ID: "a", Start: at(0), Finish: at(10), Priority: 0},
		}},
		{"missing id", []timerange.TimeRange{
			{Start: at(0), Finish: at(10), Priority: 1},
		}},
		{"inverted bounds", []timerange.TimeRange{
			{ID: "a", Start: at(10), Finish: at(0), Priority: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMemoryPersistence()
			require.NoError(t, p.ReplaceAll(context.Background(), GenOrigin, tt.origin))
			s := NewStore(context.Background(), p, nil)
			assert.Empty(t, s.Origin())
			assert.Empty(t, s.Schedule())
		})
	}
}

func TestStoreLoadRestoresProvenance(t *testing.T) {
	p := NewMemoryPersistence()
	require.NoError(t, p.ReplaceAll(context.Background(), GenOrigin, []timerange.TimeRange{
		{ID: "a", Start: at(0), Finish: at(10), Priority: 1, InitialDuration: time.Second},
	}))
	s := NewStore(context.Background(), p, nil)
	require.Len(t, s.Origin(), 1)
	assert.Equal(t, 10*time.Second, s.Origin()[0].InitialDuration)
	assert.Equal(t, 1, s.Schedule()[0].Parts)
}
