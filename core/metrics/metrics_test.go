package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/groundsched/core/factory"
	"github.com/kilianp07/groundsched/core/timerange"
)

type recordSink struct {
	mutations  int
	rejections int
	err        error
}

func (r *recordSink) RecordMutation(MutationEvent) error {
	r.mutations++
	return r.err
}

func (r *recordSink) RecordRejection(RejectionEvent) error {
	r.rejections++
	return nil
}

type mutationOnly struct{ n int }

func (m *mutationOnly) RecordMutation(MutationEvent) error { m.n++; return nil }

func TestMultiSinkForwardsToAll(t *testing.T) {
	failing := &recordSink{err: errors.New("down")}
	ok := &recordSink{}
	plain := &mutationOnly{}
	m := NewMultiSink(failing, ok, plain)

	err := m.RecordMutation(MutationEvent{Version: 1})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 1, ok.mutations, "a failing sink must not starve the others")
	assert.Equal(t, 1, plain.n)

	require.NoError(t, m.RecordRejection(RejectionEvent{Operation: "append"}))
	assert.Equal(t, 1, failing.rejections)
	assert.Equal(t, 1, ok.rejections)
}

func TestNewMetricsSink(t *testing.T) {
	s, err := NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	multi, ok := s.(*MultiSink)
	require.True(t, ok)
	assert.Len(t, multi.Sinks, 2)

	_, err = NewMetricsSink([]factory.ModuleConfig{{Type: "missing"}})
	assert.Error(t, err)
}

func TestComputeStats(t *testing.T) {
	assert.Equal(t, Stats{}, ComputeStats(nil))

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a, _ := timerange.New("a", base, base.Add(10*time.Minute), 1)
	b, _ := timerange.New("b", base.Add(30*time.Minute), base.Add(40*time.Minute), 1)
	st := ComputeStats([]timerange.TimeRange{a, b})
	assert.Equal(t, 2, st.Fragments)
	assert.Equal(t, 40*time.Minute, st.Span)
	assert.Equal(t, 20*time.Minute, st.Busy)
	assert.InDelta(t, 0.5, st.Utilization, 1e-9)
	assert.InDelta(t, 600, st.MeanFragment, 1e-9)
	assert.InDelta(t, 0, st.StdDevFragment, 1e-9)
}
