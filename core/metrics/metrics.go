package metrics

import (
	"time"
)

// MutationEvent summarizes one schedule mutation.
type MutationEvent struct {
	Version   uint64
	Operation string
	Added     int
	Removed   int
	// Kinds counts classifications by kind (added, split, rejected...).
	Kinds             map[string]int
	OriginSize        int
	ScheduleSize      int
	MergeDuration     time.Duration
	PersistenceFailed bool
	Stats             Stats
	Time              time.Time
}

// MetricsSink records schedule mutations.
type MetricsSink interface {
	RecordMutation(ev MutationEvent) error
}

// RejectionEvent records a batch refused before any mutation happened.
type RejectionEvent struct {
	Operation string
	Reason    string
	Time      time.Time
}

// RejectionRecorder is implemented by sinks that count refused batches.
type RejectionRecorder interface {
	RecordRejection(ev RejectionEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordMutation(MutationEvent) error   { return nil }
func (NopSink) RecordRejection(RejectionEvent) error { return nil }

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordMutation forwards the event to all sinks, returning the first error.
func (m *MultiSink) RecordMutation(ev MutationEvent) error {
	var first error
	for _, s := range m.Sinks {
		if err := s.RecordMutation(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RecordRejection forwards to the sinks implementing RejectionRecorder.
func (m *MultiSink) RecordRejection(ev RejectionEvent) error {
	var first error
	for _, s := range m.Sinks {
		if rec, ok := s.(RejectionRecorder); ok {
			if err := rec.RecordRejection(ev); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
