package metrics

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/groundsched/core/timerange"
)

// Stats describes the shape of a schedule.
type Stats struct {
	Fragments int
	// Span is the time between the earliest start and the latest finish.
	Span time.Duration
	// Busy is the total reserved time.
	Busy time.Duration
	// Utilization is Busy / Span, 0 for an empty schedule.
	Utilization float64
	// MeanFragment and StdDevFragment are in seconds.
	MeanFragment   float64
	StdDevFragment float64
}

// ComputeStats summarizes a non-overlapping schedule.
func ComputeStats(sched []timerange.TimeRange) Stats {
	if len(sched) == 0 {
		return Stats{}
	}
	lengths := make([]float64, len(sched))
	first, last := sched[0].Start, sched[0].Finish
	for i, r := range sched {
		lengths[i] = r.Duration().Seconds()
		if r.Start.Before(first) {
			first = r.Start
		}
		if r.Finish.After(last) {
			last = r.Finish
		}
	}
	busy := floats.Sum(lengths)
	span := last.Sub(first)
	st := Stats{
		Fragments:    len(sched),
		Span:         span,
		Busy:         time.Duration(busy * float64(time.Second)),
		MeanFragment: stat.Mean(lengths, nil),
	}
	if len(lengths) > 1 {
		st.StdDevFragment = stat.StdDev(lengths, nil)
	}
	if span > 0 {
		st.Utilization = busy / span.Seconds()
	}
	return st
}
