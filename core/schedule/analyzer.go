package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/groundsched/core/timerange"
)

// Kind classifies how a reservation fared in a mutation.
type Kind string

const (
	// KindAdded means the new reservation kept its full interval.
	KindAdded Kind = "added"
	// KindSplit means the new reservation was cut into several fragments.
	KindSplit Kind = "split"
	// KindPartiallyLost means the new reservation survived as one shorter fragment.
	KindPartiallyLost Kind = "partially_lost"
	// KindRejected means a higher-priority reservation covers all of it.
	KindRejected Kind = "rejected"
	// KindRemoved means the reservation was withdrawn.
	KindRemoved Kind = "removed"
	// KindRevealed means an existing reservation gained fragments or time.
	KindRevealed Kind = "revealed"
	// KindCovered means an existing reservation lost fragments or time.
	KindCovered Kind = "covered"
	// KindDisplaced means an existing reservation no longer appears at all.
	KindDisplaced Kind = "displaced"
)

// Classification is one advisory record of the change analysis.
type Classification struct {
	ID            string        `json:"id"`
	Kind          Kind          `json:"kind"`
	Parts         int           `json:"parts"`
	PreviousParts int           `json:"previous_parts"`
	Scheduled     time.Duration `json:"scheduled"`
	Previous      time.Duration `json:"previous"`
	Lost          time.Duration `json:"lost"`
}

// String renders the record for the diagnostic stream.
func (c Classification) String() string {
	switch c.Kind {
	case KindAdded:
		return fmt.Sprintf("range %s was fully added", c.ID)
	case KindSplit:
		if c.Lost > 0 {
			return fmt.Sprintf("range %s was split into %d parts, lost %.0f seconds", c.ID, c.Parts, c.Lost.Seconds())
		}
		return fmt.Sprintf("range %s was split into %d parts", c.ID, c.Parts)
	case KindPartiallyLost:
		return fmt.Sprintf("range %s partially lost %.0f seconds", c.ID, c.Lost.Seconds())
	case KindRejected:
		return fmt.Sprintf("range %s was rejected: fully covered by higher priority ranges", c.ID)
	case KindRemoved:
		return fmt.Sprintf("range %s was removed (%d parts)", c.ID, c.PreviousParts)
	case KindRevealed:
		return fmt.Sprintf("range %s gained coverage: %d -> %d parts, %.0f -> %.0f seconds",
			c.ID, c.PreviousParts, c.Parts, c.Previous.Seconds(), c.Scheduled.Seconds())
	case KindCovered:
		return fmt.Sprintf("range %s lost coverage: %d -> %d parts, %.0f -> %.0f seconds",
			c.ID, c.PreviousParts, c.Parts, c.Previous.Seconds(), c.Scheduled.Seconds())
	case KindDisplaced:
		return fmt.Sprintf("range %s was displaced: no longer scheduled", c.ID)
	default:
		return fmt.Sprintf("range %s: %s", c.ID, string(c.Kind))
	}
}

// Analyze explains the transition from prev to next. added lists the ids
// appended by the mutation and removed the ids withdrawn by it. Every removed
// id must have been scheduled in prev; otherwise ErrConsistency is returned.
// Ids in neither set are reported only when their coverage changed.
//
// Results are ordered: added ids in input order, then removed ids in input
// order, then the remaining changes sorted by id.
func Analyze(prev, next []timerange.TimeRange, added, removed []string) ([]Classification, error) {
	before := timerange.Fragments(prev)
	after := timerange.Fragments(next)
	var res []Classification

	touched := make(map[string]struct{}, len(added)+len(removed))
	for _, id := range added {
		touched[id] = struct{}{}
		res = append(res, classifyAdded(id, after[id]))
	}
	for _, id := range removed {
		touched[id] = struct{}{}
		frags, ok := before[id]
		if !ok {
			return nil, fmt.Errorf("%w: removed range %s was not in the previous schedule", ErrConsistency, id)
		}
		if _, still := after[id]; still {
			return nil, fmt.Errorf("%w: removed range %s is still scheduled", ErrConsistency, id)
		}
		res = append(res, Classification{
			ID:            id,
			Kind:          KindRemoved,
			PreviousParts: len(frags),
			Previous:      timerange.TotalDuration(frags),
		})
	}

	others := make([]string, 0, len(before))
	for _, gen := range []map[string][]timerange.TimeRange{before, after} {
		for id := range gen {
			if _, ok := touched[id]; !ok {
				touched[id] = struct{}{}
				others = append(others, id)
			}
		}
	}
	sort.Strings(others)
	for _, id := range others {
		if c, changed := compare(id, before[id], after[id]); changed {
			res = append(res, c)
		}
	}
	return res, nil
}

func classifyAdded(id string, frags []timerange.TimeRange) Classification {
	if len(frags) == 0 {
		return Classification{ID: id, Kind: KindRejected}
	}
	total := timerange.TotalDuration(frags)
	c := Classification{
		ID:        id,
		Parts:     len(frags),
		Scheduled: total,
		Lost:      frags[0].InitialDuration - total,
	}
	switch {
	case len(frags) > 1:
		c.Kind = KindSplit
	case c.Lost > 0:
		c.Kind = KindPartiallyLost
	default:
		c.Kind = KindAdded
	}
	return c
}

func compare(id string, before, after []timerange.TimeRange) (Classification, bool) {
	c := Classification{
		ID:            id,
		Parts:         len(after),
		PreviousParts: len(before),
		Scheduled:     timerange.TotalDuration(after),
		Previous:      timerange.TotalDuration(before),
	}
	switch {
	case len(after) > 0:
		c.Lost = after[0].InitialDuration - c.Scheduled
	case len(before) > 0:
		c.Lost = before[0].InitialDuration
	}
	switch {
	case len(after) == 0:
		c.Kind = KindDisplaced
	case c.Scheduled > c.Previous:
		c.Kind = KindRevealed
	case c.Scheduled < c.Previous:
		c.Kind = KindCovered
	case c.Parts > c.PreviousParts:
		c.Kind = KindRevealed
	case c.Parts < c.PreviousParts:
		c.Kind = KindCovered
	default:
		return c, false
	}
	return c, true
}

// Verify checks the schedule invariants against the origin set: no two
// fragments overlap, every fragment belongs to an origin range, and no id is
// scheduled for longer than it requested.
func Verify(origin, sched []timerange.TimeRange) error {
	requested := make(map[string]time.Duration, len(origin))
	for _, o := range origin {
		requested[o.ID] = o.InitialDuration
	}
	ordered := append([]timerange.TimeRange(nil), sched...)
	timerange.SortByStart(ordered)
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Start.Before(ordered[i-1].Finish) {
			return fmt.Errorf("%w: %s overlaps %s", ErrConsistency, ordered[i-1], ordered[i])
		}
	}
	for id, frags := range timerange.Fragments(sched) {
		want, ok := requested[id]
		if !ok {
			return fmt.Errorf("%w: scheduled range %s has no origin", ErrConsistency, id)
		}
		if got := timerange.TotalDuration(frags); got > want {
			return fmt.Errorf("%w: range %s scheduled for %s, requested %s", ErrConsistency, id, got, want)
		}
	}
	return nil
}
