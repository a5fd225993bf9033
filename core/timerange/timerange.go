// Package timerange implements the interval algebra used to build a
// conflict-free ground station schedule. Ranges are immutable values; every
// operation returns new values.
package timerange

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRange is returned when a range would not have start < finish.
var ErrInvalidRange = errors.New("invalid time range")

// TimeRange is a reservation interval of the ground station.
type TimeRange struct {
	ID       string    `json:"id"`
	Start    time.Time `json:"start"`
	Finish   time.Time `json:"finish"`
	Priority int       `json:"priority"`
	// Parts is the number of fragments sharing ID in the last merge result.
	Parts int `json:"parts"`
	// InitialStart and InitialDuration describe the interval as it was
	// originally requested, before any merge trimmed or split it.
	InitialStart    time.Time     `json:"initial_start"`
	InitialDuration time.Duration `json:"initial_duration"`
}

// New validates the bounds and builds a TimeRange whose provenance is the
// range itself.
func New(id string, start, finish time.Time, priority int) (TimeRange, error) {
	if !start.Before(finish) {
		return TimeRange{}, fmt.Errorf("%w: start %s is not before finish %s",
			ErrInvalidRange, start.Format(time.RFC3339), finish.Format(time.RFC3339))
	}
	return TimeRange{
		ID:              id,
		Start:           start,
		Finish:          finish,
		Priority:        priority,
		Parts:           1,
		InitialStart:    start,
		InitialDuration: finish.Sub(start),
	}, nil
}

// fragment returns a piece of r with new bounds. Callers guarantee start < finish.
func (r TimeRange) fragment(start, finish time.Time) TimeRange {
	f := r
	f.Start = start
	f.Finish = finish
	return f
}

// Duration returns the full elapsed time covered by the range.
func (r TimeRange) Duration() time.Duration { return r.Finish.Sub(r.Start) }

// Lost reports how much of the originally requested duration this fragment
// alone does not cover.
func (r TimeRange) Lost() time.Duration { return r.InitialDuration - r.Duration() }

// Covers reports whether t lies within [Start, Finish).
func (r TimeRange) Covers(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.Finish)
}

// Validate re-checks the bound invariant, used on ranges that did not go
// through New (decoded from storage, built by callers).
func (r TimeRange) Validate() error {
	if !r.Start.Before(r.Finish) {
		return fmt.Errorf("%w: range %s has start %s not before finish %s",
			ErrInvalidRange, r.ID, r.Start.Format(time.RFC3339), r.Finish.Format(time.RFC3339))
	}
	return nil
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s[%s, %s) p%d", r.ID,
		r.Start.Format(time.RFC3339), r.Finish.Format(time.RFC3339), r.Priority)
}

// EmptyRange is the sentinel meaning no interval remains.
type EmptyRange struct{}

func (EmptyRange) String() string { return "empty" }

// Overlap is the result of Intersect: either a range or EmptyRange.
type Overlap struct {
	rng   TimeRange
	empty bool
}

// Empty reports whether the overlap is EmptyRange.
func (o Overlap) Empty() bool { return o.empty }

// Range returns the overlapping range and false when the overlap is empty.
func (o Overlap) Range() (TimeRange, bool) { return o.rng, !o.empty }

// Intersect returns the overlap of a and b. Ranges that only touch at a
// boundary have no interior in common and yield EmptyRange. The resulting
// range carries the identity of a.
func Intersect(a, b TimeRange) Overlap {
	start := laterOf(a.Start, b.Start)
	finish := earlierOf(a.Finish, b.Finish)
	if !start.Before(finish) {
		return Overlap{empty: true}
	}
	return Overlap{rng: a.fragment(start, finish)}
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner TimeRange) bool {
	return !inner.Start.Before(outer.Start) && !inner.Finish.After(outer.Finish)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
