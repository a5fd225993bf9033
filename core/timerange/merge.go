package timerange

import (
	"sort"
	"time"
)

// Merge resolves overlaps between ranges into a conflict-free schedule.
//
// Ranges are processed by descending priority; among equal priorities the
// range appearing earlier in the input wins. Each range carves its footprint
// out of every lower-ranked range, which may trim, split or eliminate them.
// The result is ordered by start time and every fragment carries the number
// of surviving fragments sharing its ID in Parts.
//
// The work is O(n²) in the number of ranges.
func Merge(ranges []TimeRange) []TimeRange {
	work := make([]TimeRange, len(ranges))
	copy(work, ranges)
	sort.SliceStable(work, func(i, j int) bool {
		return work[i].Priority > work[j].Priority
	})

	for i := 0; i < len(work); i++ {
		ref := work[i]
		rest := make([]TimeRange, 0, len(work)-i)
		for _, r := range work[i+1:] {
			out := RelativeComplement(r, ref)
			switch out.Kind() {
			case Unchanged, Trimmed, Split:
				rest = append(rest, out.Ranges()...)
			case Eliminated:
			}
		}
		work = append(work[:i+1:i+1], rest...)
	}

	countParts(work)
	SortByStart(work)
	return work
}

// SortByStart orders ranges by start, then ID, then priority descending.
func SortByStart(ranges []TimeRange) {
	sort.SliceStable(ranges, func(i, j int) bool {
		a, b := ranges[i], ranges[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Priority > b.Priority
	})
}

func countParts(ranges []TimeRange) {
	parts := make(map[string]int, len(ranges))
	for _, r := range ranges {
		parts[r.ID]++
	}
	for i := range ranges {
		ranges[i].Parts = parts[ranges[i].ID]
	}
}

// Fragments groups ranges by ID, keeping their relative order.
func Fragments(ranges []TimeRange) map[string][]TimeRange {
	res := make(map[string][]TimeRange)
	for _, r := range ranges {
		res[r.ID] = append(res[r.ID], r)
	}
	return res
}

// TotalDuration sums the durations of ranges.
func TotalDuration(ranges []TimeRange) (d time.Duration) {
	for _, r := range ranges {
		d += r.Duration()
	}
	return d
}
