// Package export writes schedules in machine-readable formats for tools
// outside the scheduler.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/groundsched/core/timerange"
)

// WriteJSON writes the schedule to w as a JSON array.
func WriteJSON(w io.Writer, ranges []timerange.TimeRange) error {
	if ranges == nil {
		ranges = []timerange.TimeRange{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ranges)
}

// WriteCSV writes one row per fragment with times in UTC.
func WriteCSV(w io.Writer, ranges []timerange.TimeRange) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "start", "finish", "duration_s", "priority", "parts"}); err != nil {
		return err
	}
	for _, r := range ranges {
		rec := []string{
			r.ID,
			r.Start.UTC().Format(time.RFC3339),
			r.Finish.UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.Duration().Seconds(), 'f', -1, 64),
			strconv.Itoa(r.Priority),
			strconv.Itoa(r.Parts),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
