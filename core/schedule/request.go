package schedule

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/groundsched/core/timerange"
)

// Request is one reservation as submitted by a user. Either Finish or
// DurationSeconds must be set; ID is generated when empty.
type Request struct {
	ID              string    `json:"id,omitempty" yaml:"id,omitempty"`
	Start           time.Time `json:"start" yaml:"start"`
	Finish          time.Time `json:"finish,omitempty" yaml:"finish,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	Priority        int       `json:"priority" yaml:"priority"`
}

// IDGenerator returns a fresh reservation identifier.
type IDGenerator func() string

// NewID generates random UUID identifiers.
func NewID() string { return uuid.NewString() }

// ToRange converts the request into a TimeRange. Malformed requests return an
// error wrapping ErrValidation.
func (r Request) ToRange(gen IDGenerator) (timerange.TimeRange, error) {
	if r.Start.IsZero() {
		return timerange.TimeRange{}, fmt.Errorf("%w: start is required", ErrValidation)
	}
	finish := r.Finish
	switch {
	case !finish.IsZero() && r.DurationSeconds != 0:
		return timerange.TimeRange{}, fmt.Errorf("%w: finish and duration_seconds are mutually exclusive", ErrValidation)
	case finish.IsZero() && r.DurationSeconds == 0:
		return timerange.TimeRange{}, fmt.Errorf("%w: finish or duration_seconds is required", ErrValidation)
	case finish.IsZero():
		finish = r.Start.Add(time.Duration(r.DurationSeconds * float64(time.Second)))
	}
	id := r.ID
	if id == "" {
		if gen == nil {
			gen = NewID
		}
		id = gen()
	}
	rng, err := timerange.New(id, r.Start, finish, r.Priority)
	if err != nil {
		return timerange.TimeRange{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return rng, nil
}

// RequestsToRanges converts a batch, stopping at the first malformed request.
func RequestsToRanges(reqs []Request, gen IDGenerator) ([]timerange.TimeRange, error) {
	res := make([]timerange.TimeRange, 0, len(reqs))
	for i, r := range reqs {
		rng, err := r.ToRange(gen)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		res = append(res, rng)
	}
	return res, nil
}

// DecodeRequests reads a list of requests in "json" or "yaml" format.
func DecodeRequests(r io.Reader, format string) ([]Request, error) {
	var reqs []Request
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&reqs); err != nil {
			return nil, fmt.Errorf("decode yaml requests: %w", err)
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&reqs); err != nil {
			return nil, fmt.Errorf("decode json requests: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	return reqs, nil
}
