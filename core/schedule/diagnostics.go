package schedule

import (
	"context"
	"time"

	"github.com/kilianp07/groundsched/core/timerange"
)

// Operation names the mutation that produced a set of classifications.
type Operation string

const (
	OpAppend Operation = "append"
	OpRemove Operation = "remove"
	OpExpire Operation = "expire"
)

// Mutation describes the effect of one Append, Remove or Expire call.
type Mutation struct {
	Version         uint64                `json:"version"`
	Operation       Operation             `json:"operation"`
	Added           []string              `json:"added,omitempty"`
	Removed         []string              `json:"removed,omitempty"`
	Classifications []Classification      `json:"classifications"`
	Schedule        []timerange.TimeRange `json:"schedule"`
	MergeDuration   time.Duration         `json:"merge_duration"`
	Time            time.Time             `json:"time"`
}

// DiagnosticRecord is what diagnostic sinks persist for each mutation.
type DiagnosticRecord struct {
	Version         uint64           `json:"version"`
	Operation       Operation        `json:"operation"`
	Time            time.Time        `json:"time"`
	Classifications []Classification `json:"classifications"`
	Messages        []string         `json:"messages"`
}

// DiagnosticSink receives the human-readable diagnostic stream.
type DiagnosticSink interface {
	RecordDiagnostics(ctx context.Context, rec DiagnosticRecord) error
}

// Notifier is told about every published mutation.
type Notifier interface {
	Publish(Mutation)
}

// NewDiagnosticRecord renders the classifications of m.
func NewDiagnosticRecord(m Mutation) DiagnosticRecord {
	msgs := make([]string, len(m.Classifications))
	for i, c := range m.Classifications {
		msgs[i] = c.String()
	}
	return DiagnosticRecord{
		Version:         m.Version,
		Operation:       m.Operation,
		Time:            m.Time,
		Classifications: m.Classifications,
		Messages:        msgs,
	}
}
