package timerange

import "fmt"

// OutcomeKind tags the result of RelativeComplement.
type OutcomeKind int

const (
	// Unchanged means the reference did not touch the subject.
	Unchanged OutcomeKind = iota
	// Trimmed means one end of the subject was cut off.
	Trimmed
	// Split means the reference sat strictly inside the subject, leaving a
	// before and an after fragment.
	Split
	// Eliminated means the subject was fully covered.
	Eliminated
)

func (k OutcomeKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Trimmed:
		return "trimmed"
	case Split:
		return "split"
	case Eliminated:
		return "eliminated"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the tagged result of RelativeComplement. Use Kind to select
// the variant, then Ranges to read the zero, one or two remaining ranges.
type Outcome struct {
	kind   OutcomeKind
	ranges [2]TimeRange
}

// Kind returns the variant tag.
func (o Outcome) Kind() OutcomeKind { return o.kind }

// Ranges returns what is left of the subject: one range for Unchanged and
// Trimmed, two for Split (before, after) and none for Eliminated.
func (o Outcome) Ranges() []TimeRange {
	switch o.kind {
	case Unchanged, Trimmed:
		return []TimeRange{o.ranges[0]}
	case Split:
		return []TimeRange{o.ranges[0], o.ranges[1]}
	case Eliminated:
		return nil
	default:
		panic(fmt.Sprintf("timerange: unknown outcome kind %d", o.kind))
	}
}

func unchanged(r TimeRange) Outcome { return Outcome{kind: Unchanged, ranges: [2]TimeRange{r}} }
func trimmed(r TimeRange) Outcome   { return Outcome{kind: Trimmed, ranges: [2]TimeRange{r}} }
func split(before, after TimeRange) Outcome {
	return Outcome{kind: Split, ranges: [2]TimeRange{before, after}}
}
func eliminated() Outcome { return Outcome{kind: Eliminated} }

// RelativeComplement returns the part of subject not covered by reference.
// Remaining fragments keep the subject's identity, priority and provenance.
func RelativeComplement(subject, reference TimeRange) Outcome {
	inter, ok := Intersect(subject, reference).Range()
	switch {
	case !ok:
		return unchanged(subject)
	case Contains(reference, subject):
		return eliminated()
	case reference.Start.After(subject.Start) && reference.Finish.Before(subject.Finish):
		return split(
			subject.fragment(subject.Start, reference.Start),
			subject.fragment(reference.Finish, subject.Finish),
		)
	case inter.Start.Equal(subject.Start):
		return trimmed(subject.fragment(inter.Finish, subject.Finish))
	default:
		// the overlap touches subject.Finish and starts after subject.Start
		return trimmed(subject.fragment(subject.Start, inter.Start))
	}
}
