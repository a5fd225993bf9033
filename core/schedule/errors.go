package schedule

import "errors"

var (
	// ErrValidation is returned when an append batch contains a malformed
	// range. The whole batch is rejected.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when removing an id absent from the origin set.
	ErrNotFound = errors.New("reservation not found")
	// ErrConsistency signals a broken internal invariant. It is a defect and
	// is never swallowed.
	ErrConsistency = errors.New("schedule consistency violated")
	// ErrPersistence is returned when a generation could not be stored. The
	// in-memory schedule is still authoritative.
	ErrPersistence = errors.New("schedule persistence failed")
)
