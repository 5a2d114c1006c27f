package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID rejects adding an event whose id is already scheduled.
	ErrDuplicateID = errors.New("event id already scheduled")

	// ErrNotFound is returned for lookups and removals of unknown events,
	// including scope mismatches (wrong chat for an existing id).
	ErrNotFound = errors.New("event not found")

	// ErrAlreadyArmed rejects arming an event that already holds a live timer.
	ErrAlreadyArmed = errors.New("event already armed")

	// ErrInvalidSchedule means the event's date or times cannot produce a
	// due time at all (unparseable date, malformed time-of-day).
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrNoValidOccurrence means the recurrence scan exhausted its horizon:
	// the weekday filter and exclusion dates jointly reject every candidate
	// day within the bound.
	ErrNoValidOccurrence = errors.New("no valid occurrence within horizon")
)

// ValidationError reports a rejected request field. It is surfaced to the
// caller and never persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
