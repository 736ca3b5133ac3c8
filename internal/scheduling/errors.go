package scheduling

import (
	"errors"
	"fmt"
)

// Reason is the machine-readable outcome of an availability check.
type Reason string

const (
	ReasonNoSchedule          Reason = "NO_SCHEDULE"
	ReasonOutsideWorkingHours Reason = "OUTSIDE_WORKING_HOURS"
	ReasonBreakConflict       Reason = "BREAK_CONFLICT"
	ReasonSlotTaken           Reason = "SLOT_TAKEN"
	ReasonSlotBeingBooked     Reason = "SLOT_BEING_BOOKED"
)

var (
	ErrScheduleNotFound      = errors.New("schedule not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrAssignmentNotFound    = errors.New("service assignment not found")
	ErrAssignmentNotBookable = errors.New("service assignment is not bookable")
	ErrBudgetExhausted       = errors.New("service assignment session budget exhausted")
	ErrInvalidState          = errors.New("invalid session state for this action")
	ErrStateChanged          = errors.New("session changed concurrently")
	ErrLockNotAcquired       = errors.New("therapist schedule lock not acquired")
	ErrSlotBeingBooked       = errors.New("therapist schedule is being modified, please retry")
)

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UnavailableError is returned by single-booking operations when the
// requested slot fails the availability check.
type UnavailableError struct {
	Result AvailabilityResult
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("slot unavailable: %s", e.Result.Reason)
}
