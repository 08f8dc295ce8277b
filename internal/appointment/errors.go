package appointment

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors wrap one of these so callers can classify
// with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrMissingIdentity   = errors.New("user authentication or guest email required")
	ErrDateInPast        = errors.New("cannot book appointments for today or past dates")
	ErrBlackoutDay       = errors.New("appointments are not available on this weekday")
	ErrSlotConflict      = errors.New("this time slot is already booked")
	ErrInvalidTransition = errors.New("appointment is completed or cancelled")
	ErrAccessDenied      = errors.New("access denied")
	ErrValidation        = errors.New("validation failure")
)

var (
	ErrSessionNotFound     = fmt.Errorf("session %w", ErrNotFound)
	ErrTherapistNotFound   = fmt.Errorf("therapist %w or inactive", ErrNotFound)
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Outcome is a short label for err, used for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMissingIdentity):
		return "missing_identity"
	case errors.Is(err, ErrDateInPast):
		return "date_in_past"
	case errors.Is(err, ErrBlackoutDay):
		return "blackout_day"
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "error"
	}
}
