package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// Catalog and directory lookups
	GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, f Filter) ([]AppointmentDetail, error)

	// For conflict checks. Returns ErrAppointmentNotFound when the slot is free.
	FindActiveInSlot(ctx context.Context, therapistID uuid.UUID, date time.Time, label string, exclude *uuid.UUID) (*Appointment, error)
	// Labels held by non-cancelled appointments for the availability view.
	TakenTimes(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]string, error)

	// Creation and updates. Writes that would put two active appointments
	// in one slot fail with ErrSlotConflict.
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	// UpdateSchedule only rewrites active appointments; a record that went
	// terminal since it was read is ErrInvalidTransition.
	UpdateSchedule(ctx context.Context, a *Appointment) (*Appointment, error)
	SetStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error)
	// Cancel only moves active appointments; anything else is ErrInvalidTransition.
	Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
