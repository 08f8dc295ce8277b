package prescription

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/appointment"
)

// Prescription holds a therapist's notes for one appointment.
type Prescription struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	TherapistID   uuid.UUID
	PatientID     uuid.UUID
	Notes         string
	TherapistName string
	PatientName   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	ErrPrescriptionNotFound = fmt.Errorf("prescription %w", appointment.ErrNotFound)
	ErrConflict             = errors.New("appointment already has a prescription")
)
