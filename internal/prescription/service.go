package prescription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/therapy-booking/internal/appointment"
)

var tracer = otel.Tracer("therapy-booking/prescription")

// AppointmentLookup is the part of the appointment store prescriptions need.
type AppointmentLookup interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

type Service struct {
	repo   Repository
	appts  AppointmentLookup
	logger *slog.Logger
}

func NewService(repo Repository, appts AppointmentLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, appts: appts, logger: logger}
}

// Create attaches notes to an appointment. Only the appointment's therapist
// or an admin may write them, and the appointment must belong to a client
// account.
func (s *Service) Create(ctx context.Context, p *appointment.Principal, appointmentID uuid.UUID, notes string) (*Prescription, error) {
	ctx, span := tracer.Start(ctx, "prescription.create")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", appointmentID.String()))

	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, fmt.Errorf("%w: notes are required", appointment.ErrValidation)
	}

	appt, err := s.appts.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !isAdmin(p) && (p == nil || appt.TherapistID != p.ID) {
		return nil, appointment.ErrAccessDenied
	}
	if appt.ClientID == nil {
		return nil, fmt.Errorf("%w: guest appointments cannot hold prescriptions", appointment.ErrValidation)
	}

	created, err := s.repo.Create(ctx, &Prescription{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		TherapistID:   appt.TherapistID,
		PatientID:     *appt.ClientID,
		Notes:         notes,
	})
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, ErrConflict) {
			s.logger.Error("create prescription failed", "appointment_id", appointmentID, "error", err)
		}
		return nil, err
	}

	s.logger.Info("prescription created", "prescription_id", created.ID, "appointment_id", appointmentID)
	return created, nil
}

func (s *Service) GetByAppointment(ctx context.Context, p *appointment.Principal, appointmentID uuid.UUID) (*Prescription, error) {
	appt, err := s.appts.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !canSeeAppointment(p, appt) {
		return nil, appointment.ErrAccessDenied
	}
	return s.repo.GetByAppointment(ctx, appointmentID)
}

// ListByPatient is open to the patient, to any therapist and to admins.
func (s *Service) ListByPatient(ctx context.Context, p *appointment.Principal, patientID uuid.UUID) ([]Prescription, error) {
	if p == nil {
		return nil, appointment.ErrAccessDenied
	}
	if p.ID != patientID && p.Role != appointment.RoleTherapist && !p.IsAdmin() {
		return nil, appointment.ErrAccessDenied
	}
	list, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	return list, nil
}

func (s *Service) UpdateNotes(ctx context.Context, p *appointment.Principal, id uuid.UUID, notes string) (*Prescription, error) {
	ctx, span := tracer.Start(ctx, "prescription.update_notes")
	defer span.End()
	span.SetAttributes(attribute.String("prescription.id", id.String()))

	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, fmt.Errorf("%w: notes are required", appointment.ErrValidation)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin(p) && (p == nil || current.TherapistID != p.ID) {
		return nil, appointment.ErrAccessDenied
	}

	updated, err := s.repo.UpdateNotes(ctx, id, notes)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}

func isAdmin(p *appointment.Principal) bool {
	return p != nil && p.IsAdmin()
}

func canSeeAppointment(p *appointment.Principal, a *appointment.Appointment) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() || a.TherapistID == p.ID {
		return true
	}
	return a.ClientID != nil && *a.ClientID == p.ID
}
