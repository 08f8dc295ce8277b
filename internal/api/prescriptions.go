package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/prescription"
	"github.com/hackgods/therapy-booking/internal/validation"
)

type PrescriptionService interface {
	Create(ctx context.Context, p *appointment.Principal, appointmentID uuid.UUID, notes string) (*prescription.Prescription, error)
	GetByAppointment(ctx context.Context, p *appointment.Principal, appointmentID uuid.UUID) (*prescription.Prescription, error)
	ListByPatient(ctx context.Context, p *appointment.Principal, patientID uuid.UUID) ([]prescription.Prescription, error)
	UpdateNotes(ctx context.Context, p *appointment.Principal, id uuid.UUID, notes string) (*prescription.Prescription, error)
}

type prescriptionHandler struct {
	svc      PrescriptionService
	validate *validation.Validator
	log      *slog.Logger
}

func (h *prescriptionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreatePrescriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid prescription request", validation.Details(err))
		return
	}

	created, err := h.svc.Create(r.Context(), PrincipalFrom(r.Context()), uuid.MustParse(req.AppointmentID), req.Notes)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPrescriptionResponse(*created))
}

func (h *prescriptionHandler) getByAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID, ok := pathUUID(w, r, "appointmentId")
	if !ok {
		return
	}

	p, err := h.svc.GetByAppointment(r.Context(), PrincipalFrom(r.Context()), appointmentID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toPrescriptionResponse(*p))
}

func (h *prescriptionHandler) listByPatient(w http.ResponseWriter, r *http.Request) {
	patientID, ok := pathUUID(w, r, "patientId")
	if !ok {
		return
	}

	list, err := h.svc.ListByPatient(r.Context(), PrincipalFrom(r.Context()), patientID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	out := make([]PrescriptionResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPrescriptionResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *prescriptionHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdatePrescriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "notes are required", validation.Details(err))
		return
	}

	updated, err := h.svc.UpdateNotes(r.Context(), PrincipalFrom(r.Context()), id, req.Notes)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toPrescriptionResponse(*updated))
}
