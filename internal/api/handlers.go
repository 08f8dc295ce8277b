package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/validation"
)

type AppointmentService interface {
	Create(ctx context.Context, c appointment.Candidate) (*appointment.AppointmentDetail, error)
	Get(ctx context.Context, p *appointment.Principal, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListForClient(ctx context.Context, p *appointment.Principal, status *appointment.AppointmentStatus) ([]appointment.AppointmentDetail, error)
	ListForTherapist(ctx context.Context, p *appointment.Principal, status *appointment.AppointmentStatus, date *time.Time) ([]appointment.AppointmentDetail, error)
	ListAll(ctx context.Context, p *appointment.Principal, f appointment.Filter) ([]appointment.AppointmentDetail, error)
	SetStatus(ctx context.Context, p *appointment.Principal, id uuid.UUID, to appointment.AppointmentStatus) (*appointment.AppointmentDetail, error)
	Reschedule(ctx context.Context, p *appointment.Principal, id uuid.UUID, r appointment.Reschedule) (*appointment.AppointmentDetail, error)
	UpdateDateTime(ctx context.Context, p *appointment.Principal, id uuid.UUID, date time.Time, label string) (*appointment.AppointmentDetail, error)
	Cancel(ctx context.Context, p *appointment.Principal, id uuid.UUID) (*appointment.AppointmentDetail, error)
	Availability(ctx context.Context, therapistID uuid.UUID, date time.Time) (*appointment.Availability, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type appointmentHandler struct {
	svc      AppointmentService
	validate *validation.Validator
	log      *slog.Logger
}

func (h *appointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", nil)
		return
	}

	principal := PrincipalFrom(r.Context())
	var guest *appointment.GuestInfo
	switch {
	case principal != nil && principal.ID != uuid.Nil:
		// The token identifies the client; guest details are ignored.
		req.GuestInfo = nil
	case req.GuestInfo != nil:
		req.GuestInfo.Name = strings.TrimSpace(req.GuestInfo.Name)
		req.GuestInfo.Email = strings.TrimSpace(req.GuestInfo.Email)
		req.GuestInfo.Phone = strings.TrimSpace(req.GuestInfo.Phone)
		guest = &appointment.GuestInfo{Name: req.GuestInfo.Name, Email: req.GuestInfo.Email, Phone: req.GuestInfo.Phone}
	}
	booker := appointment.BookerFor(principal, guest)
	if booker == nil {
		writeError(w, http.StatusBadRequest, "missing_identity", appointment.ErrMissingIdentity.Error(), nil)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid appointment request", validation.Details(err))
		return
	}

	date, _ := appointment.ParseDate(req.Date)
	detail, err := h.svc.Create(r.Context(), appointment.Candidate{
		Booker:        booker,
		TherapistID:   uuid.MustParse(req.TherapistID),
		SessionID:     uuid.MustParse(req.SessionID),
		Date:          date,
		Time:          req.Time,
		Location:      strings.TrimSpace(req.Location),
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Notes:         strings.TrimSpace(req.Notes),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(*detail))
}

func (h *appointmentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.svc.Get(r.Context(), PrincipalFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(*detail))
}

func (h *appointmentHandler) listForClient(w http.ResponseWriter, r *http.Request) {
	status, ok := queryStatus(w, r)
	if !ok {
		return
	}

	list, err := h.svc.ListForClient(r.Context(), PrincipalFrom(r.Context()), status)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponses(list))
}

func (h *appointmentHandler) listForTherapist(w http.ResponseWriter, r *http.Request) {
	status, ok := queryStatus(w, r)
	if !ok {
		return
	}
	date, ok := queryDate(w, r)
	if !ok {
		return
	}

	list, err := h.svc.ListForTherapist(r.Context(), PrincipalFrom(r.Context()), status, date)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponses(list))
}

func (h *appointmentHandler) listAll(w http.ResponseWriter, r *http.Request) {
	var f appointment.Filter
	var ok bool

	if f.Status, ok = queryStatus(w, r); !ok {
		return
	}
	if f.Date, ok = queryDate(w, r); !ok {
		return
	}
	if f.TherapistID, ok = queryUUID(w, r, "therapist"); !ok {
		return
	}
	if f.ClientID, ok = queryUUID(w, r, "client"); !ok {
		return
	}

	limit, offset, err := parseLimitOffset(r.URL.Query(), defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}
	f.Limit, f.Offset = limit, offset

	list, err := h.svc.ListAll(r.Context(), PrincipalFrom(r.Context()), f)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponses(list))
}

func (h *appointmentHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid status", validation.Details(err))
		return
	}

	detail, err := h.svc.SetStatus(r.Context(), PrincipalFrom(r.Context()), id, appointment.AppointmentStatus(req.Status))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(*detail))
}

func (h *appointmentHandler) reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req RescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid reschedule request", validation.Details(err))
		return
	}

	date, _ := appointment.ParseDate(req.Date)
	detail, err := h.svc.Reschedule(r.Context(), PrincipalFrom(r.Context()), id, appointment.Reschedule{
		TherapistID:   uuid.MustParse(req.TherapistID),
		SessionID:     uuid.MustParse(req.SessionID),
		Date:          date,
		Time:          req.Time,
		Location:      strings.TrimSpace(req.Location),
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(*detail))
}

func (h *appointmentHandler) updateDateTime(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateDateTimeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid date or time", validation.Details(err))
		return
	}

	date, _ := appointment.ParseDate(req.Date)
	detail, err := h.svc.UpdateDateTime(r.Context(), PrincipalFrom(r.Context()), id, date, req.Time)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(*detail))
}

func (h *appointmentHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.svc.Cancel(r.Context(), PrincipalFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(*detail))
}

func (h *appointmentHandler) availability(w http.ResponseWriter, r *http.Request) {
	therapistID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	date, ok := queryDate(w, r)
	if !ok {
		return
	}
	if date == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date query parameter is required", map[string]string{"date": "required"})
		return
	}

	view, err := h.svc.Availability(r.Context(), therapistID, *date)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Request helpers. Each writes a 400 and reports false on bad input.

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", name+" must be a valid UUID", map[string]string{name: "uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(w http.ResponseWriter, r *http.Request, name string) (*uuid.UUID, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", name+" must be a valid UUID", map[string]string{name: "uuid"})
		return nil, false
	}
	return &id, true
}

func queryStatus(w http.ResponseWriter, r *http.Request) (*appointment.AppointmentStatus, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, true
	}
	status := appointment.AppointmentStatus(raw)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown status", map[string]string{"status": "status"})
		return nil, false
	}
	return &status, true
}

func queryDate(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return nil, true
	}
	date, err := appointment.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD", map[string]string{"date": "date"})
		return nil, false
	}
	return &date, true
}
