package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/logging"
	"github.com/hackgods/therapy-booking/internal/prescription"
)

type stubAuth map[string]*appointment.Principal

func (s stubAuth) Authenticate(token string) (*appointment.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, errors.New("bad token")
}

// stubAppointments answers every call with detail/err and records what it
// was asked.
type stubAppointments struct {
	detail    *appointment.AppointmentDetail
	list      []appointment.AppointmentDetail
	view      *appointment.Availability
	err       error
	candidate appointment.Candidate
	filter    appointment.Filter
	principal *appointment.Principal
	status    *appointment.AppointmentStatus
	date      *time.Time
}

func (s *stubAppointments) Create(_ context.Context, c appointment.Candidate) (*appointment.AppointmentDetail, error) {
	s.candidate = c
	return s.detail, s.err
}

func (s *stubAppointments) Get(_ context.Context, p *appointment.Principal, _ uuid.UUID) (*appointment.AppointmentDetail, error) {
	s.principal = p
	return s.detail, s.err
}

func (s *stubAppointments) ListForClient(_ context.Context, p *appointment.Principal, status *appointment.AppointmentStatus) ([]appointment.AppointmentDetail, error) {
	s.principal, s.status = p, status
	return s.list, s.err
}

func (s *stubAppointments) ListForTherapist(_ context.Context, p *appointment.Principal, status *appointment.AppointmentStatus, date *time.Time) ([]appointment.AppointmentDetail, error) {
	s.principal, s.status, s.date = p, status, date
	return s.list, s.err
}

func (s *stubAppointments) ListAll(_ context.Context, p *appointment.Principal, f appointment.Filter) ([]appointment.AppointmentDetail, error) {
	s.principal, s.filter = p, f
	return s.list, s.err
}

func (s *stubAppointments) SetStatus(_ context.Context, p *appointment.Principal, _ uuid.UUID, to appointment.AppointmentStatus) (*appointment.AppointmentDetail, error) {
	s.principal, s.status = p, &to
	return s.detail, s.err
}

func (s *stubAppointments) Reschedule(_ context.Context, p *appointment.Principal, _ uuid.UUID, _ appointment.Reschedule) (*appointment.AppointmentDetail, error) {
	s.principal = p
	return s.detail, s.err
}

func (s *stubAppointments) UpdateDateTime(_ context.Context, p *appointment.Principal, _ uuid.UUID, date time.Time, _ string) (*appointment.AppointmentDetail, error) {
	s.principal, s.date = p, &date
	return s.detail, s.err
}

func (s *stubAppointments) Cancel(_ context.Context, p *appointment.Principal, _ uuid.UUID) (*appointment.AppointmentDetail, error) {
	s.principal = p
	return s.detail, s.err
}

func (s *stubAppointments) Availability(_ context.Context, _ uuid.UUID, date time.Time) (*appointment.Availability, error) {
	s.date = &date
	return s.view, s.err
}

type stubPrescriptions struct {
	item *prescription.Prescription
	err  error
}

func (s *stubPrescriptions) Create(context.Context, *appointment.Principal, uuid.UUID, string) (*prescription.Prescription, error) {
	return s.item, s.err
}

func (s *stubPrescriptions) GetByAppointment(context.Context, *appointment.Principal, uuid.UUID) (*prescription.Prescription, error) {
	return s.item, s.err
}

func (s *stubPrescriptions) ListByPatient(context.Context, *appointment.Principal, uuid.UUID) ([]prescription.Prescription, error) {
	if s.item == nil {
		return nil, s.err
	}
	return []prescription.Prescription{*s.item}, s.err
}

func (s *stubPrescriptions) UpdateNotes(context.Context, *appointment.Principal, uuid.UUID, string) (*prescription.Prescription, error) {
	return s.item, s.err
}

var (
	clientPrincipal    = &appointment.Principal{ID: uuid.New(), Email: "sam@example.com", Name: "Sam", Role: appointment.RoleClient}
	therapistPrincipal = &appointment.Principal{ID: uuid.New(), Role: appointment.RoleTherapist}
	adminPrincipal     = &appointment.Principal{ID: uuid.New(), Role: appointment.RoleAdmin}
)

func newTestRouter(appts *stubAppointments, rx *stubPrescriptions) http.Handler {
	return NewRouter(RouterConfig{
		Appointments:  appts,
		Prescriptions: rx,
		Auth: stubAuth{
			"client":    clientPrincipal,
			"therapist": therapistPrincipal,
			"admin":     adminPrincipal,
		},
		Logger:         logging.Discard(),
		FrontendOrigin: "http://localhost:5173",
	})
}

func sampleDetail() *appointment.AppointmentDetail {
	clientID := clientPrincipal.ID
	return &appointment.AppointmentDetail{
		Appointment: appointment.Appointment{
			ID:            uuid.New(),
			ClientID:      &clientID,
			TherapistID:   therapistPrincipal.ID,
			SessionID:     uuid.New(),
			Date:          time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			Time:          "10:00 AM",
			Duration:      50,
			Price:         120,
			Status:        appointment.StatusConfirmed,
			PaymentStatus: appointment.PaymentPaid,
			Location:      appointment.DefaultLocation,
		},
		Client: &appointment.UserSummary{ID: clientID, Name: "Sam", Email: "sam@example.com"},
	}
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func bookingBody() map[string]any {
	return map[string]any{
		"therapistId": uuid.NewString(),
		"sessionId":   uuid.NewString(),
		"date":        "2025-05-01",
		"time":        "10:00 AM",
		"duration":    50,
		"price":       120,
	}
}

func TestCreateAppointmentAsGuest(t *testing.T) {
	appts := &stubAppointments{detail: sampleDetail()}
	h := newTestRouter(appts, &stubPrescriptions{})

	body := bookingBody()
	body["guestInfo"] = map[string]string{"name": "Guest", "email": "guest@example.com"}
	rec := do(t, h, http.MethodPost, "/api/appointments", "", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	guest, ok := appts.candidate.Booker.(appointment.GuestClient)
	require.True(t, ok)
	assert.Equal(t, "guest@example.com", guest.Email)
	assert.Equal(t, "10:00 AM", appts.candidate.Time)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), appts.candidate.Date)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2025-05-01", resp.Date)
	assert.Equal(t, "confirmed", resp.Status)
	assert.Equal(t, "paid", resp.PaymentStatus)
}

func TestCreateAppointmentAsClient(t *testing.T) {
	appts := &stubAppointments{detail: sampleDetail()}
	h := newTestRouter(appts, &stubPrescriptions{})

	rec := do(t, h, http.MethodPost, "/api/appointments", "client", bookingBody())

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booker, ok := appts.candidate.Booker.(appointment.AuthenticatedClient)
	require.True(t, ok)
	assert.Equal(t, clientPrincipal.ID, booker.ID)
}

func TestCreateAppointmentTrimsGuestEmail(t *testing.T) {
	appts := &stubAppointments{detail: sampleDetail()}
	h := newTestRouter(appts, &stubPrescriptions{})

	body := bookingBody()
	body["guestInfo"] = map[string]string{"name": " Guest ", "email": "  guest@example.com \t"}
	rec := do(t, h, http.MethodPost, "/api/appointments", "", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	guest, ok := appts.candidate.Booker.(appointment.GuestClient)
	require.True(t, ok)
	assert.Equal(t, "guest@example.com", guest.Email)
	assert.Equal(t, "Guest", guest.Name)
}

func TestCreateAppointmentClientIgnoresGuestInfo(t *testing.T) {
	appts := &stubAppointments{detail: sampleDetail()}
	h := newTestRouter(appts, &stubPrescriptions{})

	body := bookingBody()
	body["guestInfo"] = map[string]string{"name": "Someone", "email": "not-an-email"}
	rec := do(t, h, http.MethodPost, "/api/appointments", "client", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booker, ok := appts.candidate.Booker.(appointment.AuthenticatedClient)
	require.True(t, ok)
	assert.Equal(t, clientPrincipal.ID, booker.ID)
}

func TestCreateAppointmentGuestEmailValidated(t *testing.T) {
	h := newTestRouter(&stubAppointments{}, &stubPrescriptions{})

	body := bookingBody()
	body["guestInfo"] = map[string]string{"name": "Guest", "email": "not-an-email"}
	rec := do(t, h, http.MethodPost, "/api/appointments", "", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Equal(t, "email", resp.Details["email"])
}

func TestCreateAppointmentMissingIdentity(t *testing.T) {
	h := newTestRouter(&stubAppointments{}, &stubPrescriptions{})

	body := bookingBody()
	body["guestInfo"] = map[string]string{"name": "Guest"}
	rec := do(t, h, http.MethodPost, "/api/appointments", "", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_identity", decodeError(t, rec).Error)
}

func TestCreateAppointmentValidation(t *testing.T) {
	h := newTestRouter(&stubAppointments{}, &stubPrescriptions{})

	body := bookingBody()
	body["time"] = "10:30 AM"
	body["therapistId"] = "not-a-uuid"
	rec := do(t, h, http.MethodPost, "/api/appointments", "client", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Equal(t, "timeslot", resp.Details["time"])
	assert.Equal(t, "uuid", resp.Details["therapistId"])
}

func TestCreateAppointmentBadJSON(t *testing.T) {
	h := newTestRouter(&stubAppointments{}, &stubPrescriptions{})

	req := httptest.NewRequest(http.MethodPost, "/api/appointments", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeError(t, rec).Error)
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{appointment.ErrAppointmentNotFound, http.StatusNotFound, "not_found"},
		{appointment.ErrTherapistNotFound, http.StatusNotFound, "not_found"},
		{appointment.ErrMissingIdentity, http.StatusBadRequest, "missing_identity"},
		{appointment.ErrDateInPast, http.StatusBadRequest, "date_in_past"},
		{appointment.ErrBlackoutDay, http.StatusBadRequest, "blackout_day"},
		{fmt.Errorf("%w: time", appointment.ErrValidation), http.StatusBadRequest, "validation_failed"},
		{fmt.Errorf("%w: duplicate key", appointment.ErrSlotConflict), http.StatusConflict, "slot_conflict"},
		{appointment.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{appointment.ErrAccessDenied, http.StatusForbidden, "access_denied"},
		{prescription.ErrConflict, http.StatusConflict, "conflict"},
		{errors.New("connection refused"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := newTestRouter(&stubAppointments{err: tt.err}, &stubPrescriptions{})
			rec := do(t, h, http.MethodGet, "/api/appointments/"+uuid.NewString(), "client", nil)

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error)
			assert.NotContains(t, resp.Message, "connection refused")
		})
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	h := newTestRouter(&stubAppointments{}, &stubPrescriptions{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/appointments/user"},
		{http.MethodGet, "/api/appointments/" + uuid.NewString()},
		{http.MethodPut, "/api/appointments/" + uuid.NewString() + "/cancel"},
		{http.MethodPatch, "/api/appointments/" + uuid.NewString() + "/datetime"},
		{http.MethodGet, "/api/prescriptions/patient/" + uuid.NewString()},
	} {
		rec := do(t, h, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}

	rec := do(t, h, http.MethodGet, "/api/appointments/user", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGatedRoutes(t *testing.T) {
	appts := &stubAppointments{list: []appointment.AppointmentDetail{*sampleDetail()}}
	h := newTestRouter(appts, &stubPrescriptions{})

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/api/appointments", "client", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/api/appointments/therapist", "client", nil).Code)

	rec := do(t, h, http.MethodGet, "/api/appointments/therapist?status=confirmed&date=2025-05-01", "therapist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, appts.status)
	assert.Equal(t, appointment.StatusConfirmed, *appts.status)
	require.NotNil(t, appts.date)
	assert.Equal(t, "2025-05-01", appointment.FormatDate(*appts.date))
}

func TestListAllParsesFilters(t *testing.T) {
	appts := &stubAppointments{list: []appointment.AppointmentDetail{*sampleDetail()}}
	h := newTestRouter(appts, &stubPrescriptions{})
	therapistID := uuid.New()

	rec := do(t, h, http.MethodGet, "/api/appointments?status=cancelled&therapist="+therapistID.String()+"&limit=500&offset=10", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NotNil(t, appts.filter.Status)
	assert.Equal(t, appointment.StatusCancelled, *appts.filter.Status)
	require.NotNil(t, appts.filter.TherapistID)
	assert.Equal(t, therapistID, *appts.filter.TherapistID)
	assert.Nil(t, appts.filter.ClientID)
	assert.Equal(t, maxListLimit, appts.filter.Limit)
	assert.Equal(t, 10, appts.filter.Offset)

	var list []AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, h, http.MethodGet, "/api/appointments?status=archived", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/appointments?limit=0", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetStatusValidatesBody(t *testing.T) {
	appts := &stubAppointments{detail: sampleDetail()}
	h := newTestRouter(appts, &stubPrescriptions{})
	path := "/api/appointments/" + uuid.NewString() + "/status"

	rec := do(t, h, http.MethodPut, path, "therapist", map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, path, "therapist", map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointment.StatusCompleted, *appts.status)
	assert.Equal(t, therapistPrincipal, appts.principal)
}

func TestUpdateDateTimeRoute(t *testing.T) {
	appts := &stubAppointments{detail: sampleDetail()}
	h := newTestRouter(appts, &stubPrescriptions{})

	rec := do(t, h, http.MethodPatch, "/api/appointments/"+uuid.NewString()+"/datetime", "client",
		map[string]string{"date": "2025-05-02", "time": "9:00 AM"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-05-02", appointment.FormatDate(*appts.date))
}

func TestBadPathID(t *testing.T) {
	h := newTestRouter(&stubAppointments{}, &stubPrescriptions{})

	rec := do(t, h, http.MethodPut, "/api/appointments/123/cancel", "client", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "uuid", decodeError(t, rec).Details["id"])
}

func TestAvailabilityRoute(t *testing.T) {
	therapistID := uuid.New()
	appts := &stubAppointments{view: &appointment.Availability{
		TherapistID: therapistID,
		Date:        "2025-05-01",
		Bookable:    true,
		Slots:       []string{"9:00 AM"},
		Taken:       []string{"10:00 AM"},
	}}
	h := newTestRouter(appts, &stubPrescriptions{})

	rec := do(t, h, http.MethodGet, "/api/therapists/"+therapistID.String()+"/availability", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/therapists/"+therapistID.String()+"/availability?date=2025-05-01", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view appointment.Availability
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, []string{"10:00 AM"}, view.Taken)
	assert.True(t, view.Bookable)
}

func TestPrescriptionRoutes(t *testing.T) {
	item := &prescription.Prescription{ID: uuid.New(), AppointmentID: uuid.New(), Notes: "journal", TherapistName: "Dr. Rivera"}
	h := newTestRouter(&stubAppointments{}, &stubPrescriptions{item: item})

	rec := do(t, h, http.MethodPost, "/api/prescriptions", "therapist", map[string]string{
		"appointmentId": item.AppointmentID.String(),
		"notes":         "journal",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp PrescriptionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Dr. Rivera", resp.Therapist.Name)

	rec = do(t, h, http.MethodPost, "/api/prescriptions", "therapist", map[string]string{"appointmentId": item.AppointmentID.String()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/prescriptions/patient/"+uuid.NewString(), "client", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []PrescriptionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	conflict := newTestRouter(&stubAppointments{}, &stubPrescriptions{err: prescription.ErrConflict})
	rec = do(t, conflict, http.MethodPost, "/api/prescriptions", "therapist", map[string]string{
		"appointmentId": item.AppointmentID.String(),
		"notes":         "again",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRequestIDAndCORS(t *testing.T) {
	h := newTestRouter(&stubAppointments{}, &stubPrescriptions{})

	req := httptest.NewRequest(http.MethodOptions, "/api/appointments", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
