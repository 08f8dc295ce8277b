package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/prescription"
)

type GuestInfoRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

type CreateAppointmentRequest struct {
	TherapistID   string            `json:"therapistId" validate:"required,uuid"`
	SessionID     string            `json:"sessionId" validate:"required,uuid"`
	Date          string            `json:"date" validate:"required,date"`
	Time          string            `json:"time" validate:"required,timeslot"`
	Location      string            `json:"location" validate:"max=200"`
	PaymentMethod string            `json:"paymentMethod" validate:"max=50"`
	Notes         string            `json:"notes" validate:"max=2000"`
	GuestInfo     *GuestInfoRequest `json:"guestInfo" validate:"omitempty"`
}

type RescheduleRequest struct {
	TherapistID   string `json:"therapistId" validate:"required,uuid"`
	SessionID     string `json:"sessionId" validate:"required,uuid"`
	Date          string `json:"date" validate:"required,date"`
	Time          string `json:"time" validate:"required,timeslot"`
	Location      string `json:"location" validate:"max=200"`
	PaymentMethod string `json:"paymentMethod" validate:"max=50"`
}

type UpdateDateTimeRequest struct {
	Date string `json:"date" validate:"required,date"`
	Time string `json:"time" validate:"required,timeslot"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,status"`
}

type CreatePrescriptionRequest struct {
	AppointmentID string `json:"appointmentId" validate:"required,uuid"`
	Notes         string `json:"notes" validate:"required,max=10000"`
}

type UpdatePrescriptionRequest struct {
	Notes string `json:"notes" validate:"required,max=10000"`
}

type UserResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Specialization string    `json:"specialization,omitempty"`
}

type SessionResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Duration    int       `json:"duration"`
	Price       int       `json:"price"`
}

type GuestInfoResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type AppointmentResponse struct {
	ID            uuid.UUID          `json:"id"`
	Client        *UserResponse      `json:"client"`
	GuestInfo     *GuestInfoResponse `json:"guestInfo,omitempty"`
	Therapist     *UserResponse      `json:"therapist,omitempty"`
	Session       *SessionResponse   `json:"session,omitempty"`
	TherapistID   uuid.UUID          `json:"therapistId"`
	SessionID     uuid.UUID          `json:"sessionId"`
	Date          string             `json:"date"`
	Time          string             `json:"time"`
	Duration      int                `json:"duration"`
	Price         int                `json:"price"`
	Status        string             `json:"status"`
	PaymentStatus string             `json:"paymentStatus"`
	Location      string             `json:"location"`
	PaymentMethod string             `json:"paymentMethod,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

type PrescriptionResponse struct {
	ID            uuid.UUID    `json:"id"`
	AppointmentID uuid.UUID    `json:"appointmentId"`
	Therapist     UserResponse `json:"therapist"`
	Patient       UserResponse `json:"patient"`
	Notes         string       `json:"notes"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func toAppointmentResponse(d appointment.AppointmentDetail) AppointmentResponse {
	resp := AppointmentResponse{
		ID:            d.ID,
		TherapistID:   d.TherapistID,
		SessionID:     d.SessionID,
		Date:          appointment.FormatDate(d.Date),
		Time:          d.Time,
		Duration:      d.Duration,
		Price:         d.Price,
		Status:        string(d.Status),
		PaymentStatus: string(d.PaymentStatus),
		Location:      d.Location,
		PaymentMethod: d.PaymentMethod,
		Notes:         d.Notes,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Client != nil {
		resp.Client = toUserResponse(d.Client)
	}
	if d.Guest != nil {
		resp.GuestInfo = &GuestInfoResponse{Name: d.Guest.Name, Email: d.Guest.Email, Phone: d.Guest.Phone}
	}
	if d.Therapist != nil {
		resp.Therapist = toUserResponse(d.Therapist)
	}
	if d.Session != nil {
		resp.Session = &SessionResponse{
			ID:          d.Session.ID,
			Name:        d.Session.Name,
			Description: d.Session.Description,
			Duration:    d.Session.Duration,
			Price:       d.Session.Price,
		}
	}
	return resp
}

func toAppointmentResponses(list []appointment.AppointmentDetail) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toAppointmentResponse(d))
	}
	return out
}

func toUserResponse(u *appointment.UserSummary) *UserResponse {
	return &UserResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Phone:          u.Phone,
		Specialization: u.Specialization,
	}
}

func toPrescriptionResponse(p prescription.Prescription) PrescriptionResponse {
	return PrescriptionResponse{
		ID:            p.ID,
		AppointmentID: p.AppointmentID,
		Therapist:     UserResponse{ID: p.TherapistID, Name: p.TherapistName},
		Patient:       UserResponse{ID: p.PatientID, Name: p.PatientName},
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
