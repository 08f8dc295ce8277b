package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Valid reports whether s is one of the four known statuses.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Active statuses occupy their slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal statuses block cancel, reschedule and date/time updates.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type Role string

const (
	RoleClient    Role = "client"
	RoleTherapist Role = "therapist"
	RoleAdmin     Role = "admin"
)

const DefaultLocation = "Virtual Session"

type Session struct {
	ID          uuid.UUID
	Name        string
	Description string
	Duration    int
	Price       int
	IsActive    bool
}

type User struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Phone          string
	Role           Role
	Specialization string
	IsActive       bool
}

type GuestInfo struct {
	Name  string
	Email string
	Phone string
}

type Appointment struct {
	ID            uuid.UUID
	ClientID      *uuid.UUID
	Guest         *GuestInfo
	TherapistID   uuid.UUID
	SessionID     uuid.UUID
	Date          time.Time
	Time          string
	Duration      int
	Price         int
	Status        AppointmentStatus
	PaymentStatus PaymentStatus
	Location      string
	PaymentMethod string
	Notes         string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserSummary is the public projection of a user joined onto an appointment.
type UserSummary struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Phone          string
	Specialization string
}

type AppointmentDetail struct {
	Appointment
	Session   *Session
	Therapist *UserSummary
	Client    *UserSummary
}

// ContactEmail is where notifications for this appointment go.
func (d *AppointmentDetail) ContactEmail() (email, name string) {
	if d.Client != nil && d.Client.Email != "" {
		return d.Client.Email, d.Client.Name
	}
	if d.Guest != nil {
		return d.Guest.Email, d.Guest.Name
	}
	return "", ""
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Filter narrows appointment listings. Nil fields are not applied.
type Filter struct {
	ClientID    *uuid.UUID
	TherapistID *uuid.UUID
	Status      *AppointmentStatus
	Date        *time.Time
	Ascending   bool
	Limit       int
	Offset      int
}

type Availability struct {
	TherapistID uuid.UUID `json:"therapistId"`
	Date        string    `json:"date"`
	Bookable    bool      `json:"bookable"`
	Slots       []string  `json:"slots"`
	Taken       []string  `json:"taken"`
}
