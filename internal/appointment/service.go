package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/therapy-booking/internal/cache"
	"github.com/hackgods/therapy-booking/internal/config"
	"github.com/hackgods/therapy-booking/internal/observability/metrics"
	redisclient "github.com/hackgods/therapy-booking/internal/redis"
)

const (
	EventAppointmentCreated         = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled     = "APPOINTMENT_RESCHEDULED"
	EventAppointmentDateTimeUpdated = "APPOINTMENT_DATETIME_UPDATED"
	EventAppointmentStatusChanged   = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentCancelled       = "APPOINTMENT_CANCELLED"
)

var tracer = otel.Tracer("therapy-booking/appointment")

type NotificationKind string

const (
	NotifyBooked          NotificationKind = "booked"
	NotifyRescheduled     NotificationKind = "rescheduled"
	NotifyDateTimeUpdated NotificationKind = "datetime_updated"
)

// Notifier delivers appointment emails. Errors are logged by the service and
// never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, d AppointmentDetail) error
}

// Candidate is a proposed booking.
type Candidate struct {
	Booker        Booker
	TherapistID   uuid.UUID
	SessionID     uuid.UUID
	Date          time.Time
	Time          string
	Location      string
	PaymentMethod string
	Notes         string
}

// Reschedule replaces the session, therapist and slot of an appointment.
type Reschedule struct {
	TherapistID   uuid.UUID
	SessionID     uuid.UUID
	Date          time.Time
	Time          string
	Location      string
	PaymentMethod string
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	cfg      config.Config
	clock    Clock
	cache    cache.Cache
	notifier Notifier
	metrics  *metrics.BookingMetrics
	logger   *slog.Logger

	notifications sync.WaitGroup
}

type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithMetrics(m *metrics.BookingMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		clock:  SystemClock{},
		cache:  cache.NewNoop(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Timezone == nil {
		s.cfg.Timezone = time.UTC
	}
	if s.cfg.NotifyTimeout <= 0 {
		s.cfg.NotifyTimeout = 8 * time.Second
	}
	return s
}

// Wait blocks until in-flight notifications have finished.
func (s *Service) Wait() {
	s.notifications.Wait()
}

// Create validates a candidate booking and persists it as confirmed and paid.
// The conflict check and the insert run under the slot lock.
func (s *Service) Create(ctx context.Context, c Candidate) (*AppointmentDetail, error) {
	ctx, span := tracer.Start(ctx, "appointment.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.therapist_id", c.TherapistID.String()),
		attribute.String("appointment.date", FormatDate(c.Date)),
		attribute.String("appointment.time", c.Time),
	)

	detail, err := s.create(ctx, c)
	s.finish(span, "create", err)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, NotifyBooked, *detail)
	return detail, nil
}

func (s *Service) create(ctx context.Context, c Candidate) (*AppointmentDetail, error) {
	appt := &Appointment{
		ID:            uuid.New(),
		Location:      c.Location,
		PaymentMethod: c.PaymentMethod,
		Notes:         c.Notes,
	}
	if err := applyBooker(appt, c.Booker); err != nil {
		return nil, err
	}

	date := CalendarDate(c.Date)
	session, err := s.validateSlot(ctx, c.TherapistID, c.SessionID, date, c.Time)
	if err != nil {
		return nil, err
	}

	appt.TherapistID = c.TherapistID
	appt.SessionID = session.ID
	appt.Date = date
	appt.Time = c.Time
	appt.Duration = session.Duration
	appt.Price = session.Price
	appt.Status = StatusConfirmed
	appt.PaymentStatus = PaymentPaid
	if appt.Location == "" {
		appt.Location = DefaultLocation
	}

	created, err := s.reserve(ctx, c.TherapistID, date, c.Time, nil, func(ctx context.Context) (*Appointment, error) {
		return s.repo.CreateAppointment(ctx, appt)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventAppointmentCreated, created.ID, map[string]any{
		"therapist_id": created.TherapistID,
		"date":         FormatDate(created.Date),
		"time":         created.Time,
		"guest":        created.Guest != nil,
	})
	s.invalidate(ctx, created.TherapistID, created.Date)

	return s.reload(ctx, created), nil
}

// Get returns the appointment if p is its client, its therapist or an admin.
func (s *Service) Get(ctx context.Context, p *Principal, id uuid.UUID) (*AppointmentDetail, error) {
	d, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isClient(p, &d.Appointment) && !isTherapist(p, &d.Appointment) && !isAdmin(p) {
		return nil, ErrAccessDenied
	}
	return d, nil
}

func (s *Service) ListForClient(ctx context.Context, p *Principal, status *AppointmentStatus) ([]AppointmentDetail, error) {
	if p == nil {
		return nil, ErrAccessDenied
	}
	if status != nil && !status.Valid() {
		return nil, validationError("unknown status %q", *status)
	}
	list, err := s.repo.ListAppointments(ctx, Filter{ClientID: &p.ID, Status: status})
	if err != nil {
		return nil, fmt.Errorf("list client appointments: %w", err)
	}
	sortByDate(list, false)
	return list, nil
}

func (s *Service) ListForTherapist(ctx context.Context, p *Principal, status *AppointmentStatus, date *time.Time) ([]AppointmentDetail, error) {
	if p == nil || p.Role != RoleTherapist {
		return nil, ErrAccessDenied
	}
	if status != nil && !status.Valid() {
		return nil, validationError("unknown status %q", *status)
	}
	if date != nil {
		d := CalendarDate(*date)
		date = &d
	}
	list, err := s.repo.ListAppointments(ctx, Filter{TherapistID: &p.ID, Status: status, Date: date, Ascending: true})
	if err != nil {
		return nil, fmt.Errorf("list therapist appointments: %w", err)
	}
	sortByDate(list, true)
	return list, nil
}

// ListAll is the admin view over every active record.
func (s *Service) ListAll(ctx context.Context, p *Principal, f Filter) ([]AppointmentDetail, error) {
	if !isAdmin(p) {
		return nil, ErrAccessDenied
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, validationError("unknown status %q", *f.Status)
	}
	if f.Date != nil {
		d := CalendarDate(*f.Date)
		f.Date = &d
	}
	f.Ascending = false
	list, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	sortByDate(list, false)
	return list, nil
}

// SetStatus lets the assigned therapist or an admin move an appointment to
// any status.
func (s *Service) SetStatus(ctx context.Context, p *Principal, id uuid.UUID, to AppointmentStatus) (*AppointmentDetail, error) {
	ctx, span := tracer.Start(ctx, "appointment.set_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.id", id.String()),
		attribute.String("appointment.status", string(to)),
	)

	detail, err := s.setStatus(ctx, p, id, to)
	s.finish(span, "set_status", err)
	return detail, err
}

func (s *Service) setStatus(ctx context.Context, p *Principal, id uuid.UUID, to AppointmentStatus) (*AppointmentDetail, error) {
	if !to.Valid() {
		return nil, validationError("unknown status %q", to)
	}
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isTherapist(p, current) && !isAdmin(p) {
		return nil, ErrAccessDenied
	}

	updated, err := s.repo.SetStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventAppointmentStatusChanged, id, map[string]any{
		"from": current.Status,
		"to":   updated.Status,
		"by":   p.ID,
	})
	s.invalidate(ctx, updated.TherapistID, updated.Date)

	return s.reload(ctx, updated), nil
}

// Reschedule re-validates the new slot, excluding the appointment itself from
// the conflict check, and resets it to confirmed and paid.
func (s *Service) Reschedule(ctx context.Context, p *Principal, id uuid.UUID, r Reschedule) (*AppointmentDetail, error) {
	ctx, span := tracer.Start(ctx, "appointment.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.id", id.String()),
		attribute.String("appointment.date", FormatDate(r.Date)),
		attribute.String("appointment.time", r.Time),
	)

	detail, err := s.reschedule(ctx, p, id, r)
	s.finish(span, "reschedule", err)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, NotifyRescheduled, *detail)
	return detail, nil
}

func (s *Service) reschedule(ctx context.Context, p *Principal, id uuid.UUID, r Reschedule) (*AppointmentDetail, error) {
	current, err := s.loadMutable(ctx, p, id)
	if err != nil {
		return nil, err
	}

	date := CalendarDate(r.Date)
	session, err := s.validateSlot(ctx, r.TherapistID, r.SessionID, date, r.Time)
	if err != nil {
		return nil, err
	}

	next := *current
	next.SessionID = session.ID
	next.TherapistID = r.TherapistID
	next.Date = date
	next.Time = r.Time
	next.Duration = session.Duration
	next.Price = session.Price
	next.Location = r.Location
	if next.Location == "" {
		next.Location = DefaultLocation
	}
	if r.PaymentMethod != "" {
		next.PaymentMethod = r.PaymentMethod
	}
	next.Status = StatusConfirmed
	next.PaymentStatus = PaymentPaid

	updated, err := s.reserve(ctx, next.TherapistID, date, next.Time, &current.ID, func(ctx context.Context) (*Appointment, error) {
		return s.repo.UpdateSchedule(ctx, &next)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventAppointmentRescheduled, id, map[string]any{
		"from": map[string]any{"therapist_id": current.TherapistID, "date": FormatDate(current.Date), "time": current.Time},
		"to":   map[string]any{"therapist_id": updated.TherapistID, "date": FormatDate(updated.Date), "time": updated.Time},
	})
	s.invalidate(ctx, current.TherapistID, current.Date)
	s.invalidate(ctx, updated.TherapistID, updated.Date)

	return s.reload(ctx, updated), nil
}

// UpdateDateTime moves an appointment to a new date and time with the same
// therapist. Nothing but the date and time is written.
func (s *Service) UpdateDateTime(ctx context.Context, p *Principal, id uuid.UUID, date time.Time, label string) (*AppointmentDetail, error) {
	ctx, span := tracer.Start(ctx, "appointment.update_datetime")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.id", id.String()),
		attribute.String("appointment.date", FormatDate(date)),
		attribute.String("appointment.time", label),
	)

	detail, err := s.updateDateTime(ctx, p, id, date, label)
	s.finish(span, "update_datetime", err)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, NotifyDateTimeUpdated, *detail)
	return detail, nil
}

func (s *Service) updateDateTime(ctx context.Context, p *Principal, id uuid.UUID, date time.Time, label string) (*AppointmentDetail, error) {
	current, err := s.loadMutable(ctx, p, id)
	if err != nil {
		return nil, err
	}

	date = CalendarDate(date)
	if !IsTimeSlot(label) {
		return nil, validationError("time %q is not a bookable slot", label)
	}
	if err := checkBookableDate(date, s.clock.Now(), s.cfg.Timezone); err != nil {
		return nil, err
	}

	next := *current
	next.Date = date
	next.Time = label

	updated, err := s.reserve(ctx, current.TherapistID, date, label, &current.ID, func(ctx context.Context) (*Appointment, error) {
		return s.repo.UpdateSchedule(ctx, &next)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventAppointmentDateTimeUpdated, id, map[string]any{
		"from": map[string]any{"date": FormatDate(current.Date), "time": current.Time},
		"to":   map[string]any{"date": FormatDate(updated.Date), "time": updated.Time},
	})
	s.invalidate(ctx, current.TherapistID, current.Date)
	s.invalidate(ctx, updated.TherapistID, updated.Date)

	return s.reload(ctx, updated), nil
}

// Cancel is open to the client who owns the appointment and to admins.
func (s *Service) Cancel(ctx context.Context, p *Principal, id uuid.UUID) (*AppointmentDetail, error) {
	ctx, span := tracer.Start(ctx, "appointment.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id.String()))

	detail, err := s.cancel(ctx, p, id)
	s.finish(span, "cancel", err)
	return detail, err
}

func (s *Service) cancel(ctx context.Context, p *Principal, id uuid.UUID) (*AppointmentDetail, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isClient(p, current) && !isAdmin(p) {
		return nil, ErrAccessDenied
	}
	if current.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	cancelled, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventAppointmentCancelled, id, map[string]any{
		"from": current.Status,
		"by":   p.ID,
	})
	s.invalidate(ctx, cancelled.TherapistID, cancelled.Date)

	return s.reload(ctx, cancelled), nil
}

// Helpers

// loadMutable loads an appointment for reschedule or date/time update: the
// requester must be its client, its therapist or an admin, and the status must
// not be terminal.
func (s *Service) loadMutable(ctx context.Context, p *Principal, id uuid.UUID) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isClient(p, current) && !isTherapist(p, current) && !isAdmin(p) {
		return nil, ErrAccessDenied
	}
	if current.Status.Terminal() {
		return nil, ErrInvalidTransition
	}
	return current, nil
}

// validateSlot runs the referential, date floor and blackout checks in that
// order and returns the session whose duration and price get snapshotted.
func (s *Service) validateSlot(ctx context.Context, therapistID, sessionID uuid.UUID, date time.Time, label string) (*Session, error) {
	if sessionID == uuid.Nil {
		return nil, validationError("sessionId is required")
	}
	if therapistID == uuid.Nil {
		return nil, validationError("therapistId is required")
	}
	if !IsTimeSlot(label) {
		return nil, validationError("time %q is not a bookable slot", label)
	}

	session, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTherapist(ctx, therapistID); err != nil {
		return nil, err
	}

	if err := checkBookableDate(date, s.clock.Now(), s.cfg.Timezone); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) checkTherapist(ctx context.Context, id uuid.UUID) error {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTherapistNotFound
		}
		return fmt.Errorf("load therapist: %w", err)
	}
	if u.Role != RoleTherapist || !u.IsActive {
		return ErrTherapistNotFound
	}
	return nil
}

// reserve runs the slot conflict check and write under the slot lock. A lock
// held by another request is reported as a conflict. When Redis cannot be
// reached the check and write run unlocked and the active-slot unique index
// decides.
func (s *Service) reserve(ctx context.Context, therapistID uuid.UUID, date time.Time, label string, exclude *uuid.UUID, write func(ctx context.Context) (*Appointment, error)) (*Appointment, error) {
	var saved *Appointment
	checkAndWrite := func(ctx context.Context) error {
		existing, err := s.repo.FindActiveInSlot(ctx, therapistID, date, label, exclude)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check slot: %w", err)
		}
		if existing != nil {
			return ErrSlotConflict
		}

		saved, err = write(ctx)
		return err
	}

	key := SlotKey(therapistID, date, label)
	err := s.locker.WithSlotLock(ctx, key, checkAndWrite)
	if errors.Is(err, redisclient.ErrLockUnavailable) {
		s.logger.Warn("slot lock unavailable, relying on the unique index", "slot", key, "error", err)
		err = checkAndWrite(ctx)
	}
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrSlotConflict
	}
	if err != nil {
		return nil, err
	}

	return saved, nil
}

func (s *Service) logEvent(ctx context.Context, eventType string, id uuid.UUID, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("event payload marshal failed", "event", eventType, "appointment_id", id, "error", err)
		return
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &id,
		Payload:       body,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("event log write failed", "event", eventType, "appointment_id", id, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, therapistID uuid.UUID, date time.Time) {
	if _, err := s.cache.Incr(ctx, availabilityVersionKey(therapistID, date), availabilityVersionTTL); err != nil {
		s.logger.Warn("availability cache invalidation failed", "therapist_id", therapistID, "date", FormatDate(date), "error", err)
	}
}

// reload returns the joined view of an appointment that was just written. The
// write has committed, so a failed read degrades to the bare record instead of
// reporting the operation as failed.
func (s *Service) reload(ctx context.Context, a *Appointment) *AppointmentDetail {
	d, err := s.repo.GetAppointmentDetail(ctx, a.ID)
	if err != nil {
		s.logger.Warn("reload after write failed", "appointment_id", a.ID, "error", err)
		return &AppointmentDetail{Appointment: *a}
	}
	return d
}

// notify sends an email in the background on a context detached from the
// request.
func (s *Service) notify(ctx context.Context, kind NotificationKind, d AppointmentDetail) {
	if s.notifier == nil {
		return
	}
	if email, _ := d.ContactEmail(); email == "" {
		return
	}

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
		defer cancel()

		err := s.notifier.Notify(sendCtx, kind, d)
		s.metrics.ObserveNotification(string(kind), err == nil)
		if err != nil {
			s.logger.Error("appointment email failed", "kind", kind, "appointment_id", d.ID, "error", err)
			return
		}
		s.logger.Debug("appointment email sent", "kind", kind, "appointment_id", d.ID)
	}()
}

func (s *Service) finish(span trace.Span, operation string, err error) {
	outcome := Outcome(err)
	s.metrics.ObserveOperation(operation, outcome)
	span.SetAttributes(attribute.String("appointment.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		if outcome == "error" {
			s.logger.Error("appointment operation failed", "operation", operation, "error", err)
		}
	}
}

func isAdmin(p *Principal) bool {
	return p != nil && p.IsAdmin()
}

func isClient(p *Principal, a *Appointment) bool {
	return p != nil && a.ClientID != nil && *a.ClientID == p.ID
}

func isTherapist(p *Principal, a *Appointment) bool {
	return p != nil && a.TherapistID == p.ID
}

// sortByDate orders by calendar day, then by slot within the day.
func sortByDate(list []AppointmentDetail, ascending bool) {
	slices.SortStableFunc(list, func(a, b AppointmentDetail) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			if ascending {
				return c
			}
			return -c
		}
		return SlotIndex(a.Time) - SlotIndex(b.Time)
	})
}
