package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const activeSlotIndex = "appointments_active_slot_uidx"

// DBTX is the subset of pgxpool.Pool the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DBTX
}

func NewPgRepository(db DBTX) *PgRepository {
	return &PgRepository{db: db}
}

const appointmentColumns = `
	a.id, a.client_id, a.therapist_id, a.session_id, a.date, a.time, a.duration, a.price,
	a.status, a.payment_status, a.location, COALESCE(a.payment_method, ''),
	COALESCE(a.guest_name, ''), COALESCE(a.guest_email, ''), COALESCE(a.guest_phone, ''),
	COALESCE(a.notes, ''), a.is_active, a.created_at, a.updated_at`

const detailColumns = appointmentColumns + `,
	s.name, s.description, s.duration, s.price, s.is_active,
	t.name, t.email, COALESCE(t.phone, ''), COALESCE(t.specialization, ''),
	COALESCE(c.name, ''), COALESCE(c.email, ''), COALESCE(c.phone, '')`

const detailFrom = `
	FROM appointments a
	JOIN sessions s ON s.id = a.session_id
	JOIN users t ON t.id = a.therapist_id
	LEFT JOIN users c ON c.id = a.client_id`

// Helpers

func appointmentDest(a *Appointment, guestName, guestEmail, guestPhone *string) []any {
	return []any{
		&a.ID,
		&a.ClientID,
		&a.TherapistID,
		&a.SessionID,
		&a.Date,
		&a.Time,
		&a.Duration,
		&a.Price,
		&a.Status,
		&a.PaymentStatus,
		&a.Location,
		&a.PaymentMethod,
		guestName,
		guestEmail,
		guestPhone,
		&a.Notes,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func finishAppointment(a *Appointment, guestName, guestEmail, guestPhone string) {
	if guestEmail != "" {
		a.Guest = &GuestInfo{Name: guestName, Email: guestEmail, Phone: guestPhone}
	}
	a.Date = CalendarDate(a.Date)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var guestName, guestEmail, guestPhone string

	err := row.Scan(appointmentDest(&a, &guestName, &guestEmail, &guestPhone)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	finishAppointment(&a, guestName, guestEmail, guestPhone)
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var guestName, guestEmail, guestPhone string
	var s Session
	var t UserSummary
	var c UserSummary

	dest := appointmentDest(&d.Appointment, &guestName, &guestEmail, &guestPhone)
	dest = append(dest,
		&s.Name, &s.Description, &s.Duration, &s.Price, &s.IsActive,
		&t.Name, &t.Email, &t.Phone, &t.Specialization,
		&c.Name, &c.Email, &c.Phone,
	)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	finishAppointment(&d.Appointment, guestName, guestEmail, guestPhone)
	s.ID = d.SessionID
	t.ID = d.TherapistID
	d.Session = &s
	d.Therapist = &t
	if d.ClientID != nil {
		c.ID = *d.ClientID
		d.Client = &c
	}
	return &d, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func guestArgs(g *GuestInfo) (name, email, phone *string) {
	if g == nil {
		return nil, nil, nil
	}
	return nullableString(g.Name), nullableString(g.Email), nullableString(g.Phone)
}

// mapWriteError turns a violation of the active-slot index into ErrSlotConflict.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeSlotIndex {
		return fmt.Errorf("%w: %s", ErrSlotConflict, pgErr.Detail)
	}
	return err
}

// Interface methods

func (r *PgRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	var s Session
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description, duration, price, is_active
		FROM sessions
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Description, &s.Duration, &s.Price, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, `
		SELECT id, name, email, COALESCE(phone, ''), role, COALESCE(specialization, ''), is_active
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.Specialization, &u.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT`+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.db.QueryRow(ctx, `SELECT`+detailColumns+detailFrom+`
		WHERE a.id = $1
	`, id)
	return scanDetail(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f Filter) ([]AppointmentDetail, error) {
	where := []string{"a.is_active = TRUE"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.ClientID != nil {
		add("a.client_id = $%d", *f.ClientID)
	}
	if f.TherapistID != nil {
		add("a.therapist_id = $%d", *f.TherapistID)
	}
	if f.Status != nil {
		add("a.status = $%d", *f.Status)
	}
	if f.Date != nil {
		add("a.date = $%d", *f.Date)
	}

	order := "DESC"
	if f.Ascending {
		order = "ASC"
	}

	query := `SELECT` + detailColumns + detailFrom + `
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY a.date ` + order + `, a.created_at ` + order

	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) FindActiveInSlot(ctx context.Context, therapistID uuid.UUID, date time.Time, label string, exclude *uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT`+appointmentColumns+`
		FROM appointments a
		WHERE a.therapist_id = $1
		  AND a.date = $2
		  AND a.time = $3
		  AND a.status IN ('pending', 'confirmed')
		  AND ($4::uuid IS NULL OR a.id <> $4)
		LIMIT 1
	`, therapistID, date, label, exclude)
	return scanAppointment(row)
}

func (r *PgRepository) TakenTimes(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT time
		FROM appointments
		WHERE therapist_id = $1
		  AND date = $2
		  AND status <> 'cancelled'
	`, therapistID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var taken []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		taken = append(taken, label)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return taken, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	guestName, guestEmail, guestPhone := guestArgs(a.Guest)

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments AS a (
			id, client_id, therapist_id, session_id, date, time, duration, price,
			status, payment_status, location, payment_method,
			guest_name, guest_email, guest_phone, notes, is_active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, TRUE, now(), now())
		RETURNING`+appointmentColumns,
		id, a.ClientID, a.TherapistID, a.SessionID, a.Date, a.Time, a.Duration, a.Price,
		a.Status, a.PaymentStatus, a.Location, nullableString(a.PaymentMethod),
		guestName, guestEmail, guestPhone, nullableString(a.Notes),
	)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments AS a
		SET session_id = $2,
		    therapist_id = $3,
		    date = $4,
		    time = $5,
		    duration = $6,
		    price = $7,
		    location = $8,
		    payment_method = $9,
		    status = $10,
		    payment_status = $11,
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status IN ('pending', 'confirmed')
		RETURNING`+appointmentColumns,
		a.ID, a.SessionID, a.TherapistID, a.Date, a.Time, a.Duration, a.Price,
		a.Location, nullableString(a.PaymentMethod), a.Status, a.PaymentStatus,
	)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

func (r *PgRepository) SetStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = $2,
		    updated_at = now()
		WHERE a.id = $1
		RETURNING`+appointmentColumns, id, to)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

func (r *PgRepository) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = 'cancelled',
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status IN ('pending', 'confirmed')
		RETURNING`+appointmentColumns, id)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrInvalidTransition
	}
	return updated, err
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
