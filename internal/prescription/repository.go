package prescription

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/therapy-booking/internal/appointment"
)

type Repository interface {
	Create(ctx context.Context, p *Prescription) (*Prescription, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Prescription, error)
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Prescription, error)
}

type PgRepository struct {
	db appointment.DBTX
}

func NewPgRepository(db appointment.DBTX) *PgRepository {
	return &PgRepository{db: db}
}

const selectPrescription = `
	SELECT p.id, p.appointment_id, p.therapist_id, p.patient_id, p.notes,
	       t.name, pt.name, p.created_at, p.updated_at
	FROM prescriptions p
	JOIN users t ON t.id = p.therapist_id
	JOIN users pt ON pt.id = p.patient_id`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.TherapistID,
		&p.PatientID,
		&p.Notes,
		&p.TherapistName,
		&p.PatientName,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) Create(ctx context.Context, p *Prescription) (*Prescription, error) {
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO prescriptions (id, appointment_id, therapist_id, patient_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`, id, p.AppointmentID, p.TherapistID, p.PatientID, p.Notes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrConflict
		}
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return scanPrescription(r.db.QueryRow(ctx, selectPrescription+`
		WHERE p.id = $1
	`, id))
}

func (r *PgRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	return scanPrescription(r.db.QueryRow(ctx, selectPrescription+`
		WHERE p.appointment_id = $1
	`, appointmentID))
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Prescription, error) {
	rows, err := r.db.Query(ctx, selectPrescription+`
		WHERE p.patient_id = $1
		ORDER BY p.created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Prescription, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE prescriptions
		SET notes = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, notes)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrPrescriptionNotFound
	}
	return r.GetByID(ctx, id)
}
