package prescription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var prescriptionColumns = []string{
	"id", "appointment_id", "therapist_id", "patient_id", "notes",
	"therapist_name", "patient_name", "created_at", "updated_at",
}

func TestPgCreateDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	p := &Prescription{ID: uuid.New(), AppointmentID: uuid.New(), TherapistID: uuid.New(), PatientID: uuid.New(), Notes: "n"}
	mock.ExpectExec("INSERT INTO prescriptions").
		WithArgs(p.ID, p.AppointmentID, p.TherapistID, p.PatientID, "n").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "prescriptions_appointment_uidx"})

	_, err = repo.Create(context.Background(), p)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateReadsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	p := &Prescription{ID: uuid.New(), AppointmentID: uuid.New(), TherapistID: uuid.New(), PatientID: uuid.New(), Notes: "n"}
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO prescriptions").
		WithArgs(p.ID, p.AppointmentID, p.TherapistID, p.PatientID, "n").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`WHERE p.id = \$1`).
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows(prescriptionColumns).
			AddRow(p.ID, p.AppointmentID, p.TherapistID, p.PatientID, "n", "Dr. Rivera", "Sam", now, now))

	got, err := repo.Create(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Rivera", got.TherapistName)
	assert.Equal(t, "Sam", got.PatientName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetByAppointmentNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	id := uuid.New()
	mock.ExpectQuery(`WHERE p.appointment_id = \$1`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByAppointment(context.Background(), id)
	assert.ErrorIs(t, err, ErrPrescriptionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateNotesMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPgRepository(mock)

	id := uuid.New()
	mock.ExpectExec("UPDATE prescriptions").WithArgs(id, "x").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err = repo.UpdateNotes(context.Background(), id, "x")
	assert.ErrorIs(t, err, ErrPrescriptionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
