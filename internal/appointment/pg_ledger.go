package appointment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/slot-booking-service/internal/schedule"
)

// PgLedger keeps appointments in Postgres. The partial unique index
// appointments_active_slot_uidx enforces one active appointment per slot, so
// TryReserve is a single INSERT and a unique violation means the slot is taken.
type PgLedger struct {
	pool *pgxpool.Pool
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool}
}

const appointmentCols = `id, specialist_id, clinic_id, patient_id, appointment_date, appointment_time,
	duration_minutes, status, reason, service_type, notes, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a    Appointment
		date time.Time
		tod  pgtype.Time
	)

	err := row.Scan(
		&a.ID,
		&a.SpecialistID,
		&a.ClinicID,
		&a.PatientID,
		&date,
		&tod,
		&a.DurationMinutes,
		&a.Status,
		&a.Reason,
		&a.ServiceType,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, classify(err)
	}

	a.Date = schedule.DateOf(date)
	a.Time = fromPgTime(tod)
	return &a, nil
}

func toPgTime(t schedule.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Duration().Microseconds(), Valid: true}
}

func fromPgTime(t pgtype.Time) schedule.TimeOfDay {
	return schedule.TimeOfDayFromDuration(time.Duration(t.Microseconds) * time.Microsecond)
}

// classify maps driver errors onto the ledger taxonomy: unique violations become
// ErrConflict, connectivity and timeout failures become ErrStorageUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			return ErrConflict
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code),
			pgerrcode.IsTransactionRollback(pgErr.Code):
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err),
		pgconn.SafeToRetry(err),
		errors.As(err, &connectErr),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return err
}

// Ledger methods

func (l *PgLedger) ListOccupied(ctx context.Context, specialistID uuid.UUID, date schedule.Date) ([]schedule.TimeOfDay, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT appointment_time
		FROM appointments
		WHERE specialist_id = $1
		  AND appointment_date = $2
		  AND status IN ('pending', 'confirmed')
		ORDER BY appointment_time
	`, specialistID, date.Time())
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var occupied []schedule.TimeOfDay
	for rows.Next() {
		var tod pgtype.Time
		if err := rows.Scan(&tod); err != nil {
			return nil, classify(err)
		}
		occupied = append(occupied, fromPgTime(tod))
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return occupied, nil
}

func (l *PgLedger) TryReserve(ctx context.Context, r Reservation) (*Appointment, error) {
	row := l.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, specialist_id, clinic_id, patient_id, appointment_date, appointment_time,
			duration_minutes, status, reason, service_type, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10, now(), now())
		RETURNING `+appointmentCols,
		r.ID, r.SpecialistID, r.ClinicID, r.PatientID, r.Date.Time(), toPgTime(r.Time),
		r.DurationMinutes, r.Reason, r.ServiceType, r.Notes)

	appt, err := scanAppointment(row)
	if !errors.Is(err, ErrConflict) {
		return appt, err
	}

	// A retry whose first attempt committed collides with itself; hand back that row.
	existing, getErr := l.GetAppointment(ctx, r.ID)
	if getErr == nil && existing.Status.Active() &&
		existing.SpecialistID == r.SpecialistID && existing.Date == r.Date && existing.Time == r.Time {
		return existing, nil
	}
	return nil, ErrConflict
}

func (l *PgLedger) Release(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		RETURNING `+appointmentCols, id)

	appt, err := scanAppointment(row)
	if !errors.Is(err, ErrAppointmentNotFound) {
		return appt, err
	}

	existing, err := l.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == StatusCancelled {
		return existing, nil
	}
	return nil, fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidTransition, existing.Status)
}

func (l *PgLedger) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (l *PgLedger) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := l.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentCols, id, to, from)

	return scanAppointment(row)
}

func (l *PgLedger) ListByPatient(ctx context.Context, patientID uuid.UUID, filter ListFilter) ([]Appointment, error) {
	var (
		where = []string{"patient_id = $1"}
		args  = []any{patientID}
	)

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "status IN ('pending', 'confirmed')")
	}
	if !filter.FromDate.IsZero() {
		args = append(args, filter.FromDate.Time())
		where = append(where, fmt.Sprintf("appointment_date >= $%d", len(args)))
	}

	args = append(args, filter.Limit, filter.Offset)
	query := `SELECT ` + appointmentCols + ` FROM appointments WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY appointment_date, appointment_time LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (l *PgLedger) FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Appointment, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE status = 'pending'
		  AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return result, nil
}

func (l *PgLedger) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := l.pool.Exec(ctx, `
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
