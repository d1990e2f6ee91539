package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking-service/internal/schedule"
)

// Ledger is the authoritative record of appointments and the sole arbiter of
// slot conflicts. Implementations must make TryReserve's check-and-insert
// indivisible for a given (specialist, date, time) triple.
type Ledger interface {
	// ListOccupied returns start times held by pending or confirmed appointments, ascending.
	ListOccupied(ctx context.Context, specialistID uuid.UUID, date schedule.Date) ([]schedule.TimeOfDay, error)

	// TryReserve inserts a pending appointment or returns ErrConflict.
	TryReserve(ctx context.Context, r Reservation) (*Appointment, error)

	// Release cancels an appointment. Cancelling a cancelled appointment is a no-op.
	Release(ctx context.Context, id uuid.UUID) (*Appointment, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateStatus moves id from -> to only if it is still in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, filter ListFilter) ([]Appointment, error)

	// FindStalePending returns pending appointments created before the cutoff, oldest first.
	FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
