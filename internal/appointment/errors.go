package appointment

import (
	"errors"
	"fmt"

	"github.com/hackgods/slot-booking-service/internal/specialist"
)

var (
	ErrInvalidRequest      = errors.New("invalid booking request")
	ErrSlotNotOffered      = errors.New("requested time is not offered by the specialist on that date")
	ErrSlotUnavailable     = errors.New("slot was just taken, please pick another time")
	ErrConflict            = errors.New("slot already has an active appointment")
	ErrStorageUnavailable  = errors.New("appointment storage unavailable")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrNotFound            = errors.New("not found")
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)

	// ErrSpecialistNotFound is the directory's error, re-exported so callers
	// only need this package's taxonomy.
	ErrSpecialistNotFound = specialist.ErrSpecialistNotFound
)

// ValidationError names the first request field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
