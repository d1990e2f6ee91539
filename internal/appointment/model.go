package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking-service/internal/schedule"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Active statuses occupy their slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusNoShow},
}

// CanTransition reports whether from -> to is an edge of the appointment state machine.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID              uuid.UUID
	SpecialistID    uuid.UUID
	ClinicID        uuid.UUID
	PatientID       uuid.UUID
	Date            schedule.Date
	Time            schedule.TimeOfDay
	DurationMinutes int
	Status          AppointmentStatus
	Reason          string
	ServiceType     *string
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Reservation is a validated request to occupy one slot. ID is chosen by the
// caller so a retried reservation can recognise its own earlier insert.
type Reservation struct {
	ID              uuid.UUID
	SpecialistID    uuid.UUID
	ClinicID        uuid.UUID
	PatientID       uuid.UUID
	Date            schedule.Date
	Time            schedule.TimeOfDay
	DurationMinutes int
	Reason          string
	ServiceType     *string
	Notes           *string
}

// ListFilter narrows a patient's appointment listing.
type ListFilter struct {
	Status     AppointmentStatus // empty means any
	ActiveOnly bool              // pending or confirmed only
	FromDate   schedule.Date     // zero means no lower bound
	Limit      int
	Offset     int
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
