package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking-service/internal/appointment"
)

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	SpecialistID    uuid.UUID `json:"specialist_id"`
	ClinicID        uuid.UUID `json:"clinic_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason"`
	ServiceType     *string   `json:"service_type,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		SpecialistID:    a.SpecialistID,
		ClinicID:        a.ClinicID,
		PatientID:       a.PatientID,
		Date:            a.Date.String(),
		Time:            a.Time.String(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Reason:          a.Reason,
		ServiceType:     a.ServiceType,
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type AvailabilityResponse struct {
	SpecialistID        uuid.UUID `json:"specialist_id"`
	Date                string    `json:"date"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	AvailableSlots      []string  `json:"available_slots"`
}

func toAvailabilityResponse(a *appointment.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		SpecialistID:        a.SpecialistID,
		Date:                a.Date.String(),
		SlotDurationMinutes: a.SlotDurationMinutes,
		AvailableSlots:      slotStrings(a),
	}
}

func slotStrings(a *appointment.Availability) []string {
	out := make([]string, 0, len(a.Slots))
	for _, t := range a.StartTimes() {
		out = append(out, t.String())
	}
	return out
}

type ErrorResponse struct {
	Error          string   `json:"error"`
	Message        string   `json:"message,omitempty"`
	Field          string   `json:"field,omitempty"`
	AvailableSlots []string `json:"available_slots,omitempty"`
}
