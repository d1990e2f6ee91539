package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/slot-booking-service/internal/appointment"
	"github.com/hackgods/slot-booking-service/internal/schedule"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	svc *appointment.Service
	log *zap.Logger
}

func (h *handlers) availability(w http.ResponseWriter, r *http.Request) {
	specialistID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeInvalid(w, "specialist_id", "must be a valid UUID")
		return
	}

	date, err := schedule.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeInvalid(w, "date", "must be a calendar date formatted YYYY-MM-DD")
		return
	}

	avail, err := h.svc.GetAvailableSlots(r.Context(), specialistID, date)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAvailabilityResponse(avail))
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointment.BookingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.svc.BookAppointment(r.Context(), req)
	if err != nil {
		if errors.Is(err, appointment.ErrSlotUnavailable) {
			h.writeSlotUnavailable(w, r, req, err)
			return
		}
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// writeSlotUnavailable answers a lost booking race with the slots still open
// that day so the client can offer another time straight away.
func (h *handlers) writeSlotUnavailable(w http.ResponseWriter, r *http.Request, req appointment.BookingRequest, cause error) {
	resp := ErrorResponse{Error: "slot_unavailable", Message: cause.Error(), AvailableSlots: []string{}}

	specialistID, idErr := uuid.Parse(req.SpecialistID)
	date, dateErr := schedule.ParseDate(req.Date)
	if idErr == nil && dateErr == nil {
		avail, err := h.svc.GetAvailableSlots(r.Context(), specialistID, date)
		if err != nil {
			h.log.Warn("could not refresh availability after conflict", zap.Error(err))
		} else {
			resp.AvailableSlots = slotStrings(avail)
		}
	}

	writeJSON(w, http.StatusConflict, resp)
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	patientID, err := uuid.Parse(q.Get("patient_id"))
	if err != nil {
		writeInvalid(w, "patient_id", "must be a valid UUID")
		return
	}

	upcoming := false
	if raw := q.Get("upcoming"); raw != "" {
		upcoming, err = strconv.ParseBool(raw)
		if err != nil {
			writeInvalid(w, "upcoming", "must be true or false")
			return
		}
	}

	limit, ok := intParam(w, q.Get("limit"), "limit")
	if !ok {
		return
	}
	offset, ok := intParam(w, q.Get("offset"), "offset")
	if !ok {
		return
	}

	status := appointment.AppointmentStatus(q.Get("status"))
	appointments, err := h.svc.ListPatientAppointments(r.Context(), patientID, status, upcoming, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	limit, offset = appointment.PageBounds(limit, offset)
	resp := AppointmentListResponse{
		Appointments: make([]AppointmentResponse, 0, len(appointments)),
		Limit:        limit,
		Offset:       offset,
	}
	for i := range appointments {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appointments[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

func intParam(w http.ResponseWriter, raw, field string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeInvalid(w, field, "must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, http.StatusOK, h.svc.GetAppointment)
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, http.StatusOK, h.svc.CancelAppointment)
}

func (h *handlers) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, http.StatusOK, h.svc.ConfirmAppointment)
}

func (h *handlers) completeAppointment(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, http.StatusOK, h.svc.CompleteAppointment)
}

func (h *handlers) markNoShow(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, http.StatusOK, h.svc.MarkNoShow)
}

func (h *handlers) withAppointment(w http.ResponseWriter, r *http.Request, status int,
	op func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeInvalid(w, "id", "must be a valid UUID")
		return
	}

	appt, err := op(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, status, toAppointmentResponse(appt))
}
