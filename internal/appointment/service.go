package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/slot-booking-service/internal/config"
	"github.com/hackgods/slot-booking-service/internal/events"
	redisclient "github.com/hackgods/slot-booking-service/internal/redis"
	"github.com/hackgods/slot-booking-service/internal/schedule"
	"github.com/hackgods/slot-booking-service/internal/specialist"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventAppointmentExpired   = "APPOINTMENT_EXPIRED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	expiryBatchSize  = 500
	publishTimeout   = 2 * time.Second

	lockPollInterval    = 10 * time.Millisecond
	lockPollMaxInterval = 200 * time.Millisecond
)

type Service struct {
	ledger    Ledger
	directory specialist.Directory
	locker    redisclient.Locker
	publisher events.Publisher
	cfg       config.Config
	log       *zap.Logger
	now       func() time.Time
}

// NewService wires the booking orchestrator. locker may be nil, in which case
// reservations rely on the ledger alone; publisher may be nil as well.
func NewService(ledger Ledger, directory specialist.Directory, locker redisclient.Locker, publisher events.Publisher, cfg config.Config, log *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		ledger:    ledger,
		directory: directory,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

func (s *Service) today() schedule.Date {
	return schedule.Today(s.now(), s.cfg.Location)
}

// BookAppointment validates req, checks the specialist offers the requested
// slot, and reserves it. A lost race surfaces as ErrSlotUnavailable.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	today := s.today()
	in, err := parseBooking(req, today)
	if err != nil {
		return nil, err
	}

	sp, err := s.directory.GetSpecialist(ctx, in.specialistID)
	if err != nil {
		if errors.Is(err, ErrSpecialistNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load specialist: %w", err)
	}
	if !sp.AcceptingPatients {
		return nil, invalid("specialist_id", "specialist is not accepting new appointments")
	}

	if !schedule.Offers(*sp, in.date, today, in.time) {
		return nil, ErrSlotNotOffered
	}

	r := Reservation{
		ID:              uuid.New(),
		SpecialistID:    in.specialistID,
		ClinicID:        in.clinicID,
		PatientID:       in.patientID,
		Date:            in.date,
		Time:            in.time,
		DurationMinutes: sp.SlotDurationMinutes,
		Reason:          in.reason,
		ServiceType:     in.serviceType,
		Notes:           in.notes,
	}

	appt, err := s.reserve(ctx, r)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.log.Info("slot unavailable",
				zap.String("specialist_id", r.SpecialistID.String()),
				zap.String("date", r.Date.String()),
				zap.String("time", r.Time.String()),
			)
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"specialist_id": appt.SpecialistID.String(),
		"clinic_id":     appt.ClinicID.String(),
		"patient_id":    appt.PatientID.String(),
		"date":          appt.Date.String(),
		"time":          appt.Time.String(),
	})

	return appt, nil
}

// reserve runs the ledger reservation, inside a Redis slot lock when one is
// configured. A caller that finds the lock held waits for the holder and then
// asks the ledger, so SlotUnavailable always reflects a reservation the ledger
// actually holds. A broken lock backend does not block booking.
func (s *Service) reserve(ctx context.Context, r Reservation) (*Appointment, error) {
	if s.locker == nil {
		return s.tryReserve(ctx, r)
	}

	var created *Appointment
	key := redisclient.SlotKey(r.SpecialistID, r.Date.String(), r.Time.String())

	err := backoff.Retry(func() error {
		err := s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
			appt, err := s.tryReserve(lockCtx, r)
			created = appt
			return err
		})
		if err == nil || errors.Is(err, redisclient.ErrLockNotAcquired) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(s.lockWait(), ctx))

	switch {
	case err == nil:
		return created, nil
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		s.log.Info("slot lock still held, deferring to ledger", zap.String("key", key))
		return s.tryReserve(ctx, r)
	case errors.Is(err, redisclient.ErrLockBackend):
		s.log.Warn("slot lock unavailable, reserving without it", zap.String("key", key), zap.Error(err))
		return s.tryReserve(ctx, r)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil, err
}

// lockWait bounds how long a caller polls a held slot lock: at most one lock
// lifetime, after which the holder is presumed gone.
func (s *Service) lockWait() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = lockPollInterval
	b.MaxInterval = lockPollMaxInterval
	b.MaxElapsedTime = s.cfg.LockTTL
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = time.Second
	}
	return b
}

func (s *Service) tryReserve(ctx context.Context, r Reservation) (*Appointment, error) {
	appt, err := withStorageRetry(ctx, s.cfg.RetryAttempts, s.log, "try_reserve",
		func(ctx context.Context) (*Appointment, error) {
			if s.cfg.ReserveTimeout <= 0 {
				return s.ledger.TryReserve(ctx, r)
			}
			attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ReserveTimeout)
			defer cancel()

			appt, err := s.ledger.TryReserve(attemptCtx, r)
			if err != nil && !errors.Is(err, ErrConflict) && !errors.Is(err, ErrStorageUnavailable) &&
				errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("%w: reservation exceeded %s", ErrStorageUnavailable, s.cfg.ReserveTimeout)
			}
			return appt, err
		})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	return appt, nil
}

// CancelAppointment releases the appointment's slot. Cancelling twice is not an error.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	current, err := s.ledger.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusCancelled {
		return current, nil
	}

	appt, err := withStorageRetry(ctx, s.cfg.RetryAttempts, s.log, "release",
		func(ctx context.Context) (*Appointment, error) {
			return s.ledger.Release(ctx, id)
		})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCancelled, map[string]any{
		"previous_status": string(current.Status),
	})
	return appt, nil
}

func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, EventAppointmentConfirmed)
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, EventAppointmentCompleted)
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow, EventAppointmentNoShow)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus, eventType string) (*Appointment, error) {
	appt, err := s.ledger.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	from := appt.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	updated, err := s.ledger.UpdateStatus(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// status moved underneath us
			return nil, fmt.Errorf("%w: appointment is no longer %s", ErrInvalidTransition, from)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, updated.ID, eventType, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.ledger.GetAppointment(ctx, id)
}

// ListPatientAppointments lists a patient's appointments by date and time.
// upcoming restricts the result to active appointments from today on.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, status AppointmentStatus, upcoming bool, limit, offset int) ([]Appointment, error) {
	if status != "" && !status.Valid() {
		return nil, invalid("status", "unknown appointment status")
	}
	limit, offset = PageBounds(limit, offset)

	filter := ListFilter{Status: status, Limit: limit, Offset: offset}
	if upcoming {
		filter.ActiveOnly = true
		filter.FromDate = s.today()
	}

	appointments, err := s.ledger.ListByPatient(ctx, patientID, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// PageBounds applies the list defaults: limit 0 means 20, limits above 100
// are capped and negative offsets start at 0.
func PageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ExpirePendingAppointments cancels pending appointments older than PendingTTL
// so abandoned bookings stop holding slots. It returns how many were expired.
func (s *Service) ExpirePendingAppointments(ctx context.Context) (int, error) {
	if s.cfg.PendingTTL <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-s.cfg.PendingTTL)
	stale, err := s.ledger.FindStalePending(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	expired := 0
	for _, appt := range stale {
		_, err := s.ledger.UpdateStatus(ctx, appt.ID, StatusPending, StatusCancelled)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Error("failed to expire appointment", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			}
			continue
		}
		expired++
		s.logEvent(ctx, appt.ID, EventAppointmentExpired, map[string]any{
			"reason":     "pending_ttl",
			"created_at": appt.CreatedAt,
		})
	}

	return expired, nil
}

// logEvent records the event in the ledger and forwards it to the publisher.
// Failures are logged and never fail the caller.
func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	now := s.now()

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     now,
	}
	if err := s.ledger.InsertEvent(ctx, ev); err != nil {
		s.log.Error("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = s.publisher.Publish(pubCtx, events.Event{
		ID:            uuid.New(),
		Type:          eventType,
		AppointmentID: appointmentID,
		OccurredAt:    now,
		Payload:       payload,
	})
	if err != nil {
		s.log.Warn("failed to publish event",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
