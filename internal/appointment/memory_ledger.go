package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking-service/internal/schedule"
)

type slotKey struct {
	specialistID uuid.UUID
	date         schedule.Date
	time         schedule.TimeOfDay
}

func keyOf(a *Appointment) slotKey {
	return slotKey{specialistID: a.SpecialistID, date: a.Date, time: a.Time}
}

// MemoryLedger is an in-process Ledger. A single mutex serialises every
// mutation, and the active index plays the role of the unique index.
type MemoryLedger struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*Appointment
	active       map[slotKey]uuid.UUID
	events       []EventLog
	now          func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		appointments: make(map[uuid.UUID]*Appointment),
		active:       make(map[slotKey]uuid.UUID),
		now:          time.Now,
	}
}

func (l *MemoryLedger) ListOccupied(ctx context.Context, specialistID uuid.UUID, date schedule.Date) ([]schedule.TimeOfDay, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var occupied []schedule.TimeOfDay
	for k := range l.active {
		if k.specialistID == specialistID && k.date == date {
			occupied = append(occupied, k.time)
		}
	}
	sort.Slice(occupied, func(i, j int) bool { return occupied[i] < occupied[j] })
	return occupied, nil
}

func (l *MemoryLedger) TryReserve(ctx context.Context, r Reservation) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := slotKey{specialistID: r.SpecialistID, date: r.Date, time: r.Time}
	if holder, taken := l.active[key]; taken {
		if holder == r.ID {
			return l.copyOf(holder), nil
		}
		return nil, ErrConflict
	}
	if _, exists := l.appointments[r.ID]; exists {
		return nil, ErrConflict
	}

	now := l.now()
	appt := &Appointment{
		ID:              r.ID,
		SpecialistID:    r.SpecialistID,
		ClinicID:        r.ClinicID,
		PatientID:       r.PatientID,
		Date:            r.Date,
		Time:            r.Time,
		DurationMinutes: r.DurationMinutes,
		Status:          StatusPending,
		Reason:          r.Reason,
		ServiceType:     r.ServiceType,
		Notes:           r.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	l.appointments[appt.ID] = appt
	l.active[key] = appt.ID

	return l.copyOf(appt.ID), nil
}

func (l *MemoryLedger) Release(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	appt, ok := l.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	switch {
	case appt.Status == StatusCancelled:
		return l.copyOf(id), nil
	case !appt.Status.Active():
		return nil, fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidTransition, appt.Status)
	}

	l.setStatus(appt, StatusCancelled)
	return l.copyOf(id), nil
}

func (l *MemoryLedger) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.appointments[id]; !ok {
		return nil, ErrAppointmentNotFound
	}
	return l.copyOf(id), nil
}

func (l *MemoryLedger) UpdateStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	appt, ok := l.appointments[id]
	if !ok || appt.Status != from {
		return nil, ErrAppointmentNotFound
	}

	if to.Active() && !from.Active() {
		key := keyOf(appt)
		if _, taken := l.active[key]; taken {
			return nil, ErrConflict
		}
	}

	l.setStatus(appt, to)
	return l.copyOf(id), nil
}

func (l *MemoryLedger) ListByPatient(_ context.Context, patientID uuid.UUID, filter ListFilter) ([]Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Appointment
	for _, a := range l.appointments {
		if a.PatientID != patientID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.ActiveOnly && !a.Status.Active() {
			continue
		}
		if !filter.FromDate.IsZero() && a.Date.Before(filter.FromDate) {
			continue
		}
		out = append(out, *a)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *MemoryLedger) FindStalePending(_ context.Context, createdBefore time.Time, limit int) ([]Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Appointment
	for _, a := range l.appointments {
		if a.Status == StatusPending && a.CreatedAt.Before(createdBefore) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) InsertEvent(_ context.Context, ev EventLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev.ID = int64(len(l.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = l.now()
	}
	l.events = append(l.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (l *MemoryLedger) Events() []EventLog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]EventLog(nil), l.events...)
}

// setStatus updates status and the active index; caller holds mu.
func (l *MemoryLedger) setStatus(appt *Appointment, to AppointmentStatus) {
	key := keyOf(appt)
	if appt.Status.Active() && !to.Active() {
		delete(l.active, key)
	}
	if to.Active() {
		l.active[key] = appt.ID
	}
	appt.Status = to
	appt.UpdatedAt = l.now()
}

// copyOf returns a detached copy; caller holds mu.
func (l *MemoryLedger) copyOf(id uuid.UUID) *Appointment {
	cp := *l.appointments[id]
	return &cp
}
