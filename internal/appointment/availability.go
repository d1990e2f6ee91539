package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking-service/internal/schedule"
)

// Availability is a point-in-time view of a specialist's bookable slots for one
// day. It carries no hold: a slot listed here can be taken before it is booked.
type Availability struct {
	SpecialistID        uuid.UUID
	Date                schedule.Date
	SlotDurationMinutes int
	Slots               []schedule.Slot
	Occupied            []schedule.TimeOfDay
}

// StartTimes lists the available start times in order.
func (a *Availability) StartTimes() []schedule.TimeOfDay {
	out := make([]schedule.TimeOfDay, 0, len(a.Slots))
	for _, s := range a.Slots {
		out = append(out, s.Start)
	}
	return out
}

// subtractOccupied removes occupied start times from grid, keeping grid order.
func subtractOccupied(grid []schedule.Slot, occupied []schedule.TimeOfDay) []schedule.Slot {
	taken := make(map[schedule.TimeOfDay]struct{}, len(occupied))
	for _, t := range occupied {
		taken[t] = struct{}{}
	}

	free := make([]schedule.Slot, 0, len(grid))
	for _, s := range grid {
		if _, ok := taken[s.Start]; !ok {
			free = append(free, s)
		}
	}
	return free
}

// GetAvailableSlots is the specialist's grid for date minus the ledger's occupied times.
func (s *Service) GetAvailableSlots(ctx context.Context, specialistID uuid.UUID, date schedule.Date) (*Availability, error) {
	sp, err := s.directory.GetSpecialist(ctx, specialistID)
	if err != nil {
		if errors.Is(err, ErrSpecialistNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load specialist: %w", err)
	}

	grid := schedule.ResolveSlots(*sp, date, s.today())

	var occupied []schedule.TimeOfDay
	if len(grid) > 0 {
		occupied, err = s.listOccupied(ctx, specialistID, date)
		if err != nil {
			return nil, err
		}
	}

	return &Availability{
		SpecialistID:        specialistID,
		Date:                date,
		SlotDurationMinutes: sp.SlotDurationMinutes,
		Slots:               subtractOccupied(grid, occupied),
		Occupied:            occupied,
	}, nil
}

func (s *Service) listOccupied(ctx context.Context, specialistID uuid.UUID, date schedule.Date) ([]schedule.TimeOfDay, error) {
	occupied, err := withStorageRetry(ctx, s.cfg.RetryAttempts, s.log, "list_occupied",
		func(ctx context.Context) ([]schedule.TimeOfDay, error) {
			return s.ledger.ListOccupied(ctx, specialistID, date)
		})
	if err != nil {
		return nil, fmt.Errorf("list occupied slots: %w", err)
	}
	return occupied, nil
}
