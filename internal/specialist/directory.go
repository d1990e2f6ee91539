package specialist

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking-service/internal/schedule"
)

var ErrSpecialistNotFound = errors.New("specialist not found")

// Directory is the read-only lookup of provider scheduling data.
// Specialists are maintained by an external provider-management process.
type Directory interface {
	GetSpecialist(ctx context.Context, id uuid.UUID) (*schedule.Specialist, error)
}

// StaticDirectory serves specialists from memory.
type StaticDirectory struct {
	mu          sync.RWMutex
	specialists map[uuid.UUID]schedule.Specialist
}

func NewStaticDirectory(specialists ...schedule.Specialist) *StaticDirectory {
	d := &StaticDirectory{specialists: make(map[uuid.UUID]schedule.Specialist, len(specialists))}
	for _, sp := range specialists {
		d.specialists[sp.ID] = sp
	}
	return d
}

// Put adds or replaces a specialist.
func (d *StaticDirectory) Put(sp schedule.Specialist) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.specialists[sp.ID] = sp
}

func (d *StaticDirectory) GetSpecialist(_ context.Context, id uuid.UUID) (*schedule.Specialist, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sp, ok := d.specialists[id]
	if !ok {
		return nil, ErrSpecialistNotFound
	}
	return &sp, nil
}
