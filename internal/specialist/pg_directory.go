package specialist

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/slot-booking-service/internal/schedule"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) GetSpecialist(ctx context.Context, id uuid.UUID) (*schedule.Specialist, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, name, specialty, weekly_template, slot_duration_minutes, accepting_patients
		FROM specialists
		WHERE id = $1
	`, id)
	return scanSpecialist(row)
}

func scanSpecialist(row pgx.Row) (*schedule.Specialist, error) {
	var (
		sp        schedule.Specialist
		specialty *string
		template  []byte
	)

	err := row.Scan(
		&sp.ID,
		&sp.Name,
		&specialty,
		&template,
		&sp.SlotDurationMinutes,
		&sp.AcceptingPatients,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSpecialistNotFound
		}
		return nil, err
	}

	if specialty != nil {
		sp.Specialty = *specialty
	}

	if len(template) == 0 || string(template) == "null" || string(template) == "{}" {
		sp.Template = schedule.DefaultTemplate()
	} else if err := json.Unmarshal(template, &sp.Template); err != nil {
		return nil, fmt.Errorf("decode weekly template for specialist %s: %w", sp.ID, err)
	}

	return &sp, nil
}
