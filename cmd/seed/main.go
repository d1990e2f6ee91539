package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/slot-booking-service/internal/config"
	"github.com/hackgods/slot-booking-service/internal/db"
	"github.com/hackgods/slot-booking-service/internal/logger"
	"github.com/hackgods/slot-booking-service/internal/schedule"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	clinics := flag.Int("clinics", 10, "number of clinics")
	specialists := flag.Int("specialists", 100, "number of specialists")
	patients := flag.Int("patients", 9000, "number of patients")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4, ApplicationName: "seed"})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool, log); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	clinicIDs, err := seedClinics(context.Background(), pool, faker, *clinics)
	if err != nil {
		log.Fatal("seed clinics", zap.Error(err))
	}
	log.Info("clinics seeded", zap.Int("count", len(clinicIDs)))

	if err := seedSpecialists(context.Background(), pool, faker, clinicIDs, *specialists); err != nil {
		log.Fatal("seed specialists", zap.Error(err))
	}
	log.Info("specialists seeded", zap.Int("count", *specialists))

	if err := seedPatients(context.Background(), pool, faker, *patients, log); err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}

	log.Info("seed complete")
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			addr := faker.Address()

			_, err := tx.Exec(ctx, `
				INSERT INTO clinics (id, name, address, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, faker.Company()+" Clinic", addr.Address, faker.Phone())
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// randomTemplate varies working hours so availability differs between specialists.
func randomTemplate(faker *gofakeit.Faker) schedule.WeeklyTemplate {
	switch faker.Number(0, 3) {
	case 0:
		return schedule.DefaultTemplate()
	case 1:
		// mornings only, with a Saturday clinic
		tmpl := schedule.WeeklyTemplate{}
		for d := time.Monday; d <= time.Saturday; d++ {
			tmpl[d] = []schedule.Interval{{Start: schedule.Clock(8, 0), End: schedule.Clock(12, 0)}}
		}
		return tmpl
	case 2:
		// long days, three days a week
		long := []schedule.Interval{{Start: schedule.Clock(10, 0), End: schedule.Clock(18, 0)}}
		return schedule.WeeklyTemplate{time.Tuesday: long, time.Wednesday: long, time.Thursday: long}
	}

	tmpl := schedule.WeeklyTemplate{}
	for d := time.Monday; d <= time.Friday; d++ {
		if faker.Bool() {
			start := schedule.Clock(faker.Number(8, 10), 0)
			tmpl[d] = []schedule.Interval{
				{Start: start, End: start.Add(180)},
				{Start: schedule.Clock(14, 0), End: schedule.Clock(faker.Number(16, 19), 0)},
			}
		}
	}
	return tmpl
}

func seedSpecialists(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, clinicIDs []uuid.UUID, count int) error {
	durations := []int{15, 20, 30, 30, 30, 45, 60}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()

			tmpl, err := json.Marshal(randomTemplate(faker))
			if err != nil {
				return fmt.Errorf("encode template: %w", err)
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO specialists (id, name, specialty, weekly_template, slot_duration_minutes,
					accepting_patients, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, id,
				"Dr. "+faker.Name(),
				specialties[faker.Number(0, len(specialties)-1)],
				string(tmpl),
				durations[faker.Number(0, len(durations)-1)],
				faker.Number(1, 10) > 1,
			)
			if err != nil {
				return err
			}

			if len(clinicIDs) == 0 {
				continue
			}
			// each specialist practises at one or two clinics
			for j := 0; j < faker.Number(1, 2); j++ {
				clinicID := clinicIDs[faker.Number(0, len(clinicIDs)-1)]
				_, err := tx.Exec(ctx, `
					INSERT INTO clinic_specialists (clinic_id, specialist_id)
					VALUES ($1, $2)
					ON CONFLICT DO NOTHING
				`, clinicID, id)
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, log *zap.Logger) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		rows := make([][]any, 0, end-offset)
		now := time.Now()
		for i := offset; i < end; i++ {
			rows = append(rows, []any{uuid.New(), faker.Name(), faker.Email(), now, now})
		}

		_, err := pool.CopyFrom(ctx,
			pgx.Identifier{"patients"},
			[]string{"id", "name", "email", "created_at", "updated_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return err
		}

		log.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}
