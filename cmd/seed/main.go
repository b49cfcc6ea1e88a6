package main

import (
	"context"
	"flag"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/scheduling/internal/config"
	"github.com/carebridge/scheduling/internal/db"
	"github.com/carebridge/scheduling/internal/logging"
	"github.com/carebridge/scheduling/internal/schedule"
	"github.com/carebridge/scheduling/internal/slot"
)

func main() {
	providerCount := flag.Int("providers", 50, "number of providers to seed")
	patientCount := flag.Int("patients", 2000, "number of patients to seed")
	horizonDays := flag.Int("horizon", 14, "days of slots to materialize per provider")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Init("seed", "dev")
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init("seed", cfg.Env)
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatal().Err(err).Msg("migration error")
	}

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	providerIDs, err := seedProviders(context.Background(), pool, *providerCount)
	if err != nil {
		log.Fatal().Err(err).Msg("seed providers")
	}
	if err := seedPatients(context.Background(), pool, *patientCount); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedSchedules(context.Background(), pool, providerIDs, *horizonDays); err != nil {
		log.Fatal().Err(err).Msg("seed schedules")
	}

	log.Info().Msg("seed complete")
}

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

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding providers")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Msg("providers seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("seeded", end).Int("total", count).Msg("patients progress")
	}

	log.Info().Msg("patients seeded")
	return nil
}

// seedSchedules gives every provider a weekday template and
// materializes slots over the horizon.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID, horizonDays int) error {
	log.Info().Int("providers", len(providerIDs)).Int("horizon_days", horizonDays).Msg("seeding schedules")

	svc := schedule.NewService(schedule.NewPgRepository(pool), slot.NewPgRepository(pool))

	durations := []int{20, 30, 45, 60}
	buffers := []int{0, 5, 10}

	from := time.Now().Format("2006-01-02")
	to := time.Now().AddDate(0, 0, horizonDays).Format("2006-01-02")

	for _, providerID := range providerIDs {
		tpl := &schedule.AvailabilityTemplate{
			ProviderID:          providerID,
			TimeZone:            "America/New_York",
			SlotDurationMinutes: durations[gofakeit.Number(0, len(durations)-1)],
			BufferMinutes:       buffers[gofakeit.Number(0, len(buffers)-1)],
		}
		for i := 0; i < 7; i++ {
			day := schedule.DayHours{DayOfWeek: i}
			if i >= 1 && i <= 5 {
				day.Available = true
				day.Ranges = []schedule.TimeRange{
					{Start: "09:00", End: "12:00"},
					{Start: "13:00", End: "17:00"},
				}
			}
			tpl.WeeklyHours[i] = day
		}

		if err := svc.SaveTemplate(ctx, tpl); err != nil {
			return err
		}

		created, err := svc.MaterializeSlots(ctx, providerID, from, to)
		if err != nil {
			return err
		}
		log.Debug().Str("provider_id", providerID.String()).Int64("slots", created).Msg("provider schedule seeded")
	}

	log.Info().Msg("schedules seeded")
	return nil
}
