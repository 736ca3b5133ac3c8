package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

const (
	therapistCount = 40
	patientCount   = 2000
	batchSize      = 500
)

var specialties = []string{
	"Physiotherapy",
	"Occupational Therapy",
	"Speech Therapy",
	"Psychotherapy",
	"Sports Rehabilitation",
	"Pediatric Therapy",
	"Hydrotherapy",
	"Neurological Rehabilitation",
}

// shiftPatterns are the weekly shapes a seeded therapist can work.
var shiftPatterns = []struct {
	start, end           string
	breakStart, breakEnd *string
}{
	{"08:00", "16:00", strptr("12:00"), strptr("12:30")},
	{"09:00", "17:00", strptr("12:00"), strptr("13:00")},
	{"10:00", "18:00", strptr("13:30"), strptr("14:15")},
	{"07:30", "13:30", nil, nil},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env, "seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("apply schema", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	therapists, err := seedTherapists(ctx, pool, therapistCount, logger)
	if err != nil {
		logger.Fatal("seed therapists", zap.Error(err))
	}
	if err := seedSchedules(ctx, scheduling.NewPgRepository(pool), therapists, cfg.Engine.DefaultGapMinutes, logger); err != nil {
		logger.Fatal("seed schedules", zap.Error(err))
	}
	patients, err := seedPatients(ctx, pool, patientCount, logger)
	if err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}
	if err := seedAssignments(ctx, pool, therapists, patients, logger); err != nil {
		logger.Fatal("seed service assignments", zap.Error(err))
	}

	logger.Info("seed complete")
}

func seedTherapists(ctx context.Context, pool *pgxpool.Pool, count int, logger *zap.Logger) ([]uuid.UUID, error) {
	logger.Info("seeding therapists", zap.Int("count", count))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO therapists (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Name(), spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// seedSchedules gives every therapist a weekday pattern and sometimes a Saturday morning.
func seedSchedules(ctx context.Context, repo *scheduling.PgRepository, therapists []uuid.UUID, defaultGap int, logger *zap.Logger) error {
	logger.Info("seeding weekly schedules", zap.Int("therapists", len(therapists)))

	gaps := []int{0, 5, 10, defaultGap}
	weekdays := []scheduling.DayOfWeek{
		scheduling.Monday, scheduling.Tuesday, scheduling.Wednesday, scheduling.Thursday, scheduling.Friday,
	}

	for _, therapistID := range therapists {
		shift := shiftPatterns[gofakeit.Number(0, len(shiftPatterns)-1)]
		gap := gaps[gofakeit.Number(0, len(gaps)-1)]

		var week []scheduling.WeeklyScheduleEntry
		for _, day := range weekdays {
			// Roughly one therapist in five takes a weekday off.
			if gofakeit.Number(1, 5) == 1 {
				continue
			}
			week = append(week, scheduling.WeeklyScheduleEntry{
				ID:            uuid.New(),
				TherapistID:   therapistID,
				DayOfWeek:     day,
				StartTime:     shift.start,
				EndTime:       shift.end,
				BreakStart:    shift.breakStart,
				BreakEnd:      shift.breakEnd,
				MinGapMinutes: gap,
				IsActive:      true,
			})
		}
		if gofakeit.Bool() {
			week = append(week, scheduling.WeeklyScheduleEntry{
				ID:            uuid.New(),
				TherapistID:   therapistID,
				DayOfWeek:     scheduling.Saturday,
				StartTime:     "09:00",
				EndTime:       "12:00",
				MinGapMinutes: gap,
				IsActive:      gofakeit.Number(1, 4) > 1,
			})
		}

		if err := repo.ReplaceWeek(ctx, therapistID, week); err != nil {
			return fmt.Errorf("therapist %s: %w", therapistID, err)
		}
	}
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, logger *zap.Logger) ([]uuid.UUID, error) {
	logger.Info("seeding patients", zap.Int("count", count))

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		logger.Debug("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return ids, nil
}

// seedAssignments attaches one service assignment per patient. A few are paused,
// completed, or already used up so the bookable preconditions get exercised.
func seedAssignments(ctx context.Context, pool *pgxpool.Pool, therapists, patients []uuid.UUID, logger *zap.Logger) error {
	logger.Info("seeding service assignments", zap.Int("count", len(patients)))

	for offset := 0; offset < len(patients); offset += batchSize {
		end := min(offset+batchSize, len(patients))

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for _, patientID := range patients[offset:end] {
			total := gofakeit.Number(4, 24)
			completed := 0
			status := scheduling.AssignmentActive

			switch gofakeit.Number(1, 20) {
			case 1:
				status = scheduling.AssignmentPaused
			case 2:
				status = scheduling.AssignmentCompleted
				completed = total
			case 3:
				completed = total
			default:
				completed = gofakeit.Number(0, total/2)
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO service_assignments (id, therapist_id, patient_id, total_sessions, completed_sessions, status)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, uuid.New(), therapists[gofakeit.Number(0, len(therapists)-1)], patientID, total, completed, string(status))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

func strptr(s string) *string { return &s }
