package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository implements ScheduleAdmin, SessionStore and AssignmentStore on Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const scheduleColumns = `id, therapist_id, day_of_week, start_time, end_time, break_start, break_end,
	min_gap_minutes, is_active, created_at, updated_at`

const sessionColumns = `id, therapist_id, patient_id, service_assignment_id, scheduled_date, scheduled_time,
	duration_minutes, status, notes, cancel_reason, actual_duration_minutes, started_at, completed_at,
	cancelled_at, rescheduled_from_date, rescheduled_from_time, rescheduled_from_duration, rescheduled_at,
	created_at, updated_at`

func scanSchedule(row pgx.Row) (*WeeklyScheduleEntry, error) {
	var e WeeklyScheduleEntry

	err := row.Scan(
		&e.ID,
		&e.TherapistID,
		&e.DayOfWeek,
		&e.StartTime,
		&e.EndTime,
		&e.BreakStart,
		&e.BreakEnd,
		&e.MinGapMinutes,
		&e.IsActive,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	return &e, nil
}

func scanSession(row pgx.Row) (*BookedSession, error) {
	var s BookedSession
	var (
		fromDate     *time.Time
		fromTime     *string
		fromDuration *int
		movedAt      *time.Time
	)

	err := row.Scan(
		&s.ID,
		&s.TherapistID,
		&s.PatientID,
		&s.ServiceAssignmentID,
		&s.ScheduledDate,
		&s.ScheduledTime,
		&s.DurationMinutes,
		&s.Status,
		&s.Notes,
		&s.CancelReason,
		&s.ActualDurationMinutes,
		&s.StartedAt,
		&s.CompletedAt,
		&s.CancelledAt,
		&fromDate,
		&fromTime,
		&fromDuration,
		&movedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if fromDate != nil && fromTime != nil && fromDuration != nil {
		s.RescheduledFrom = &RescheduleInfo{
			Date:            *fromDate,
			Time:            *fromTime,
			DurationMinutes: *fromDuration,
		}
		if movedAt != nil {
			s.RescheduledFrom.RescheduledAt = *movedAt
		}
	}
	return &s, nil
}

func scanAssignment(row pgx.Row) (*ServiceAssignment, error) {
	var a ServiceAssignment

	err := row.Scan(
		&a.ID,
		&a.TherapistID,
		&a.PatientID,
		&a.TotalSessions,
		&a.CompletedSessions,
		&a.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectSessions(rows pgx.Rows) ([]BookedSession, error) {
	defer rows.Close()

	result := []BookedSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Weekly schedules

func (r *PgRepository) GetActiveSchedule(ctx context.Context, therapistID uuid.UUID, day DayOfWeek) (*WeeklyScheduleEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM weekly_schedules
		WHERE therapist_id = $1 AND day_of_week = $2 AND is_active
	`, therapistID, day)
	return scanSchedule(row)
}

func (r *PgRepository) ListWeek(ctx context.Context, therapistID uuid.UUID) ([]WeeklyScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM weekly_schedules
		WHERE therapist_id = $1
		ORDER BY array_position(ARRAY['MONDAY','TUESDAY','WEDNESDAY','THURSDAY','FRIDAY','SATURDAY','SUNDAY'], day_of_week)
	`, therapistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []WeeklyScheduleEntry{}
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ReplaceWeek deletes and re-inserts the whole week in one transaction.
func (r *PgRepository) ReplaceWeek(ctx context.Context, therapistID uuid.UUID, entries []WeeklyScheduleEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM weekly_schedules WHERE therapist_id = $1`, therapistID); err != nil {
		return fmt.Errorf("delete week: %w", err)
	}

	for _, e := range entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO weekly_schedules
				(id, therapist_id, day_of_week, start_time, end_time, break_start, break_end,
				 min_gap_minutes, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		`, e.ID, therapistID, e.DayOfWeek, e.StartTime, e.EndTime, e.BreakStart, e.BreakEnd,
			e.MinGapMinutes, e.IsActive)
		if err != nil {
			return fmt.Errorf("insert %s: %w", e.DayOfWeek, err)
		}
	}

	return tx.Commit(ctx)
}

// Sessions

func (r *PgRepository) GetSession(ctx context.Context, id uuid.UUID) (*BookedSession, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1
	`, id)
	return scanSession(row)
}

func (r *PgRepository) ListBookings(ctx context.Context, f BookingFilter) ([]BookedSession, error) {
	where, args := f.Where()
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE `+where+`
		ORDER BY scheduled_time ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *PgRepository) Insert(ctx context.Context, s *BookedSession) (*BookedSession, error) {
	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO sessions
			(id, therapist_id, patient_id, service_assignment_id, scheduled_date, scheduled_time,
			 duration_minutes, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+sessionColumns,
		id, s.TherapistID, s.PatientID, s.ServiceAssignmentID, s.ScheduledDate, s.ScheduledTime,
		s.DurationMinutes, s.Status, s.Notes)

	return scanSession(row)
}

func (r *PgRepository) Update(ctx context.Context, id uuid.UUID, u SessionUpdate) (*BookedSession, error) {
	set, args := u.assignments(id)

	row := r.pool.QueryRow(ctx, `
		UPDATE sessions
		SET `+set+`
		WHERE id = $1
		  AND status = $2
		RETURNING `+sessionColumns, args...)

	s, err := scanSession(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrStateChanged
	}
	return nil, ErrSessionNotFound
}

// assignments renders the SET list. $1 is the id and $2 the expected status.
func (u SessionUpdate) assignments(id uuid.UUID) (string, []any) {
	sets := []string{"updated_at = now()"}
	args := []any{id, u.ExpectedStatus}

	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.ScheduledDate != nil {
		add("scheduled_date", *u.ScheduledDate)
	}
	if u.ScheduledTime != nil {
		add("scheduled_time", *u.ScheduledTime)
	}
	if u.DurationMinutes != nil {
		add("duration_minutes", *u.DurationMinutes)
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}
	if u.CancelReason != nil {
		add("cancel_reason", *u.CancelReason)
	}
	if u.ActualDurationMinutes != nil {
		add("actual_duration_minutes", *u.ActualDurationMinutes)
	}
	if u.StartedAt != nil {
		add("started_at", *u.StartedAt)
	}
	if u.CompletedAt != nil {
		add("completed_at", *u.CompletedAt)
	}
	if u.CancelledAt != nil {
		add("cancelled_at", *u.CancelledAt)
	}
	if u.RescheduledFrom != nil {
		add("rescheduled_from_date", u.RescheduledFrom.Date)
		add("rescheduled_from_time", u.RescheduledFrom.Time)
		add("rescheduled_from_duration", u.RescheduledFrom.DurationMinutes)
		add("rescheduled_at", u.RescheduledFrom.RescheduledAt)
	}

	return strings.Join(sets, ", "), args
}

func (r *PgRepository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]BookedSession, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE status = 'SCHEDULED'
		  AND scheduled_date + scheduled_time::time + make_interval(mins => duration_minutes) <= $1::timestamp
		ORDER BY scheduled_date, scheduled_time
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// Service assignments

func (r *PgRepository) GetAssignment(ctx context.Context, id uuid.UUID) (*ServiceAssignment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, therapist_id, patient_id, total_sessions, completed_sessions, status
		FROM service_assignments
		WHERE id = $1
	`, id)
	return scanAssignment(row)
}

func (r *PgRepository) IncrementCompleted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE service_assignments
		SET completed_sessions = completed_sessions + 1,
		    status = CASE WHEN completed_sessions + 1 >= total_sessions THEN 'COMPLETED' ELSE status END,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment completed sessions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}
