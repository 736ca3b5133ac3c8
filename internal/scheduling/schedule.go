package scheduling

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/interval"
)

var dayOrder = map[DayOfWeek]int{
	Monday: 0, Tuesday: 1, Wednesday: 2, Thursday: 3, Friday: 4, Saturday: 5, Sunday: 6,
}

// ReplaceWeeklySchedule validates and atomically rewrites a therapist's week.
// Days missing from entries become non-working days.
func (e *Engine) ReplaceWeeklySchedule(ctx context.Context, therapistID uuid.UUID, entries []WeeklyScheduleEntry) ([]WeeklyScheduleEntry, error) {
	if therapistID == uuid.Nil {
		return nil, invalid("therapist_id", "is required")
	}

	seen := make(map[DayOfWeek]bool, len(entries))
	week := make([]WeeklyScheduleEntry, 0, len(entries))
	for _, entry := range entries {
		if err := validateEntry(&entry); err != nil {
			return nil, err
		}
		if seen[entry.DayOfWeek] {
			return nil, invalid("day_of_week", "%s appears more than once", entry.DayOfWeek)
		}
		seen[entry.DayOfWeek] = true

		entry.ID = uuid.New()
		entry.TherapistID = therapistID
		week = append(week, entry)
	}
	sort.Slice(week, func(i, j int) bool {
		return dayOrder[week[i].DayOfWeek] < dayOrder[week[j].DayOfWeek]
	})

	if err := e.schedules.ReplaceWeek(ctx, therapistID, week); err != nil {
		return nil, fmt.Errorf("replace weekly schedule: %w", err)
	}

	days := make([]string, len(week))
	for i, w := range week {
		days[i] = string(w.DayOfWeek)
	}
	ev := events.Event{
		Type:        events.ScheduleReplaced,
		AggregateID: therapistID,
		Payload:     map[string]any{"days": days},
		OccurredAt:  e.now(),
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.log.Warn("failed to publish schedule event", zap.String("therapist_id", therapistID.String()), zap.Error(err))
	}
	return week, nil
}

func (e *Engine) GetWeeklySchedule(ctx context.Context, therapistID uuid.UUID) ([]WeeklyScheduleEntry, error) {
	week, err := e.schedules.ListWeek(ctx, therapistID)
	if err != nil {
		return nil, fmt.Errorf("list weekly schedule: %w", err)
	}
	return week, nil
}

func validateEntry(e *WeeklyScheduleEntry) error {
	if !e.DayOfWeek.Valid() {
		return invalid("day_of_week", "unknown day %q", e.DayOfWeek)
	}
	start, err := interval.ToMinutes(e.StartTime)
	if err != nil {
		return invalid("start_time", "%v", err)
	}
	end, err := interval.ToMinutes(e.EndTime)
	if err != nil {
		return invalid("end_time", "%v", err)
	}
	if start >= end {
		return invalid("end_time", "%s: must be after start_time", e.DayOfWeek)
	}
	if e.MinGapMinutes < 0 {
		return invalid("min_gap_minutes", "must not be negative")
	}

	hasStart := e.BreakStart != nil && *e.BreakStart != ""
	hasEnd := e.BreakEnd != nil && *e.BreakEnd != ""
	if hasStart != hasEnd {
		return invalid("break_start", "%s: break_start and break_end must be set together", e.DayOfWeek)
	}
	if !hasStart {
		e.BreakStart, e.BreakEnd = nil, nil
		return nil
	}

	bs, err := interval.ToMinutes(*e.BreakStart)
	if err != nil {
		return invalid("break_start", "%v", err)
	}
	be, err := interval.ToMinutes(*e.BreakEnd)
	if err != nil {
		return invalid("break_end", "%v", err)
	}
	if bs >= be {
		return invalid("break_end", "%s: must be after break_start", e.DayOfWeek)
	}
	if !interval.Within(bs, be, start, end) {
		return invalid("break_start", "%s: break must lie inside working hours", e.DayOfWeek)
	}
	return nil
}
