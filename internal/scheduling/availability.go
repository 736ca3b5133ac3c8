package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

type AvailabilityRequest struct {
	TherapistID      uuid.UUID
	Date             time.Time
	Time             string
	DurationMinutes  int
	ExcludeSessionID uuid.UUID
}

type AvailabilityResult struct {
	Available            bool
	Reason               Reason
	ConflictingSessionID uuid.UUID
	Suggestions          []CandidateSlot
}

func available() AvailabilityResult { return AvailabilityResult{Available: true} }

func unavailable(r Reason) AvailabilityResult { return AvailabilityResult{Reason: r} }

type span struct {
	start, end int
	sessionID  uuid.UUID
}

// dayPlan is one therapist's working day: the schedule window, the optional
// break and the sessions already occupying it, sorted by start.
type dayPlan struct {
	date       time.Time
	start, end int
	hasBreak   bool
	breakStart int
	breakEnd   int
	gap        int
	busy       []span
}

// fits checks a candidate against the window, the break and every existing
// session. Each session, existing or new, is followed by gap minutes of buffer.
func (p *dayPlan) fits(slotStart, duration int) AvailabilityResult {
	slotEnd := slotStart + duration
	if !interval.Within(slotStart, slotEnd, p.start, p.end) {
		return unavailable(ReasonOutsideWorkingHours)
	}
	if p.hasBreak && interval.Overlaps(slotStart, slotEnd, p.breakStart, p.breakEnd) {
		return unavailable(ReasonBreakConflict)
	}
	for _, b := range p.busy {
		if interval.Overlaps(slotStart, slotEnd+p.gap, b.start, b.end+p.gap) {
			res := unavailable(ReasonSlotTaken)
			res.ConflictingSessionID = b.sessionID
			return res
		}
	}
	return available()
}

// firstFit returns the earliest start at which duration minutes fit. The
// earliest feasible start is always the window start, the break end or the
// padded end of an existing session, so only those are tried.
func (p *dayPlan) firstFit(duration int) (int, bool) {
	starts := []int{p.start}
	if p.hasBreak {
		starts = append(starts, p.breakEnd)
	}
	for _, b := range p.busy {
		starts = append(starts, b.end+p.gap)
	}
	sort.Ints(starts)

	for _, s := range starts {
		if s+duration > p.end {
			break
		}
		if p.fits(s, duration).Available {
			return s, true
		}
	}
	return 0, false
}

// loadDay reads the schedule and bookings for one therapist/date. A nil plan
// with a nil error means the therapist does not work that day.
func (e *Engine) loadDay(ctx context.Context, therapistID uuid.UUID, date time.Time, exclude uuid.UUID) (*dayPlan, error) {
	entry, err := e.schedules.GetActiveSchedule(ctx, therapistID, DayOf(date))
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if entry == nil || !entry.IsActive {
		return nil, nil
	}

	plan, err := planFromEntry(entry, date)
	if err != nil {
		return nil, err
	}

	filter := ForTherapistDay(therapistID, date).WithStatuses(ActiveStatuses...).Excluding(exclude)
	bookings, err := e.sessions.ListBookings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	for i := range bookings {
		b := &bookings[i]
		start, err := interval.ToMinutes(b.ScheduledTime)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", b.ID, err)
		}
		plan.busy = append(plan.busy, span{start: start, end: start + b.DurationMinutes, sessionID: b.ID})
	}
	sort.Slice(plan.busy, func(i, j int) bool {
		return plan.busy[i].start < plan.busy[j].start
	})

	return plan, nil
}

func planFromEntry(entry *WeeklyScheduleEntry, date time.Time) (*dayPlan, error) {
	start, err := interval.ToMinutes(entry.StartTime)
	if err != nil {
		return nil, fmt.Errorf("schedule %s start: %w", entry.DayOfWeek, err)
	}
	end, err := interval.ToMinutes(entry.EndTime)
	if err != nil {
		return nil, fmt.Errorf("schedule %s end: %w", entry.DayOfWeek, err)
	}

	plan := &dayPlan{date: date, start: start, end: end, gap: entry.MinGapMinutes}
	if entry.HasBreak() {
		bs, err := interval.ToMinutes(*entry.BreakStart)
		if err != nil {
			return nil, fmt.Errorf("schedule %s break start: %w", entry.DayOfWeek, err)
		}
		be, err := interval.ToMinutes(*entry.BreakEnd)
		if err != nil {
			return nil, fmt.Errorf("schedule %s break end: %w", entry.DayOfWeek, err)
		}
		plan.hasBreak, plan.breakStart, plan.breakEnd = true, bs, be
	}
	return plan, nil
}

// CheckAvailability decides whether the therapist can take a session of the
// given length at date/time. It never writes. Unavailability is a result,
// not an error; errors are reserved for bad input and store failures.
func (e *Engine) CheckAvailability(ctx context.Context, req AvailabilityRequest) (AvailabilityResult, error) {
	slotStart, err := e.validateSlot(req.TherapistID, req.Time, req.DurationMinutes)
	if err != nil {
		return AvailabilityResult{}, err
	}
	date := interval.DateOf(req.Date)

	plan, err := e.loadDay(ctx, req.TherapistID, date, req.ExcludeSessionID)
	if err != nil {
		return AvailabilityResult{}, err
	}

	res := evaluate(plan, slotStart, req.DurationMinutes)
	if res.Reason == ReasonSlotTaken {
		res.Suggestions = e.suggest(ctx, req.TherapistID, date, slotStart, req.DurationMinutes, req.ExcludeSessionID, plan)
	}
	return res, nil
}

func evaluate(plan *dayPlan, slotStart, duration int) AvailabilityResult {
	if plan == nil {
		return unavailable(ReasonNoSchedule)
	}
	return plan.fits(slotStart, duration)
}

func (e *Engine) validateSlot(therapistID uuid.UUID, hhmm string, duration int) (int, error) {
	if therapistID == uuid.Nil {
		return 0, invalid("therapist_id", "is required")
	}
	start, err := interval.ToMinutes(hhmm)
	if err != nil {
		return 0, invalid("time", "%v", err)
	}
	if err := e.validateDuration("duration_minutes", duration); err != nil {
		return 0, err
	}
	return start, nil
}

func (e *Engine) validateDuration(field string, duration int) error {
	if duration < e.cfg.MinSessionMinutes || duration > e.cfg.MaxSessionMinutes {
		return invalid(field, "must be between %d and %d", e.cfg.MinSessionMinutes, e.cfg.MaxSessionMinutes)
	}
	return nil
}
