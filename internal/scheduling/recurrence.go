package scheduling

import (
	"time"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

// RecurrenceSpec describes a repeating set of sessions.
type RecurrenceSpec struct {
	StartDate  time.Time
	EndDate    time.Time
	Frequency  Frequency
	DaysOfWeek []DayOfWeek
	TimeSlots  []TimeSlot
}

func (f Frequency) stepDays() int {
	switch f {
	case FrequencyDaily:
		return 1
	case FrequencyWeekly:
		return 7
	case FrequencyBiweekly:
		return 14
	}
	return 0
}

func (e *Engine) validateRecurrence(r RecurrenceSpec) error {
	if r.StartDate.IsZero() {
		return invalid("start_date", "is required")
	}
	if r.EndDate.IsZero() {
		return invalid("end_date", "is required")
	}
	if r.EndDate.Before(r.StartDate) {
		return invalid("end_date", "must not be before start_date")
	}
	if r.Frequency.stepDays() == 0 {
		return invalid("frequency", "must be one of DAILY, WEEKLY, BIWEEKLY")
	}
	for _, d := range r.DaysOfWeek {
		if !d.Valid() {
			return invalid("days_of_week", "unknown day %q", d)
		}
	}
	if len(r.TimeSlots) == 0 {
		return invalid("time_slots", "at least one time slot is required")
	}
	for _, ts := range r.TimeSlots {
		if _, err := interval.ToMinutes(ts.Time); err != nil {
			return invalid("time_slots.time", "%v", err)
		}
		if err := e.validateDuration("time_slots.duration_minutes", ts.DurationMinutes); err != nil {
			return err
		}
	}

	if n := CountCandidates(r, e.cfg.MaxBulkCandidates); n > e.cfg.MaxBulkCandidates {
		return invalid("time_slots", "recurrence expands to more than %d candidates", e.cfg.MaxBulkCandidates)
	}
	return nil
}

// Expander enumerates the candidate slots of a RecurrenceSpec in date order,
// then time-slot order. It is consumed once and cannot be rewound.
type Expander struct {
	slots []TimeSlot
	days  map[DayOfWeek]bool
	end   time.Time
	step  int

	date time.Time
	idx  int
	done bool
}

func NewExpander(r RecurrenceSpec) *Expander {
	x := &Expander{
		slots: r.TimeSlots,
		end:   interval.DateOf(r.EndDate),
		step:  r.Frequency.stepDays(),
		date:  interval.DateOf(r.StartDate),
	}
	if len(r.DaysOfWeek) > 0 {
		x.days = make(map[DayOfWeek]bool, len(r.DaysOfWeek))
		for _, d := range r.DaysOfWeek {
			x.days[d] = true
		}
	}
	if x.step <= 0 || len(x.slots) == 0 {
		x.done = true
	}
	return x
}

// Next returns the next candidate, or false once the range is exhausted.
func (x *Expander) Next() (CandidateSlot, bool) {
	for !x.done {
		if x.date.After(x.end) {
			x.done = true
			break
		}
		if x.qualifies(x.date) && x.idx < len(x.slots) {
			ts := x.slots[x.idx]
			x.idx++
			return CandidateSlot{Date: x.date, Time: ts.Time, DurationMinutes: ts.DurationMinutes}, true
		}
		x.date = interval.AddDays(x.date, x.step)
		x.idx = 0
	}
	return CandidateSlot{}, false
}

// Drain consumes the rest of the sequence and reports how many candidates it held.
func (x *Expander) Drain() int {
	n := 0
	for _, ok := x.Next(); ok; _, ok = x.Next() {
		n++
	}
	return n
}

func (x *Expander) qualifies(d time.Time) bool {
	return x.days == nil || x.days[DayOf(d)]
}

// CountCandidates expands r on a fresh Expander and stops once the count
// passes limit, so the result is at most limit+1.
func CountCandidates(r RecurrenceSpec, limit int) int {
	x := NewExpander(r)
	n := 0
	for _, ok := x.Next(); ok && n <= limit; _, ok = x.Next() {
		n++
	}
	return n
}
