package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

// suggest proposes alternatives for a slot that could not be booked: the
// first gap on the same day, then the same time and the first gap on the next
// working day that has room. It never fails; store errors end the search.
func (e *Engine) suggest(ctx context.Context, therapistID uuid.UUID, date time.Time, slotStart, duration int, exclude uuid.UUID, plan *dayPlan) []CandidateSlot {
	limit := e.cfg.SuggestionCount
	if limit <= 0 {
		return nil
	}

	var out []CandidateSlot
	add := func(d time.Time, start int) {
		if len(out) >= limit {
			return
		}
		for _, s := range out {
			if s.Date.Equal(d) && s.Time == interval.FormatMinutes(start) {
				return
			}
		}
		out = append(out, CandidateSlot{Date: d, Time: interval.FormatMinutes(start), DurationMinutes: duration})
	}

	if plan != nil {
		if s, ok := plan.firstFit(duration); ok {
			add(date, s)
		}
	}

	for i := 1; i <= e.cfg.SuggestionLookaheadDays && len(out) < limit; i++ {
		day := interval.AddDays(date, i)
		next, err := e.loadDay(ctx, therapistID, day, exclude)
		if err != nil {
			e.log.Warn("suggestion lookahead stopped",
				zap.String("therapist_id", therapistID.String()),
				zap.String("date", interval.FormatDate(day)),
				zap.Error(err),
			)
			break
		}
		if next == nil {
			continue
		}

		sameTime := next.fits(slotStart, duration).Available
		first, ok := next.firstFit(duration)
		if !sameTime && !ok {
			continue
		}
		if sameTime {
			add(day, slotStart)
		}
		if ok {
			add(day, first)
		}
		break
	}

	return out
}
