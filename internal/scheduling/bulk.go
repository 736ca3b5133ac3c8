package scheduling

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

// ReasonInternal marks a candidate that failed on a store error rather than a conflict.
const ReasonInternal Reason = "INTERNAL_ERROR"

type BulkRequest struct {
	ServiceAssignmentID uuid.UUID
	Recurrence          RecurrenceSpec
	Notes               *string
}

// ScheduleBulk expands the recurrence and books every candidate it can, in
// emission order. Conflicts are collected per candidate and never abort the
// run. Only precondition failures (bad input, missing or unbookable
// assignment) return an error, and then nothing has been booked.
//
// When the assignment's session budget runs out, enumeration stops and the
// unprocessed candidates are counted in SkippedForBudget. If ctx ends, the
// sessions booked so far are returned.
func (e *Engine) ScheduleBulk(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if req.ServiceAssignmentID == uuid.Nil {
		return nil, invalid("service_assignment_id", "is required")
	}
	if err := e.validateRecurrence(req.Recurrence); err != nil {
		return nil, err
	}

	assignment, err := e.bookableAssignment(ctx, req.ServiceAssignmentID)
	if err != nil {
		return nil, err
	}
	budget := assignment.RemainingSessions()

	res := &BulkResult{
		CreatedSessions: []BookedSession{},
		Errors:          []SchedulingError{},
	}
	x := NewExpander(req.Recurrence)

	for c, ok := x.Next(); ok; c, ok = x.Next() {
		if len(res.CreatedSessions) >= budget {
			res.BudgetExhausted = true
			res.SkippedForBudget = 1 + x.Drain()
			break
		}
		if ctx.Err() != nil {
			e.log.Warn("bulk scheduling interrupted, returning partial result",
				zap.String("service_assignment_id", assignment.ID.String()),
				zap.Int("evaluated", res.Evaluated),
				zap.Error(ctx.Err()),
			)
			break
		}

		res.Evaluated++
		created, avail, err := e.book(ctx, assignment, c, req.Notes)
		switch {
		case err == nil && created != nil:
			res.CreatedSessions = append(res.CreatedSessions, *created)
		case err == nil:
			slotStart, _ := interval.ToMinutes(c.Time)
			res.Errors = append(res.Errors, SchedulingError{
				Date:        c.Date,
				Time:        c.Time,
				Reason:      avail.Reason,
				Message:     describe(avail),
				Suggestions: e.suggestFor(ctx, assignment.TherapistID, c, slotStart, uuid.Nil),
			})
		case errors.Is(err, ErrSlotBeingBooked):
			res.Errors = append(res.Errors, SchedulingError{
				Date: c.Date, Time: c.Time, Reason: ReasonSlotBeingBooked, Message: err.Error(),
			})
		default:
			e.log.Error("bulk candidate failed",
				zap.String("service_assignment_id", assignment.ID.String()),
				zap.String("date", interval.FormatDate(c.Date)),
				zap.String("time", c.Time),
				zap.Error(err),
			)
			res.Errors = append(res.Errors, SchedulingError{
				Date: c.Date, Time: c.Time, Reason: ReasonInternal, Message: "could not book this slot, please retry",
			})
		}
	}

	e.log.Info("bulk scheduling complete",
		zap.String("service_assignment_id", assignment.ID.String()),
		zap.Int("created", len(res.CreatedSessions)),
		zap.Int("failed", len(res.Errors)),
		zap.Int("skipped_for_budget", res.SkippedForBudget),
	)
	return res, nil
}

func describe(r AvailabilityResult) string {
	switch r.Reason {
	case ReasonNoSchedule:
		return "therapist does not work on this day"
	case ReasonOutsideWorkingHours:
		return "slot falls outside the therapist's working hours"
	case ReasonBreakConflict:
		return "slot overlaps the therapist's break"
	case ReasonSlotTaken:
		return "slot conflicts with an existing session"
	}
	return string(r.Reason)
}
