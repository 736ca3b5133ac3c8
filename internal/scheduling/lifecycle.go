package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/interval"
)

type Action string

const (
	ActionStart      Action = "start"
	ActionComplete   Action = "complete"
	ActionCancel     Action = "cancel"
	ActionNoShow     Action = "no_show"
	ActionReschedule Action = "reschedule"
)

// TransitionPayload carries the optional inputs of each action.
type TransitionPayload struct {
	ActualDurationMinutes *int
	Notes                 *string
	Reason                *string

	Date            *time.Time
	Time            *string
	DurationMinutes *int
}

// NextStatus is the session state machine. COMPLETED and CANCELLED accept
// nothing; reschedule keeps the current status.
func NextStatus(cfg config.Engine, current SessionStatus, action Action) (SessionStatus, error) {
	deny := fmt.Errorf("%w: cannot %s a %s session", ErrInvalidState, action, current)
	if current.IsTerminal() {
		return "", deny
	}

	switch action {
	case ActionStart:
		if current == StatusScheduled {
			return StatusInProgress, nil
		}
	case ActionComplete:
		if current == StatusInProgress || (current == StatusScheduled && cfg.AllowCompleteFromScheduled) {
			return StatusCompleted, nil
		}
	case ActionCancel:
		if current == StatusScheduled || (current == StatusInProgress && cfg.AllowCancelInProgress) {
			return StatusCancelled, nil
		}
	case ActionNoShow:
		if current == StatusScheduled {
			return StatusNoShow, nil
		}
	case ActionReschedule:
		if current == StatusScheduled || current == StatusInProgress {
			return current, nil
		}
	default:
		return "", invalid("action", "unknown action %q", action)
	}
	return "", deny
}

// TransitionSession applies one lifecycle action to a booked session.
func (e *Engine) TransitionSession(ctx context.Context, id uuid.UUID, action Action, p TransitionPayload) (*BookedSession, error) {
	s, err := e.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := NextStatus(e.cfg, s.Status, action)
	if err != nil {
		return nil, err
	}

	if action == ActionReschedule {
		return e.reschedule(ctx, s, p)
	}

	now := e.now()
	u := SessionUpdate{ExpectedStatus: s.Status, Status: &next}
	var eventType string
	payload := map[string]any{"from_status": string(s.Status)}

	switch action {
	case ActionStart:
		u.StartedAt = &now
		eventType = events.SessionStarted
	case ActionComplete:
		if p.ActualDurationMinutes != nil && *p.ActualDurationMinutes <= 0 {
			return nil, invalid("actual_duration_minutes", "must be positive")
		}
		u.CompletedAt = &now
		u.ActualDurationMinutes = p.ActualDurationMinutes
		u.Notes = p.Notes
		eventType = events.SessionCompleted
	case ActionCancel:
		u.CancelledAt = &now
		u.CancelReason = p.Reason
		if p.Reason != nil {
			payload["reason"] = *p.Reason
		}
		eventType = events.SessionCancelled
	case ActionNoShow:
		u.Notes = p.Notes
		eventType = events.SessionNoShow
	}

	updated, err := e.update(ctx, id, u)
	if err != nil {
		return nil, err
	}

	if action == ActionComplete {
		if err := e.assignments.IncrementCompleted(ctx, updated.ServiceAssignmentID); err != nil {
			e.log.Error("failed to count completed session against assignment",
				zap.String("session_id", updated.ID.String()),
				zap.String("service_assignment_id", updated.ServiceAssignmentID.String()),
				zap.Error(err),
			)
		}
	}

	e.logEvent(ctx, eventType, updated, payload)
	return updated, nil
}

func (e *Engine) update(ctx context.Context, id uuid.UUID, u SessionUpdate) (*BookedSession, error) {
	updated, err := e.sessions.Update(ctx, id, u)
	if err != nil {
		if errors.Is(err, ErrStateChanged) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update session: %w", err)
	}
	return updated, nil
}

// reschedule moves a session, re-running the availability check against the
// target day with the session itself excluded.
func (e *Engine) reschedule(ctx context.Context, s *BookedSession, p TransitionPayload) (*BookedSession, error) {
	target := CandidateSlot{Date: s.ScheduledDate, Time: s.ScheduledTime, DurationMinutes: s.DurationMinutes}
	if p.Date != nil {
		target.Date = interval.DateOf(*p.Date)
	}
	if p.Time != nil {
		target.Time = *p.Time
	}
	if p.DurationMinutes != nil {
		target.DurationMinutes = *p.DurationMinutes
	}
	if p.Date == nil && p.Time == nil && p.DurationMinutes == nil {
		return nil, invalid("reschedule", "one of date, time or duration_minutes is required")
	}

	slotStart, err := e.validateSlot(s.TherapistID, target.Time, target.DurationMinutes)
	if err != nil {
		return nil, err
	}

	var (
		updated *BookedSession
		res     AvailabilityResult
	)
	err = e.locker.WithTherapistDayLock(ctx, s.TherapistID, target.Date, func(lockCtx context.Context) error {
		plan, err := e.loadDay(lockCtx, s.TherapistID, target.Date, s.ID)
		if err != nil {
			return err
		}
		res = evaluate(plan, slotStart, target.DurationMinutes)
		if !res.Available {
			return nil
		}

		u := SessionUpdate{
			ExpectedStatus:  s.Status,
			ScheduledDate:   &target.Date,
			ScheduledTime:   &target.Time,
			DurationMinutes: &target.DurationMinutes,
			RescheduledFrom: &RescheduleInfo{
				Date:            s.ScheduledDate,
				Time:            s.ScheduledTime,
				DurationMinutes: s.DurationMinutes,
				RescheduledAt:   e.now(),
			},
		}
		updated, err = e.update(lockCtx, s.ID, u)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	if updated == nil {
		res.Suggestions = e.suggestFor(ctx, s.TherapistID, target, slotStart, s.ID)
		return nil, &UnavailableError{Result: res}
	}

	e.logEvent(ctx, events.SessionRescheduled, updated, map[string]any{
		"from_date": interval.FormatDate(s.ScheduledDate),
		"from_time": s.ScheduledTime,
		"to_date":   interval.FormatDate(updated.ScheduledDate),
		"to_time":   updated.ScheduledTime,
	})
	return updated, nil
}

// MarkNoShows moves SCHEDULED sessions that ended more than grace ago to
// NO_SHOW. It returns how many sessions were marked.
func (e *Engine) MarkNoShows(ctx context.Context, grace time.Duration, batch int) (int, error) {
	cutoff := interval.WallClock(e.now().Add(-grace))
	overdue, err := e.sessions.ListOverdue(ctx, cutoff, batch)
	if err != nil {
		return 0, fmt.Errorf("list overdue sessions: %w", err)
	}

	marked := 0
	for i := range overdue {
		s := &overdue[i]
		status := StatusNoShow
		updated, err := e.sessions.Update(ctx, s.ID, SessionUpdate{ExpectedStatus: StatusScheduled, Status: &status})
		if err != nil {
			if errors.Is(err, ErrStateChanged) || errors.Is(err, ErrSessionNotFound) {
				continue
			}
			e.log.Error("failed to mark session as no-show", zap.String("session_id", s.ID.String()), zap.Error(err))
			continue
		}
		marked++
		e.logEvent(ctx, events.SessionNoShow, updated, map[string]any{"reason": "worker"})
	}
	return marked, nil
}

// SessionEnd is the wall-clock end of a session in the clinic's local time.
func SessionEnd(s *BookedSession) (time.Time, error) {
	start, err := interval.ToMinutes(s.ScheduledTime)
	if err != nil {
		return time.Time{}, err
	}
	return s.ScheduledDate.Add(time.Duration(start+s.DurationMinutes) * time.Minute), nil
}
