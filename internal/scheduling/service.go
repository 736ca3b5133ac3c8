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

type Engine struct {
	schedules   ScheduleAdmin
	sessions    SessionStore
	assignments AssignmentStore
	locker      Locker
	events      events.Publisher
	cfg         config.Engine
	log         *zap.Logger
	now         func() time.Time
}

func NewEngine(schedules ScheduleAdmin, sessions SessionStore, assignments AssignmentStore, locker Locker, pub events.Publisher, cfg config.Engine, logger *zap.Logger) *Engine {
	if pub == nil {
		pub = events.Nop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		schedules:   schedules,
		sessions:    sessions,
		assignments: assignments,
		locker:      locker,
		events:      pub,
		cfg:         cfg,
		log:         logger,
		now:         time.Now,
	}
}

// DefaultGapMinutes is the buffer applied to schedule entries that do not set one.
func (e *Engine) DefaultGapMinutes() int {
	return e.cfg.DefaultGapMinutes
}

type CreateSessionRequest struct {
	ServiceAssignmentID uuid.UUID
	Date                time.Time
	Time                string
	DurationMinutes     int
	Notes               *string
}

// CreateSession books a single SCHEDULED session under a service assignment.
// If the slot is not free it returns an *UnavailableError carrying suggestions.
func (e *Engine) CreateSession(ctx context.Context, req CreateSessionRequest) (*BookedSession, error) {
	if req.ServiceAssignmentID == uuid.Nil {
		return nil, invalid("service_assignment_id", "is required")
	}
	if req.Date.IsZero() {
		return nil, invalid("date", "is required")
	}
	if _, err := interval.ToMinutes(req.Time); err != nil {
		return nil, invalid("time", "%v", err)
	}
	if err := e.validateDuration("duration_minutes", req.DurationMinutes); err != nil {
		return nil, err
	}

	assignment, err := e.bookableAssignment(ctx, req.ServiceAssignmentID)
	if err != nil {
		return nil, err
	}

	slotStart, err := e.validateSlot(assignment.TherapistID, req.Time, req.DurationMinutes)
	if err != nil {
		return nil, err
	}

	candidate := CandidateSlot{Date: interval.DateOf(req.Date), Time: req.Time, DurationMinutes: req.DurationMinutes}
	created, res, err := e.book(ctx, assignment, candidate, req.Notes)
	if err != nil {
		return nil, err
	}
	if created == nil {
		res.Suggestions = e.suggestFor(ctx, assignment.TherapistID, candidate, slotStart, uuid.Nil)
		return nil, &UnavailableError{Result: res}
	}
	return created, nil
}

func (e *Engine) bookableAssignment(ctx context.Context, id uuid.UUID) (*ServiceAssignment, error) {
	a, err := e.assignments.GetAssignment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAssignmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load assignment: %w", err)
	}
	if a.Status != AssignmentActive {
		return nil, fmt.Errorf("%w: status is %s", ErrAssignmentNotBookable, a.Status)
	}
	if a.RemainingSessions() <= 0 {
		return nil, ErrBudgetExhausted
	}
	return a, nil
}

// book checks and inserts one candidate while holding the therapist/day lock,
// so that no concurrent booking can slip in between the check and the insert.
// A nil session with a nil error means the slot was unavailable.
func (e *Engine) book(ctx context.Context, a *ServiceAssignment, c CandidateSlot, notes *string) (*BookedSession, AvailabilityResult, error) {
	slotStart, err := interval.ToMinutes(c.Time)
	if err != nil {
		return nil, AvailabilityResult{}, invalid("time", "%v", err)
	}

	var (
		created *BookedSession
		res     AvailabilityResult
	)
	err = e.locker.WithTherapistDayLock(ctx, a.TherapistID, c.Date, func(lockCtx context.Context) error {
		plan, err := e.loadDay(lockCtx, a.TherapistID, c.Date, uuid.Nil)
		if err != nil {
			return err
		}
		res = evaluate(plan, slotStart, c.DurationMinutes)
		if !res.Available {
			return nil
		}

		s, err := e.sessions.Insert(lockCtx, &BookedSession{
			ID:                  uuid.New(),
			TherapistID:         a.TherapistID,
			PatientID:           a.PatientID,
			ServiceAssignmentID: a.ID,
			ScheduledDate:       c.Date,
			ScheduledTime:       c.Time,
			DurationMinutes:     c.DurationMinutes,
			Status:              StatusScheduled,
			Notes:               notes,
		})
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		created = s
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			return nil, AvailabilityResult{}, ErrSlotBeingBooked
		}
		return nil, AvailabilityResult{}, err
	}

	if created != nil {
		e.logEvent(ctx, events.SessionCreated, created, map[string]any{
			"date":             interval.FormatDate(created.ScheduledDate),
			"time":             created.ScheduledTime,
			"duration_minutes": created.DurationMinutes,
		})
	}
	return created, res, nil
}

// suggestFor reloads the candidate's day outside any lock and runs the suggestion search.
func (e *Engine) suggestFor(ctx context.Context, therapistID uuid.UUID, c CandidateSlot, slotStart int, exclude uuid.UUID) []CandidateSlot {
	plan, err := e.loadDay(ctx, therapistID, c.Date, exclude)
	if err != nil {
		e.log.Warn("suggestions unavailable", zap.String("therapist_id", therapistID.String()), zap.Error(err))
		return nil
	}
	return e.suggest(ctx, therapistID, c.Date, slotStart, c.DurationMinutes, exclude, plan)
}

func (e *Engine) GetSession(ctx context.Context, id uuid.UUID) (*BookedSession, error) {
	s, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListSessions returns every session of a therapist on a date, any status.
func (e *Engine) ListSessions(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]BookedSession, error) {
	if therapistID == uuid.Nil {
		return nil, invalid("therapist_id", "is required")
	}
	sessions, err := e.sessions.ListBookings(ctx, ForTherapistDay(therapistID, interval.DateOf(date)))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (e *Engine) logEvent(ctx context.Context, eventType string, s *BookedSession, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["therapist_id"] = s.TherapistID.String()
	payload["patient_id"] = s.PatientID.String()
	payload["status"] = string(s.Status)

	ev := events.Event{
		Type:        eventType,
		AggregateID: s.ID,
		Payload:     payload,
		OccurredAt:  e.now(),
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.log.Warn("failed to publish session event",
			zap.String("event_type", eventType),
			zap.String("session_id", s.ID.String()),
			zap.Error(err),
		)
	}
}
