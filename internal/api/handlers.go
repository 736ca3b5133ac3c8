package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/interval"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// Scheduler is the engine surface the HTTP layer depends on.
type Scheduler interface {
	CheckAvailability(ctx context.Context, req scheduling.AvailabilityRequest) (scheduling.AvailabilityResult, error)
	CreateSession(ctx context.Context, req scheduling.CreateSessionRequest) (*scheduling.BookedSession, error)
	ScheduleBulk(ctx context.Context, req scheduling.BulkRequest) (*scheduling.BulkResult, error)
	GetSession(ctx context.Context, id uuid.UUID) (*scheduling.BookedSession, error)
	ListSessions(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]scheduling.BookedSession, error)
	TransitionSession(ctx context.Context, id uuid.UUID, action scheduling.Action, p scheduling.TransitionPayload) (*scheduling.BookedSession, error)
	ReplaceWeeklySchedule(ctx context.Context, therapistID uuid.UUID, entries []scheduling.WeeklyScheduleEntry) ([]scheduling.WeeklyScheduleEntry, error)
	GetWeeklySchedule(ctx context.Context, therapistID uuid.UUID) ([]scheduling.WeeklyScheduleEntry, error)
	DefaultGapMinutes() int
}

func checkAvailabilityHandler(svc Scheduler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckAvailabilityRequest
		if !decodeBody(w, r, &req) {
			return
		}

		date, err := interval.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		var exclude uuid.UUID
		if req.ExcludeSessionID != "" {
			exclude = uuid.MustParse(req.ExcludeSessionID)
		}

		res, err := svc.CheckAvailability(r.Context(), scheduling.AvailabilityRequest{
			TherapistID:      uuid.MustParse(req.TherapistID),
			Date:             date,
			Time:             req.Time,
			DurationMinutes:  req.DurationMinutes,
			ExcludeSessionID: exclude,
		})
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(res))
	}
}

func createSessionHandler(svc Scheduler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		date, err := interval.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		s, err := svc.CreateSession(r.Context(), scheduling.CreateSessionRequest{
			ServiceAssignmentID: uuid.MustParse(req.ServiceAssignmentID),
			Date:                date,
			Time:                req.Time,
			DurationMinutes:     req.DurationMinutes,
			Notes:               req.Notes,
		})
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSessionResponse(s))
	}
}

func scheduleBulkHandler(svc Scheduler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkScheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}

		start, err := interval.ParseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "start_date: "+err.Error())
			return
		}
		end, err := interval.ParseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "end_date: "+err.Error())
			return
		}

		days := make([]scheduling.DayOfWeek, len(req.DaysOfWeek))
		for i, d := range req.DaysOfWeek {
			days[i] = scheduling.DayOfWeek(d)
		}
		slots := make([]scheduling.TimeSlot, len(req.TimeSlots))
		for i, ts := range req.TimeSlots {
			slots[i] = scheduling.TimeSlot{Time: ts.Time, DurationMinutes: ts.DurationMinutes}
		}

		res, err := svc.ScheduleBulk(r.Context(), scheduling.BulkRequest{
			ServiceAssignmentID: uuid.MustParse(req.ServiceAssignmentID),
			Recurrence: scheduling.RecurrenceSpec{
				StartDate:  start,
				EndDate:    end,
				Frequency:  scheduling.Frequency(req.Frequency),
				DaysOfWeek: days,
				TimeSlots:  slots,
			},
			Notes: req.Notes,
		})
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		status := http.StatusOK
		if len(res.CreatedSessions) > 0 {
			status = http.StatusCreated
		}
		writeJSON(w, status, toBulkResponse(res))
	}
}

func toBulkResponse(res *scheduling.BulkResult) BulkScheduleResponse {
	errs := make([]SchedulingErrorResponse, len(res.Errors))
	for i, e := range res.Errors {
		errs[i] = SchedulingErrorResponse{
			Date:        interval.FormatDate(e.Date),
			Time:        e.Time,
			Reason:      string(e.Reason),
			Message:     e.Message,
			Suggestions: toSlots(e.Suggestions),
		}
	}

	msg := fmt.Sprintf("%d of %d sessions were created", len(res.CreatedSessions), res.Evaluated)
	if res.BudgetExhausted {
		msg += fmt.Sprintf("; %d skipped because the session budget is exhausted", res.SkippedForBudget)
	}

	return BulkScheduleResponse{
		Message:          msg,
		CreatedSessions:  toSessionResponses(res.CreatedSessions),
		Errors:           errs,
		Evaluated:        res.Evaluated,
		SkippedForBudget: res.SkippedForBudget,
		BudgetExhausted:  res.BudgetExhausted,
	}
}

func getSessionHandler(svc Scheduler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		s, err := svc.GetSession(r.Context(), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toSessionResponse(s))
	}
}

func listTherapistSessionsHandler(svc Scheduler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		therapistID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		date, err := interval.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD")
			return
		}

		sessions, err := svc.ListSessions(r.Context(), therapistID, date)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toSessionResponses(sessions))
	}
}

func transitionSessionHandler(svc Scheduler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		action := scheduling.Action(chi.URLParam(r, "action"))

		var req TransitionRequest
		if r.ContentLength != 0 {
			if !decodeBody(w, r, &req) {
				return
			}
		}

		payload := scheduling.TransitionPayload{
			ActualDurationMinutes: req.ActualDurationMinutes,
			Notes:                 req.Notes,
			Reason:                req.Reason,
			Time:                  req.Time,
			DurationMinutes:       req.DurationMinutes,
		}
		if req.Date != nil {
			d, err := interval.ParseDate(*req.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", "date: "+err.Error())
				return
			}
			payload.Date = &d
		}

		s, err := svc.TransitionSession(r.Context(), id, action, payload)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toSessionResponse(s))
	}
}

func getScheduleHandler(svc Scheduler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		therapistID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		week, err := svc.GetWeeklySchedule(r.Context(), therapistID)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponses(week))
	}
}

func replaceScheduleHandler(svc Scheduler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		therapistID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req ReplaceScheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}

		entries := make([]scheduling.WeeklyScheduleEntry, len(req.Entries))
		for i, e := range req.Entries {
			gap := svc.DefaultGapMinutes()
			if e.MinGapMinutes != nil {
				gap = *e.MinGapMinutes
			}
			entries[i] = scheduling.WeeklyScheduleEntry{
				DayOfWeek:     scheduling.DayOfWeek(e.DayOfWeek),
				StartTime:     e.StartTime,
				EndTime:       e.EndTime,
				BreakStart:    e.BreakStart,
				BreakEnd:      e.BreakEnd,
				MinGapMinutes: gap,
				IsActive:      true,
			}
		}

		week, err := svc.ReplaceWeeklySchedule(r.Context(), therapistID, entries)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponses(week))
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var unavailable *scheduling.UnavailableError

	switch {
	case scheduling.IsValidation(err):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:       strings.ToLower(string(unavailable.Result.Reason)),
			Details:     err.Error(),
			Suggestions: toSlots(unavailable.Result.Suggestions),
		})
	case errors.Is(err, scheduling.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "therapist schedule is being modified, please retry shortly")
	case errors.Is(err, scheduling.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, scheduling.ErrBudgetExhausted):
		writeError(w, http.StatusConflict, "budget_exhausted", err.Error())
	case errors.Is(err, scheduling.ErrAssignmentNotBookable):
		writeError(w, http.StatusConflict, "assignment_not_bookable", err.Error())
	case errors.Is(err, scheduling.ErrAssignmentNotFound):
		writeError(w, http.StatusNotFound, "assignment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	default:
		log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
