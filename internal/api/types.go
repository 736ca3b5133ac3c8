package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/interval"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

type CheckAvailabilityRequest struct {
	TherapistID      string `json:"therapist_id" validate:"required,uuid"`
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	Time             string `json:"time" validate:"required,datetime=15:04"`
	DurationMinutes  int    `json:"duration_minutes" validate:"required,gt=0"`
	ExcludeSessionID string `json:"exclude_session_id,omitempty" validate:"omitempty,uuid"`
}

type CreateSessionRequest struct {
	ServiceAssignmentID string  `json:"service_assignment_id" validate:"required,uuid"`
	Date                string  `json:"date" validate:"required,datetime=2006-01-02"`
	Time                string  `json:"time" validate:"required,datetime=15:04"`
	DurationMinutes     int     `json:"duration_minutes" validate:"required,gt=0"`
	Notes               *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type TimeSlotRequest struct {
	Time            string `json:"time" validate:"required,datetime=15:04"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0"`
}

type BulkScheduleRequest struct {
	ServiceAssignmentID string            `json:"service_assignment_id" validate:"required,uuid"`
	StartDate           string            `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate             string            `json:"end_date" validate:"required,datetime=2006-01-02"`
	Frequency           string            `json:"frequency" validate:"required,oneof=DAILY WEEKLY BIWEEKLY"`
	DaysOfWeek          []string          `json:"days_of_week,omitempty" validate:"omitempty,dive,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY SUNDAY"`
	TimeSlots           []TimeSlotRequest `json:"time_slots" validate:"required,min=1,dive"`
	Notes               *string           `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type TransitionRequest struct {
	ActualDurationMinutes *int    `json:"actual_duration_minutes,omitempty" validate:"omitempty,gt=0"`
	Notes                 *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Reason                *string `json:"reason,omitempty" validate:"omitempty,max=500"`
	Date                  *string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Time                  *string `json:"time,omitempty" validate:"omitempty,datetime=15:04"`
	DurationMinutes       *int    `json:"duration_minutes,omitempty" validate:"omitempty,gt=0"`
}

type ScheduleEntryRequest struct {
	DayOfWeek     string  `json:"day_of_week" validate:"required,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY SUNDAY"`
	StartTime     string  `json:"start_time" validate:"required,datetime=15:04"`
	EndTime       string  `json:"end_time" validate:"required,datetime=15:04"`
	BreakStart    *string `json:"break_start,omitempty" validate:"omitempty,datetime=15:04"`
	BreakEnd      *string `json:"break_end,omitempty" validate:"omitempty,datetime=15:04"`
	MinGapMinutes *int    `json:"min_gap_minutes,omitempty" validate:"omitempty,gte=0"`
}

type ReplaceScheduleRequest struct {
	Entries []ScheduleEntryRequest `json:"entries" validate:"dive"`
}

type SlotResponse struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type AvailabilityResponse struct {
	Available            bool           `json:"available"`
	Reason               string         `json:"reason,omitempty"`
	ConflictingSessionID *uuid.UUID     `json:"conflicting_session_id,omitempty"`
	Suggestions          []SlotResponse `json:"suggestions,omitempty"`
}

type RescheduleResponse struct {
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	DurationMinutes int       `json:"duration_minutes"`
	RescheduledAt   time.Time `json:"rescheduled_at"`
}

type SessionResponse struct {
	ID                    uuid.UUID           `json:"id"`
	TherapistID           uuid.UUID           `json:"therapist_id"`
	PatientID             uuid.UUID           `json:"patient_id"`
	ServiceAssignmentID   uuid.UUID           `json:"service_assignment_id"`
	Date                  string              `json:"date"`
	Time                  string              `json:"time"`
	DurationMinutes       int                 `json:"duration_minutes"`
	Status                string              `json:"status"`
	Notes                 *string             `json:"notes,omitempty"`
	CancelReason          *string             `json:"cancel_reason,omitempty"`
	ActualDurationMinutes *int                `json:"actual_duration_minutes,omitempty"`
	StartedAt             *time.Time          `json:"started_at,omitempty"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty"`
	CancelledAt           *time.Time          `json:"cancelled_at,omitempty"`
	RescheduledFrom       *RescheduleResponse `json:"rescheduled_from,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

type SchedulingErrorResponse struct {
	Date        string         `json:"date"`
	Time        string         `json:"time"`
	Reason      string         `json:"reason"`
	Message     string         `json:"message"`
	Suggestions []SlotResponse `json:"suggestions,omitempty"`
}

type BulkScheduleResponse struct {
	Message          string                    `json:"message"`
	CreatedSessions  []SessionResponse         `json:"created_sessions"`
	Errors           []SchedulingErrorResponse `json:"errors"`
	Evaluated        int                       `json:"evaluated"`
	SkippedForBudget int                       `json:"skipped_for_budget"`
	BudgetExhausted  bool                      `json:"budget_exhausted"`
}

type ScheduleEntryResponse struct {
	ID            uuid.UUID `json:"id"`
	DayOfWeek     string    `json:"day_of_week"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	BreakStart    *string   `json:"break_start,omitempty"`
	BreakEnd      *string   `json:"break_end,omitempty"`
	MinGapMinutes int       `json:"min_gap_minutes"`
}

type ErrorResponse struct {
	Error       string         `json:"error"`
	Details     string         `json:"details,omitempty"`
	Suggestions []SlotResponse `json:"suggestions,omitempty"`
}

func toSlots(in []scheduling.CandidateSlot) []SlotResponse {
	if len(in) == 0 {
		return nil
	}
	out := make([]SlotResponse, len(in))
	for i, c := range in {
		out[i] = SlotResponse{Date: interval.FormatDate(c.Date), Time: c.Time, DurationMinutes: c.DurationMinutes}
	}
	return out
}

func toAvailabilityResponse(res scheduling.AvailabilityResult) AvailabilityResponse {
	resp := AvailabilityResponse{
		Available:   res.Available,
		Reason:      string(res.Reason),
		Suggestions: toSlots(res.Suggestions),
	}
	if res.ConflictingSessionID != uuid.Nil {
		id := res.ConflictingSessionID
		resp.ConflictingSessionID = &id
	}
	return resp
}

func toSessionResponse(s *scheduling.BookedSession) SessionResponse {
	resp := SessionResponse{
		ID:                    s.ID,
		TherapistID:           s.TherapistID,
		PatientID:             s.PatientID,
		ServiceAssignmentID:   s.ServiceAssignmentID,
		Date:                  interval.FormatDate(s.ScheduledDate),
		Time:                  s.ScheduledTime,
		DurationMinutes:       s.DurationMinutes,
		Status:                string(s.Status),
		Notes:                 s.Notes,
		CancelReason:          s.CancelReason,
		ActualDurationMinutes: s.ActualDurationMinutes,
		StartedAt:             s.StartedAt,
		CompletedAt:           s.CompletedAt,
		CancelledAt:           s.CancelledAt,
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
	if rf := s.RescheduledFrom; rf != nil {
		resp.RescheduledFrom = &RescheduleResponse{
			Date:            interval.FormatDate(rf.Date),
			Time:            rf.Time,
			DurationMinutes: rf.DurationMinutes,
			RescheduledAt:   rf.RescheduledAt,
		}
	}
	return resp
}

func toSessionResponses(in []scheduling.BookedSession) []SessionResponse {
	out := make([]SessionResponse, len(in))
	for i := range in {
		out[i] = toSessionResponse(&in[i])
	}
	return out
}

func toScheduleResponses(in []scheduling.WeeklyScheduleEntry) []ScheduleEntryResponse {
	out := make([]ScheduleEntryResponse, len(in))
	for i, e := range in {
		out[i] = ScheduleEntryResponse{
			ID:            e.ID,
			DayOfWeek:     string(e.DayOfWeek),
			StartTime:     e.StartTime,
			EndTime:       e.EndTime,
			BreakStart:    e.BreakStart,
			BreakEnd:      e.BreakEnd,
			MinGapMinutes: e.MinGapMinutes,
		}
	}
	return out
}
