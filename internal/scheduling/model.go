package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	StatusScheduled  SessionStatus = "SCHEDULED"
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusCompleted  SessionStatus = "COMPLETED"
	StatusCancelled  SessionStatus = "CANCELLED"
	StatusNoShow     SessionStatus = "NO_SHOW"
)

// ActiveStatuses are the statuses that occupy a therapist's time.
var ActiveStatuses = []SessionStatus{StatusScheduled, StatusInProgress}

// IsTerminal reports whether no further transition is permitted.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "ACTIVE"
	AssignmentPaused    AssignmentStatus = "PAUSED"
	AssignmentCompleted AssignmentStatus = "COMPLETED"
	AssignmentCancelled AssignmentStatus = "CANCELLED"
)

type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

var weekdays = map[time.Weekday]DayOfWeek{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

// DayOf resolves the day of week of a calendar date.
func DayOf(date time.Time) DayOfWeek {
	return weekdays[date.Weekday()]
}

func (d DayOfWeek) Valid() bool {
	switch d {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return true
	}
	return false
}

type Frequency string

const (
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
)

// WeeklyScheduleEntry is one therapist's working window on one day of the week.
type WeeklyScheduleEntry struct {
	ID            uuid.UUID
	TherapistID   uuid.UUID
	DayOfWeek     DayOfWeek
	StartTime     string
	EndTime       string
	BreakStart    *string
	BreakEnd      *string
	MinGapMinutes int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasBreak reports whether both break bounds are set.
func (e *WeeklyScheduleEntry) HasBreak() bool {
	return e.BreakStart != nil && e.BreakEnd != nil && *e.BreakStart != "" && *e.BreakEnd != ""
}

// RescheduleInfo records where a session was booked before it was moved.
type RescheduleInfo struct {
	Date            time.Time
	Time            string
	DurationMinutes int
	RescheduledAt   time.Time
}

type BookedSession struct {
	ID                    uuid.UUID
	TherapistID           uuid.UUID
	PatientID             uuid.UUID
	ServiceAssignmentID   uuid.UUID
	ScheduledDate         time.Time
	ScheduledTime         string
	DurationMinutes       int
	Status                SessionStatus
	Notes                 *string
	CancelReason          *string
	ActualDurationMinutes *int
	StartedAt             *time.Time
	CompletedAt           *time.Time
	CancelledAt           *time.Time
	RescheduledFrom       *RescheduleInfo
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ServiceAssignment caps how many sessions may be booked under a treatment proposal.
type ServiceAssignment struct {
	ID                uuid.UUID
	TherapistID       uuid.UUID
	PatientID         uuid.UUID
	TotalSessions     int
	CompletedSessions int
	Status            AssignmentStatus
}

// RemainingSessions is the session budget not yet consumed by completed sessions.
func (a *ServiceAssignment) RemainingSessions() int {
	if n := a.TotalSessions - a.CompletedSessions; n > 0 {
		return n
	}
	return 0
}

// CandidateSlot is an unpersisted (date, time, duration) proposal.
type CandidateSlot struct {
	Date            time.Time
	Time            string
	DurationMinutes int
}

// TimeSlot is a recurrence template: a start time and a length.
type TimeSlot struct {
	Time            string
	DurationMinutes int
}

// SchedulingError describes why one candidate of a bulk request was not booked.
type SchedulingError struct {
	Date        time.Time
	Time        string
	Reason      Reason
	Message     string
	Suggestions []CandidateSlot
}

type BulkResult struct {
	CreatedSessions  []BookedSession
	Errors           []SchedulingError
	Evaluated        int
	SkippedForBudget int
	BudgetExhausted  bool
}
