package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScheduleStore is the read side of the weekly schedule, as seen by the engine.
type ScheduleStore interface {
	// GetActiveSchedule returns ErrScheduleNotFound when the therapist does not work that day.
	GetActiveSchedule(ctx context.Context, therapistID uuid.UUID, day DayOfWeek) (*WeeklyScheduleEntry, error)
}

// ScheduleAdmin rewrites and lists a therapist's whole week.
type ScheduleAdmin interface {
	ScheduleStore
	ListWeek(ctx context.Context, therapistID uuid.UUID) ([]WeeklyScheduleEntry, error)
	ReplaceWeek(ctx context.Context, therapistID uuid.UUID, entries []WeeklyScheduleEntry) error
}

// SessionStore is the booked-session collaborator.
type SessionStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (*BookedSession, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]BookedSession, error)
	Insert(ctx context.Context, s *BookedSession) (*BookedSession, error)
	// Update applies u only while the session is still in u.ExpectedStatus;
	// otherwise it returns ErrStateChanged.
	Update(ctx context.Context, id uuid.UUID, u SessionUpdate) (*BookedSession, error)
	// ListOverdue returns SCHEDULED sessions whose end is at or before cutoff.
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]BookedSession, error)
}

// AssignmentStore is the service-assignment collaborator.
type AssignmentStore interface {
	GetAssignment(ctx context.Context, id uuid.UUID) (*ServiceAssignment, error)
	IncrementCompleted(ctx context.Context, id uuid.UUID) error
}

// Locker serializes reads and writes to one therapist's bookings on one date.
type Locker interface {
	WithTherapistDayLock(ctx context.Context, therapistID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error
}

// SessionUpdate is the typed set of mutable session fields. Nil fields are left unchanged.
type SessionUpdate struct {
	ExpectedStatus        SessionStatus
	Status                *SessionStatus
	ScheduledDate         *time.Time
	ScheduledTime         *string
	DurationMinutes       *int
	Notes                 *string
	CancelReason          *string
	ActualDurationMinutes *int
	StartedAt             *time.Time
	CompletedAt           *time.Time
	CancelledAt           *time.Time
	RescheduledFrom       *RescheduleInfo
}

// Apply copies the set fields of u onto s.
func (u SessionUpdate) Apply(s *BookedSession) {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.ScheduledDate != nil {
		s.ScheduledDate = *u.ScheduledDate
	}
	if u.ScheduledTime != nil {
		s.ScheduledTime = *u.ScheduledTime
	}
	if u.DurationMinutes != nil {
		s.DurationMinutes = *u.DurationMinutes
	}
	if u.Notes != nil {
		s.Notes = u.Notes
	}
	if u.CancelReason != nil {
		s.CancelReason = u.CancelReason
	}
	if u.ActualDurationMinutes != nil {
		s.ActualDurationMinutes = u.ActualDurationMinutes
	}
	if u.StartedAt != nil {
		s.StartedAt = u.StartedAt
	}
	if u.CompletedAt != nil {
		s.CompletedAt = u.CompletedAt
	}
	if u.CancelledAt != nil {
		s.CancelledAt = u.CancelledAt
	}
	if u.RescheduledFrom != nil {
		s.RescheduledFrom = u.RescheduledFrom
	}
}

// BookingFilter selects a therapist's sessions on one date.
// Build it with ForTherapistDay and narrow it with the With* methods.
type BookingFilter struct {
	TherapistID uuid.UUID
	Date        time.Time
	Statuses    []SessionStatus
	ExcludeID   uuid.UUID
}

func ForTherapistDay(therapistID uuid.UUID, date time.Time) BookingFilter {
	return BookingFilter{TherapistID: therapistID, Date: date}
}

func (f BookingFilter) WithStatuses(statuses ...SessionStatus) BookingFilter {
	f.Statuses = append([]SessionStatus(nil), statuses...)
	return f
}

// Excluding drops one session from the result. uuid.Nil means no exclusion.
func (f BookingFilter) Excluding(id uuid.UUID) BookingFilter {
	f.ExcludeID = id
	return f
}

// Matches evaluates the filter in memory.
func (f BookingFilter) Matches(s *BookedSession) bool {
	if s.TherapistID != f.TherapistID {
		return false
	}
	if !s.ScheduledDate.Equal(f.Date) {
		return false
	}
	if f.ExcludeID != uuid.Nil && s.ID == f.ExcludeID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// Where renders the filter as a SQL predicate with positional arguments.
func (f BookingFilter) Where() (string, []any) {
	clauses := []string{"therapist_id = $1", "scheduled_date = $2"}
	args := []any{f.TherapistID, f.Date}

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.ExcludeID != uuid.Nil {
		args = append(args, f.ExcludeID)
		clauses = append(clauses, fmt.Sprintf("id <> $%d", len(args)))
	}

	return strings.Join(clauses, " AND "), args
}
