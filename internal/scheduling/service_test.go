package scheduling

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession_Books(t *testing.T) {
	f := newFixture(t)
	f.clinicWeek()
	assignment := f.assignment(10, 0, AssignmentActive)

	s, err := f.engine.CreateSession(context.Background(), CreateSessionRequest{
		ServiceAssignmentID: assignment,
		Date:                monday,
		Time:                "11:00",
		DurationMinutes:     60,
		Notes:               strptr("initial assessment"),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, s.Status)
	assert.Equal(t, f.therapist, s.TherapistID)
	assert.Equal(t, f.patient, s.PatientID)
	assert.Equal(t, monday, s.ScheduledDate)
	assert.Equal(t, 1, f.locker.calls)

	got, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestCreateSession_UnavailableCarriesSuggestions(t *testing.T) {
	f := newFixture(t)
	f.clinicWeek()
	assignment := f.assignment(10, 0, AssignmentActive)

	_, err := f.engine.CreateSession(context.Background(), CreateSessionRequest{
		ServiceAssignmentID: assignment, Date: monday, Time: "12:30", DurationMinutes: 60,
	})

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, ReasonBreakConflict, unavailable.Result.Reason)
	require.NotEmpty(t, unavailable.Result.Suggestions)
	assert.Equal(t, CandidateSlot{Date: monday, Time: "09:00", DurationMinutes: 60}, unavailable.Result.Suggestions[0])
	assert.Zero(t, f.store.count())
}

func TestCreateSession_Preconditions(t *testing.T) {
	f := newFixture(t)
	f.clinicWeek()

	_, err := f.engine.CreateSession(context.Background(), CreateSessionRequest{Date: monday, Time: "10:00", DurationMinutes: 60})
	assert.True(t, IsValidation(err))

	_, err = f.engine.CreateSession(context.Background(), CreateSessionRequest{
		ServiceAssignmentID: uuid.New(), Date: monday, Time: "10:00", DurationMinutes: 60,
	})
	assert.ErrorIs(t, err, ErrAssignmentNotFound)

	_, err = f.engine.CreateSession(context.Background(), CreateSessionRequest{
		ServiceAssignmentID: f.assignment(2, 2, AssignmentActive), Date: monday, Time: "10:00", DurationMinutes: 60,
	})
	assert.ErrorIs(t, err, ErrBudgetExhausted)

	_, err = f.engine.CreateSession(context.Background(), CreateSessionRequest{
		ServiceAssignmentID: f.assignment(2, 0, AssignmentActive), Date: monday, Time: "10:00", DurationMinutes: 7,
	})
	assert.True(t, IsValidation(err))
}

func TestCreateSession_MalformedSlotRejectedBeforeAssignmentLookup(t *testing.T) {
	f := newFixture(t)
	f.clinicWeek()

	tests := []struct {
		name       string
		assignment uuid.UUID
		time       string
		duration   int
		field      string
	}{
		{"bad time, unknown assignment", uuid.New(), "25:99", 60, "time"},
		{"bad duration, unknown assignment", uuid.New(), "10:00", 7, "duration_minutes"},
		{"bad time, exhausted budget", f.assignment(2, 2, AssignmentActive), "9am", 60, "time"},
		{"bad duration, inactive assignment", f.assignment(2, 0, AssignmentCompleted), "10:00", 600, "duration_minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateSession(context.Background(), CreateSessionRequest{
				ServiceAssignmentID: tt.assignment, Date: monday, Time: tt.time, DurationMinutes: tt.duration,
			})
			require.True(t, IsValidation(err), "got %v", err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.NotErrorIs(t, err, ErrAssignmentNotFound)
		})
	}

	assert.Zero(t, f.locker.calls)
	assert.Zero(t, f.store.count())
}

func TestCreateSession_ConcurrentRequestsBookOnce(t *testing.T) {
	f := newFixture(t)
	f.clinicWeek()
	assignment := f.assignment(50, 0, AssignmentActive)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		booked  int
		refused int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateSession(context.Background(), CreateSessionRequest{
				ServiceAssignmentID: assignment, Date: monday, Time: "15:00", DurationMinutes: 60,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				booked++
				return
			}
			var unavailable *UnavailableError
			if assert.ErrorAs(t, err, &unavailable) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, booked)
	assert.Equal(t, workers-1, refused)
	assert.Equal(t, 1, f.store.count())
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	f.booked(monday, "10:00", 60, StatusScheduled)
	f.booked(monday, "14:00", 60, StatusCancelled)
	f.booked(tuesday, "10:00", 60, StatusScheduled)

	got, err := f.engine.ListSessions(context.Background(), f.therapist, monday)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.engine.ListSessions(context.Background(), uuid.Nil, monday)
	assert.True(t, IsValidation(err))
}

func TestGetSession_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.GetSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
