package redisclient

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

func TestLockKey_PerTherapistAndDate(t *testing.T) {
	therapist := uuid.MustParse("7c1e2f4a-0000-4000-8000-000000000001")
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "lock:therapist:7c1e2f4a-0000-4000-8000-000000000001:2026-03-02", lockKey(therapist, day))
	assert.NotEqual(t, lockKey(therapist, day), lockKey(therapist, day.AddDate(0, 0, 1)))
	assert.NotEqual(t, lockKey(therapist, day), lockKey(uuid.New(), day))
}

func TestScheduleKey(t *testing.T) {
	therapist := uuid.MustParse("7c1e2f4a-0000-4000-8000-000000000001")
	assert.Equal(t, "schedule:7c1e2f4a-0000-4000-8000-000000000001:MONDAY", scheduleKey(therapist, scheduling.Monday))
}

func TestCachedEntry_RoundTrip(t *testing.T) {
	therapist := uuid.New()
	bs, be := "12:00", "13:00"
	ce := cachedEntry{
		ID:            uuid.New(),
		StartTime:     "09:00",
		EndTime:       "17:00",
		BreakStart:    &bs,
		BreakEnd:      &be,
		MinGapMinutes: 15,
	}

	data, err := json.Marshal(ce)
	require.NoError(t, err)

	var decoded cachedEntry
	require.NoError(t, json.Unmarshal(data, &decoded))

	entry, err := decoded.toEntry(therapist, scheduling.Monday)
	require.NoError(t, err)
	assert.Equal(t, therapist, entry.TherapistID)
	assert.Equal(t, scheduling.Monday, entry.DayOfWeek)
	assert.True(t, entry.IsActive)
	assert.True(t, entry.HasBreak())
	assert.Equal(t, 15, entry.MinGapMinutes)
}

func TestCachedEntry_OffDay(t *testing.T) {
	_, err := cachedEntry{Off: true}.toEntry(uuid.New(), scheduling.Sunday)
	assert.True(t, errors.Is(err, scheduling.ErrScheduleNotFound))
}
