package redisclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// countingSchedules is an in-memory ScheduleAdmin that counts reads.
type countingSchedules struct {
	mu         sync.Mutex
	week       map[scheduling.DayOfWeek]scheduling.WeeklyScheduleEntry
	readErr    error
	replaceErr error
	reads      int
}

func newCountingSchedules(entries ...scheduling.WeeklyScheduleEntry) *countingSchedules {
	s := &countingSchedules{week: map[scheduling.DayOfWeek]scheduling.WeeklyScheduleEntry{}}
	for _, e := range entries {
		s.week[e.DayOfWeek] = e
	}
	return s
}

func (s *countingSchedules) GetActiveSchedule(_ context.Context, _ uuid.UUID, day scheduling.DayOfWeek) (*scheduling.WeeklyScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	e, ok := s.week[day]
	if !ok {
		return nil, scheduling.ErrScheduleNotFound
	}
	return &e, nil
}

func (s *countingSchedules) ListWeek(context.Context, uuid.UUID) ([]scheduling.WeeklyScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduling.WeeklyScheduleEntry, 0, len(s.week))
	for _, e := range s.week {
		out = append(out, e)
	}
	return out, nil
}

func (s *countingSchedules) ReplaceWeek(_ context.Context, _ uuid.UUID, entries []scheduling.WeeklyScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.week = map[scheduling.DayOfWeek]scheduling.WeeklyScheduleEntry{}
	for _, e := range entries {
		s.week[e.DayOfWeek] = e
	}
	return nil
}

func (s *countingSchedules) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func mondayEntry(therapist uuid.UUID, start, end string) scheduling.WeeklyScheduleEntry {
	bs, be := "12:00", "13:00"
	return scheduling.WeeklyScheduleEntry{
		ID:            uuid.New(),
		TherapistID:   therapist,
		DayOfWeek:     scheduling.Monday,
		StartTime:     start,
		EndTime:       end,
		BreakStart:    &bs,
		BreakEnd:      &be,
		MinGapMinutes: 15,
		IsActive:      true,
	}
}

func TestScheduleCache_ReadThrough(t *testing.T) {
	mr, client := newTestRedis(t)
	therapist := uuid.New()
	backend := newCountingSchedules(mondayEntry(therapist, "09:00", "17:00"))
	cache := NewScheduleCache(backend, client, time.Minute, zap.NewNop())

	first, err := cache.GetActiveSchedule(context.Background(), therapist, scheduling.Monday)
	require.NoError(t, err)
	assert.Equal(t, "09:00", first.StartTime)
	assert.True(t, mr.Exists(scheduleKey(therapist, scheduling.Monday)))
	assert.Equal(t, time.Minute, mr.TTL(scheduleKey(therapist, scheduling.Monday)))

	second, err := cache.GetActiveSchedule(context.Background(), therapist, scheduling.Monday)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.readCount())
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "17:00", second.EndTime)
	assert.Equal(t, 15, second.MinGapMinutes)
	require.True(t, second.HasBreak())
	assert.Equal(t, "12:00", *second.BreakStart)
}

func TestScheduleCache_CachesOffDays(t *testing.T) {
	mr, client := newTestRedis(t)
	therapist := uuid.New()
	backend := newCountingSchedules()
	cache := NewScheduleCache(backend, client, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := cache.GetActiveSchedule(context.Background(), therapist, scheduling.Sunday)
		assert.ErrorIs(t, err, scheduling.ErrScheduleNotFound)
	}
	assert.Equal(t, 1, backend.readCount())
	assert.True(t, mr.Exists(scheduleKey(therapist, scheduling.Sunday)))
}

func TestScheduleCache_BackendErrorsAreNotCached(t *testing.T) {
	mr, client := newTestRedis(t)
	therapist := uuid.New()
	backend := newCountingSchedules(mondayEntry(therapist, "09:00", "17:00"))
	backend.readErr = errBoom
	cache := NewScheduleCache(backend, client, time.Minute, zap.NewNop())

	_, err := cache.GetActiveSchedule(context.Background(), therapist, scheduling.Monday)
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, mr.Exists(scheduleKey(therapist, scheduling.Monday)))

	backend.mu.Lock()
	backend.readErr = nil
	backend.mu.Unlock()

	entry, err := cache.GetActiveSchedule(context.Background(), therapist, scheduling.Monday)
	require.NoError(t, err)
	assert.Equal(t, "09:00", entry.StartTime)
}

func TestScheduleCache_ReplaceWeekInvalidates(t *testing.T) {
	mr, client := newTestRedis(t)
	therapist := uuid.New()
	other := uuid.New()
	backend := newCountingSchedules(mondayEntry(therapist, "09:00", "17:00"))
	cache := NewScheduleCache(backend, client, time.Minute, zap.NewNop())

	_, err := cache.GetActiveSchedule(context.Background(), therapist, scheduling.Monday)
	require.NoError(t, err)
	_, err = cache.GetActiveSchedule(context.Background(), therapist, scheduling.Sunday)
	require.ErrorIs(t, err, scheduling.ErrScheduleNotFound)
	_, err = cache.GetActiveSchedule(context.Background(), other, scheduling.Monday)
	require.NoError(t, err)

	require.NoError(t, cache.ReplaceWeek(context.Background(), therapist, []scheduling.WeeklyScheduleEntry{
		mondayEntry(therapist, "10:00", "14:00"),
	}))
	for _, d := range allDays {
		assert.False(t, mr.Exists(scheduleKey(therapist, d)), d)
	}
	assert.True(t, mr.Exists(scheduleKey(other, scheduling.Monday)))

	entry, err := cache.GetActiveSchedule(context.Background(), therapist, scheduling.Monday)
	require.NoError(t, err)
	assert.Equal(t, "10:00", entry.StartTime)
	assert.Equal(t, "14:00", entry.EndTime)
}

func TestScheduleCache_FailedReplaceKeepsCache(t *testing.T) {
	mr, client := newTestRedis(t)
	therapist := uuid.New()
	backend := newCountingSchedules(mondayEntry(therapist, "09:00", "17:00"))
	cache := NewScheduleCache(backend, client, time.Minute, zap.NewNop())

	_, err := cache.GetActiveSchedule(context.Background(), therapist, scheduling.Monday)
	require.NoError(t, err)

	backend.replaceErr = errBoom
	err = cache.ReplaceWeek(context.Background(), therapist, nil)
	assert.ErrorIs(t, err, errBoom)
	assert.True(t, mr.Exists(scheduleKey(therapist, scheduling.Monday)))
}

func TestScheduleCache_UndecodableEntryIsRefreshed(t *testing.T) {
	mr, client := newTestRedis(t)
	therapist := uuid.New()
	key := scheduleKey(therapist, scheduling.Monday)
	require.NoError(t, mr.Set(key, "{not json"))

	backend := newCountingSchedules(mondayEntry(therapist, "09:00", "17:00"))
	cache := NewScheduleCache(backend, client, time.Minute, zap.NewNop())

	entry, err := cache.GetActiveSchedule(context.Background(), therapist, scheduling.Monday)
	require.NoError(t, err)
	assert.Equal(t, "09:00", entry.StartTime)
	assert.Equal(t, 1, backend.readCount())

	raw, err := mr.Get(key)
	require.NoError(t, err)
	assert.Contains(t, raw, `"start_time":"09:00"`)
}

func TestScheduleCache_FallsBackWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := newRedisClient(t, mr)
	mr.Close()

	therapist := uuid.New()
	backend := newCountingSchedules(mondayEntry(therapist, "09:00", "17:00"))
	cache := NewScheduleCache(backend, client, time.Minute, zap.NewNop())

	for i := 0; i < 2; i++ {
		entry, err := cache.GetActiveSchedule(context.Background(), therapist, scheduling.Monday)
		require.NoError(t, err)
		assert.Equal(t, "09:00", entry.StartTime)
	}
	assert.Equal(t, 2, backend.readCount())

	_, err = cache.GetActiveSchedule(context.Background(), therapist, scheduling.Sunday)
	assert.ErrorIs(t, err, scheduling.ErrScheduleNotFound)

	assert.NoError(t, cache.ReplaceWeek(context.Background(), therapist, nil))
}
