package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

var allDays = []scheduling.DayOfWeek{
	scheduling.Monday, scheduling.Tuesday, scheduling.Wednesday, scheduling.Thursday,
	scheduling.Friday, scheduling.Saturday, scheduling.Sunday,
}

// ScheduleCache fronts a ScheduleAdmin with Redis. Weekly schedules change
// only through ReplaceWeek, which drops the therapist's keys.
type ScheduleCache struct {
	next   scheduling.ScheduleAdmin
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
	group  singleflight.Group
}

func NewScheduleCache(next scheduling.ScheduleAdmin, client *redis.Client, ttl time.Duration, logger *zap.Logger) *ScheduleCache {
	return &ScheduleCache{
		next:   next,
		client: client,
		ttl:    ttl,
		log:    logger,
	}
}

// cachedEntry is the Redis representation. Off marks a cached non-working day.
type cachedEntry struct {
	Off           bool      `json:"off,omitempty"`
	ID            uuid.UUID `json:"id"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	BreakStart    *string   `json:"break_start,omitempty"`
	BreakEnd      *string   `json:"break_end,omitempty"`
	MinGapMinutes int       `json:"min_gap_minutes"`
}

func scheduleKey(therapistID uuid.UUID, day scheduling.DayOfWeek) string {
	return fmt.Sprintf("schedule:%s:%s", therapistID, day)
}

func (c *ScheduleCache) GetActiveSchedule(ctx context.Context, therapistID uuid.UUID, day scheduling.DayOfWeek) (*scheduling.WeeklyScheduleEntry, error) {
	key := scheduleKey(therapistID, day)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var ce cachedEntry
		if jerr := json.Unmarshal(raw, &ce); jerr == nil {
			return ce.toEntry(therapistID, day)
		}
		c.log.Warn("dropping undecodable schedule cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("schedule cache read failed", zap.String("key", key), zap.Error(err))
		return c.next.GetActiveSchedule(ctx, therapistID, day)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		entry, err := c.next.GetActiveSchedule(ctx, therapistID, day)
		if err != nil && !errors.Is(err, scheduling.ErrScheduleNotFound) {
			return nil, err
		}
		c.store(ctx, key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	entry, _ := v.(*scheduling.WeeklyScheduleEntry)
	if entry == nil {
		return nil, scheduling.ErrScheduleNotFound
	}
	clone := *entry
	return &clone, nil
}

func (c *ScheduleCache) store(ctx context.Context, key string, entry *scheduling.WeeklyScheduleEntry) {
	ce := cachedEntry{Off: true}
	if entry != nil {
		ce = cachedEntry{
			ID:            entry.ID,
			StartTime:     entry.StartTime,
			EndTime:       entry.EndTime,
			BreakStart:    entry.BreakStart,
			BreakEnd:      entry.BreakEnd,
			MinGapMinutes: entry.MinGapMinutes,
		}
	}

	data, err := json.Marshal(ce)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("schedule cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (ce cachedEntry) toEntry(therapistID uuid.UUID, day scheduling.DayOfWeek) (*scheduling.WeeklyScheduleEntry, error) {
	if ce.Off {
		return nil, scheduling.ErrScheduleNotFound
	}
	return &scheduling.WeeklyScheduleEntry{
		ID:            ce.ID,
		TherapistID:   therapistID,
		DayOfWeek:     day,
		StartTime:     ce.StartTime,
		EndTime:       ce.EndTime,
		BreakStart:    ce.BreakStart,
		BreakEnd:      ce.BreakEnd,
		MinGapMinutes: ce.MinGapMinutes,
		IsActive:      true,
	}, nil
}

func (c *ScheduleCache) ListWeek(ctx context.Context, therapistID uuid.UUID) ([]scheduling.WeeklyScheduleEntry, error) {
	return c.next.ListWeek(ctx, therapistID)
}

func (c *ScheduleCache) ReplaceWeek(ctx context.Context, therapistID uuid.UUID, entries []scheduling.WeeklyScheduleEntry) error {
	if err := c.next.ReplaceWeek(ctx, therapistID, entries); err != nil {
		return err
	}

	keys := make([]string, len(allDays))
	for i, d := range allDays {
		keys[i] = scheduleKey(therapistID, d)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Error("failed to invalidate schedule cache",
			zap.String("therapist_id", therapistID.String()),
			zap.Error(err),
		)
	}
	return nil
}
