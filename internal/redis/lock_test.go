package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

var (
	lockDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	errBoom = errors.New("boom")
)

func newRedisClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:            mr.Addr(),
		Protocol:        2,
		DisableIdentity: true,
		MaxRetries:      -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, newRedisClient(t, mr)
}

func TestRedisDayLocker_HoldsKeyWithTTLAndReleases(t *testing.T) {
	mr, client := newTestRedis(t)
	therapist := uuid.New()
	key := lockKey(therapist, lockDay)
	l := NewRedisDayLocker(client, 30*time.Second, time.Second)

	err := l.WithTherapistDayLock(context.Background(), therapist, lockDay, func(ctx context.Context) error {
		token, err := mr.Get(key)
		require.NoError(t, err)
		_, err = uuid.Parse(token)
		assert.NoError(t, err, "lock value is a per-call token")
		assert.Equal(t, 30*time.Second, mr.TTL(key))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))
}

func TestRedisDayLocker_ReleasesWhenCallbackFails(t *testing.T) {
	mr, client := newTestRedis(t)
	therapist := uuid.New()
	l := NewRedisDayLocker(client, 30*time.Second, time.Second)

	err := l.WithTherapistDayLock(context.Background(), therapist, lockDay, func(context.Context) error {
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, mr.Exists(lockKey(therapist, lockDay)))
}

func TestRedisDayLocker_WaitBudgetExhausted(t *testing.T) {
	mr, client := newTestRedis(t)
	therapist := uuid.New()
	key := lockKey(therapist, lockDay)
	require.NoError(t, mr.Set(key, "held-elsewhere"))

	const wait = 100 * time.Millisecond
	l := NewRedisDayLocker(client, 30*time.Second, wait)

	called := false
	start := time.Now()
	err := l.WithTherapistDayLock(context.Background(), therapist, lockDay, func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, scheduling.ErrLockNotAcquired)
	assert.False(t, called)
	assert.GreaterOrEqual(t, time.Since(start), wait)

	held, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "held-elsewhere", held)
}

func TestRedisDayLocker_CallerCancelWhileWaiting(t *testing.T) {
	mr, client := newTestRedis(t)
	therapist := uuid.New()
	require.NoError(t, mr.Set(lockKey(therapist, lockDay), "held-elsewhere"))
	l := NewRedisDayLocker(client, 30*time.Second, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := l.WithTherapistDayLock(ctx, therapist, lockDay, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisDayLocker_SerializesSameTherapistDay(t *testing.T) {
	_, client := newTestRedis(t)
	therapist := uuid.New()
	l := NewRedisDayLocker(client, 30*time.Second, 3*time.Second)

	const workers = 4
	var (
		wg        sync.WaitGroup
		active    atomic.Int32
		maxActive atomic.Int32
		done      atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithTherapistDayLock(context.Background(), therapist, lockDay, func(context.Context) error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(40 * time.Millisecond)
				active.Add(-1)
				done.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, int32(workers), done.Load())
}

func TestRedisDayLocker_OtherDaysDoNotContend(t *testing.T) {
	_, client := newTestRedis(t)
	therapist := uuid.New()
	l := NewRedisDayLocker(client, 30*time.Second, 0)

	err := l.WithTherapistDayLock(context.Background(), therapist, lockDay, func(context.Context) error {
		return l.WithTherapistDayLock(context.Background(), therapist, lockDay.AddDate(0, 0, 1), func(context.Context) error {
			return nil
		})
	})
	assert.NoError(t, err)

	err = l.WithTherapistDayLock(context.Background(), therapist, lockDay, func(context.Context) error {
		return l.WithTherapistDayLock(context.Background(), therapist, lockDay, func(context.Context) error {
			return nil
		})
	})
	assert.ErrorIs(t, err, scheduling.ErrLockNotAcquired)
}

func TestRedisDayLocker_ReleaseRequiresMatchingToken(t *testing.T) {
	mr, client := newTestRedis(t)
	therapist := uuid.New()
	key := lockKey(therapist, lockDay)
	l := NewRedisDayLocker(client, 30*time.Second, time.Second)

	// The lock expired mid-callback and another holder took it over.
	err := l.WithTherapistDayLock(context.Background(), therapist, lockDay, func(context.Context) error {
		return mr.Set(key, "next-holder")
	})
	require.NoError(t, err)

	held, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "next-holder", held)

	locker := l.(*redisDayLocker)
	require.NoError(t, locker.release(context.Background(), key, "stale-token"))
	assert.True(t, mr.Exists(key))

	require.NoError(t, locker.release(context.Background(), key, "next-holder"))
	assert.False(t, mr.Exists(key))
}

func TestRedisDayLocker_CallbackContextBoundedByTTL(t *testing.T) {
	_, client := newTestRedis(t)
	therapist := uuid.New()

	const ttl = 300 * time.Millisecond
	l := NewRedisDayLocker(client, ttl, time.Second)

	err := l.WithTherapistDayLock(context.Background(), therapist, lockDay, func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(ttl), deadline, 100*time.Millisecond)

		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	parent, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = l.WithTherapistDayLock(parent, therapist, lockDay, func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		parentDeadline, _ := parent.Deadline()
		assert.Equal(t, parentDeadline, deadline)
		return nil
	})
	assert.NoError(t, err)
}
