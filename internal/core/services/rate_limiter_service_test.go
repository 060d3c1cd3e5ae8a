package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keenbingwood-bot/redflag2601/internal/adapters/storage/memory"
	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiter_AdmitsUpToCapacityWithDecreasingRemaining(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, memory.New(), domain.DefaultGeneralBucket(), clock)

	ctx := context.Background()
	for i, want := range []int{4, 3, 2, 1, 0} {
		decision, err := limiter.Check(ctx, "8.8.8.8")
		require.NoError(t, err, "attempt %d", i+1)
		assert.True(t, decision.Admitted, "attempt %d", i+1)
		assert.Equal(t, want, decision.Remaining, "attempt %d", i+1)
		assert.Equal(t, 5, decision.Capacity)
		clock.Advance(time.Second)
	}

	decision, err := limiter.Check(ctx, "8.8.8.8")
	require.NoError(t, err)
	assert.False(t, decision.Admitted)
	assert.Equal(t, 0, decision.Remaining)
	assert.Equal(t, 5, decision.Capacity)
	assert.ErrorIs(t, decision.Err(), domain.ErrQuotaExceeded)
}

func TestRateLimiter_ResetIsOldestEventPlusWindow(t *testing.T) {
	clock := newFakeClock()
	bucket := domain.DefaultGeneralBucket()
	limiter := newTestLimiter(t, memory.New(), bucket, clock)
	first := clock.Now()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		decision, err := limiter.Check(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, first.Add(bucket.Window), decision.Reset)
		assert.True(t, decision.Reset.After(clock.Now()))
		clock.Advance(time.Minute)
	}
}

func TestRateLimiter_IsolatesIdentities(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(t, memory.New(), domain.DefaultGeneralBucket(), clock)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := limiter.Check(ctx, "192.168.1.100")
		require.NoError(t, err)
	}

	decision, err := limiter.Check(ctx, "192.168.1.101")
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Equal(t, 4, decision.Remaining)
}

func TestRateLimiter_AdmitsAgainAfterWindowSlides(t *testing.T) {
	clock := newFakeClock()
	bucket := domain.DefaultGeneralBucket()
	limiter := newTestLimiter(t, memory.New(), bucket, clock)
	ctx := context.Background()

	for i := 0; i < bucket.Capacity; i++ {
		_, err := limiter.Check(ctx, "8.8.4.4")
		require.NoError(t, err)
	}
	decision, err := limiter.Check(ctx, "8.8.4.4")
	require.NoError(t, err)
	require.False(t, decision.Admitted)

	clock.Advance(bucket.Window)

	decision, err = limiter.Check(ctx, "8.8.4.4")
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Equal(t, bucket.Capacity-1, decision.Remaining)
}

func TestRateLimiter_SlidesEventByEvent(t *testing.T) {
	clock := newFakeClock()
	bucket := domain.Bucket{Name: "small", Capacity: 2, Window: 10 * time.Second, Prefix: "test:small"}
	limiter := newTestLimiter(t, memory.New(), bucket, clock)
	ctx := context.Background()

	_, err := limiter.Check(ctx, "a") // t=0
	require.NoError(t, err)
	clock.Advance(6 * time.Second)
	_, err = limiter.Check(ctx, "a") // t=6
	require.NoError(t, err)

	clock.Advance(2 * time.Second) // t=8, both events still in window
	decision, err := limiter.Check(ctx, "a")
	require.NoError(t, err)
	assert.False(t, decision.Admitted)
	assert.Equal(t, clock.Now().Add(2*time.Second), decision.Reset)

	clock.Advance(2 * time.Second) // t=10, first event expired
	decision, err = limiter.Check(ctx, "a")
	require.NoError(t, err)
	assert.True(t, decision.Admitted)
	assert.Equal(t, 0, decision.Remaining)
}

func TestRateLimiter_EmptyIdentityUsesAnonymousSentinel(t *testing.T) {
	store := &recordingStore{}
	limiter := newTestLimiter(t, store, domain.DefaultGeneralBucket(), newFakeClock())

	_, err := limiter.Check(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, []string{"redflag:ratelimit:general:anonymous"}, store.keys)
}

func TestRateLimiter_StoreErrorIsStoreUnavailable(t *testing.T) {
	limiter := newTestLimiter(t, &failingStore{err: errors.New("connection refused")}, domain.DefaultGeneralBucket(), newFakeClock())

	_, err := limiter.Check(context.Background(), "1.1.1.1")
	require.Error(t, err)
	assert.True(t, domain.IsStoreUnavailable(err))
}

func TestRateLimiter_StoreTimeoutIsStoreUnavailable(t *testing.T) {
	limiter, err := NewRateLimiterService(blockingStore{}, domain.DefaultGeneralBucket(), WithStoreTimeout(20*time.Millisecond))
	require.NoError(t, err)

	started := time.Now()
	_, err = limiter.Check(context.Background(), "1.1.1.1")
	require.Error(t, err)
	assert.True(t, domain.IsStoreUnavailable(err))
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestRateLimiter_ConcurrentCallsNeverExceedCapacity(t *testing.T) {
	bucket := domain.Bucket{Name: "burst", Capacity: 10, Window: time.Minute, Prefix: "test:burst"}
	limiter, err := NewRateLimiterService(memory.New(), bucket)
	require.NoError(t, err)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := limiter.Check(context.Background(), "203.0.113.1")
			if err == nil && decision.Admitted {
				admitted.Add(1)
			}
			if decision.Remaining < 0 || decision.Remaining > bucket.Capacity {
				t.Errorf("remaining out of range: %d", decision.Remaining)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(bucket.Capacity), admitted.Load())
}

func TestNewRateLimiterService_Validation(t *testing.T) {
	_, err := NewRateLimiterService(nil, domain.DefaultGeneralBucket())
	assert.Error(t, err)

	_, err = NewRateLimiterService(memory.New(), domain.Bucket{Name: "x", Capacity: 0, Window: time.Minute, Prefix: "p"})
	assert.ErrorIs(t, err, domain.ErrInvalidBucket)

	_, err = NewRateLimiterService(memory.New(), domain.Bucket{Name: "x", Capacity: 1, Window: 0, Prefix: "p"})
	assert.ErrorIs(t, err, domain.ErrInvalidBucket)

	_, err = NewRateLimiterService(memory.New(), domain.Bucket{Name: "x", Capacity: 1, Window: time.Minute})
	assert.ErrorIs(t, err, domain.ErrInvalidBucket)
}

// newTestLimiter is a helper that fails the test immediately if creation fails.
func newTestLimiter(t *testing.T, store ports.WindowStore, bucket domain.Bucket, clock *fakeClock) *RateLimiterService {
	t.Helper()
	service, err := NewRateLimiterService(store, bucket, WithClock(clock.Now))
	require.NoError(t, err, "failed to create rate limiter service")
	return service
}

type recordingStore struct {
	keys []string
}

func (s *recordingStore) RecordAndCount(_ context.Context, key string, now time.Time, _ time.Duration, _ int) (ports.WindowResult, error) {
	s.keys = append(s.keys, key)
	return ports.WindowResult{Admitted: true, Count: 1, Oldest: now}, nil
}

type failingStore struct {
	err error
}

func (s *failingStore) RecordAndCount(context.Context, string, time.Time, time.Duration, int) (ports.WindowResult, error) {
	return ports.WindowResult{}, s.err
}

type blockingStore struct{}

func (blockingStore) RecordAndCount(ctx context.Context, _ string, _ time.Time, _ time.Duration, _ int) (ports.WindowResult, error) {
	<-ctx.Done()
	return ports.WindowResult{}, ctx.Err()
}
