package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestStorage_RecordAndCount(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := s.RecordAndCount(ctx, "k", base.Add(time.Duration(i)*time.Second), time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, res.Admitted)
		assert.Equal(t, i, res.Count)
		assert.Equal(t, base.Add(time.Second), res.Oldest)
	}

	res, err := s.RecordAndCount(ctx, "k", base.Add(4*time.Second), time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, base.Add(time.Second), res.Oldest)
}

func TestStorage_RejectedAttemptsAreNotRecorded(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.RecordAndCount(ctx, "k", base, time.Minute, 1)
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		res, err := s.RecordAndCount(ctx, "k", base.Add(time.Duration(i)*time.Second), time.Minute, 1)
		require.NoError(t, err)
		assert.False(t, res.Admitted)
	}

	res, err := s.RecordAndCount(ctx, "k", base.Add(time.Minute), time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, res.Admitted, "the only recorded event should have left the window")
	assert.Equal(t, 1, res.Count)
}

func TestStorage_EventExactlyWindowOldIsEvicted(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.RecordAndCount(ctx, "k", base, 10*time.Second, 1)
	require.NoError(t, err)

	res, err := s.RecordAndCount(ctx, "k", base.Add(10*time.Second-time.Millisecond), 10*time.Second, 1)
	require.NoError(t, err)
	assert.False(t, res.Admitted)

	res, err = s.RecordAndCount(ctx, "k", base.Add(10*time.Second), 10*time.Second, 1)
	require.NoError(t, err)
	assert.True(t, res.Admitted)
}

func TestStorage_OutOfOrderTimestampsStaySorted(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.RecordAndCount(ctx, "k", base.Add(5*time.Second), time.Minute, 10)
	require.NoError(t, err)
	res, err := s.RecordAndCount(ctx, "k", base.Add(2*time.Second), time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, base.Add(2*time.Second), res.Oldest)
}

func TestStorage_KeysAreIndependent(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.RecordAndCount(ctx, "a", base, time.Minute, 1)
	require.NoError(t, err)
	res, err := s.RecordAndCount(ctx, "b", base, time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, res.Admitted)
	assert.Equal(t, 2, s.Len())
}

func TestStorage_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().RecordAndCount(ctx, "k", base, time.Minute, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStorage_CleanupRemovesExpiredKeys(t *testing.T) {
	now := base
	s := New(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := s.RecordAndCount(ctx, "old", base, time.Minute, 5)
	require.NoError(t, err)
	_, err = s.RecordAndCount(ctx, "fresh", base.Add(50*time.Second), time.Minute, 5)
	require.NoError(t, err)

	now = base.Add(90 * time.Second)
	s.Cleanup()

	assert.Equal(t, 1, s.Len())
}

func TestStorage_JanitorStopsWithContext(t *testing.T) {
	s := New(WithCleanupEvery(5 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.RecordAndCount(ctx, "k", time.Now().Add(-time.Hour), time.Minute, 5)
	require.NoError(t, err)

	s.StartJanitor(ctx)
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStatsStore_CountsPerBucket(t *testing.T) {
	stats := NewStatsStore()
	ctx := context.Background()

	for _, outcome := range []domain.Outcome{domain.OutcomeAdmitted, domain.OutcomeAdmitted, domain.OutcomeRejected, domain.OutcomeStoreError} {
		require.NoError(t, stats.Record(ctx, domain.DecisionEvent{Bucket: "general", Outcome: outcome}))
	}
	require.NoError(t, stats.Record(ctx, domain.DecisionEvent{Bucket: "privileged", Outcome: domain.OutcomeAdmitted}))

	assert.Equal(t, Counters{Admitted: 2, Rejected: 1, StoreError: 1}, stats.Bucket("general"))
	assert.Equal(t, Counters{Admitted: 1}, stats.Bucket("privileged"))
	assert.Equal(t, Counters{}, stats.Bucket("unknown"))
}
