package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreBurstThenDeny(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	policy := Policy{StepsPerMinute: 60, Burst: 3}

	for i := 0; i < 3; i++ {
		ok, err := s.Allow(ctx, "sess-1", policy)
		require.NoError(t, err)
		assert.True(t, ok, "burst allowance %d", i)
	}

	ok, err := s.Allow(ctx, "sess-1", policy)
	require.NoError(t, err)
	assert.False(t, ok, "burst exhausted")
}

func TestLocalStoreSessionsIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	policy := Policy{StepsPerMinute: 60, Burst: 1}

	ok, err := s.Allow(ctx, "sess-a", policy)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Allow(ctx, "sess-b", policy)
	require.NoError(t, err)
	assert.True(t, ok, "a separate session has its own bucket")
}

func TestLocalStoreEvictsIdleSessions(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	policy := Policy{StepsPerMinute: 60, Burst: 1}

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Allow(ctx, "sess-stale", policy)
	require.NoError(t, err)

	now = now.Add(4 * time.Minute)
	_, err = s.Allow(ctx, "sess-fresh", policy)
	require.NoError(t, err)
	require.Equal(t, 2, s.size())

	s.evictStale(3 * time.Minute)
	assert.Equal(t, 1, s.size(), "idle bucket evicted")

	// The evicted session starts over with a full burst.
	ok, err := s.Allow(ctx, "sess-stale", policy)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalStoreActivityRefreshesLastSeen(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	policy := Policy{StepsPerMinute: 60, Burst: 5}

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Allow(ctx, "sess-1", policy)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Allow(ctx, "sess-1", policy)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	s.evictStale(3 * time.Minute)
	assert.Equal(t, 1, s.size(), "recently active bucket survives")
}

func TestCheckFailsClosed(t *testing.T) {
	err := Check(context.Background(), nil, "sess-1", DefaultPolicy())
	require.Error(t, err)
}

func TestCheckDenied(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	policy := Policy{StepsPerMinute: 60, Burst: 1}

	require.NoError(t, Check(ctx, s, "sess-1", policy))
	err := Check(ctx, s, "sess-1", policy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLimited))
}
