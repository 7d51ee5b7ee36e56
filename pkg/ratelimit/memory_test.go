package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Hit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	w, err := s.Hit(ctx, "k", t0, 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Window{Admitted: true, Count: 1, Oldest: t0}, w)

	w, err = s.Hit(ctx, "k", t0.Add(time.Second), 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Window{Admitted: true, Count: 2, Oldest: t0}, w)

	w, err = s.Hit(ctx, "k", t0.Add(2*time.Second), 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Window{Admitted: false, Count: 2, Oldest: t0}, w)

	// Exactly one window after t0 the first hit no longer counts.
	w, err = s.Hit(ctx, "k", t0.Add(time.Minute), 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Window{Admitted: true, Count: 2, Oldest: t0.Add(time.Second)}, w)
}

func TestMemoryStore_DeniedHitsAreNotRecorded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Hit(ctx, "k", t0, 1, time.Minute)
	require.NoError(t, err)

	// Hammering while denied must not extend the lockout.
	for i := 1; i < 60; i++ {
		w, err := s.Hit(ctx, "k", t0.Add(time.Duration(i)*time.Second), 1, time.Minute)
		require.NoError(t, err)
		require.False(t, w.Admitted)
	}

	w, err := s.Hit(ctx, "k", t0.Add(time.Minute), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, w.Admitted)
}

func TestMemoryStore_Cleanup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _ = s.Hit(ctx, "short", t0, 5, time.Second)
	_, _ = s.Hit(ctx, "long", t0, 5, time.Hour)
	require.Equal(t, 2, s.Len())

	s.Cleanup(t0.Add(time.Minute))
	assert.Equal(t, 1, s.Len())

	s.Cleanup(t0.Add(time.Hour))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_StartCleanup(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _ = s.Hit(ctx, "k", time.Now().Add(-time.Hour), 1, time.Millisecond)
	s.StartCleanup(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}
