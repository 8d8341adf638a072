package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionSweeper_StartStop(t *testing.T) {
	store := NewSessionStore()
	store.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	store.Get("a")
	store.Get("b")

	// Sessions were last used at the fixed time; a later clock makes them idle
	store.now = func() time.Time { return time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC) }

	sweeper := NewSessionSweeper(store, 5*time.Millisecond, time.Hour)
	assert.False(t, sweeper.IsRunning())

	sweeper.Start(context.Background())
	sweeper.Start(context.Background()) // no-op
	assert.True(t, sweeper.IsRunning())

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
	assert.False(t, sweeper.IsRunning())
}

func TestSessionSweeper_StopsWithContext(t *testing.T) {
	store := NewSessionStore()
	store.Get("a")

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := NewSessionSweeper(store, 5*time.Millisecond, time.Hour)
	sweeper.Start(ctx)
	cancel()

	assert.Eventually(t, func() bool { return !sweeper.IsRunning() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, store.Len(), "fresh session should never be swept")

	// A cancelled sweeper can be started again
	sweeper.Start(context.Background())
	assert.True(t, sweeper.IsRunning())
	sweeper.Stop()
	assert.False(t, sweeper.IsRunning())
}
