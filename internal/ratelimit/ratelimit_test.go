package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/feedcurator/internal/logger"
)

func TestBudgetDailyCap(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	b := NewBudget(2, 0, logger.Discard())
	b.SetClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, b.Acquire(ctx))
	require.NoError(t, b.Acquire(ctx))
	assert.ErrorIs(t, b.Acquire(ctx), ErrBudgetExceeded)

	st := b.GetStats()
	assert.Equal(t, 2, st.Used)
	assert.Equal(t, 1, st.Refused)

	now = now.Add(resetPeriod + time.Second)
	require.NoError(t, b.Acquire(ctx))
	assert.Equal(t, 1, b.GetStats().Used)
}

func TestBudgetUnlimited(t *testing.T) {
	b := NewBudget(0, 0, logger.Discard())
	for i := 0; i < 100; i++ {
		require.NoError(t, b.Acquire(context.Background()))
	}
	assert.Equal(t, 100, b.GetStats().Used)
}

func TestBudgetPacingHonoursContext(t *testing.T) {
	b := NewBudget(0, 1, logger.Discard())
	require.NoError(t, b.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, b.Acquire(ctx))
}
