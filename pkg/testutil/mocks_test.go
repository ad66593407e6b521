package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheLock(t *testing.T) {
	c := NewMemoryCache()
	clock := NewClock(time.Date(2026, 10, 23, 22, 0, 0, 0, time.UTC))
	c.now = clock.Now
	ctx := context.Background()

	release, ok, err := c.Acquire(ctx, "draw", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = c.Acquire(ctx, "draw", time.Minute)
	assert.False(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok, _ = c.Acquire(ctx, "draw", time.Minute)
	assert.True(t, ok, "expired lock is taken over")

	release()
	_, ok, _ = c.Acquire(ctx, "draw", time.Minute)
	assert.True(t, ok)
}

func TestMemoryCacheCounts(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.SetAvailable(ctx, "k", 2))
	v, ok, _ := c.GetAvailable(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	require.NoError(t, c.Invalidate(ctx, "k"))
	assert.False(t, c.Cached("k"))
}

func TestMockWallet(t *testing.T) {
	w := NewMockWallet()
	w.Fund("alice", decimal.NewFromInt(1000))
	ctx := context.Background()

	require.NoError(t, w.Debit(ctx, "alice", decimal.NewFromInt(600), "b-1"))
	assert.Error(t, w.Debit(ctx, "alice", decimal.NewFromInt(600), "b-2"))
	require.NoError(t, w.Credit(ctx, "alice", decimal.NewFromInt(100), "b-1"))

	got, _ := w.Available(ctx, "alice")
	assert.True(t, got.Equal(decimal.NewFromInt(500)))
	require.Len(t, w.Movements(), 2)
	assert.Equal(t, "credit", w.Movements()[1].Kind)

	w.RefundErr = errors.New("ledger down")
	assert.Error(t, w.Refund(ctx, "alice", decimal.NewFromInt(1), "b-1"))
}
