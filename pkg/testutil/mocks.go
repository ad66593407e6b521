// Package testutil provides in-memory doubles for the cache, lock and wallet
// dependencies of the lottery services.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryCache is an in-process availability cache and draw lock. It mirrors
// the Redis service closely enough for service tests.
type MemoryCache struct {
	mu    sync.Mutex
	vals  map[string]int
	locks map[string]time.Time
	now   func() time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		vals:  make(map[string]int),
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (c *MemoryCache) GetAvailable(_ context.Context, key string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	return v, ok, nil
}

func (c *MemoryCache) SetAvailable(_ context.Context, key string, available int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[key] = available
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vals, key)
	return nil
}

// Cached reports whether key currently has a cached count.
func (c *MemoryCache) Cached(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.vals[key]
	return ok
}

// Acquire takes key until release is called or ttl passes.
func (c *MemoryCache) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if until, held := c.locks[key]; held && now.Before(until) {
		return nil, false, nil
	}
	c.locks[key] = now.Add(ttl)
	release := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.locks, key)
	}
	return release, true, nil
}

// Movement is one wallet call recorded by MockWallet.
type Movement struct {
	Kind      string
	UserID    string
	Amount    decimal.Decimal
	Reference string
}

// MockWallet is a balance ledger that records every movement. Set the error
// fields to make the matching call fail.
type MockWallet struct {
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	movements []Movement

	DebitErr  error
	RefundErr error
	CreditErr error
}

// NewMockWallet creates a wallet with no funds.
func NewMockWallet() *MockWallet {
	return &MockWallet{balances: make(map[string]decimal.Decimal)}
}

// Fund sets a user's balance.
func (w *MockWallet) Fund(userID string, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = amount
}

func (w *MockWallet) Available(_ context.Context, userID string) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID], nil
}

func (w *MockWallet) Debit(_ context.Context, userID string, amount decimal.Decimal, ref string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.DebitErr != nil {
		return w.DebitErr
	}
	if w.balances[userID].LessThan(amount) {
		return fmt.Errorf("insufficient funds for %s", userID)
	}
	w.balances[userID] = w.balances[userID].Sub(amount)
	w.movements = append(w.movements, Movement{Kind: "debit", UserID: userID, Amount: amount, Reference: ref})
	return nil
}

func (w *MockWallet) Refund(_ context.Context, userID string, amount decimal.Decimal, ref string) error {
	return w.add("refund", w.RefundErr, userID, amount, ref)
}

func (w *MockWallet) Credit(_ context.Context, userID string, amount decimal.Decimal, ref string) error {
	return w.add("credit", w.CreditErr, userID, amount, ref)
}

func (w *MockWallet) add(kind string, failure error, userID string, amount decimal.Decimal, ref string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if failure != nil {
		return failure
	}
	w.balances[userID] = w.balances[userID].Add(amount)
	w.movements = append(w.movements, Movement{Kind: kind, UserID: userID, Amount: amount, Reference: ref})
	return nil
}

// Movements returns the recorded calls in order.
func (w *MockWallet) Movements() []Movement {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Movement, len(w.movements))
	copy(out, w.movements)
	return out
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock { return &Clock{t: t} }

// Now returns the current clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
