package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeClock is a wall clock that only moves when Sleep or Advance is called.
// Sleep returns immediately after advancing, so polling loops run at full
// speed in tests.
//
// OnSleep hooks run on every Sleep after time has advanced; tests use them to
// mine blocks or drop transactions between polling ticks.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  int
	onSleep []func(now time.Time)
}

// NewFakeClock starts at a fixed instant so log output is reproducible.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by d and runs the OnSleep hooks.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps++
	now := c.now
	hooks := append([]func(time.Time){}, c.onSleep...)
	c.mu.Unlock()

	for _, h := range hooks {
		h(now)
	}
	return nil
}

// Advance moves the clock forward without running hooks.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// OnSleep registers a hook.
func (c *FakeClock) OnSleep(f func(now time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSleep = append(c.onSleep, f)
}

// Sleeps returns how many times Sleep was called.
func (c *FakeClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}
