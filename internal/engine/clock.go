package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// Clock stamps execution events with a strictly increasing sequence number,
// so listeners can order events without relying on wall time.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// WallClock is the engine's source of wall time. Fee bump decisions and the
// polling interval go through it so tests can substitute a fake clock.
type WallClock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real clock.
type SystemClock struct{}

// Now implements WallClock.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep implements WallClock. It returns early with ctx's error on
// cancellation.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
