package session

import (
	"context"
	"time"
)

// Clock paces the webcam cycle. Next blocks until the next frame slot.
type Clock interface {
	Next(ctx context.Context) error
	Stop()
}

// TickerClock fires at a fixed frame rate. A slow tick skips missed slots
// instead of queueing them.
type TickerClock struct {
	t *time.Ticker
}

// NewTickerClock returns a clock at fps frames per second, defaulting to 15.
func NewTickerClock(fps int) *TickerClock {
	if fps <= 0 {
		fps = 15
	}
	return &TickerClock{t: time.NewTicker(time.Second / time.Duration(fps))}
}

// Next implements Clock.
func (c *TickerClock) Next(ctx context.Context) error {
	select {
	case <-c.t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop implements Clock.
func (c *TickerClock) Stop() { c.t.Stop() }
