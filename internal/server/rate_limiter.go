// Package server meters inbound room-protocol frames per connection with a
// token bucket so one client cannot flood its room.
package server

import (
	"sync"
	"time"
)

// frameBudget is a per-connection token bucket charged for each inbound
// frame. Frames that only release state (leaveRoom, logout) are free, so a
// throttled client can always step out of its room or end its session.
type frameBudget struct {
	mu       sync.Mutex
	now      func() time.Time
	tokens   float64
	capacity float64
	perSec   float64
	last     time.Time
}

// newFrameBudget allows burst frames at once, refilled at burst frames per
// interval. now defaults to time.Now.
func newFrameBudget(burst int, interval time.Duration, now func() time.Time) *frameBudget {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}

	return &frameBudget{
		now:      now,
		tokens:   float64(burst),
		capacity: float64(burst),
		perSec:   float64(burst) / interval.Seconds(),
		last:     now(),
	}
}

// frameCost is the number of tokens a frame of the given type consumes.
// Malformed and unknown frames are charged like chat messages.
func frameCost(frameType string) float64 {
	switch frameType {
	case InboundLeaveRoom, InboundLogout:
		return 0
	default:
		return 1
	}
}

// allow charges a frame of frameType and reports whether it may be applied.
func (b *frameBudget) allow(frameType string) bool {
	cost := frameCost(frameType)
	if cost == 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.perSec)
	}
	b.last = now

	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}
