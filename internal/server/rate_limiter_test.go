package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// manualClock only moves when advanced.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestFrameBudgetBurstAndRefill(t *testing.T) {
	clock := newManualClock()
	budget := newFrameBudget(2, time.Second, clock.Now)

	assert.True(t, budget.allow(InboundChatMessage))
	assert.True(t, budget.allow(InboundJoinRoom))
	assert.False(t, budget.allow(InboundChatMessage), "burst exhausted")

	clock.advance(500 * time.Millisecond)
	assert.True(t, budget.allow(InboundChatMessage), "half the interval refills one frame")
	assert.False(t, budget.allow(InboundChatMessage))

	clock.advance(time.Hour)
	assert.True(t, budget.allow(InboundChatMessage))
	assert.True(t, budget.allow(InboundChatMessage))
	assert.False(t, budget.allow(InboundChatMessage), "refill never exceeds the burst")
}

// TestFrameBudgetExemptFrames verifies that a throttled connection can still
// leave its room and log out.
func TestFrameBudgetExemptFrames(t *testing.T) {
	budget := newFrameBudget(1, time.Hour, newManualClock().Now)
	assert.True(t, budget.allow(InboundChatMessage))

	tests := []struct {
		frameType string
		want      bool
	}{
		{frameType: InboundChatMessage, want: false},
		{frameType: InboundJoinRoom, want: false},
		{frameType: "", want: false},
		{frameType: "dance", want: false},
		{frameType: InboundLeaveRoom, want: true},
		{frameType: InboundLogout, want: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, budget.allow(tt.frameType), "frame type %q", tt.frameType)
	}
}

func TestFrameBudgetInvalidParameters(t *testing.T) {
	clock := newManualClock()
	budget := newFrameBudget(0, 0, clock.Now)

	assert.True(t, budget.allow(InboundChatMessage))
	assert.False(t, budget.allow(InboundChatMessage))

	clock.advance(time.Second)
	assert.True(t, budget.allow(InboundChatMessage), "defaults to one frame per second")
}
