package state

import (
	"math"
	"time"
)

// MatchClock counts the match time down while the room is playing.
type MatchClock struct {
	duration  float64
	remaining float64
}

func NewMatchClock(duration time.Duration) *MatchClock {
	c := &MatchClock{duration: duration.Seconds()}
	c.Reset()
	return c
}

// Tick removes dt seconds and reports whether the clock reached zero on this call.
func (c *MatchClock) Tick(dt float64) bool {
	if c.remaining <= 0 || dt <= 0 {
		return false
	}
	c.remaining -= dt
	if c.remaining <= 0 {
		c.remaining = 0
		return true
	}
	return false
}

func (c *MatchClock) Reset() {
	c.remaining = c.duration
}

func (c *MatchClock) Remaining() float64 {
	return c.remaining
}

// Seconds is the remaining time rounded up, so a running clock never shows 0.
func (c *MatchClock) Seconds() int {
	return int(math.Ceil(c.remaining))
}

func (c *MatchClock) Expired() bool {
	return c.remaining <= 0
}

// Played is the match time consumed so far.
func (c *MatchClock) Played() time.Duration {
	return time.Duration((c.duration - c.remaining) * float64(time.Second))
}
