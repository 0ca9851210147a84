// internal/sched/clock.go

package sched

import "time"

// Clock supplies the loop's notion of time and how it waits.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d, or advances virtual time by d.
	Sleep(d time.Duration)
}

// RealClock uses the monotonic wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// VirtualClock only moves when the loop sleeps, so timer-driven workloads run
// instantly and deterministically.
type VirtualClock struct {
	now time.Time
}

// NewVirtualClock starts virtual time at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time { return c.now }

func (c *VirtualClock) Sleep(d time.Duration) {
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

// Advance moves virtual time forward without going through the loop.
func (c *VirtualClock) Advance(d time.Duration) { c.Sleep(d) }
