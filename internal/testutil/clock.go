package testutil

import (
	"sync"
	"time"
)

// Epoch is the instant every DeterministicClock starts at.
var Epoch = time.UnixMilli(1_700_000_000_000).UTC()

// DeterministicClock is a thread-safe manual wall clock for tests.
//
// Each call to Now advances the clock by Step, so consecutive entries get
// distinct, reproducible timestamps. Advance moves it by an arbitrary
// duration to age out sliding windows.
type DeterministicClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewDeterministicClock creates a clock at Epoch that ticks one second per read.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{now: Epoch, step: time.Second}
}

// Now returns the current instant and then advances by the step.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Current returns the current instant without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetStep changes how far each Now call advances. Zero freezes the clock.
func (c *DeterministicClock) SetStep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
}

// Reset returns the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}
