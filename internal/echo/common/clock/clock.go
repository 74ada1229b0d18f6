package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock reads and sleeps so time-dependent behavior
// (the simulated expensive operation) can be tested without real delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type RealClock struct{}

func (c RealClock) Now() time.Time {
	return time.Now()
}

func (c RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// MockClock is a manually-advanced Clock for tests. Sleep returns
// immediately and records the requested duration.
type MockClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
	slept       []time.Duration
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CurrentTime
}

// Advance moves the mock clock forward (or backward) by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentTime = c.CurrentTime.Add(d)
}

// Sleep records the duration and advances the clock without blocking.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.CurrentTime = c.CurrentTime.Add(d)
}

// Slept returns a copy of all durations passed to Sleep, in order.
func (c *MockClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.slept))
	copy(out, c.slept)
	return out
}
