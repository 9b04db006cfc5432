// Package clock abstracts the time source so the lifecycle engine can be
// tested with deterministic timestamps instead of calling time.Now() directly.
package clock

import (
	"sync"
	"time"
)

// Clock supplies wall-clock timestamps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the actual system time.
type RealClock struct{}

// Now returns the current time from the system clock.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

var _ Clock = RealClock{}

// Mock is a Clock for tests. It starts at a fixed instant and only moves
// when Advance or Set is called.
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMock returns a Mock pinned to the given instant.
func NewMock(now time.Time) *Mock {
	return &Mock{now: now}
}

// Now returns the mock's current instant.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock forward by d and returns the new instant.
func (m *Mock) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Set pins the mock to a specific instant.
func (m *Mock) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

var _ Clock = (*Mock)(nil)
