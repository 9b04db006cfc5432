package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	c := RealClock{}

	before := time.Now().UTC()
	got := c.Now()
	after := time.Now().UTC()

	assert.False(t, got.Before(before), "clock.Now() should not return time before actual time.Now()")
	assert.False(t, got.After(after), "clock.Now() should not return time after actual time.Now()")
}

func TestMock(t *testing.T) {
	fixed := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	c := NewMock(fixed)

	assert.Equal(t, fixed, c.Now())
	// Time does not move on its own
	assert.Equal(t, fixed, c.Now())

	moved := c.Advance(15 * time.Minute)
	assert.Equal(t, fixed.Add(15*time.Minute), moved)
	assert.Equal(t, moved, c.Now())

	c.Set(fixed)
	assert.Equal(t, fixed, c.Now())
}
