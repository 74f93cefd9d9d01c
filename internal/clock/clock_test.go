package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTodayTruncatesToMidnightUTC(t *testing.T) {
	c := NewFakeClock(time.Date(2026, 3, 14, 22, 45, 10, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), Today(c))
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(36 * time.Hour)
	assert.Equal(t, start.Add(36*time.Hour), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestFakeClockAdvanceDays(t *testing.T) {
	c := NewFakeClock(time.Date(2026, 1, 30, 9, 0, 0, 0, time.UTC))
	c.AdvanceDays(3)
	assert.Equal(t, time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC), c.Now())
	assert.Equal(t, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), Today(c))
}
