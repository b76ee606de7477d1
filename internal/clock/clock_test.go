package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCrossedDayBoundary(t *testing.T) {
	last := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	sameDay := time.Date(2026, 1, 1, 23, 59, 30, 0, time.UTC)
	nextDay := time.Date(2026, 1, 2, 0, 0, 1, 0, time.UTC)

	assert.False(t, CrossedDayBoundary(last, sameDay))
	assert.True(t, CrossedDayBoundary(last, nextDay))
}

func TestNextDayBoundary(t *testing.T) {
	now := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	want := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, NextDayBoundary(now))
}

func TestSimulationDay(t *testing.T) {
	epoch := time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC)
	t3 := time.Date(2026, 1, 4, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, SimulationDay(epoch, t3))
}

func TestCoerceDoesNotMutateLocal(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	local := time.Date(2026, 6, 1, 10, 0, 0, 0, loc)
	coerced := Coerce(local)
	assert.Equal(t, time.UTC, coerced.Location())
	assert.True(t, local.Equal(coerced))
}
