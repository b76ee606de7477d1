// Package clock provides UTC-coerced time helpers shared across the
// simulation engine.
package clock

import (
	"time"
)

// Now returns the current time coerced to UTC. Every timestamp the engine
// writes or compares goes through this function so that a scheduler and a
// processor running in different local time zones never disagree about
// day boundaries.
func Now() time.Time {
	return time.Now().UTC()
}

// Coerce converts t to UTC without mutating the caller's value.
func Coerce(t time.Time) time.Time {
	return t.UTC()
}

// DayOf returns the UTC calendar day (truncated to midnight) containing t.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// CrossedDayBoundary reports whether now falls on a later UTC day than last.
func CrossedDayBoundary(last, now time.Time) bool {
	return DayOf(now).After(DayOf(last))
}

// NextDayBoundary returns the next UTC midnight strictly after t.
func NextDayBoundary(t time.Time) time.Time {
	return DayOf(t).AddDate(0, 0, 1)
}

// FormatUTC renders t in the RFC3339 form used throughout context snapshots
// and event payloads.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// SimulationDay returns a stable integer day number for t relative to an
// epoch (a run's start time), used as the natural key for idempotent
// scheduler jobs (daily consumption, emergence metrics).
func SimulationDay(epoch, t time.Time) int {
	return int(DayOf(t).Sub(DayOf(epoch)).Hours() / 24)
}
