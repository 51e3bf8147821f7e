package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testCalendar() *Calendar {
	return New(Config{
		Location:          time.UTC,
		WeeklyCloseDay:    time.Friday,
		WeeklyCloseAt:     17 * time.Hour,
		WeeklyReopenDay:   time.Sunday,
		WeeklyReopenAt:    18 * time.Hour,
		MaintenanceStart:  16 * time.Hour,
		MaintenanceEnd:    16*time.Hour + 15*time.Minute,
		SessionRolloverAt: 17 * time.Hour,
		Holidays:          []Holiday{{Year: 2026, Month: 12, Day: 25}},
	})
}

func TestWeekdayMiddayIsOpen(t *testing.T) {
	c := testCalendar()
	// Wednesday noon UTC
	ts := time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC)
	assert.True(t, c.IsOpen(ts))
}

func TestWeekendClosed(t *testing.T) {
	c := testCalendar()
	// Saturday
	ts := time.Date(2026, 8, 8, 12, 0, 0, 0, time.UTC)
	assert.False(t, c.IsOpen(ts))
}

func TestMaintenanceWindowClosed(t *testing.T) {
	c := testCalendar()
	ts := time.Date(2026, 8, 5, 16, 5, 0, 0, time.UTC)
	assert.False(t, c.IsOpen(ts))
	ts2 := time.Date(2026, 8, 5, 16, 20, 0, 0, time.UTC)
	assert.True(t, c.IsOpen(ts2))
}

func TestHolidayClosed(t *testing.T) {
	c := testCalendar()
	ts := time.Date(2026, 12, 25, 12, 0, 0, 0, time.UTC)
	assert.False(t, c.IsOpen(ts))
}

func TestNextOpenSkipsWeekendAndMaintenance(t *testing.T) {
	c := testCalendar()
	closedAt := time.Date(2026, 8, 7, 18, 0, 0, 0, time.UTC) // Friday 18:00, past close
	open := c.NextOpen(closedAt)
	assert.True(t, c.IsOpen(open))
	assert.True(t, open.After(closedAt))
}

func TestIsNewSessionCrossesRollover(t *testing.T) {
	c := testCalendar()
	prev := time.Date(2026, 8, 5, 16, 0, 0, 0, time.UTC)
	same := time.Date(2026, 8, 5, 16, 30, 0, 0, time.UTC)
	next := time.Date(2026, 8, 5, 17, 30, 0, 0, time.UTC)
	assert.False(t, c.IsNewSession(prev, same))
	assert.True(t, c.IsNewSession(prev, next))
}

func TestIsNewSessionFalseWhenNotAfter(t *testing.T) {
	c := testCalendar()
	ts := time.Now()
	assert.False(t, c.IsNewSession(ts, ts))
	assert.False(t, c.IsNewSession(ts, ts.Add(-time.Hour)))
}
