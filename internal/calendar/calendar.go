// Package calendar implements the TradingCalendar collaborator (spec §6):
// it answers whether the market is open at a given instant, when it next
// opens, and whether two instants fall in different trading sessions. The
// Engine's reset_daily is gated on IsNewSession rather than wall-clock
// midnight, since futures sessions roll over at an exchange-defined time
// and cross a maintenance window (spec §9 Open Question 3).
package calendar

import (
	"sort"
	"time"
)

// Holiday is a full-day closure, identified by its calendar date in the
// configured location.
type Holiday struct {
	Year, Month, Day int
}

// Config describes a near-24x6 futures-style schedule: the market is open
// every day except the weekly close window and a daily maintenance break,
// plus a list of full-day holidays.
type Config struct {
	Location *time.Location

	// WeeklyCloseDay/WeeklyCloseAt/WeeklyReopenDay/WeeklyReopenAt bound the
	// weekend closure, e.g. Friday 17:00 -> Sunday 18:00.
	WeeklyCloseDay  time.Weekday
	WeeklyCloseAt   time.Duration // offset from midnight
	WeeklyReopenDay time.Weekday
	WeeklyReopenAt  time.Duration

	// MaintenanceStart/MaintenanceEnd bound the daily maintenance break as
	// offsets from midnight, e.g. 16:00-16:15 local.
	MaintenanceStart time.Duration
	MaintenanceEnd   time.Duration

	Holidays []Holiday

	// SessionRolloverAt is the offset from midnight at which a new trading
	// session begins (distinct from the weekly/maintenance closures above);
	// this is what drives IsNewSession.
	SessionRolloverAt time.Duration
}

// Calendar answers trading-hours and session-boundary questions.
type Calendar struct {
	cfg      Config
	holidays map[[3]int]struct{}
}

// New constructs a Calendar, indexing the holiday list for O(1) lookups.
func New(cfg Config) *Calendar {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	idx := make(map[[3]int]struct{}, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		idx[[3]int{h.Year, h.Month, h.Day}] = struct{}{}
	}
	return &Calendar{cfg: cfg, holidays: idx}
}

func (c *Calendar) isHoliday(t time.Time) bool {
	t = t.In(c.cfg.Location)
	_, ok := c.holidays[[3]int{t.Year(), int(t.Month()), t.Day()}]
	return ok
}

func (c *Calendar) inMaintenance(t time.Time) bool {
	if c.cfg.MaintenanceStart == 0 && c.cfg.MaintenanceEnd == 0 {
		return false
	}
	t = t.In(c.cfg.Location)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.cfg.Location)
	since := t.Sub(midnight)
	return since >= c.cfg.MaintenanceStart && since < c.cfg.MaintenanceEnd
}

func (c *Calendar) inWeeklyClose(t time.Time) bool {
	t = t.In(c.cfg.Location)
	closeAt := weekdayOffset(t, c.cfg.WeeklyCloseDay, c.cfg.WeeklyCloseAt)
	reopenAt := weekdayOffset(t, c.cfg.WeeklyReopenDay, c.cfg.WeeklyReopenAt)
	if closeAt.Before(reopenAt) {
		return !t.Before(closeAt) && t.Before(reopenAt)
	}
	// Reopen falls before close in wall-clock ordering within the week
	// window we computed; shift reopen forward a week.
	return !t.Before(closeAt) || t.Before(reopenAt)
}

// weekdayOffset returns the timestamp of the given weekday (relative to the
// week containing t) plus the given offset-from-midnight duration.
func weekdayOffset(t time.Time, day time.Weekday, offset time.Duration) time.Time {
	delta := int(day) - int(t.Weekday())
	base := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, delta)
	return base.Add(offset)
}

// IsOpen reports whether the market is trading at t.
func (c *Calendar) IsOpen(t time.Time) bool {
	if c.isHoliday(t) {
		return false
	}
	if c.inWeeklyClose(t) {
		return false
	}
	if c.inMaintenance(t) {
		return false
	}
	return true
}

// NextOpen returns the next instant at or after t when the market is open,
// scanning forward in one-minute steps. This is adequate for the coarse
// weekly/maintenance/holiday schedule this calendar models; a minute-level
// scan bounds the loop to at most a few thousand iterations even across a
// long weekend.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	cur := t
	for i := 0; i < 7*24*60; i++ {
		if c.IsOpen(cur) {
			return cur
		}
		cur = cur.Add(time.Minute)
	}
	return cur
}

// IsNewSession reports whether t falls in a later trading session than
// prev, based on SessionRolloverAt crossings (not wall-clock midnight).
func (c *Calendar) IsNewSession(prev, t time.Time) bool {
	if !t.After(prev) {
		return false
	}
	prevSession := c.sessionStart(prev)
	curSession := c.sessionStart(t)
	return curSession.After(prevSession)
}

// SessionStart returns the start of the trading session t falls within,
// per SessionRolloverAt (not wall-clock midnight).
func (c *Calendar) SessionStart(t time.Time) time.Time { return c.sessionStart(t) }

// SessionDate returns the session t falls within as a "YYYY-MM-DD" key,
// suitable for grouping a DailySummary rollup.
func (c *Calendar) SessionDate(t time.Time) string {
	return c.sessionStart(t).Format("2006-01-02")
}

func (c *Calendar) sessionStart(t time.Time) time.Time {
	t = t.In(c.cfg.Location)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.cfg.Location)
	since := t.Sub(midnight)
	if since < c.cfg.SessionRolloverAt {
		midnight = midnight.AddDate(0, 0, -1)
	}
	return midnight.Add(c.cfg.SessionRolloverAt)
}

// SortedHolidays returns the configured holidays in calendar order, mostly
// useful for diagnostics/printing a loaded config.
func (c *Calendar) SortedHolidays() []Holiday {
	out := make([]Holiday, len(c.cfg.Holidays))
	copy(out, c.cfg.Holidays)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.Day < b.Day
	})
	return out
}
