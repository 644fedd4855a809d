// Package session resolves trading-session windows and converts elapsed
// session time into the normalized remaining fraction that scales every
// time-sensitive calculation in the controller (slippage budget, retry
// cadence, late-session trigger).
package session

import (
	"fmt"
	"time"
)

// Calendar supplies a trading session's begin/end timestamps for a date.
type Calendar interface {
	// SessionWindow returns the session begin and end times for the
	// calendar day containing t.
	SessionWindow(t time.Time) (begin, end time.Time, err error)
}

// FixedHoursCalendar is a Calendar with the same open/close wall-clock
// times every trading day (e.g. 09:30–16:00 US equities).
type FixedHoursCalendar struct {
	loc         *time.Location
	openHour    int
	openMinute  int
	closeHour   int
	closeMinute int
}

// NewFixedHoursCalendar creates a calendar with fixed daily hours in loc.
func NewFixedHoursCalendar(loc *time.Location, openHour, openMinute, closeHour, closeMinute int) *FixedHoursCalendar {
	return &FixedHoursCalendar{
		loc:         loc,
		openHour:    openHour,
		openMinute:  openMinute,
		closeHour:   closeHour,
		closeMinute: closeMinute,
	}
}

// SessionWindow returns the session for the day containing t.
// Weekends are not trading days.
func (c *FixedHoursCalendar) SessionWindow(t time.Time) (time.Time, time.Time, error) {
	local := t.In(c.loc)
	wd := local.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return time.Time{}, time.Time{}, fmt.Errorf("session: %s is not a trading day", local.Format("2006-01-02"))
	}
	begin := time.Date(local.Year(), local.Month(), local.Day(), c.openHour, c.openMinute, 0, 0, c.loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), c.closeHour, c.closeMinute, 0, 0, c.loc)
	return begin, end, nil
}
