package session

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// CloseBufferMinutes is reserved at the end of every session and never
// traded into; the usable session ends this many minutes before the close.
const CloseBufferMinutes = 30

// ErrSessionTooShort is a configuration error: the session window is not
// longer than the reserved close buffer, so no usable minutes exist.
var ErrSessionTooShort = errors.New("session: usable window is not positive")

// Clock converts wall-clock time into the remaining fraction of the
// usable trading session. The session window is resolved lazily from the
// Calendar on first use and cached for the lifetime of the instance.
type Clock struct {
	cal          Calendar
	sliceMinutes int

	begin  time.Time
	end    time.Time
	cached bool
}

// NewClock creates a session clock. sliceMinutes is the configured
// time-slice interval, used for slice accounting.
func NewClock(cal Calendar, sliceMinutes int) *Clock {
	return &Clock{cal: cal, sliceMinutes: sliceMinutes}
}

// Window returns the cached session window, resolving it on first call.
func (c *Clock) Window(now time.Time) (time.Time, time.Time, error) {
	if !c.cached {
		begin, end, err := c.cal.SessionWindow(now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		c.begin = begin
		c.end = end
		c.cached = true
	}
	return c.begin, c.end, nil
}

// UsableMinutes returns the tradable session length: the full window
// minus the close buffer.
func (c *Clock) UsableMinutes(now time.Time) (float64, error) {
	begin, end, err := c.Window(now)
	if err != nil {
		return 0, err
	}
	total := math.Abs(end.Sub(begin).Minutes()) - CloseBufferMinutes
	if total <= 0 {
		return 0, fmt.Errorf("%w: window %s–%s leaves %.1f usable minutes after the %d-minute close buffer",
			ErrSessionTooShort, begin.Format("15:04"), end.Format("15:04"), total, CloseBufferMinutes)
	}
	return total, nil
}

// RemainingFraction returns the fraction of usable session time left at
// now, clamped to [0, 1]. Thresholds that loosen or tighten as the
// session progresses all scale by this value.
func (c *Clock) RemainingFraction(now time.Time) (float64, error) {
	total, err := c.UsableMinutes(now)
	if err != nil {
		return 0, err
	}

	// Re-anchor the session begin to now's calendar day: the calendar may
	// have been resolved against a different date on the first tick.
	local := now.In(c.begin.Location())
	todayBegin := time.Date(local.Year(), local.Month(), local.Day(),
		c.begin.Hour(), c.begin.Minute(), 0, 0, c.begin.Location())

	elapsed := math.Abs(now.Sub(todayBegin).Minutes())
	remainder := (total - elapsed) / total
	if remainder < 0 {
		return 0, nil
	}
	if remainder > 1 {
		return 1, nil
	}
	return remainder, nil
}

// TotalSlices returns how many time slices fit in the usable session.
func (c *Clock) TotalSlices(now time.Time) (float64, error) {
	total, err := c.UsableMinutes(now)
	if err != nil {
		return 0, err
	}
	return total / float64(c.sliceMinutes), nil
}
