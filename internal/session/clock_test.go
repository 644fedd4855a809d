package session

import (
	"errors"
	"math"
	"testing"
	"time"
)

// Monday. All tests run in UTC to keep the arithmetic visible.
func monday(hour, min int) time.Time {
	return time.Date(2024, 1, 8, hour, min, 0, 0, time.UTC)
}

func newTestClock(openH, openM, closeH, closeM int) *Clock {
	cal := NewFixedHoursCalendar(time.UTC, openH, openM, closeH, closeM)
	return NewClock(cal, 30)
}

func TestClock_UsableMinutes(t *testing.T) {
	c := newTestClock(9, 30, 16, 0)
	got, err := c.UsableMinutes(monday(10, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 390-minute window minus the 30-minute close buffer
	if math.Abs(got-360.0) > 0.001 {
		t.Errorf("expected 360 usable minutes, got %.1f", got)
	}
}

func TestClock_SessionTooShort(t *testing.T) {
	c := newTestClock(9, 30, 9, 45)
	_, err := c.UsableMinutes(monday(9, 35))
	if !errors.Is(err, ErrSessionTooShort) {
		t.Fatalf("expected ErrSessionTooShort, got %v", err)
	}
}

func TestClock_WeekendIsNotTradingDay(t *testing.T) {
	c := newTestClock(9, 30, 16, 0)
	saturday := time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC)
	if _, err := c.RemainingFraction(saturday); err == nil {
		t.Fatal("expected error for Saturday")
	}
}

func TestClock_RemainingFraction(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want float64
	}{
		{"at open", monday(9, 30), 1.0},
		{"quarter in", monday(11, 0), 0.75}, // 90 of 360 elapsed
		{"two thirds in", monday(13, 30), 1.0 / 3},
		{"at usable end", monday(15, 30), 0.0},
		{"past usable end clamps to zero", monday(15, 45), 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClock(9, 30, 16, 0)
			got, err := c.RemainingFraction(tt.now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("expected %.4f, got %.4f", tt.want, got)
			}
		})
	}
}

func TestClock_WindowIsCached(t *testing.T) {
	calls := 0
	cal := calendarFunc(func(tm time.Time) (time.Time, time.Time, error) {
		calls++
		return monday(9, 30), monday(16, 0), nil
	})
	c := NewClock(cal, 30)

	for i := 0; i < 3; i++ {
		if _, err := c.RemainingFraction(monday(10, 0)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 calendar resolution, got %d", calls)
	}
}

func TestClock_TotalSlices(t *testing.T) {
	c := newTestClock(9, 30, 16, 0)
	got, err := c.TotalSlices(monday(10, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-12.0) > 0.001 {
		t.Errorf("expected 12 slices, got %.1f", got)
	}
}

type calendarFunc func(time.Time) (time.Time, time.Time, error)

func (f calendarFunc) SessionWindow(t time.Time) (time.Time, time.Time, error) { return f(t) }
