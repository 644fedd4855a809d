package strategy

import (
	"log/slog"
	"time"

	"spiderexec/internal/model"
	"spiderexec/internal/session"
)

// timeTriggerFraction is the remaining-session threshold at which the
// time trigger fires regardless of indicators: with 10% or less of the
// usable session left, the order must go to work.
const timeTriggerFraction = 0.1

// TriggerEngine decides whether order submission has been authorized.
// The decision is sticky: once Evaluate returns true, every later call
// returns true without re-deriving the conditions — there is no going
// back, even if the indicators invert afterwards.
type TriggerEngine struct {
	log      *slog.Logger
	detector *SignalDetector
	clock    *session.Clock

	triggered *bool // nil = never evaluated true yet
}

// NewTriggerEngine creates a trigger engine over the detector and clock.
func NewTriggerEngine(log *slog.Logger, detector *SignalDetector, clock *session.Clock) *TriggerEngine {
	return &TriggerEngine{log: log, detector: detector, clock: clock}
}

// Evaluate reports whether the order is triggered for the given action at
// now. Buy-side actions require both EMA and stochastic bullish latches;
// sell-side actions require both bearish. Independently, the late-session
// time trigger fires the composite on its own.
func (t *TriggerEngine) Evaluate(action model.OrderAction, now time.Time) (bool, error) {
	if t.triggered != nil && *t.triggered {
		return true, nil
	}

	var byIndicators bool
	if action.IsBuySide() {
		byIndicators = t.detector.EmaBullish() && t.detector.StochBullish()
	} else {
		byIndicators = t.detector.EmaBearish() && t.detector.StochBearish()
	}

	remaining, err := t.clock.RemainingFraction(now)
	if err != nil {
		return false, err
	}
	byTime := remaining <= timeTriggerFraction

	if byIndicators {
		t.log.Debug("order trigger fired on indicators", "action", string(action))
	}
	if byTime {
		t.log.Debug("order trigger fired on time", "remaining_fraction", remaining)
	}

	fired := byIndicators || byTime
	t.triggered = &fired
	return fired, nil
}
