// Package strategy implements the order-execution controller: signal
// latching, trigger evaluation, slippage-budget pricing, position sizing,
// and the order supervision state machine.
//
// The controller is single-threaded by design: one event at a time, no
// locks. All latches are sticky for the lifetime of the instance.
package strategy

import (
	"log/slog"

	"spiderexec/internal/model"
)

// Stochastic extremity thresholds. An extreme reading is trusted as a
// directional signal immediately, without waiting for a literal %K/%D
// cross. The EMA detector deliberately has no such shortcut.
const (
	stochOversold   = 5
	stochOverbought = 95
)

// SignalState is the latched crossover memory. At most one of each
// up/down pair is true at any time; once set, a latch stays set until the
// opposite-direction cross clears it.
type SignalState struct {
	EmaCrossUp     bool
	EmaCrossDown   bool
	StochCrossUp   bool
	StochCrossDown bool
}

// SignalDetector evaluates EMA-cross and stochastic-cross conditions on
// consecutive execution-series indicator readings and latches the result.
//
// Observe must be called on every execution tick, even when the caller
// does not yet need the outcome — skipping ticks would miss crosses and
// leave the latches stale.
type SignalDetector struct {
	log     *slog.Logger
	state   SignalState
	last    model.IndicatorReading
	hasPrev bool
}

// NewSignalDetector creates a detector with all latches cleared.
func NewSignalDetector(log *slog.Logger) *SignalDetector {
	return &SignalDetector{log: log}
}

// Observe feeds the indicator reading for the just-closed execution bar
// and updates the latches from the prior/current pair of readings.
func (d *SignalDetector) Observe(r model.IndicatorReading) {
	if d.hasPrev {
		d.updateEmaLatches(r)
		d.updateStochLatches(r)
	}
	d.last = r
	d.hasPrev = true
}

func (d *SignalDetector) updateEmaLatches(r model.IndicatorReading) {
	if !d.state.EmaCrossUp && d.last.EmaFast <= d.last.EmaSlow && r.EmaFast > r.EmaSlow {
		d.log.Debug("ema crossed up", "fast", r.EmaFast, "slow", r.EmaSlow)
		d.state.EmaCrossUp = true
		d.state.EmaCrossDown = false
	}
	if !d.state.EmaCrossDown && d.last.EmaFast >= d.last.EmaSlow && r.EmaFast < r.EmaSlow {
		d.log.Debug("ema crossed down", "fast", r.EmaFast, "slow", r.EmaSlow)
		d.state.EmaCrossDown = true
		d.state.EmaCrossUp = false
	}
}

func (d *SignalDetector) updateStochLatches(r model.IndicatorReading) {
	if !d.state.StochCrossUp && d.last.StochK <= d.last.StochD && r.StochK > r.StochD {
		d.log.Debug("stochastics crossed up", "k", r.StochK, "d", r.StochD)
		d.state.StochCrossUp = true
		d.state.StochCrossDown = false
	}
	if !d.state.StochCrossDown && d.last.StochK >= d.last.StochD && r.StochK < r.StochD {
		d.log.Debug("stochastics crossed down", "k", r.StochK, "d", r.StochD)
		d.state.StochCrossDown = true
		d.state.StochCrossUp = false
	}
}

// EmaBullish reports the EMA bullish latch.
func (d *SignalDetector) EmaBullish() bool { return d.state.EmaCrossUp }

// EmaBearish reports the EMA bearish latch.
func (d *SignalDetector) EmaBearish() bool { return d.state.EmaCrossDown }

// StochBullish reports stochastic bullishness: an extreme overbought %K
// is trusted immediately, otherwise the cross latch decides.
func (d *SignalDetector) StochBullish() bool {
	if d.hasPrev && d.last.StochK >= stochOverbought {
		return true
	}
	return d.state.StochCrossUp
}

// StochBearish reports stochastic bearishness: an extreme oversold %K is
// trusted immediately, otherwise the cross latch decides.
func (d *SignalDetector) StochBearish() bool {
	if d.hasPrev && d.last.StochK <= stochOversold {
		return true
	}
	return d.state.StochCrossDown
}

// State returns a copy of the current latch state.
func (d *SignalDetector) State() SignalState { return d.state }
