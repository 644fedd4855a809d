package indicator

import (
	"math"

	"spiderexec/internal/model"
)

// ATR calculates Average True Range using Wilder smoothing.
// The first ATR value is a simple average of the first `period` true
// ranges; subsequent values use ATR = (ATR_prev*(n-1) + TR) / n.
type ATR struct {
	period    int
	current   float64
	sum       float64
	count     int
	prevClose float64
}

// NewATR creates a new ATR indicator with the given period.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(bar model.Bar) {
	tr := bar.High - bar.Low
	if a.count > 0 {
		tr = math.Max(tr, math.Max(
			math.Abs(bar.High-a.prevClose),
			math.Abs(bar.Low-a.prevClose),
		))
	}
	a.prevClose = bar.Close
	a.count++

	if a.count <= a.period {
		a.sum += tr
		if a.count == a.period {
			a.current = a.sum / float64(a.period)
		}
		return
	}

	n := float64(a.period)
	a.current = (a.current*(n-1) + tr) / n
}

func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.count >= a.period }
