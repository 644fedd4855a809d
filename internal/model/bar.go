package model

import "time"

// SeriesIndex identifies which subscribed bar series produced a tick.
// The controller is driven by three series in a fixed order.
type SeriesIndex int

const (
	// SeriesPrimary is the 1-minute series; it feeds ATR bookkeeping only.
	SeriesPrimary SeriesIndex = 0
	// SeriesDaily carries daily bars for reference prices
	// (prior-day close, current-day open).
	SeriesDaily SeriesIndex = 1
	// SeriesExecution is the execution-timeframe series; triggers,
	// pricing and order submission only ever run on this series.
	SeriesExecution SeriesIndex = 2
)

// Label returns a short human tag for the series, used in logs/metrics.
func (s SeriesIndex) Label() string {
	switch s {
	case SeriesPrimary:
		return "1m"
	case SeriesDaily:
		return "1d"
	case SeriesExecution:
		return "exec"
	}
	return "unknown"
}

// Bar represents one finished OHLC bar on a named series, together with
// the best bid/ask observed at the bar close. Prices are float64 dollars:
// the slippage budget is expressed in ATR fractions, so price math is
// fractional by nature.
type Bar struct {
	Instrument string      `json:"instrument"`
	Series     SeriesIndex `json:"series"`
	TS         time.Time   `json:"ts"` // bar close time (UTC)
	Open       float64     `json:"open"`
	High       float64     `json:"high"`
	Low        float64     `json:"low"`
	Close      float64     `json:"close"`
	Bid        float64     `json:"bid"`
	Ask        float64     `json:"ask"`
}

// IndicatorReading holds the indicator values the controller consumes on
// one execution-series bar.
type IndicatorReading struct {
	EmaFast float64 `json:"ema_fast"`
	EmaSlow float64 `json:"ema_slow"`
	StochK  float64 `json:"stoch_k"`
	StochD  float64 `json:"stoch_d"`
}
