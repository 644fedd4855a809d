package model

// MarketPosition is the side of an open position.
type MarketPosition string

const (
	PositionFlat  MarketPosition = "FLAT"
	PositionLong  MarketPosition = "LONG"
	PositionShort MarketPosition = "SHORT"
)

// Position represents an open position held in a broker account.
type Position struct {
	Account    string         `json:"account"`
	Instrument string         `json:"instrument"`
	Side       MarketPosition `json:"side"`
	Qty        int            `json:"qty"` // always positive; Side carries direction
	AvgPrice   float64        `json:"avg_price"`
}

// Key returns a unique key for this position: "account:instrument".
func (p *Position) Key() string {
	return p.Account + ":" + p.Instrument
}
