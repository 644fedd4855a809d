package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"spiderexec/internal/session"
)

// PricingEngine computes slippage-adjusted limit prices. The slippage
// budget is a signed pair of ATR fractions [MinAllowed, MaxAllowed]: the
// tolerance starts near MaxAllowed×ATR at the session open and tightens
// toward MinAllowed×ATR as usable time runs out, so the controller chases
// price aggressively early and becomes strict late.
type PricingEngine struct {
	log   *slog.Logger
	clock *session.Clock

	minAllowed float64 // ATR fraction, may be negative
	maxAllowed float64 // ATR fraction
}

// NewPricingEngine creates a pricing engine with the given slippage
// budget fractions.
func NewPricingEngine(log *slog.Logger, clock *session.Clock, minAllowed, maxAllowed float64) *PricingEngine {
	return &PricingEngine{log: log, clock: clock, minAllowed: minAllowed, maxAllowed: maxAllowed}
}

// BuyPrice returns the limit price for a buy-side order: never worse than
// the raw ask plus the allowed concession, and never above the ask when
// the current budget is negative.
func (p *PricingEngine) BuyPrice(ask, atrPrice float64, now time.Time) (float64, error) {
	slippage, err := p.SlippageAmount(atrPrice, now)
	if err != nil {
		return 0, err
	}
	adjusted := ask + slippage
	p.log.Debug("buy price", "ask", ask, "adjusted", adjusted, "slippage", slippage)
	if adjusted > ask {
		return ask, nil
	}
	return adjusted, nil
}

// SellPrice returns the limit price for a sell-side order, symmetric to
// BuyPrice with the floor at the raw bid.
func (p *PricingEngine) SellPrice(bid, atrPrice float64, now time.Time) (float64, error) {
	slippage, err := p.SlippageAmount(atrPrice, now)
	if err != nil {
		return 0, err
	}
	adjusted := bid - slippage
	p.log.Debug("sell price", "bid", bid, "adjusted", adjusted, "slippage", slippage)
	if adjusted < bid {
		return bid, nil
	}
	return adjusted, nil
}

// SlippageAmount returns the price concession currently allowed, in price
// units. The unconsumed budget shrinks linearly with the remaining
// session fraction.
func (p *PricingEngine) SlippageAmount(atrPrice float64, now time.Time) (float64, error) {
	if p.minAllowed > p.maxAllowed {
		return 0, fmt.Errorf("%w: min allowed slippage %v cannot be more than max allowed slippage %v",
			ErrConfig, p.minAllowed, p.maxAllowed)
	}
	if atrPrice <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrNoATR, atrPrice)
	}

	remaining, err := p.clock.RemainingFraction(now)
	if err != nil {
		return 0, err
	}

	totalGap := p.maxAllowed - p.minAllowed
	budgetLeft := totalGap * remaining
	allowedFraction := p.maxAllowed - budgetLeft
	amount := allowedFraction * atrPrice

	p.log.Debug("slippage budget",
		"total_gap", totalGap,
		"budget_left", budgetLeft,
		"allowed_fraction", allowedFraction,
		"amount", amount)

	return amount, nil
}
