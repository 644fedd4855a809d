package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"spiderexec/internal/model"
)

// SizingPolicy computes the order action and quantity for each (re)quote.
// Two variants exist: OpeningPolicy sizes from a fixed capital allocation,
// ClosingPolicy sizes from a fraction of a discovered open position. The
// variant is chosen once at construction, not through inheritance.
type SizingPolicy interface {
	// Init resolves the policy's targets. Called once before the first
	// tick; for the closing variant this scans the position book.
	Init(ctx context.Context, acct *FillAccount) error

	// Action returns the order action this policy submits.
	Action() (model.OrderAction, error)

	// Quantity returns how many shares to submit at the given limit
	// price, net of progress already recorded in acct.
	Quantity(price float64, acct *FillAccount) (int, error)
}

// OpeningPolicy sizes orders from a capital allocation:
// initialAmount = (totalCapital / positions) × sizePercent / 100.
type OpeningPolicy struct {
	log    *slog.Logger
	action model.OrderAction // ActionBuy or ActionSellShort

	totalCapital float64
	positions    int
	sizePercent  float64

	initialAmount *float64
}

// NewOpeningPolicy creates an opening policy. action selects the long
// (ActionBuy) or short (ActionSellShort) variant.
func NewOpeningPolicy(log *slog.Logger, action model.OrderAction, totalCapital float64, positions int, sizePercent float64) *OpeningPolicy {
	return &OpeningPolicy{
		log:          log,
		action:       action,
		totalCapital: totalCapital,
		positions:    positions,
		sizePercent:  sizePercent,
	}
}

func (p *OpeningPolicy) Init(ctx context.Context, acct *FillAccount) error {
	amount := (p.totalCapital / float64(p.positions)) * p.sizePercent / 100
	p.initialAmount = &amount
	acct.TargetAmount = amount
	p.log.Info("calculated opening position amount",
		"amount", amount, "action", string(p.action))
	return nil
}

func (p *OpeningPolicy) Action() (model.OrderAction, error) {
	return p.action, nil
}

func (p *OpeningPolicy) Quantity(price float64, acct *FillAccount) (int, error) {
	if p.initialAmount == nil {
		return 0, fmt.Errorf("%w: opening amount has not been initialized", ErrState)
	}
	remaining := *p.initialAmount - acct.FilledAmount
	p.log.Debug("amount remaining to open", "remaining", remaining)
	return int(math.Floor(remaining / price)), nil
}

// ClosingPolicy closes a fraction of an existing open position. The order
// side is derived from the open side (long → sell, short → buy to cover);
// if no open position exists the policy fails with a state error rather
// than ever opening a new position.
type ClosingPolicy struct {
	log         *slog.Logger
	book        model.PositionBook
	account     string
	instrument  string
	sizePercent float64

	openSide    model.MarketPosition
	openQty     int
	targetClose *int
}

// NewClosingPolicy creates a closing policy over the position book.
func NewClosingPolicy(log *slog.Logger, book model.PositionBook, account, instrument string, sizePercent float64) *ClosingPolicy {
	return &ClosingPolicy{
		log:         log,
		book:        book,
		account:     account,
		instrument:  instrument,
		sizePercent: sizePercent,
	}
}

func (p *ClosingPolicy) Init(ctx context.Context, acct *FillAccount) error {
	pos, err := p.book.OpenPosition(ctx, p.account, p.instrument)
	if err != nil {
		return fmt.Errorf("closing policy: position scan: %w", err)
	}
	if pos == nil || pos.Side == model.PositionFlat {
		// Not fatal yet: the state error fires on the first order-action
		// query, matching the invariant that a closing strategy must
		// never fall back to opening.
		p.log.Warn("no open position found",
			"account", p.account, "instrument", p.instrument)
		return nil
	}

	target := int(math.Floor(float64(pos.Qty) * p.sizePercent / 100))
	p.openSide = pos.Side
	p.openQty = pos.Qty
	p.targetClose = &target
	acct.TargetQty = target

	p.log.Info("found open position to close",
		"side", string(pos.Side), "open_qty", pos.Qty, "target_close_qty", target)
	return nil
}

func (p *ClosingPolicy) Action() (model.OrderAction, error) {
	switch p.openSide {
	case model.PositionLong:
		return model.ActionSell, nil
	case model.PositionShort:
		return model.ActionBuyToCover, nil
	}
	return "", fmt.Errorf("%w: could not retrieve an open position for %s in account %s",
		ErrState, p.instrument, p.account)
}

func (p *ClosingPolicy) Quantity(price float64, acct *FillAccount) (int, error) {
	if p.targetClose == nil {
		return 0, fmt.Errorf("%w: could not retrieve an open position for %s in account %s",
			ErrState, p.instrument, p.account)
	}
	// Closes target a share count, not a dollar amount.
	return *p.targetClose - acct.FilledQty, nil
}
