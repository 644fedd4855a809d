// Package venue provides a deterministic paper venue for replay runs and
// tests. It accepts limit orders and reports fills against subsequent
// execution bars, emitting the same OrderUpdate notifications a live
// broker would.
package venue

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"spiderexec/internal/model"
)

// Paper simulates an order venue. Orders fill when an execution bar
// trades through the limit price: buys when the bar's low touches the
// limit, sells when the high does.
type Paper struct {
	updates chan model.OrderUpdate
	seq     atomic.Int64

	working     *model.Order
	partialDone bool
	partialQty  int

	// PartialFraction, when positive, fills that fraction of the order
	// first and the remainder on the next marketable bar. Zero fills in
	// one shot.
	PartialFraction float64
}

// NewPaper creates a paper venue with the given update buffer size.
func NewPaper(buffer int) *Paper {
	return &Paper{updates: make(chan model.OrderUpdate, buffer)}
}

// Updates returns the order-state notification channel.
func (p *Paper) Updates() <-chan model.OrderUpdate { return p.updates }

// SubmitLimit records the order as the working order. Re-submissions
// replace the previous working order, mirroring a cancel/replace.
func (p *Paper) SubmitLimit(ctx context.Context, order model.Order) (string, error) {
	id := fmt.Sprintf("P-%d", p.seq.Add(1))
	order.ID = id
	p.working = &order
	p.partialDone = false
	p.partialQty = 0
	log.Printf("[paper] accepted %s %d @ %.4f (%s)", order.Action, order.Qty, order.LimitPrice, id)
	return id, nil
}

// OnBar checks the working order against an execution bar and emits a
// fill notification when the bar is marketable.
func (p *Paper) OnBar(bar model.Bar) {
	if p.working == nil || bar.Series != model.SeriesExecution {
		return
	}
	o := p.working

	marketable := false
	if o.Action.IsBuySide() {
		marketable = bar.Low <= o.LimitPrice
	} else {
		marketable = bar.High >= o.LimitPrice
	}
	if !marketable {
		return
	}

	if p.PartialFraction > 0 && !p.partialDone {
		qty := int(math.Floor(float64(o.Qty) * p.PartialFraction))
		if qty > 0 && qty < o.Qty {
			p.partialDone = true
			p.partialQty = qty
			p.emit(model.OrderUpdate{
				OrderID: o.ID, State: model.OrderPartFilled,
				FilledQty: qty, AvgFillPrice: o.LimitPrice, TS: bar.TS,
			})
			return
		}
	}

	// Updates carry delta quantities: subtract what the partial reported.
	p.working = nil
	p.emit(model.OrderUpdate{
		OrderID: o.ID, State: model.OrderFilled,
		FilledQty: o.Qty - p.partialQty, AvgFillPrice: o.LimitPrice, TS: bar.TS,
	})
}

func (p *Paper) emit(u model.OrderUpdate) {
	select {
	case p.updates <- u:
	default:
		log.Printf("[paper] updates channel full, dropping %s", u.State)
	}
}

// StaticBook is a PositionBook with a fixed set of open positions, used
// to drive closing strategies in replay runs.
type StaticBook struct {
	positions []model.Position
}

// NewStaticBook creates a position book over the given positions.
func NewStaticBook(positions ...model.Position) *StaticBook {
	return &StaticBook{positions: positions}
}

func (b *StaticBook) OpenPosition(ctx context.Context, account, instrument string) (*model.Position, error) {
	for i := range b.positions {
		p := &b.positions[i]
		if p.Account == account && p.Instrument == instrument && p.Side != model.PositionFlat {
			return p, nil
		}
	}
	return nil, nil
}
