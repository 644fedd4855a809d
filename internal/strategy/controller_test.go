package strategy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"spiderexec/internal/metrics"
	"spiderexec/internal/model"
	"spiderexec/internal/notification"
)

type fakeVenue struct {
	orders    []model.Order
	submitErr error
}

func (v *fakeVenue) SubmitLimit(ctx context.Context, order model.Order) (string, error) {
	if v.submitErr != nil {
		return "", v.submitErr
	}
	order.ID = fmt.Sprintf("T-%d", len(v.orders)+1)
	v.orders = append(v.orders, order)
	return order.ID, nil
}

func newTestController(sizing SizingPolicy, v model.Venue, cfgEdit func(*Config)) *Controller {
	clock := testClock()
	pricing := NewPricingEngine(testLogger(), clock, -0.05, 0.01)
	cfg := Config{
		Account:                 "A1",
		Instrument:              "MSFT",
		BarsRequired:            1,
		AtrPeriod:               1,
		FastEmaPeriod:           1,
		SlowEmaPeriod:           2,
		StochKPeriod:            1,
		StochDPeriod:            1,
		StochSmoothPeriod:       1,
		MinRetryIntervalMinutes: 5,
	}
	if cfgEdit != nil {
		cfgEdit(&cfg)
	}
	return New(cfg, testLogger(), clock, pricing, sizing,
		v, nil, notification.NewLogNotifier(), metrics.NewUnregistered())
}

func testBar(series model.SeriesIndex, ts time.Time, bid, ask float64) model.Bar {
	return model.Bar{
		Instrument: "MSFT", Series: series, TS: ts,
		Open: 100, High: 101, Low: 99, Close: 100,
		Bid: bid, Ask: ask,
	}
}

// warmUp feeds enough bars on every series for the gate to open and the
// ATR to produce a value, without reaching any trigger condition.
func warmUp(t *testing.T, c *Controller) {
	t.Helper()
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	steps := []model.Bar{
		testBar(model.SeriesPrimary, sessionTime(14, 58), 99.8, 100),
		testBar(model.SeriesDaily, sessionTime(14, 58), 99.8, 100),
		testBar(model.SeriesExecution, sessionTime(14, 59), 99.8, 100),
		testBar(model.SeriesPrimary, sessionTime(14, 59), 99.8, 100),
	}
	for _, b := range steps {
		if err := c.OnBar(ctx, b); err != nil {
			t.Fatalf("warm-up bar %s/%s: %v", b.Series.Label(), b.TS, err)
		}
	}
}

func TestController_TimeTriggerQueuesOrder(t *testing.T) {
	v := &fakeVenue{}
	sizing := NewOpeningPolicy(testLogger(), model.ActionBuy, 21000, 1, 100)
	c := newTestController(sizing, v, nil)
	warmUp(t, c)
	ctx := context.Background()

	// 15:10: ~5.6% of the session left, the time trigger fires.
	if err := c.OnBar(ctx, testBar(model.SeriesExecution, sessionTime(15, 10), 99.8, 100)); err != nil {
		t.Fatalf("exec bar: %v", err)
	}

	if len(v.orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(v.orders))
	}
	o := v.orders[0]
	if o.Action != model.ActionBuy {
		t.Errorf("expected BUY, got %s", o.Action)
	}
	// Late-session budget is positive, so the limit caps at the raw ask.
	if o.LimitPrice != 100.0 {
		t.Errorf("expected limit at ask 100, got %.4f", o.LimitPrice)
	}
	// 21000 / 100 = 210 shares
	if o.Qty != 210 {
		t.Errorf("expected qty 210, got %d", o.Qty)
	}
	if o.Signal != "S.OPEN.MSFT.BUY" {
		t.Errorf("unexpected signal name %q", o.Signal)
	}
}

func TestController_PartialFillRequoteAndThrottle(t *testing.T) {
	v := &fakeVenue{}
	sizing := NewOpeningPolicy(testLogger(), model.ActionBuy, 21000, 1, 100)
	c := newTestController(sizing, v, nil)
	warmUp(t, c)
	ctx := context.Background()

	if err := c.OnBar(ctx, testBar(model.SeriesExecution, sessionTime(15, 10), 99.8, 100)); err != nil {
		t.Fatalf("exec bar: %v", err)
	}
	if len(v.orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(v.orders))
	}

	c.OnOrderUpdate(ctx, model.OrderUpdate{
		OrderID: v.orders[0].ID, State: model.OrderPartFilled,
		FilledQty: 100, AvgFillPrice: 100, TS: sessionTime(15, 10),
	})
	if got := c.Account().FilledQty; got != 100 {
		t.Fatalf("expected 100 filled, got %d", got)
	}

	// One minute later the throttle still holds: allowed gap is
	// max(1, 5 x ~0.05) = 1 minute and exactly 1 elapsed is not enough.
	if err := c.OnBar(ctx, testBar(model.SeriesExecution, sessionTime(15, 11), 99.8, 100)); err != nil {
		t.Fatalf("exec bar: %v", err)
	}
	if len(v.orders) != 1 {
		t.Fatalf("expected throttled re-quote, got %d orders", len(v.orders))
	}

	// Three minutes after the queue the re-quote goes out for the rest.
	if err := c.OnBar(ctx, testBar(model.SeriesExecution, sessionTime(15, 13), 99.8, 100)); err != nil {
		t.Fatalf("exec bar: %v", err)
	}
	if len(v.orders) != 2 {
		t.Fatalf("expected re-quote, got %d orders", len(v.orders))
	}
	// (21000 - 10000) / 100 = 110 shares left
	if v.orders[1].Qty != 110 {
		t.Errorf("expected re-quote qty 110, got %d", v.orders[1].Qty)
	}

	c.OnOrderUpdate(ctx, model.OrderUpdate{
		OrderID: v.orders[1].ID, State: model.OrderFilled,
		FilledQty: 110, AvgFillPrice: 100, TS: sessionTime(15, 13),
	})
	if !c.Filled() {
		t.Fatal("expected terminal fill")
	}
	if got := c.Account().FilledQty; got != 210 {
		t.Errorf("expected 210 filled total, got %d", got)
	}

	// Terminal: later bars must not submit anything.
	if err := c.OnBar(ctx, testBar(model.SeriesExecution, sessionTime(15, 20), 99.8, 100)); err != nil {
		t.Fatalf("exec bar after fill: %v", err)
	}
	if len(v.orders) != 2 {
		t.Errorf("expected no orders after terminal fill, got %d", len(v.orders))
	}
}

func TestController_RejectedIsFatalOnNextTick(t *testing.T) {
	v := &fakeVenue{}
	sizing := NewOpeningPolicy(testLogger(), model.ActionBuy, 21000, 1, 100)
	c := newTestController(sizing, v, nil)
	warmUp(t, c)
	ctx := context.Background()

	if err := c.OnBar(ctx, testBar(model.SeriesExecution, sessionTime(15, 10), 99.8, 100)); err != nil {
		t.Fatalf("exec bar: %v", err)
	}

	c.OnOrderUpdate(ctx, model.OrderUpdate{
		OrderID: v.orders[0].ID, State: model.OrderRejected, TS: sessionTime(15, 10),
	})

	err := c.OnBar(ctx, testBar(model.SeriesExecution, sessionTime(15, 11), 99.8, 100))
	if !errors.Is(err, ErrOrderFailed) {
		t.Fatalf("expected ErrOrderFailed, got %v", err)
	}
}

func TestController_OverfillWarnsButContinues(t *testing.T) {
	v := &fakeVenue{}
	sizing := NewOpeningPolicy(testLogger(), model.ActionBuy, 21000, 1, 100)
	c := newTestController(sizing, v, nil)
	warmUp(t, c)
	ctx := context.Background()

	if err := c.OnBar(ctx, testBar(model.SeriesExecution, sessionTime(15, 10), 99.8, 100)); err != nil {
		t.Fatalf("exec bar: %v", err)
	}

	// Venue reports more than the whole target in one partial fill.
	c.OnOrderUpdate(ctx, model.OrderUpdate{
		OrderID: v.orders[0].ID, State: model.OrderPartFilled,
		FilledQty: 300, AvgFillPrice: 100, TS: sessionTime(15, 10),
	})

	if !c.Account().Overfilled() {
		t.Fatal("expected overfill detection")
	}
	// Overfill is logged, not fatal: the next tick must not error.
	if err := c.OnBar(ctx, testBar(model.SeriesExecution, sessionTime(15, 13), 99.8, 100)); err != nil {
		t.Fatalf("expected overfill to be non-fatal, got %v", err)
	}
	// Nothing remains to buy, so no re-quote goes out either.
	if len(v.orders) != 1 {
		t.Errorf("expected no re-quote past the target, got %d orders", len(v.orders))
	}
}

func TestController_ValidityTriggerGatesSubmission(t *testing.T) {
	v := &fakeVenue{}
	sizing := NewOpeningPolicy(testLogger(), model.ActionBuy, 21000, 1, 100)
	c := newTestController(sizing, v, func(cfg *Config) {
		cfg.ValidityTrigger = sessionTime(15, 30)
	})
	warmUp(t, c)
	ctx := context.Background()

	if err := c.OnBar(ctx, testBar(model.SeriesExecution, sessionTime(15, 10), 99.8, 100)); err != nil {
		t.Fatalf("exec bar: %v", err)
	}
	if len(v.orders) != 0 {
		t.Errorf("expected no orders before the validity trigger, got %d", len(v.orders))
	}
}

func TestController_WarmUpGateBlocksAllSeries(t *testing.T) {
	v := &fakeVenue{}
	sizing := NewOpeningPolicy(testLogger(), model.ActionBuy, 21000, 1, 100)
	c := newTestController(sizing, v, nil)
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	// Execution bars alone never open the gate: the daily and primary
	// series have not delivered their minimum yet.
	for min := 0; min < 5; min++ {
		b := testBar(model.SeriesExecution, sessionTime(15, 10+min), 99.8, 100)
		if err := c.OnBar(ctx, b); err != nil {
			t.Fatalf("exec bar: %v", err)
		}
	}
	if len(v.orders) != 0 {
		t.Errorf("expected no orders before warm-up completes, got %d", len(v.orders))
	}
}

func TestController_UpdateWithoutWorkingOrderIsIgnored(t *testing.T) {
	v := &fakeVenue{}
	sizing := NewOpeningPolicy(testLogger(), model.ActionBuy, 21000, 1, 100)
	c := newTestController(sizing, v, nil)
	ctx := context.Background()

	c.OnOrderUpdate(ctx, model.OrderUpdate{
		OrderID: "stale", State: model.OrderFilled, FilledQty: 10, AvgFillPrice: 100,
	})
	if c.Account().FilledQty != 0 {
		t.Error("stale update must not change fill accounting")
	}
}

func TestController_SubmitErrorPropagates(t *testing.T) {
	v := &fakeVenue{submitErr: errors.New("link down")}
	sizing := NewOpeningPolicy(testLogger(), model.ActionBuy, 21000, 1, 100)
	c := newTestController(sizing, v, nil)
	warmUp(t, c)
	ctx := context.Background()

	err := c.OnBar(ctx, testBar(model.SeriesExecution, sessionTime(15, 10), 99.8, 100))
	if err == nil {
		t.Fatal("expected submission error to propagate")
	}
}
