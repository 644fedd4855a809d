package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"spiderexec/internal/indicator"
	"spiderexec/internal/metrics"
	"spiderexec/internal/model"
	"spiderexec/internal/notification"
	"spiderexec/internal/session"
)

// Config holds the static controller parameters for one instance.
type Config struct {
	Account    string
	Instrument string

	// BarsRequired is the warm-up gate: no processing happens until every
	// subscribed series has delivered at least this many bars.
	BarsRequired int

	AtrPeriod         int
	FastEmaPeriod     int
	SlowEmaPeriod     int
	StochKPeriod      int
	StochDPeriod      int
	StochSmoothPeriod int

	// MinRetryIntervalMinutes is the configured floor interval between
	// order retries, scaled down by the remaining session fraction.
	MinRetryIntervalMinutes int

	// ValidityTrigger is the hard earliest timestamp before which no
	// order is ever queued, regardless of triggers.
	ValidityTrigger time.Time
}

// Event is one entry in the controller's serialized event queue: either a
// finished bar or an order-state notification, never both. Fill callbacks
// from the venue are modeled as events on the same queue so that no two
// events are ever processed concurrently.
type Event struct {
	Bar   *model.Bar
	Order *model.OrderUpdate
}

// Controller supervises one instrument's limit order through trigger
// detection, submission, partial fills, retries, and terminal states.
//
// State machine: NoOrder → Queued → (PartiallyFilled ⇄ Queued) → Filled,
// or → Failed on a Rejected/Unknown venue report. Filled is terminal
// success; Failed is fatal to the instance.
type Controller struct {
	cfg      Config
	log      *slog.Logger
	clock    *session.Clock
	detector *SignalDetector
	trigger  *TriggerEngine
	pricing  *PricingEngine
	sizing   SizingPolicy
	venue    model.Venue
	sink     model.EventSink
	notifier notification.Notifier
	prom     *metrics.Metrics

	atr     *indicator.ATR
	emaFast *indicator.EMA
	emaSlow *indicator.EMA
	stoch   *indicator.Stochastic

	barCount       [3]int
	currentAtr     float64
	priorDayClose  float64
	currentDayOpen float64

	acct        FillAccount
	initialized bool
	pending     *model.Order
	filled      bool
	partFilled  bool
	failed      bool
	lastQueued  time.Time
}

// New creates a controller. The sizing policy's Init runs on the first
// call to Run, not here.
func New(cfg Config, log *slog.Logger, clock *session.Clock, pricing *PricingEngine,
	sizing SizingPolicy, venue model.Venue, sink model.EventSink,
	notifier notification.Notifier, prom *metrics.Metrics) *Controller {

	detector := NewSignalDetector(log)
	return &Controller{
		cfg:      cfg,
		log:      log.With("account", cfg.Account, "instrument", cfg.Instrument),
		clock:    clock,
		detector: detector,
		trigger:  NewTriggerEngine(log, detector, clock),
		pricing:  pricing,
		sizing:   sizing,
		venue:    venue,
		sink:     sink,
		notifier: notifier,
		prom:     prom,
		atr:      indicator.NewATR(cfg.AtrPeriod),
		emaFast:  indicator.NewEMA(cfg.FastEmaPeriod),
		emaSlow:  indicator.NewEMA(cfg.SlowEmaPeriod),
		stoch:    indicator.NewStochastic(cfg.StochKPeriod, cfg.StochDPeriod, cfg.StochSmoothPeriod),
	}
}

// Init resolves the sizing policy's targets. Run calls it on entry;
// replay drivers that step the controller manually call it once up front.
func (c *Controller) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.sizing.Init(ctx, &c.acct); err != nil {
		return c.abort(ctx, err)
	}
	c.initialized = true
	return nil
}

// Run consumes the serialized event queue until the context is cancelled,
// the queue closes, or a fatal error aborts the instance. A fatal error
// is reported through the notifier before it is returned.
func (c *Controller) Run(ctx context.Context, events <-chan Event) error {
	if err := c.Init(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Order != nil {
				c.OnOrderUpdate(ctx, *ev.Order)
			}
			if ev.Bar != nil {
				if err := c.OnBar(ctx, *ev.Bar); err != nil {
					return c.abort(ctx, err)
				}
			}
		}
	}
}

func (c *Controller) abort(ctx context.Context, err error) error {
	c.log.Error("controller aborting", "err", err)
	c.notifier.Send(ctx, notification.Alert{
		Level:   notification.AlertCritical,
		Title:   "strategy aborted",
		Message: err.Error(),
		Context: map[string]string{
			"account":    c.cfg.Account,
			"instrument": c.cfg.Instrument,
		},
	})
	return err
}

// OnBar processes one scheduling tick. Non-execution series only update
// ATR and reference-price bookkeeping; triggers, pricing, and submission
// run exclusively on the execution series.
func (c *Controller) OnBar(ctx context.Context, bar model.Bar) error {
	if bar.Series < 0 || int(bar.Series) > 2 {
		return nil
	}
	c.barCount[bar.Series]++
	c.prom.BarsTotal.WithLabelValues(bar.Series.Label()).Inc()

	if c.barCount[model.SeriesPrimary] < c.cfg.BarsRequired ||
		c.barCount[model.SeriesDaily] < c.cfg.BarsRequired ||
		c.barCount[model.SeriesExecution] < c.cfg.BarsRequired {
		return nil
	}

	// Terminal success: everything is filled, nothing left to do.
	if c.filled {
		return nil
	}

	switch bar.Series {
	case model.SeriesPrimary:
		c.atr.Update(bar)
		if c.atr.Ready() {
			c.currentAtr = c.atr.Value()
			c.prom.AtrPrice.Set(c.currentAtr)
			c.log.Debug("atr updated", "atr", c.currentAtr, "close", bar.Close)
		}
		return nil
	case model.SeriesDaily:
		c.priorDayClose = bar.Close
		c.currentDayOpen = bar.Open
		return nil
	}

	// Execution series from here on. Keep the latches current before any
	// early return: skipping detector calls would lose cross events.
	c.emaFast.Update(bar)
	c.emaSlow.Update(bar)
	c.stoch.Update(bar)
	if c.emaFast.Ready() && c.emaSlow.Ready() && c.stoch.Ready() {
		c.detector.Observe(model.IndicatorReading{
			EmaFast: c.emaFast.Value(),
			EmaSlow: c.emaSlow.Value(),
			StochK:  c.stoch.K(),
			StochD:  c.stoch.D(),
		})
	}

	if c.currentAtr <= 0 {
		return nil
	}
	if bar.TS.Before(c.cfg.ValidityTrigger) {
		return nil
	}

	if remaining, err := c.clock.RemainingFraction(bar.TS); err == nil {
		c.prom.RemainingFraction.Set(remaining)
	} else {
		return err
	}

	if c.pending == nil {
		action, err := c.sizing.Action()
		if err != nil {
			return err
		}
		triggered, err := c.trigger.Evaluate(action, bar.TS)
		if err != nil {
			return err
		}
		if triggered {
			return c.queueOrder(ctx, bar)
		}
		return nil
	}

	if c.failed {
		return fmt.Errorf("%w: order %s", ErrOrderFailed, c.pending.ID)
	}

	// An order is working and not yet filled: re-quote to chase the
	// market, subject to the retry throttle.
	return c.queueOrder(ctx, bar)
}

// queueOrder submits (or re-submits) the working order if the retry
// throttle permits it at bar close time.
func (c *Controller) queueOrder(ctx context.Context, bar model.Bar) error {
	ok, err := c.okToQueue(bar.TS)
	if err != nil {
		return err
	}
	if !ok {
		c.prom.RetriesThrottled.Inc()
		return nil
	}

	action, err := c.sizing.Action()
	if err != nil {
		return err
	}

	var price float64
	if action.IsBuySide() {
		price, err = c.pricing.BuyPrice(bar.Ask, c.currentAtr, bar.TS)
	} else {
		price, err = c.pricing.SellPrice(bar.Bid, c.currentAtr, bar.TS)
	}
	if err != nil {
		return err
	}
	if slip, serr := c.pricing.SlippageAmount(c.currentAtr, bar.TS); serr == nil {
		c.prom.SlippageAmount.Set(slip)
	}

	qty, err := c.sizing.Quantity(price, &c.acct)
	if err != nil {
		return err
	}
	if qty <= 0 {
		c.log.Debug("nothing left to queue", "qty", qty, "price", price)
		return nil
	}

	order := model.Order{
		Account:    c.cfg.Account,
		Instrument: c.cfg.Instrument,
		Action:     action,
		Qty:        qty,
		LimitPrice: price,
		Signal:     c.signalName(action),
		QueuedAt:   bar.TS,
	}
	id, err := c.venue.SubmitLimit(ctx, order)
	if err != nil {
		return fmt.Errorf("submit limit order: %w", err)
	}
	order.ID = id

	c.pending = &order
	c.lastQueued = bar.TS
	c.prom.OrdersQueued.Inc()
	c.emit(model.OrderEvent{Type: model.EventQueued, Order: order, TS: bar.TS})
	c.log.Info("order queued",
		"action", string(action), "qty", qty, "price", price, "signal", order.Signal)
	return nil
}

// okToQueue applies the retry throttle: a (re)submission is permitted
// only when more than max(1, minInterval×remainingFraction) minutes have
// passed since the last queue. The permitted gap shrinks toward the
// 1-minute floor as the session nears its end.
func (c *Controller) okToQueue(now time.Time) (bool, error) {
	remaining, err := c.clock.RemainingFraction(now)
	if err != nil {
		return false, err
	}
	allowed := math.Max(1, float64(c.cfg.MinRetryIntervalMinutes)*remaining)
	elapsed := now.Sub(c.lastQueued).Minutes()
	return elapsed > allowed, nil
}

// OnOrderUpdate handles an asynchronous order-state notification that has
// been serialized onto the event queue.
func (c *Controller) OnOrderUpdate(ctx context.Context, u model.OrderUpdate) {
	if c.pending == nil {
		c.log.Debug("order update with no working order", "order_id", u.OrderID, "state", string(u.State))
		return
	}
	order := *c.pending
	c.log.Info("order update", "order_id", u.OrderID, "state", string(u.State),
		"filled_qty", u.FilledQty, "avg_fill_price", u.AvgFillPrice)

	switch u.State {
	case model.OrderFilled:
		c.acct.Apply(u.FilledQty, u.AvgFillPrice)
		c.filled = true
		c.pending = nil
		c.prom.Fills.Inc()
		c.emit(model.OrderEvent{Type: model.EventFilled, Order: order,
			FilledQty: u.FilledQty, AvgFillPrice: u.AvgFillPrice, TS: u.TS})

	case model.OrderPartFilled:
		c.acct.Apply(u.FilledQty, u.AvgFillPrice)
		c.partFilled = true
		c.prom.PartialFills.Inc()
		c.emit(model.OrderEvent{Type: model.EventPartFilled, Order: order,
			FilledQty: u.FilledQty, AvgFillPrice: u.AvgFillPrice, TS: u.TS})
		if c.acct.Overfilled() {
			c.prom.Overfills.Inc()
			c.log.Warn("order overfilled",
				"filled_qty", c.acct.FilledQty, "filled_amount", c.acct.FilledAmount,
				"target_qty", c.acct.TargetQty, "target_amount", c.acct.TargetAmount)
			c.notifier.Send(ctx, notification.Alert{
				Level:   notification.AlertWarning,
				Title:   "order overfilled",
				Message: fmt.Sprintf("%s filled beyond target", order.Signal),
				Context: map[string]string{
					"order_id":   order.ID,
					"filled_qty": fmt.Sprintf("%d", c.acct.FilledQty),
				},
			})
			c.emit(model.OrderEvent{Type: model.EventOverfilled, Order: order, TS: u.TS})
		}

	case model.OrderRejected, model.OrderUnknown:
		// Fatal on the next processing tick: fill/price state after such
		// reports is ambiguous and guessing a corrective action is worse
		// than stopping.
		c.failed = true
		c.prom.Failures.Inc()
		c.log.Error("order in failed state", "state", string(u.State), "signal", order.Signal)
		c.emit(model.OrderEvent{Type: model.EventFailed, Order: order, TS: u.TS})
	}
}

func (c *Controller) signalName(action model.OrderAction) string {
	if action.IsEntry() {
		return fmt.Sprintf("S.OPEN.%s.%s", c.cfg.Instrument, action)
	}
	return fmt.Sprintf("S.CLOSE.%s.%s", c.cfg.Instrument, action)
}

func (c *Controller) emit(ev model.OrderEvent) {
	if c.sink != nil {
		c.sink.Emit(ev)
	}
}

// Account returns a copy of the fill accounting (for replay summaries).
func (c *Controller) Account() FillAccount { return c.acct }

// Filled reports whether the strategy order has reached terminal success.
func (c *Controller) Filled() bool { return c.filled }
