// cmd/replay runs the execution controller against historical 1-minute
// bars from a CSV file, filling orders on a deterministic paper venue.
//
// Usage:
//
//	go run ./cmd/replay --csv=data/msft_1m.csv --instrument=MSFT --mode=OPEN_LONG
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"spiderexec/config"
	"spiderexec/internal/logger"
	"spiderexec/internal/marketdata"
	"spiderexec/internal/metrics"
	"spiderexec/internal/model"
	"spiderexec/internal/notification"
	"spiderexec/internal/session"
	"spiderexec/internal/strategy"
	"spiderexec/internal/venue"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	csvPath := flag.String("csv", "", "Path to 1-minute bar CSV (ts,open,high,low,close,bid,ask)")
	instrument := flag.String("instrument", "MSFT", "Instrument symbol")
	account := flag.String("account", "SIM101", "Account name")
	mode := flag.String("mode", config.ModeOpenLong, "OPEN_LONG | OPEN_SHORT | CLOSE")
	capital := flag.Float64("capital", 100000, "Total capital for opening strategies")
	positions := flag.Int("positions", 10, "Number of portfolio slots")
	sizePct := flag.Float64("size-pct", 20, "Position size percent")
	openQty := flag.Int("open-qty", 100, "Existing open quantity for CLOSE mode")
	openSide := flag.String("open-side", "LONG", "Existing open side for CLOSE mode: LONG | SHORT")
	execTF := flag.Int("exec-tf", 5, "Execution timeframe in minutes")
	partial := flag.Float64("partial", 0, "Paper venue partial-fill fraction (0=single fill)")
	tz := flag.String("tz", "America/New_York", "Session timezone")
	logLevel := flag.String("log-level", "warn", "Log level: debug|info|warn|error")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("[replay] --csv is required")
	}

	slogger := logger.Init("replay", logger.ParseLevel(*logLevel))
	prom := metrics.NewUnregistered()

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		log.Fatalf("[replay] bad timezone %q: %v", *tz, err)
	}
	cal := session.NewFixedHoursCalendar(loc, 9, 30, 16, 0)
	clock := session.NewClock(cal, 30)

	paper := venue.NewPaper(64)
	paper.PartialFraction = *partial

	sizing, err := buildSizing(slogger, *mode, *account, *instrument,
		*capital, *positions, *sizePct, *openQty, *openSide)
	if err != nil {
		log.Fatalf("[replay] %v", err)
	}

	pricing := strategy.NewPricingEngine(slogger, clock, -0.05, 0.01)
	ctrl := strategy.New(strategy.Config{
		Account:                 *account,
		Instrument:              *instrument,
		BarsRequired:            12,
		AtrPeriod:               10,
		FastEmaPeriod:           5,
		SlowEmaPeriod:           15,
		StochKPeriod:            14,
		StochDPeriod:            3,
		StochSmoothPeriod:       3,
		MinRetryIntervalMinutes: 5,
	}, slogger, clock, pricing, sizing, paper, nil, notification.NewLogNotifier(), prom)

	ctx := context.Background()
	if err := ctrl.Init(ctx); err != nil {
		log.Fatalf("[replay] init failed: %v", err)
	}

	// Step the controller synchronously: bar in, fills out, fills back in
	// before the next bar. Deterministic by construction.
	feed := marketdata.NewCSVFeed(*csvPath, *instrument, *execTF)
	barCount := 0
	err = feed.Run(func(bar model.Bar) error {
		barCount++
		if err := ctrl.OnBar(ctx, bar); err != nil {
			return err
		}
		paper.OnBar(bar)
		for {
			select {
			case u := <-paper.Updates():
				ctrl.OnOrderUpdate(ctx, u)
			default:
				return nil
			}
		}
	})
	if err != nil {
		log.Fatalf("[replay] aborted after %d bars: %v", barCount, err)
	}

	acct := ctrl.Account()
	fmt.Printf("bars processed:  %d\n", barCount)
	fmt.Printf("terminal fill:   %v\n", ctrl.Filled())
	fmt.Printf("filled qty:      %d (target %d)\n", acct.FilledQty, acct.TargetQty)
	fmt.Printf("filled amount:   %.2f (target %.2f)\n", acct.FilledAmount, acct.TargetAmount)
}

func buildSizing(slogger *slog.Logger, mode, account, instrument string,
	capital float64, positions int, sizePct float64, openQty int, openSide string) (strategy.SizingPolicy, error) {

	switch mode {
	case config.ModeOpenLong:
		return strategy.NewOpeningPolicy(slogger, model.ActionBuy, capital, positions, sizePct), nil
	case config.ModeOpenShort:
		return strategy.NewOpeningPolicy(slogger, model.ActionSellShort, capital, positions, sizePct), nil
	case config.ModeClose:
		side := model.PositionLong
		if strings.EqualFold(openSide, "SHORT") {
			side = model.PositionShort
		}
		book := venue.NewStaticBook(model.Position{
			Account:    account,
			Instrument: instrument,
			Side:       side,
			Qty:        openQty,
		})
		return strategy.NewClosingPolicy(slogger, book, account, instrument, sizePct), nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}
