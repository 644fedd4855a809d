package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spiderexec/config"
	"spiderexec/internal/broker"
	"spiderexec/internal/bus"
	"spiderexec/internal/logger"
	"spiderexec/internal/metrics"
	"spiderexec/internal/model"
	"spiderexec/internal/notification"
	"spiderexec/internal/session"
	redisstore "spiderexec/internal/store/redis"
	sqlitestore "spiderexec/internal/store/sqlite"
	"spiderexec/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[execd] starting...")

	cfg := config.Load()
	slogger := logger.Init("execd", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// ---- Metrics & health ----
	prom := metrics.New()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[execd] received %s, shutting down", sig)
		cancel()
	}()

	// ---- Broker login ----
	brokerCfg := broker.Config{
		BaseURL:    cfg.BrokerBaseURL,
		WSURL:      cfg.BrokerWSURL,
		APIKey:     cfg.BrokerAPIKey,
		ClientCode: cfg.BrokerClientCode,
		Password:   cfg.BrokerPassword,
		TOTPSecret: cfg.BrokerTOTPSecret,
	}
	client := broker.NewClient(brokerCfg)
	if err := client.Login(ctx); err != nil {
		log.Fatalf("[execd] broker login failed: %v", err)
	}
	defer client.Logout(context.Background())

	// ---- Session clock ----
	loc, err := time.LoadLocation(cfg.SessionTimezone)
	if err != nil {
		log.Fatalf("[execd] bad session timezone %q: %v", cfg.SessionTimezone, err)
	}
	cal := session.NewFixedHoursCalendar(loc,
		cfg.SessionOpenHour, cfg.SessionOpenMin, cfg.SessionCloseHour, cfg.SessionCloseMin)
	clock := session.NewClock(cal, cfg.TimeSliceMinutes)

	// ---- Sizing policy ----
	var sizing strategy.SizingPolicy
	switch cfg.Mode {
	case config.ModeOpenLong:
		sizing = strategy.NewOpeningPolicy(slogger, model.ActionBuy, cfg.TotalCapital, cfg.Positions, cfg.SizePercent)
	case config.ModeOpenShort:
		sizing = strategy.NewOpeningPolicy(slogger, model.ActionSellShort, cfg.TotalCapital, cfg.Positions, cfg.SizePercent)
	case config.ModeClose:
		sizing = strategy.NewClosingPolicy(slogger, client, cfg.Account, cfg.Instrument, cfg.SizePercent)
	default:
		log.Fatalf("[execd] unknown MODE %q", cfg.Mode)
	}

	// ---- Event sinks (off hot path) ----
	sink := bus.New(1024)

	os.MkdirAll("data", 0o755)
	journal, err := sqlitestore.New(sqlitestore.JournalConfig{DBPath: cfg.SQLitePath}, prom)
	if err != nil {
		log.Fatalf("[execd] sqlite init failed: %v", err)
	}
	defer journal.Close()
	go journal.Run(ctx, sink.Subscribe())

	publisher, err := redisstore.New(redisstore.PublisherConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, prom)
	if err != nil {
		log.Printf("[execd] WARNING: redis init failed: %v (continuing without redis)", err)
	} else {
		defer publisher.Close()
		go publisher.Run(ctx, sink.Subscribe())
	}

	// ---- Notifications ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	notifier := notification.NewMulti(backends...)

	// ---- Controller ----
	pricing := strategy.NewPricingEngine(slogger, clock, cfg.MinSlippageAllowed, cfg.MaxSlippageAllowed)
	ctrl := strategy.New(strategy.Config{
		Account:                 cfg.Account,
		Instrument:              cfg.Instrument,
		BarsRequired:            cfg.BarsRequired,
		AtrPeriod:               cfg.AtrPeriod,
		FastEmaPeriod:           cfg.FastEmaPeriod,
		SlowEmaPeriod:           cfg.SlowEmaPeriod,
		StochKPeriod:            cfg.StochKPeriod,
		StochDPeriod:            cfg.StochDPeriod,
		StochSmoothPeriod:       cfg.StochSmoothPeriod,
		MinRetryIntervalMinutes: cfg.MinRetryIntervalM,
		ValidityTrigger:         cfg.ValidityTrigger,
	}, slogger, clock, pricing, sizing, client, sink, notifier, prom)

	// ---- Feed ----
	events := make(chan strategy.Event, 1024)
	stream := broker.NewStream(brokerCfg, client.FeedToken(), cfg.Instrument, events)
	go stream.Run(ctx)

	err = ctrl.Run(ctx, events)

	// ---- Shutdown ----
	sink.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if err != nil && err != context.Canceled {
		log.Fatalf("[execd] controller exited: %v", err)
	}
	log.Println("[execd] shutdown complete")
}
