// Package metrics exposes Prometheus metrics and a combined
// /metrics + /healthz HTTP server for the execution controller.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the execution controller.
type Metrics struct {
	BarsTotal        *prometheus.CounterVec // labels: series
	OrdersQueued     prometheus.Counter
	RetriesThrottled prometheus.Counter
	PartialFills     prometheus.Counter
	Fills            prometheus.Counter
	Failures         prometheus.Counter
	Overfills        prometheus.Counter

	AtrPrice          prometheus.Gauge
	SlippageAmount    prometheus.Gauge
	RemainingFraction prometheus.Gauge

	JournalWriteDur prometheus.Histogram
	RedisPublishDur prometheus.Histogram
}

// New builds all metrics and registers them with the default registry.
func New() *Metrics {
	m := build()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewUnregistered builds metrics backed by a private registry. Used by
// tests and the replay driver, where repeated construction would collide
// on default-registry registration.
func NewUnregistered() *Metrics {
	m := build()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}

func build() *Metrics {
	return &Metrics{
		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execd_bars_total",
			Help: "Total bars processed (by series)",
		}, []string{"series"}),
		OrdersQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_orders_queued_total",
			Help: "Total limit-order submissions (including re-quotes)",
		}),
		RetriesThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_retries_throttled_total",
			Help: "Re-quote attempts skipped by the retry throttle",
		}),
		PartialFills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_partial_fills_total",
			Help: "Partial-fill notifications processed",
		}),
		Fills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_fills_total",
			Help: "Terminal fill notifications processed",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_order_failures_total",
			Help: "Rejected/Unknown order states reported by the venue",
		}),
		Overfills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execd_overfills_total",
			Help: "Fill progress exceeded the target (logged, not unwound)",
		}),
		AtrPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execd_atr_price",
			Help: "Current ATR in price units on the primary series",
		}),
		SlippageAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execd_slippage_amount",
			Help: "Last computed slippage concession in price units",
		}),
		RemainingFraction: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execd_session_remaining_fraction",
			Help: "Remaining usable session time as a fraction of the total",
		}),
		JournalWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execd_journal_write_duration_seconds",
			Help:    "SQLite journal write latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execd_redis_publish_duration_seconds",
			Help:    "Redis event publish latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BarsTotal, m.OrdersQueued, m.RetriesThrottled,
		m.PartialFills, m.Fills, m.Failures, m.Overfills,
		m.AtrPrice, m.SlippageAmount, m.RemainingFraction,
		m.JournalWriteDur, m.RedisPublishDur,
	}
}

// Server serves /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics server on addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Start runs the server in the background.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] serving on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
