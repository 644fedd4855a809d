// Package redis publishes order lifecycle events to Redis Streams and
// PubSub so dashboards and downstream services can follow executions in
// near real time.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"spiderexec/internal/metrics"
	"spiderexec/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: a full session of re-quotes plus generous buffer
	streamMaxLen     = 10000
	defaultLatestTTL = 30 * time.Minute
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes order events to Redis.
type Publisher struct {
	client *goredis.Client
	prom   *metrics.Metrics
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a new Publisher and pings the server.
func New(cfg PublisherConfig, prom *metrics.Metrics) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client, prom: prom}, nil
}

// Run consumes order events and publishes them. Blocks until ctx is
// cancelled or eventCh is closed.
func (p *Publisher) Run(ctx context.Context, eventCh <-chan model.OrderEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			p.publish(ctx, ev)
		}
	}
}

// publish XADDs the event to the per-instrument stream, refreshes the
// latest-event key, and broadcasts on PubSub, in one pipeline roundtrip.
func (p *Publisher) publish(ctx context.Context, ev model.OrderEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[redis] marshal event: %v", err)
		return
	}

	stream := streamKey(ev)
	latest := "orders:latest:" + ev.Order.Account + ":" + ev.Order.Instrument
	pubsub := "pub:" + stream

	start := time.Now()
	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"event": string(data)},
	})
	pipe.Set(ctx, latest, string(data), defaultLatestTTL)
	pipe.Publish(ctx, pubsub, string(data))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] publish error: %v", err)
		return
	}
	if p.prom != nil {
		p.prom.RedisPublishDur.Observe(time.Since(start).Seconds())
	}
}

func streamKey(ev model.OrderEvent) string {
	return "orders:" + ev.Order.Account + ":" + ev.Order.Instrument
}

// Close releases the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
