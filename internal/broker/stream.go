package broker

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"spiderexec/internal/model"
	"spiderexec/internal/strategy"

	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 10 * time.Second
	readDeadline      = 30 * time.Second
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// Stream consumes the broker's combined market-data and order feed and
// converts frames into controller events.
type Stream struct {
	cfg        Config
	feedToken  string
	instrument string
	out        chan<- strategy.Event
}

// NewStream creates a stream for the given instrument. Events are
// written to out; the channel is shared with order updates so the
// controller sees a single serialized sequence.
func NewStream(cfg Config, feedToken, instrument string, out chan<- strategy.Event) *Stream {
	return &Stream{cfg: cfg, feedToken: feedToken, instrument: instrument, out: out}
}

// frame is the broker's wire envelope. Type is "bar" or "order".
type frame struct {
	Type string `json:"type"`

	// bar fields
	Series int     `json:"series"`
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`

	// order fields
	OrderID      string  `json:"orderId"`
	State        string  `json:"state"`
	FilledQty    int     `json:"filledQty"`
	AvgFillPrice float64 `json:"avgFillPrice"`
}

// Run connects and consumes frames until ctx is cancelled, reconnecting
// with exponential backoff on errors.
func (s *Stream) Run(ctx context.Context) {
	delay := reconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("[stream] connection lost: %v, reconnecting in %s", err, delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (s *Stream) consume(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.feedToken)
	header.Set("X-PrivateKey", s.cfg.APIKey)
	header.Set("X-ClientCode", s.cfg.ClientCode)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.WSURL, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("[stream] connected to %s", s.cfg.WSURL)

	sub := map[string]any{
		"action":      "subscribe",
		"instruments": []string{s.instrument},
		"channels":    []string{"bars", "orders"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	// Heartbeat writer; stops when ctx is cancelled or the read loop
	// returns and closes the connection.
	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			log.Printf("[stream] bad frame: %v", err)
			continue
		}
		ev, ok := s.toEvent(f)
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s.out <- ev:
		}
	}
}

func (s *Stream) toEvent(f frame) (strategy.Event, bool) {
	switch f.Type {
	case "bar":
		if f.Series < 0 || f.Series > int(model.SeriesExecution) {
			log.Printf("[stream] unknown series %d, dropping bar", f.Series)
			return strategy.Event{}, false
		}
		return strategy.Event{Bar: &model.Bar{
			Instrument: s.instrument,
			Series:     model.SeriesIndex(f.Series),
			TS:         time.Unix(f.TS, 0).UTC(),
			Open:       f.Open,
			High:       f.High,
			Low:        f.Low,
			Close:      f.Close,
			Bid:        f.Bid,
			Ask:        f.Ask,
		}}, true
	case "order":
		state, ok := parseOrderState(f.State)
		if !ok {
			log.Printf("[stream] unknown order state %q, mapping to UNKNOWN", f.State)
			state = model.OrderUnknown
		}
		return strategy.Event{Order: &model.OrderUpdate{
			OrderID:      f.OrderID,
			State:        state,
			FilledQty:    f.FilledQty,
			AvgFillPrice: f.AvgFillPrice,
			TS:           time.Unix(f.TS, 0).UTC(),
		}}, true
	default:
		return strategy.Event{}, false
	}
}

func parseOrderState(s string) (model.OrderState, bool) {
	switch s {
	case "WORKING":
		return model.OrderWorking, true
	case "FILLED":
		return model.OrderFilled, true
	case "PART_FILLED":
		return model.OrderPartFilled, true
	case "REJECTED":
		return model.OrderRejected, true
	case "UNKNOWN":
		return model.OrderUnknown, true
	default:
		return model.OrderUnknown, false
	}
}
