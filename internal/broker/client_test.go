package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"spiderexec/internal/model"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXP"

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{
		BaseURL:    srv.URL,
		APIKey:     "key",
		ClientCode: "C123",
		Password:   "pw",
		TOTPSecret: testTOTPSecret,
	})
	return srv, client
}

func respond(w http.ResponseWriter, data any) {
	raw, _ := json.Marshal(data)
	json.NewEncoder(w).Encode(map[string]any{
		"status": true,
		"data":   json.RawMessage(raw),
	})
}

func TestClient_LoginSendsTOTP(t *testing.T) {
	var got map[string]string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/auth/v1/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		respond(w, map[string]string{"accessToken": "at", "feedToken": "ft"})
	})

	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got["clientcode"] != "C123" || got["password"] != "pw" {
		t.Errorf("bad credentials in request: %v", got)
	}
	if len(got["totp"]) != 6 {
		t.Errorf("expected a 6-digit totp code, got %q", got["totp"])
	}
	if client.FeedToken() != "ft" {
		t.Errorf("expected feed token ft, got %q", client.FeedToken())
	}
}

func TestClient_SubmitLimit(t *testing.T) {
	var got map[string]any
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		respond(w, map[string]string{"orderId": "B-42"})
	})

	id, err := client.SubmitLimit(context.Background(), model.Order{
		Account: "A1", Instrument: "MSFT",
		Action: model.ActionBuy, Qty: 10, LimitPrice: 100.5, Signal: "S.OPEN.MSFT.BUY",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "B-42" {
		t.Errorf("expected order id B-42, got %s", id)
	}
	if got["action"] != "BUY" || got["ordertype"] != "LIMIT" {
		t.Errorf("bad order payload: %v", got)
	}
}

func TestClient_SubmitLimitRejection(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": false, "message": "insufficient margin",
		})
	})

	if _, err := client.SubmitLimit(context.Background(), model.Order{Action: model.ActionBuy}); err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestClient_OpenPosition(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, []map[string]any{
			{"account": "A1", "instrument": "AAPL", "side": "LONG", "qty": 5, "avgPrice": 180.0},
			{"account": "A1", "instrument": "MSFT", "side": "SHORT", "qty": 40, "avgPrice": 100.0},
		})
	})

	pos, err := client.OpenPosition(context.Background(), "A1", "MSFT")
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
	if pos == nil {
		t.Fatal("expected a position")
	}
	if pos.Side != model.PositionShort || pos.Qty != 40 {
		t.Errorf("bad position: %+v", pos)
	}
}

func TestClient_OpenPositionFlat(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, []map[string]any{})
	})

	pos, err := client.OpenPosition(context.Background(), "A1", "MSFT")
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
	if pos != nil {
		t.Errorf("expected nil position when flat, got %+v", pos)
	}
}

func TestStream_FrameDecoding(t *testing.T) {
	s := &Stream{instrument: "MSFT"}

	ev, ok := s.toEvent(frame{Type: "bar", Series: 2, TS: 1704722400, Open: 100, High: 101, Low: 99, Close: 100.5, Bid: 100.4, Ask: 100.6})
	if !ok || ev.Bar == nil {
		t.Fatal("expected a bar event")
	}
	if ev.Bar.Series != model.SeriesExecution || ev.Bar.Close != 100.5 {
		t.Errorf("bad bar: %+v", ev.Bar)
	}

	ev, ok = s.toEvent(frame{Type: "order", OrderID: "B-1", State: "PART_FILLED", FilledQty: 10, AvgFillPrice: 100.2})
	if !ok || ev.Order == nil {
		t.Fatal("expected an order event")
	}
	if ev.Order.State != model.OrderPartFilled || ev.Order.FilledQty != 10 {
		t.Errorf("bad order update: %+v", ev.Order)
	}

	if _, ok := s.toEvent(frame{Type: "heartbeat"}); ok {
		t.Error("unknown frame types must be dropped")
	}

	if _, ok := s.toEvent(frame{Type: "bar", Series: 9}); ok {
		t.Error("bars on unknown series must be dropped")
	}
}
