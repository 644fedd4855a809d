package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"spiderexec/internal/model"
)

func testEvent(id string, typ model.OrderEventType) model.OrderEvent {
	return model.OrderEvent{
		Type: typ,
		Order: model.Order{
			ID: id, Account: "A1", Instrument: "MSFT",
			Action: model.ActionBuy, Qty: 100, LimitPrice: 100.5,
			Signal: "S.OPEN.MSFT.BUY",
		},
		FilledQty:    10,
		AvgFillPrice: 100.4,
		TS:           time.Date(2024, 1, 8, 15, 0, 0, 0, time.UTC),
	}
}

func TestJournal_PersistsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := New(JournalConfig{DBPath: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	ch := make(chan model.OrderEvent, 4)
	ch <- testEvent("O-1", model.EventQueued)
	ch <- testEvent("O-1", model.EventPartFilled)
	close(ch)

	j.Run(context.Background(), ch)

	var count int
	if err := j.DB().QueryRow(`SELECT COUNT(*) FROM order_events`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}

	var eventType, orderID string
	var filledQty int
	err = j.DB().QueryRow(
		`SELECT event_type, order_id, filled_qty FROM order_events ORDER BY id LIMIT 1`,
	).Scan(&eventType, &orderID, &filledQty)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if eventType != string(model.EventQueued) || orderID != "O-1" || filledQty != 10 {
		t.Errorf("bad row: type=%s id=%s qty=%d", eventType, orderID, filledQty)
	}
}

func TestJournal_SchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 2; i++ {
		j, err := New(JournalConfig{DBPath: path}, nil)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		j.Close()
	}
}
