package bus

import (
	"testing"
	"time"

	"spiderexec/internal/model"
)

func event(id string) model.OrderEvent {
	return model.OrderEvent{
		Type: model.EventQueued,
		Order: model.Order{
			ID: id, Account: "A1", Instrument: "MSFT",
			Action: model.ActionBuy, Qty: 10, LimitPrice: 100,
		},
		TS: time.Date(2024, 1, 8, 15, 0, 0, 0, time.UTC),
	}
}

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(4)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	fo.Emit(event("O-1"))

	for i, out := range []<-chan model.OrderEvent{out1, out2} {
		select {
		case ev := <-out:
			if ev.Order.ID != "O-1" {
				t.Errorf("subscriber %d: expected O-1, got %s", i, ev.Order.ID)
			}
		default:
			t.Fatalf("subscriber %d: no event delivered", i)
		}
	}
}

func TestFanOut_SlowConsumerDropsWithoutBlocking(t *testing.T) {
	fo := New(1)
	slow := fo.Subscribe()

	dropped := 0
	fo.OnDrop = func(idx int) { dropped++ }

	fo.Emit(event("O-1"))
	fo.Emit(event("O-2")) // buffer of 1 is full, nothing has been read

	if dropped != 1 {
		t.Fatalf("expected 1 drop, got %d", dropped)
	}
	if got := len(slow); got != 1 {
		t.Errorf("expected buffer to hold 1 event, got %d", got)
	}

	// The first event survives untouched.
	if ev := <-slow; ev.Order.ID != "O-1" {
		t.Errorf("expected O-1, got %s", ev.Order.ID)
	}
}

func TestFanOut_CloseEndsSubscribers(t *testing.T) {
	fo := New(4)
	out := fo.Subscribe()
	fo.Emit(event("O-1"))
	fo.Close()

	// Buffered event is still readable, then the channel reports closed.
	if ev, ok := <-out; !ok || ev.Order.ID != "O-1" {
		t.Fatalf("expected buffered event before close, got ok=%v", ok)
	}
	if _, ok := <-out; ok {
		t.Error("expected closed channel after Close")
	}
}
