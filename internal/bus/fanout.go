// Package bus broadcasts order lifecycle events from the controller to
// the journal/publisher consumers without letting a slow consumer block
// the single-threaded control loop.
package bus

import (
	"log"
	"sync"

	"spiderexec/internal/model"
)

// FanOut implements model.EventSink by copying every emitted event to N
// subscriber channels. If a subscriber channel is full, the event is
// dropped for that consumer so the control loop never stalls.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.OrderEvent
	bufSize int

	// OnDrop is called when an event is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new output channel.
func (f *FanOut) Subscribe() <-chan model.OrderEvent {
	ch := make(chan model.OrderEvent, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Emit copies the event to every subscriber without blocking.
func (f *FanOut) Emit(ev model.OrderEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i, ch := range f.outputs {
		select {
		case ch <- ev:
		default:
			if f.OnDrop != nil {
				f.OnDrop(i)
			} else {
				log.Printf("[bus] output channel %d full, dropping %s event", i, ev.Type)
			}
		}
	}
}

// Close closes all subscriber channels. Call only after the controller
// has stopped emitting.
func (f *FanOut) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.outputs {
		close(ch)
	}
	f.outputs = nil
}
