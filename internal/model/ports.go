package model

import "context"

// ── External collaborator ports ──
// These interfaces decouple the controller from concrete broker and
// storage implementations (live broker, paper venue, SQLite, Redis).

// Venue accepts limit-order submissions and returns a venue handle.
// State transitions arrive asynchronously as OrderUpdate events on the
// controller's event queue, never through this interface.
type Venue interface {
	// SubmitLimit submits a limit order and returns its venue handle.
	SubmitLimit(ctx context.Context, order Order) (string, error)
}

// PositionBook exposes currently open positions per account/instrument.
// Consulted once at strategy start by the closing sizing policy.
type PositionBook interface {
	// OpenPosition returns the open position for the instrument, or nil
	// if the account holds none.
	OpenPosition(ctx context.Context, account, instrument string) (*Position, error)
}

// EventSink receives order lifecycle events for journaling/publishing.
// Implementations must not block the caller.
type EventSink interface {
	Emit(event OrderEvent)
}
