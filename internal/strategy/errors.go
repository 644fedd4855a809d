package strategy

import "errors"

// Error taxonomy. Configuration and state errors are fatal to the
// controller instance: continuing on inconsistent state risks real money,
// so the run loop aborts instead of attempting partial recovery.
var (
	// ErrConfig marks an invalid static configuration, detected eagerly
	// (e.g. min allowed slippage above max allowed slippage).
	ErrConfig = errors.New("strategy: configuration error")

	// ErrState marks an invariant precondition violated by the caller or
	// host (e.g. closing policy queried with no resolved open position).
	ErrState = errors.New("strategy: state error")

	// ErrOrderFailed marks a venue-reported Rejected or Unknown order
	// state. The controller cannot reason about an order whose state it
	// cannot interpret, so this is fatal rather than retried.
	ErrOrderFailed = errors.New("strategy: order in failed state")

	// ErrNoATR marks a slippage computation attempted before a positive
	// ATR value is available.
	ErrNoATR = errors.New("strategy: atr price must be positive")
)
