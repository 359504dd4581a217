package trading

import "errors"

// Terminal errors for a single Execute call. None of these are retried
// internally; retry policy belongs to the caller. On any of them the
// order keeps its prior status and no ledger effect is applied.
var (
	// ErrInvalidOrderState means the order is not PENDING.
	ErrInvalidOrderState = errors.New("order not in executable state")

	// ErrUnsupportedOrderType means the order is STOP or STOP_LIMIT,
	// which this engine does not execute.
	ErrUnsupportedOrderType = errors.New("unsupported order type")

	// ErrUnsupportedAccountType means the account is LIVE; broker
	// routing is not implemented.
	ErrUnsupportedAccountType = errors.New("unsupported account type")

	// ErrInsufficientPosition means a SELL asked for more quantity than
	// the account holds.
	ErrInsufficientPosition = errors.New("insufficient position quantity")

	// ErrQuoteUnavailable means the quote source failed; the engine
	// never fabricates a price.
	ErrQuoteUnavailable = errors.New("quote unavailable")
)
