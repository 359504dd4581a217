package trading

import (
	"fmt"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// FillPrice determines the execution price for an order against the
// current quote. Pure, no side effects.
//
// MARKET orders cross the spread: BUY at the ask, SELL at the bid.
// LIMIT orders fill unconditionally at the stated limit price; there is
// no marketability check against the quote. STOP and STOP_LIMIT orders
// are not executable here.
//
// The quote is passed through unchanged: a zero or negative price from
// the source is not clamped.
func FillPrice(order *models.Order, quote models.Quote) (decimal.Decimal, error) {
	switch order.Type {
	case models.OrderTypeMarket:
		if order.Side == models.SideBuy {
			return quote.Ask, nil
		}
		return quote.Bid, nil
	case models.OrderTypeLimit:
		if !order.LimitPrice.Valid {
			return decimal.Zero, fmt.Errorf("%w: limit order %s has no limit price", ErrInvalidOrderState, order.ID)
		}
		return order.LimitPrice.Decimal, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedOrderType, order.Type)
	}
}
