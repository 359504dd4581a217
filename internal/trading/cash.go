package trading

import (
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// ApplyCash computes the cash effect of a fill on an account. A BUY
// debits price*quantity, a SELL credits it. Equity tracks cash 1:1 at
// fill time; the position's market value is reconciled by the
// mark-to-market job, not here. Pure, no side effects.
func ApplyCash(cash, equity decimal.Decimal, side string, price, quantity decimal.Decimal) (newCash, newEquity decimal.Decimal) {
	delta := price.Mul(quantity)
	if side == models.SideBuy {
		delta = delta.Neg()
	}
	return cash.Add(delta), equity.Add(delta)
}
