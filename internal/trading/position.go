package trading

import (
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// PositionChangeKind classifies the outcome of applying a fill to a
// position.
type PositionChangeKind int

const (
	// PositionNone: a SELL arrived with no existing position. A short
	// open is never created.
	PositionNone PositionChangeKind = iota
	// PositionCreated: first BUY for the (account, instrument) pair.
	PositionCreated
	// PositionUpdated: quantity increased or reduced, still nonzero.
	PositionUpdated
	// PositionClosed: the fill brought quantity to exactly zero and the
	// position must be deleted.
	PositionClosed
)

// PositionChange is the result of ApplyFill. Position is the new state
// for Created/Updated and nil for None/Closed. RealizedPnl is the delta
// realized by this fill alone; buys never realize P&L.
type PositionChange struct {
	Kind        PositionChangeKind
	Position    *models.Position
	RealizedPnl decimal.Decimal
}

// ApplyFill applies one fill to a position and returns the new position
// state without mutating the input. Pure, no side effects.
//
// BUY with no position opens one at the fill price. BUY against an
// existing position blends the average price:
//
//	newAvg = (oldAvg*oldQty + fillPrice*fillQty) / (oldQty + fillQty)
//
// SELL reduces quantity, leaves the average price untouched and
// realizes (fillPrice - avgPrice) * fillQty. A fill quantity exactly
// equal to the held quantity is the only path that closes; the caller
// must reject any larger quantity before calling (the ledger itself
// only ever processes a SELL up to the held quantity).
func ApplyFill(existing *models.Position, side string, quantity, price decimal.Decimal) PositionChange {
	if existing == nil {
		if side != models.SideBuy {
			return PositionChange{Kind: PositionNone, RealizedPnl: decimal.Zero}
		}
		return PositionChange{
			Kind: PositionCreated,
			Position: &models.Position{
				Quantity: quantity,
				AvgPrice: price,
			},
			RealizedPnl: decimal.Zero,
		}
	}

	if side == models.SideBuy {
		newQty := existing.Quantity.Add(quantity)
		newAvg := existing.AvgPrice.Mul(existing.Quantity).
			Add(price.Mul(quantity)).
			Div(newQty)
		updated := *existing
		updated.Quantity = newQty
		updated.AvgPrice = newAvg
		return PositionChange{Kind: PositionUpdated, Position: &updated, RealizedPnl: decimal.Zero}
	}

	sellQty := quantity
	if sellQty.GreaterThan(existing.Quantity) {
		sellQty = existing.Quantity
	}
	realized := price.Sub(existing.AvgPrice).Mul(sellQty)

	if sellQty.Equal(existing.Quantity) {
		return PositionChange{Kind: PositionClosed, RealizedPnl: realized}
	}

	updated := *existing
	updated.Quantity = existing.Quantity.Sub(sellQty)
	updated.RealizedPnl = existing.RealizedPnl.Add(realized)
	return PositionChange{Kind: PositionUpdated, Position: &updated, RealizedPnl: realized}
}
