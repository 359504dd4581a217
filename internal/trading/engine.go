package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrade/internal/logger"
	"papertrade/internal/models"
)

// Engine fills paper orders. Each Execute call processes exactly one
// order: it resolves a fill price from the quote source, then applies
// the position change, the cash change and the order's FILLED status as
// a single transaction. Either every effect lands or none does.
type Engine struct {
	store  Store
	quotes QuoteSource
	now    func() time.Time
}

// NewEngine creates an execution engine.
func NewEngine(store Store, quotes QuoteSource) *Engine {
	return &Engine{store: store, quotes: quotes, now: time.Now}
}

// ExecutionResult reports a completed fill.
type ExecutionResult struct {
	OrderID        uuid.UUID       `json:"order_id"`
	Status         string          `json:"status"`
	FillPrice      decimal.Decimal `json:"fill_price"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	RealizedPnl    decimal.Decimal `json:"realized_pnl"`
}

// Execute fills a PENDING order fully at a single price, or not at all.
//
// Preconditions checked in order: the order must be PENDING
// (ErrInvalidOrderState), of type MARKET or LIMIT
// (ErrUnsupportedOrderType), on a PAPER account
// (ErrUnsupportedAccountType), and a SELL must not exceed the held
// quantity (ErrInsufficientPosition). Quote resolution happens before
// the transaction opens so the lock is never held across the quote
// source call; a failed quote propagates as ErrQuoteUnavailable.
//
// No buying-power check is performed: a BUY may drive cash negative.
//
// Calling Execute again on an already filled order fails with
// ErrInvalidOrderState and applies nothing.
func (e *Engine) Execute(ctx context.Context, orderID uuid.UUID) (*ExecutionResult, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("loading order %s: %w", orderID, err)
	}
	if order.Status != models.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidOrderState, order.ID, order.Status)
	}
	if order.Type != models.OrderTypeMarket && order.Type != models.OrderTypeLimit {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOrderType, order.Type)
	}

	account, err := e.store.GetAccount(ctx, order.AccountID)
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", order.AccountID, err)
	}
	if account.Type != models.AccountTypePaper {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAccountType, account.Type)
	}

	instrument, err := e.store.GetInstrument(ctx, order.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("loading instrument %s: %w", order.InstrumentID, err)
	}

	quote, err := e.quotes.GetQuote(ctx, instrument.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, instrument.Symbol, err)
	}

	fillPrice, err := FillPrice(order, quote)
	if err != nil {
		return nil, err
	}

	var result *ExecutionResult
	err = e.store.InTx(ctx, func(tx Tx) error {
		locked, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		// Re-check under the lock: a concurrent Execute may have won.
		if locked.Status != models.OrderStatusPending {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidOrderState, locked.ID, locked.Status)
		}

		acct, err := tx.AccountForUpdate(ctx, locked.AccountID)
		if err != nil {
			return err
		}
		pos, err := tx.PositionForUpdate(ctx, locked.AccountID, locked.InstrumentID)
		if err != nil {
			return err
		}

		if locked.Side == models.SideSell {
			if pos == nil {
				return fmt.Errorf("%w: no position in %s", ErrInsufficientPosition, instrument.Symbol)
			}
			if locked.Quantity.GreaterThan(pos.Quantity) {
				return fmt.Errorf("%w: have %s, selling %s",
					ErrInsufficientPosition, pos.Quantity, locked.Quantity)
			}
		}

		change := ApplyFill(pos, locked.Side, locked.Quantity, fillPrice)
		switch change.Kind {
		case PositionCreated:
			change.Position.AccountID = locked.AccountID
			change.Position.InstrumentID = locked.InstrumentID
			if err := tx.SavePosition(ctx, change.Position); err != nil {
				return err
			}
		case PositionUpdated:
			if err := tx.SavePosition(ctx, change.Position); err != nil {
				return err
			}
		case PositionClosed:
			if err := tx.DeletePosition(ctx, locked.AccountID, locked.InstrumentID); err != nil {
				return err
			}
		}

		newCash, newEquity := ApplyCash(acct.Cash, acct.Equity, locked.Side, fillPrice, locked.Quantity)
		if newCash.IsNegative() && !acct.Cash.IsNegative() {
			logger.Warnf("account %s cash went negative after order %s (%s)", acct.ID, locked.ID, newCash)
		}
		realized := acct.RealizedPnl.Add(change.RealizedPnl)
		if err := tx.UpdateAccountBalances(ctx, acct.ID, newCash, newEquity, realized); err != nil {
			return err
		}

		filledAt := e.now()
		if err := tx.MarkOrderFilled(ctx, locked.ID, locked.Quantity, fillPrice, filledAt); err != nil {
			return err
		}

		result = &ExecutionResult{
			OrderID:        locked.ID,
			Status:         models.OrderStatusFilled,
			FillPrice:      fillPrice,
			FilledQuantity: locked.Quantity,
			RealizedPnl:    change.RealizedPnl,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("filled order %s: %s %s %s @ %s",
		result.OrderID, order.Side, order.Quantity, instrument.Symbol, result.FillPrice)
	return result, nil
}

// Reject moves a PENDING order to REJECTED through the same locked path
// a fill takes, so the terminal status is never left implicit.
func (e *Engine) Reject(ctx context.Context, orderID uuid.UUID) error {
	return e.store.InTx(ctx, func(tx Tx) error {
		locked, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if locked.Status != models.OrderStatusPending {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidOrderState, locked.ID, locked.Status)
		}
		return tx.MarkOrderRejected(ctx, locked.ID, e.now())
	})
}
