package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
	"papertrade/internal/trading"
)

// InTx runs fn inside a transaction. The fill path in trading.Engine
// does all of its writes through the Tx it receives here, so an error
// from fn rolls every one of them back and the order stays PENDING.
func (db *DB) InTx(ctx context.Context, fn func(tx trading.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&fillTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// fillTx implements trading.Tx over a pgx transaction. The *ForUpdate
// reads take row locks; lock order is always order, then account, then
// position, so two fills on the same account cannot deadlock.
type fillTx struct {
	tx pgx.Tx
}

func (t *fillTx) OrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := t.tx.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return order, nil
}

func (t *fillTx) AccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	row := t.tx.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1 FOR UPDATE", id)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return acct, nil
}

func (t *fillTx) PositionForUpdate(ctx context.Context, accountID, instrumentID uuid.UUID) (*models.Position, error) {
	row := t.tx.QueryRow(ctx,
		"SELECT "+positionColumns+" FROM positions WHERE account_id = $1 AND instrument_id = $2 FOR UPDATE",
		accountID, instrumentID)
	pos, err := scanPosition(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock position: %w", err)
	}
	return pos, nil
}

func (t *fillTx) SavePosition(ctx context.Context, pos *models.Position) error {
	if pos.ID == uuid.Nil {
		pos.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx,
		"INSERT INTO positions (id, account_id, instrument_id, quantity, avg_price, realized_pnl, unrealized_pnl) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) "+
			"ON CONFLICT (account_id, instrument_id) DO UPDATE SET "+
			"quantity = EXCLUDED.quantity, avg_price = EXCLUDED.avg_price, realized_pnl = EXCLUDED.realized_pnl",
		pos.ID, pos.AccountID, pos.InstrumentID, pos.Quantity, pos.AvgPrice, pos.RealizedPnl, pos.UnrealizedPnl)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

func (t *fillTx) DeletePosition(ctx context.Context, accountID, instrumentID uuid.UUID) error {
	_, err := t.tx.Exec(ctx,
		"DELETE FROM positions WHERE account_id = $1 AND instrument_id = $2", accountID, instrumentID)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

func (t *fillTx) UpdateAccountBalances(ctx context.Context, id uuid.UUID, cash, equity, realizedPnl decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		"UPDATE accounts SET cash = $1, equity = $2, realized_pnl = $3 WHERE id = $4",
		cash, equity, realizedPnl, id)
	if err != nil {
		return fmt.Errorf("failed to update account balances: %w", err)
	}
	return nil
}

func (t *fillTx) MarkOrderFilled(ctx context.Context, id uuid.UUID, quantity, price decimal.Decimal, at time.Time) error {
	_, err := t.tx.Exec(ctx,
		"UPDATE orders SET status = $1, filled_quantity = $2, avg_fill_price = $3, filled_at = $4 WHERE id = $5",
		models.OrderStatusFilled, quantity, price, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark order filled: %w", err)
	}
	return nil
}

func (t *fillTx) MarkOrderRejected(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx,
		"UPDATE orders SET status = $1, cancelled_at = $2 WHERE id = $3",
		models.OrderStatusRejected, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark order rejected: %w", err)
	}
	return nil
}
