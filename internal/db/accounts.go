package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

const accountColumns = "id, user_id, type, currency, cash, equity, margin_used, realized_pnl, created_at"

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	acct := &models.Account{}
	err := row.Scan(&acct.ID, &acct.UserID, &acct.Type, &acct.Currency,
		&acct.Cash, &acct.Equity, &acct.MarginUsed, &acct.RealizedPnl, &acct.CreatedAt)
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// CreateAccount opens a new account. PAPER accounts start with the
// given cash; the equity starts equal to it.
func (db *DB) CreateAccount(ctx context.Context, userID uuid.UUID, accountType, currency string, initialCash decimal.Decimal) (*models.Account, error) {
	cash := decimal.Zero
	if accountType == models.AccountTypePaper {
		cash = initialCash
	}
	row := db.Pool.QueryRow(ctx,
		"INSERT INTO accounts (id, user_id, type, currency, cash, equity) VALUES ($1, $2, $3, $4, $5, $5) RETURNING "+accountColumns,
		uuid.New(), userID, accountType, currency, cash)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acct, nil
}

// GetAccount retrieves an account by id
func (db *DB) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	row := db.Pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

// GetUserAccount retrieves an account only if it belongs to the user
func (db *DB) GetUserAccount(ctx context.Context, id, userID uuid.UUID) (*models.Account, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 AND user_id = $2", id, userID)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

// GetUserAccounts retrieves all accounts for a user
func (db *DB) GetUserAccounts(ctx context.Context, userID uuid.UUID) ([]models.Account, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = $1 ORDER BY created_at", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// ListAccounts retrieves every account; used by the mark-to-market job
func (db *DB) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := db.Pool.Query(ctx, "SELECT "+accountColumns+" FROM accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// UpdateAccountEquity sets the reconciled equity and margin figures
func (db *DB) UpdateAccountEquity(ctx context.Context, id uuid.UUID, equity, marginUsed decimal.Decimal) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE accounts SET equity = $1, margin_used = $2 WHERE id = $3", equity, marginUsed, id)
	if err != nil {
		return fmt.Errorf("failed to update account equity: %w", err)
	}
	return nil
}

// AccountSummary aggregates an account with its position P&L totals
type AccountSummary struct {
	Account            models.Account    `json:"account"`
	TotalRealizedPnl   decimal.Decimal   `json:"total_realized_pnl"`
	TotalUnrealizedPnl decimal.Decimal   `json:"total_unrealized_pnl"`
	PositionsCount     int               `json:"positions_count"`
	OpenOrdersCount    int               `json:"open_orders_count"`
	Positions          []models.Position `json:"positions"`
}

// GetAccountSummary builds the dashboard summary for one account.
// Realized P&L survives position closes because fills accumulate it on
// the account row, so the account figure is added to the per-position
// totals of whatever is still open.
func (db *DB) GetAccountSummary(ctx context.Context, accountID uuid.UUID) (*AccountSummary, error) {
	acct, err := db.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	positions, err := db.GetPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	summary := &AccountSummary{
		Account:            *acct,
		TotalRealizedPnl:   acct.RealizedPnl,
		TotalUnrealizedPnl: decimal.Zero,
		Positions:          positions,
		PositionsCount:     len(positions),
	}
	for _, pos := range positions {
		summary.TotalUnrealizedPnl = summary.TotalUnrealizedPnl.Add(pos.UnrealizedPnl)
	}

	err = db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM orders WHERE account_id = $1 AND status IN ($2, $3, $4)",
		accountID, models.OrderStatusPending, models.OrderStatusOpen, models.OrderStatusPartiallyFilled).
		Scan(&summary.OpenOrdersCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count open orders: %w", err)
	}
	return summary, nil
}
