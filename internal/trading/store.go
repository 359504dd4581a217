package trading

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// QuoteSource supplies current prices. Quotes may be stale or
// synthetic; the engine does not validate bid <= ask.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
}

// Store is the persistence surface the engine needs. InTx runs fn
// inside a transaction: if fn returns an error every write made through
// the Tx is rolled back.
type Store interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetInstrument(ctx context.Context, id uuid.UUID) (*models.Instrument, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view used while applying a fill. The
// *ForUpdate reads take row locks so that two fills against the same
// account or the same (account, instrument) position serialize instead
// of racing the read-modify-write arithmetic.
type Tx interface {
	OrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	AccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// PositionForUpdate returns nil, nil when no position exists for
	// the pair.
	PositionForUpdate(ctx context.Context, accountID, instrumentID uuid.UUID) (*models.Position, error)

	SavePosition(ctx context.Context, pos *models.Position) error
	DeletePosition(ctx context.Context, accountID, instrumentID uuid.UUID) error
	UpdateAccountBalances(ctx context.Context, id uuid.UUID, cash, equity, realizedPnl decimal.Decimal) error
	MarkOrderFilled(ctx context.Context, id uuid.UUID, quantity, price decimal.Decimal, at time.Time) error
	MarkOrderRejected(ctx context.Context, id uuid.UUID, at time.Time) error
}
