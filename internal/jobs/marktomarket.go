package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"papertrade/internal/db"
	"papertrade/internal/logger"
	"papertrade/internal/models"
	"papertrade/internal/trading"
)

// MarkToMarket periodically reprices every open position and
// reconciles account equity to cash + position market value. It never
// touches the fill path: fills keep equity tracking cash 1:1 and this
// job folds the position value back in afterwards.
type MarkToMarket struct {
	DB     *db.DB
	Quotes trading.QuoteSource
}

// NewMarkToMarket creates the job.
func NewMarkToMarket(database *db.DB, quotes trading.QuoteSource) *MarkToMarket {
	return &MarkToMarket{DB: database, Quotes: quotes}
}

// Run performs one full pass over all accounts.
func (j *MarkToMarket) Run(ctx context.Context) error {
	accounts, err := j.DB.ListAccounts(ctx)
	if err != nil {
		return err
	}

	for _, acct := range accounts {
		if err := j.markAccount(ctx, acct); err != nil {
			logger.Errorf("mark-to-market failed for account %s: %v", acct.ID, err)
		}
	}
	return nil
}

func (j *MarkToMarket) markAccount(ctx context.Context, acct models.Account) error {
	holdings, err := j.DB.GetHoldings(ctx, acct.ID)
	if err != nil {
		return err
	}

	marketValue := decimal.Zero
	for _, h := range holdings {
		quote, err := j.Quotes.GetQuote(ctx, h.Symbol)
		if err != nil {
			// Skip repricing this position; a stale unrealized figure
			// beats a fabricated one.
			logger.Warnf("no quote for %s, keeping previous mark: %v", h.Symbol, err)
			marketValue = marketValue.Add(h.Position.AvgPrice.Mul(h.Position.Quantity).Add(h.Position.UnrealizedPnl))
			continue
		}
		unrealized := quote.Last.Sub(h.Position.AvgPrice).Mul(h.Position.Quantity)
		if err := j.DB.UpdatePositionUnrealized(ctx, h.Position.ID, unrealized); err != nil {
			return err
		}
		marketValue = marketValue.Add(quote.Last.Mul(h.Position.Quantity))
	}

	equity := acct.Cash.Add(marketValue)
	return j.DB.UpdateAccountEquity(ctx, acct.ID, equity, acct.MarginUsed)
}

// Schedule registers the job with a cron runner using the given spec
// (e.g. "@every 1m"). The returned cron must be started by the caller.
func (j *MarkToMarket) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		if err := j.Run(context.Background()); err != nil {
			logger.Errorf("mark-to-market pass failed: %v", err)
		}
	})
	return err
}
