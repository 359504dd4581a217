package marketdata

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

var halfSpread = decimal.RequireFromString("0.01")

// Service produces synthetic quotes and bars. In production this would
// call a market data provider; here prices are generated around a
// stable per-symbol base so repeated lookups stay plausible. Quotes are
// cached for a short TTL, matching the provider-side cache the rest of
// the system expects.
//
// The clock and randomness source are injected so tests control both.
type Service struct {
	mu    sync.Mutex
	cache map[string]cachedQuote
	rng   *rand.Rand
	now   func() time.Time
	ttl   time.Duration
}

type cachedQuote struct {
	quote     models.Quote
	expiresAt time.Time
}

// NewService creates a quote service with the given cache TTL.
func NewService(ttl time.Duration) *Service {
	return &Service{
		cache: make(map[string]cachedQuote),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
		ttl:   ttl,
	}
}

// NewServiceWithClock is NewService with a deterministic clock and seed.
func NewServiceWithClock(ttl time.Duration, now func() time.Time, seed int64) *Service {
	s := NewService(ttl)
	s.now = now
	s.rng = rand.New(rand.NewSource(seed))
	return s
}

// GetQuote returns the current quote for a symbol, served from cache
// within the TTL. The generated spread is one cent either side of the
// last price.
func (s *Service) GetQuote(_ context.Context, symbol string) (models.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cached, ok := s.cache[symbol]; ok && now.Before(cached.expiresAt) {
		return cached.quote, nil
	}

	last := s.lastPriceLocked(symbol)
	quote := models.Quote{
		Symbol:    symbol,
		Last:      last,
		Bid:       last.Sub(halfSpread),
		Ask:       last.Add(halfSpread),
		Volume:    s.rng.Int63n(1_000_000),
		Timestamp: now,
	}
	s.cache[symbol] = cachedQuote{quote: quote, expiresAt: now.Add(s.ttl)}
	return quote, nil
}

// History returns synthetic daily OHLC bars for the last `days` days.
func (s *Service) History(_ context.Context, symbol string, days int) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := basePrice(symbol)
	now := s.now()
	bars := make([]models.Candle, 0, days+1)
	for i := days; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Truncate(24 * time.Hour)
		open := base * (1 + (s.rng.Float64()-0.5)*0.04)
		close := open + (s.rng.Float64()-0.5)*open*0.02
		high := maxF(open, close) + s.rng.Float64()*open*0.01
		low := minF(open, close) - s.rng.Float64()*open*0.01
		bars = append(bars, models.Candle{
			Time:   day,
			Open:   decimal.NewFromFloat(open).Round(2),
			High:   decimal.NewFromFloat(high).Round(2),
			Low:    decimal.NewFromFloat(low).Round(2),
			Close:  decimal.NewFromFloat(close).Round(2),
			Volume: s.rng.Int63n(1_000_000),
		})
	}
	return bars, nil
}

// lastPriceLocked walks the symbol's base price by up to ±2%.
func (s *Service) lastPriceLocked(symbol string) decimal.Decimal {
	base := basePrice(symbol)
	jitter := 1 + (s.rng.Float64()-0.5)*0.04
	return decimal.NewFromFloat(base * jitter).Round(2)
}

// basePrice maps a symbol to a stable price in [100, 1100).
func basePrice(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 100 + float64(h.Sum32()%100_000)/100
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
