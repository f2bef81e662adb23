// Package market provides market-data interfaces and quote sources.
package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/models"
)

// DataProvider defines the interface for market-data lookups. The live
// orchestrator is the only caller; transport details live behind this
// interface and are out of the engine's scope.
type DataProvider interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// CheckFresh rejects quotes older than maxAge. A stale quote skips the
// tick; the next poll re-attempts.
func CheckFresh(quote *models.Quote, now time.Time, maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}
	if age := now.Sub(quote.Timestamp); age > maxAge {
		return fmt.Errorf("%w: quote for %s is %s old (max %s)", errors.ErrStaleQuote, quote.Symbol, age, maxAge)
	}
	return nil
}

// BarSource iterates historical candles strictly forward, producing the
// quote stream for a deterministic simulation run.
type BarSource struct {
	symbol string
	bars   []models.Candle
	cursor int
}

// NewBarSource creates a bar iterator over the candles in the order given.
func NewBarSource(symbol string, bars []models.Candle) *BarSource {
	return &BarSource{symbol: symbol, bars: bars}
}

// Next returns the next bar as a quote, advancing the cursor. ok is false
// once the series is exhausted.
func (b *BarSource) Next(_ context.Context) (models.Quote, bool, error) {
	if b.cursor >= len(b.bars) {
		return models.Quote{}, false, nil
	}
	bar := b.bars[b.cursor]
	b.cursor++
	return bar.Quote(b.symbol), true, nil
}

// ReplayProvider serves a historical candle series as live quotes,
// advancing one bar per poll and stamping each quote with the current time
// so freshness checks pass. An exhausted series keeps serving its last bar.
type ReplayProvider struct {
	mu     sync.Mutex
	now    func() time.Time
	bars   map[string][]models.Candle
	cursor map[string]int
}

// NewReplayProvider creates a replay provider reading the given clock.
func NewReplayProvider(now func() time.Time) *ReplayProvider {
	return &ReplayProvider{
		now:    now,
		bars:   make(map[string][]models.Candle),
		cursor: make(map[string]int),
	}
}

// AddSeries registers the bar series replayed for a symbol.
func (p *ReplayProvider) AddSeries(symbol string, bars []models.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[symbol] = bars
	p.cursor[symbol] = 0
}

// GetQuote returns the next bar's close for the symbol as a fresh quote.
func (p *ReplayProvider) GetQuote(_ context.Context, symbol string) (*models.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bars := p.bars[symbol]
	if len(bars) == 0 {
		return nil, errors.NewTransientError("get_quote", fmt.Errorf("no bars for %s", symbol))
	}
	i := p.cursor[symbol]
	if i >= len(bars) {
		i = len(bars) - 1
	} else {
		p.cursor[symbol] = i + 1
	}
	bar := bars[i]
	return &models.Quote{
		Symbol:    symbol,
		Price:     bar.Close,
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Close:     bar.Close,
		Volume:    bar.Volume,
		Session:   models.SessionRegular,
		Timestamp: p.now(),
	}, nil
}

// StaticProvider serves a fixed quote per symbol. Used by tests and as the
// data side of the paper broker.
type StaticProvider struct {
	mu     sync.RWMutex
	quotes map[string]models.Quote
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{quotes: make(map[string]models.Quote)}
}

// SetQuote sets the quote served for a symbol.
func (p *StaticProvider) SetQuote(q models.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[q.Symbol] = q
}

// GetQuote returns the stored quote for the symbol.
func (p *StaticProvider) GetQuote(_ context.Context, symbol string) (*models.Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[symbol]
	if !ok {
		return nil, errors.NewTransientError("get_quote", fmt.Errorf("no quote for %s", symbol))
	}
	cp := q
	return &cp, nil
}
