package models

import "time"

// PositionCell is the cash+stock unit the strategy is applied to. All
// mutation goes through the engine's position mutator and dividend
// processor; callers treat the struct as a value snapshot.
type PositionCell struct {
	ID          string
	TenantID    string
	PortfolioID string
	Symbol      string

	Qty                    float64
	Cash                   float64
	AnchorPrice            float64
	AvgCost                float64
	DividendReceivable     float64
	TotalCommissionPaid    float64
	TotalDividendsReceived float64
	RealizedPnL            float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalValue returns cash plus the stock value at the given price.
func (p *PositionCell) TotalValue(price float64) float64 {
	return p.Cash + p.Qty*price
}

// StockPct returns the fraction of total value held in stock, in [0, 1].
// Returns 0 for an empty position.
func (p *PositionCell) StockPct(price float64) float64 {
	total := p.TotalValue(price)
	if total <= 0 {
		return 0
	}
	return p.Qty * price / total
}

// Clone returns a copy of the position snapshot.
func (p *PositionCell) Clone() PositionCell {
	return *p
}
