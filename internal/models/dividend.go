package models

import "time"

// Dividend represents a declared dividend for a symbol.
type Dividend struct {
	ID                 string
	Symbol             string
	ExDate             time.Time
	PayDate            time.Time
	DPS                float64 // dividend per share
	Currency           string
	WithholdingTaxRate float64 // fraction, e.g. 0.25
}

// DividendReceivable is the accrued-but-unpaid amount between ex-date and
// pay-date. The quantity is frozen at ex-date so later trades do not change
// the payout.
type DividendReceivable struct {
	ID          string
	PositionID  string
	DividendID  string
	QtyAtExDate float64
	Gross       float64
	Withholding float64
	Net         float64
	PayDate     time.Time
	Credited    bool
}

// DividendApplication is the computed gross/withholding/net breakdown for
// one dividend against one position.
type DividendApplication struct {
	Gross          float64
	WithholdingTax float64
	Net            float64
	QtyAtExDate    float64
}
