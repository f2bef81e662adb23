package engine

import (
	"fmt"

	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/models"
)

// AccrueDividend computes the gross/withholding/net breakdown at ex-date
// and books the net amount as a receivable. The quantity is frozen in the
// returned receivable so later trades do not change the payout.
func AccrueDividend(pos *models.PositionCell, div models.Dividend) (models.DividendApplication, *models.DividendReceivable, error) {
	if div.DPS <= 0 {
		return models.DividendApplication{}, nil, errors.NewConfigError("dps", div.DPS, "must be positive")
	}
	if div.WithholdingTaxRate < 0 || div.WithholdingTaxRate >= 1 {
		return models.DividendApplication{}, nil, errors.NewConfigError("withholding_tax_rate", div.WithholdingTaxRate, "must be in [0, 1)")
	}

	gross := pos.Qty * div.DPS
	tax := gross * div.WithholdingTaxRate
	net := gross - tax

	app := models.DividendApplication{
		Gross:          gross,
		WithholdingTax: tax,
		Net:            net,
		QtyAtExDate:    pos.Qty,
	}
	rcv := &models.DividendReceivable{
		PositionID:  pos.ID,
		DividendID:  div.ID,
		QtyAtExDate: pos.Qty,
		Gross:       gross,
		Withholding: tax,
		Net:         net,
		PayDate:     div.PayDate,
	}
	pos.DividendReceivable += net
	return app, rcv, nil
}

// CreditDividend moves a matured receivable into cash at pay-date.
// TotalDividendsReceived only ever grows.
func CreditDividend(pos *models.PositionCell, rcv *models.DividendReceivable) error {
	if rcv.Credited {
		return fmt.Errorf("%w: receivable %s already credited", errors.ErrInvalidOrder, rcv.ID)
	}
	pos.Cash += rcv.Net
	pos.DividendReceivable -= rcv.Net
	if pos.DividendReceivable < 0 {
		pos.DividendReceivable = 0
	}
	pos.TotalDividendsReceived += rcv.Net
	rcv.Credited = true
	return nil
}
