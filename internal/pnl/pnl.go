// Package pnl computes realized profit and fees of trade drafts.
package pnl

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradejournal/internal/aggregate"
	"tradejournal/internal/fees"
	"tradejournal/internal/models"
	"tradejournal/internal/money"
)

// Result holds the money fields of one trade.
type Result struct {
	PnL    decimal.Decimal
	Fees   decimal.Decimal
	NetPnL decimal.Decimal
}

// Calculator computes Results at a fixed arithmetic context.
type Calculator struct {
	arith money.Context
}

// NewCalculator creates a calculator.
func NewCalculator(arith money.Context) *Calculator {
	return &Calculator{arith: arith}
}

// Compute returns the realized P&L over the closed portion of the draft,
// the fees of every member execution and their difference. executions must
// contain every execution referenced by the draft.
func (c *Calculator) Compute(d aggregate.TradeDraft, executions map[int64]models.Execution, model fees.Model) (Result, error) {
	if model == nil {
		model = fees.Zero
	}

	res := Result{PnL: decimal.Zero, Fees: decimal.Zero}
	if d.AverageExit.Valid && d.ClosedQuantity.IsPositive() {
		move := d.AverageExit.Decimal.Sub(d.AverageEntry)
		res.PnL = c.arith.Round(move.Mul(d.ClosedQuantity).Mul(d.Side.Sign()))
	}

	for _, m := range d.Members {
		e, ok := executions[m.ExecutionID]
		if !ok {
			return Result{}, fmt.Errorf("execution %d of trade not loaded", m.ExecutionID)
		}
		fee := model.Fee(e)
		if model.Proportional() && !m.Quantity.Equal(e.Quantity) {
			fee = c.arith.Div(fee.Mul(m.Quantity), e.Quantity)
		}
		res.Fees = res.Fees.Add(fee)
	}

	res.NetPnL = res.PnL.Sub(res.Fees)
	return res, nil
}
