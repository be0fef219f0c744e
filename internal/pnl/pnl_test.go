package pnl

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradejournal/internal/aggregate"
	"tradejournal/internal/fees"
	"tradejournal/internal/models"
	"tradejournal/internal/money"
)

var scope = models.Scope{Broker: "zerodha", Ticker: "SBIN"}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ex(id int64, side models.OrderSide, qty, price string, minute int) models.Execution {
	return models.Execution{
		ID:         id,
		Broker:     scope.Broker,
		Ticker:     scope.Ticker,
		Instrument: models.InstrumentEquity,
		Side:       side,
		Quantity:   dec(qty),
		Price:      dec(price),
		ExecutedAt: time.Date(2024, 1, 2, 10, minute, 0, 0, time.UTC),
	}
}

func compute(t *testing.T, model fees.Model, execs ...models.Execution) []Result {
	t.Helper()
	drafts, err := aggregate.Recompute(scope, execs)
	require.NoError(t, err)

	byID := make(map[int64]models.Execution, len(execs))
	for _, e := range execs {
		byID[e.ID] = e
	}
	calc := NewCalculator(money.DefaultContext())
	results := make([]Result, 0, len(drafts))
	for _, d := range drafts {
		r, err := calc.Compute(d, byID, model)
		require.NoError(t, err)
		results = append(results, r)
	}
	return results
}

func TestCompute_ClosedLong(t *testing.T) {
	res := compute(t, nil,
		ex(1, models.OrderSideBuy, "100", "10", 0),
		ex(2, models.OrderSideBuy, "100", "12", 1),
		ex(3, models.OrderSideSell, "200", "15", 2),
	)
	require.Len(t, res, 1)
	assert.True(t, res[0].PnL.Equal(dec("800")), "pnl %s", res[0].PnL)
	assert.True(t, res[0].Fees.IsZero())
	assert.True(t, res[0].NetPnL.Equal(dec("800")))
}

func TestCompute_PartialCloseRealizesClosedPortion(t *testing.T) {
	res := compute(t, nil,
		ex(1, models.OrderSideBuy, "100", "10", 0),
		ex(2, models.OrderSideSell, "40", "12", 1),
	)
	require.Len(t, res, 1)
	assert.True(t, res[0].PnL.Equal(dec("80")))
}

func TestCompute_OpenTradeHasNoPnL(t *testing.T) {
	res := compute(t, nil, ex(1, models.OrderSideSell, "10", "50", 0))
	require.Len(t, res, 1)
	assert.True(t, res[0].PnL.IsZero())
}

func TestCompute_ShortProfit(t *testing.T) {
	res := compute(t, nil,
		ex(1, models.OrderSideSell, "10", "50", 0),
		ex(2, models.OrderSideBuy, "10", "45", 1),
	)
	assert.True(t, res[0].PnL.Equal(dec("50")))
}

func TestCompute_CommonExitEntryFees(t *testing.T) {
	execs := []models.Execution{
		ex(1, models.OrderSideBuy, "50", "10", 0),
		ex(2, models.OrderSideSell, "80", "11", 1),
	}

	t.Run("proportional", func(t *testing.T) {
		perUnit := fees.Func(func(e models.Execution) decimal.Decimal {
			return e.Quantity.Mul(dec("0.1"))
		})
		res := compute(t, perUnit, execs...)
		require.Len(t, res, 2)
		assert.True(t, res[0].PnL.Equal(dec("50")))
		// 5 for the entry, 50/80 of 8 for the exit
		assert.True(t, res[0].Fees.Equal(dec("10")), "fees %s", res[0].Fees)
		assert.True(t, res[0].NetPnL.Equal(dec("40")))
		assert.True(t, res[1].Fees.Equal(dec("3")), "fees %s", res[1].Fees)
		assert.True(t, res[1].NetPnL.Equal(dec("-3")))
	})

	t.Run("flat per fill", func(t *testing.T) {
		flat := fees.Schedule{PerFill: dec("20")}
		res := compute(t, flat, execs...)
		require.Len(t, res, 2)
		assert.True(t, res[0].Fees.Equal(dec("40")))
		assert.True(t, res[1].Fees.Equal(dec("20")))
	})
}

func TestCompute_MissingExecution(t *testing.T) {
	drafts, err := aggregate.Recompute(scope, []models.Execution{ex(1, models.OrderSideBuy, "1", "1", 0)})
	require.NoError(t, err)
	_, err = NewCalculator(money.DefaultContext()).Compute(drafts[0], map[int64]models.Execution{}, nil)
	assert.Error(t, err)
}
