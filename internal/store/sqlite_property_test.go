package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"tradejournal/internal/models"
)

// Property: For any valid execution, saving it and loading the scope history
// back returns the same prices, quantities and timestamps, with no loss of
// decimal precision.
func TestProperty_ExecutionRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "property.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	tickers := []string{"RELIANCE", "TCS", "INFY", "HDFC", "ICICI", "SBIN", "BHARTI", "ITC", "KOTAKBANK", "LT"}
	base := time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)
	run := 0

	properties.Property("Execution round-trip: save then load produces equivalent data", prop.ForAll(
		func(tickerIdx int, isSell bool, qtyUnits int64, priceCents int64, offsetMs int64) bool {
			ctx := context.Background()
			run++
			sc := models.Scope{Broker: "prop", Ticker: fmt.Sprintf("%s_%d", tickers[tickerIdx%len(tickers)], run)}

			side := models.OrderSideBuy
			if isSell {
				side = models.OrderSideSell
			}
			e := &models.Execution{
				Broker:     sc.Broker,
				Ticker:     sc.Ticker,
				Instrument: models.InstrumentEquity,
				Side:       side,
				Quantity:   decimal.New(qtyUnits, -3),
				Price:      decimal.New(priceCents, -2),
				ExecutedAt: base.Add(time.Duration(offsetMs) * time.Millisecond),
			}

			var loaded []models.Execution
			err := store.InTx(ctx, func(tx Tx) error {
				if err := tx.UpsertExecution(ctx, e); err != nil {
					return err
				}
				var err error
				loaded, err = tx.LoadExecutions(ctx, sc)
				return err
			})
			if err != nil {
				t.Logf("Failed to round-trip execution: %v", err)
				return false
			}
			if len(loaded) != 1 {
				t.Logf("Count mismatch: expected 1, got %d", len(loaded))
				return false
			}

			got := loaded[0]
			return got.ID == e.ID &&
				got.Side == e.Side &&
				got.Quantity.Equal(e.Quantity) &&
				got.Price.Equal(e.Price) &&
				got.ExecutedAt.Equal(e.ExecutedAt)
		},
		gen.IntRange(0, len(tickers)-1),
		gen.Bool(),
		gen.Int64Range(1, 10_000_000),
		gen.Int64Range(1, 100_000_000),
		gen.Int64Range(0, 365*24*3600*1000),
	))

	properties.TestingRun(t)
}
