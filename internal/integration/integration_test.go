// Package integration runs the journal end to end on a real SQLite file.
package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradejournal/internal/audit"
	"tradejournal/internal/fees"
	"tradejournal/internal/importer"
	"tradejournal/internal/journal"
	"tradejournal/internal/models"
	"tradejournal/internal/store"
)

const legacyCSV = `broker,ticker,side,quantity,entry_price,entry_at,exit_price,exit_at
Zerodha,infy,LONG,100,10,2024-02-01 09:15:00,12,2024-02-01 15:00:00
`

const fillsCSV = `broker,ticker,side,quantity,price,executed_at
zerodha,INFY,BUY,50,12,2024-02-03 09:20:00
zerodha,INFY,SELL,50,11,2024-02-03 11:45:00
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func scopeTrades(t *testing.T, s store.JournalStore, scope models.Scope) []models.Trade {
	t.Helper()
	trades, err := s.ListTrades(context.Background(), store.TradeFilter{Broker: scope.Broker, Ticker: scope.Ticker})
	require.NoError(t, err)
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades
}

// TestEndToEndWorkflow imports history, annotates a trade, edits a fill and
// checks that derived trades, annotations and the audit trail agree.
func TestEndToEndWorkflow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	infy := models.Scope{Broker: "zerodha", Ticker: "INFY"}

	s, err := store.NewSQLiteStore(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	defer s.Close()

	auditLog, err := audit.NewLogger(audit.DefaultConfig(filepath.Join(dir, "audit")))
	require.NoError(t, err)

	registry := fees.NewRegistry()
	registry.Register("zerodha", fees.Schedule{PerFill: decimal.NewFromInt(20)})

	coord := journal.NewCoordinator(s,
		journal.WithFees(registry),
		journal.WithAudit(auditLog),
		journal.WithLogger(zerolog.Nop()),
	)
	im := importer.New(coord, importer.WithWorkers(2))

	// Legacy history first, then broker fills for the same scope
	summary, err := im.ImportLegacy(ctx, writeFile(t, dir, "legacy.csv", legacyCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Executions)

	summary, err = im.ImportFills(ctx, writeFile(t, dir, "fills.csv", fillsCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Trades)

	trades := scopeTrades(t, s, infy)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].NetPnL.Equal(decimal.NewFromInt(160)), trades[0].NetPnL.String())
	assert.True(t, trades[1].NetPnL.Equal(decimal.NewFromInt(-90)), trades[1].NetPnL.String())

	// Annotate the second trade, then correct its exit price
	stop, err := coord.AddStop(ctx, trades[1].ID, decimal.NewFromInt(11))
	require.NoError(t, err)

	execs, err := s.ListExecutions(ctx, store.ExecutionFilter{Ticker: "INFY"})
	require.NoError(t, err)
	require.Len(t, execs, 4)
	exit := execs[3]
	require.Equal(t, models.OrderSideSell, exit.Side)
	exit.Price = decimal.NewFromInt(13)
	_, err = coord.Apply(ctx, journal.EditExecution(exit))
	require.NoError(t, err)

	edited := scopeTrades(t, s, infy)
	require.Len(t, edited, 2)
	assert.Equal(t, trades[0].ID, edited[0].ID)
	assert.Equal(t, trades[1].ID, edited[1].ID)
	assert.True(t, edited[1].PnL.Equal(decimal.NewFromInt(50)))
	assert.True(t, edited[1].NetPnL.Equal(decimal.NewFromInt(10)))

	stops, err := s.ListStops(ctx, edited[1].ID)
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, stop.ID, stops[0].ID)
	assert.True(t, stops[0].IsPrimary)

	// Rebuilding from the ledger changes nothing
	rebuilt, err := coord.RecomputeAll(ctx)
	require.NoError(t, err)
	require.Len(t, rebuilt, 1)
	for i, tr := range rebuilt[0].Trades {
		assert.Equal(t, edited[i].ID, tr.ID)
		assert.True(t, edited[i].NetPnL.Equal(tr.NetPnL))
	}

	require.NoError(t, auditLog.Close())
	f, err := os.Open(filepath.Join(dir, "audit", "audit.log"))
	require.NoError(t, err)
	defer f.Close()

	var events []audit.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev audit.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	require.NotEmpty(t, events)

	types := make(map[audit.EventType]int)
	for _, ev := range events {
		assert.True(t, ev.Success, ev.ErrorMsg)
		types[ev.EventType]++
	}
	assert.Equal(t, 2, types[audit.BatchApplied])
	assert.Equal(t, 1, types[audit.ExecutionEdited])
}
