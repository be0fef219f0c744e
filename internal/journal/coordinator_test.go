package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"tradejournal/internal/errors"
	"tradejournal/internal/fees"
	"tradejournal/internal/models"
	"tradejournal/internal/store"
)

var (
	infy = models.Scope{Broker: "zerodha", Ticker: "INFY"}
	tcs  = models.Scope{Broker: "zerodha", Ticker: "TCS"}
	t0   = time.Date(2024, 2, 1, 9, 15, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *store.SQLiteStore) {
	t.Helper()
	s := newTestStore(t)
	return NewCoordinator(s, opts...), s
}

func execution(scope models.Scope, side models.OrderSide, qty, price string, minute int) models.Execution {
	return models.Execution{
		Broker:     scope.Broker,
		Ticker:     scope.Ticker,
		Instrument: models.InstrumentEquity,
		Side:       side,
		Quantity:   dec(qty),
		Price:      dec(price),
		ExecutedAt: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func insert(t *testing.T, c *Coordinator, e models.Execution) *Result {
	t.Helper()
	res, err := c.Apply(context.Background(), InsertExecution(e))
	require.NoError(t, err)
	return res
}

func scopeTrades(t *testing.T, s store.JournalStore, scope models.Scope) []models.Trade {
	t.Helper()
	trades, err := s.ListTrades(context.Background(), store.TradeFilter{Broker: scope.Broker, Ticker: scope.Ticker})
	require.NoError(t, err)
	// ListTrades is newest first; tests read them in sequence order
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades
}

func TestApply_SequentialEntriesAndExit(t *testing.T) {
	c, s := newTestCoordinator(t)

	insert(t, c, execution(infy, models.OrderSideBuy, "100", "10", 0))
	res := insert(t, c, execution(infy, models.OrderSideBuy, "100", "12", 1))
	require.Len(t, res.Scopes, 1)
	require.Len(t, res.Scopes[0].Trades, 1)
	open := res.Scopes[0].Trades[0]
	assert.False(t, open.IsClosed)
	assert.True(t, open.Quantity.Equal(dec("200")))
	assert.True(t, open.AverageEntry.Equal(dec("11")))

	insert(t, c, execution(infy, models.OrderSideSell, "200", "15", 2))

	trades := scopeTrades(t, s, infy)
	require.Len(t, trades, 1)
	closed := trades[0]
	assert.Equal(t, open.ID, closed.ID, "trade identity survives recomputation")
	assert.True(t, closed.IsClosed)
	assert.True(t, closed.AverageExit.Decimal.Equal(dec("15")))
	assert.True(t, closed.PnL.Equal(dec("800")))
	assert.True(t, closed.NetPnL.Equal(dec("800")))
	require.NotNil(t, closed.ExitAt)
}

func TestApply_PartialClose(t *testing.T) {
	c, s := newTestCoordinator(t)
	insert(t, c, execution(infy, models.OrderSideBuy, "100", "10", 0))
	insert(t, c, execution(infy, models.OrderSideSell, "40", "12", 1))

	trades := scopeTrades(t, s, infy)
	require.Len(t, trades, 1)
	assert.False(t, trades[0].IsClosed)
	assert.True(t, trades[0].ClosedQuantity.Equal(dec("40")))
	assert.True(t, trades[0].AverageExit.Decimal.Equal(dec("12")))
	assert.True(t, trades[0].PnL.Equal(dec("80")))
	assert.Nil(t, trades[0].ExitAt)
}

func TestApply_CommonExitEntry(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()
	insert(t, c, execution(infy, models.OrderSideBuy, "50", "10", 0))
	res := insert(t, c, execution(infy, models.OrderSideSell, "80", "11", 1))
	flipID := res.Execution.ID

	trades := scopeTrades(t, s, infy)
	require.Len(t, trades, 2)
	assert.Equal(t, models.TradeSideLong, trades[0].Side)
	assert.True(t, trades[0].PnL.Equal(dec("50")))
	assert.Equal(t, models.TradeSideShort, trades[1].Side)
	assert.True(t, trades[1].Quantity.Equal(dec("30")))
	assert.True(t, trades[1].AverageEntry.Equal(dec("11")))

	for i, want := range []string{"50", "30"} {
		members, err := s.TradeMembership(ctx, trades[i].ID)
		require.NoError(t, err)
		var found bool
		for _, m := range members {
			if m.ExecutionID == flipID {
				found = true
				assert.True(t, m.Quantity.Equal(dec(want)))
			}
		}
		assert.True(t, found, "flip execution belongs to trade %d", i)
	}
}

func TestApply_OutOfOrderInsertMatchesInOrder(t *testing.T) {
	late, lateStore := newTestCoordinator(t)
	insert(t, late, execution(infy, models.OrderSideBuy, "100", "10", 0))
	insert(t, late, execution(infy, models.OrderSideSell, "100", "12", 20))
	before := scopeTrades(t, lateStore, infy)
	require.Len(t, before, 1)
	insert(t, late, execution(infy, models.OrderSideBuy, "50", "11", 10))

	inOrder, inOrderStore := newTestCoordinator(t)
	insert(t, inOrder, execution(infy, models.OrderSideBuy, "100", "10", 0))
	insert(t, inOrder, execution(infy, models.OrderSideBuy, "50", "11", 10))
	insert(t, inOrder, execution(infy, models.OrderSideSell, "100", "12", 20))

	got := scopeTrades(t, lateStore, infy)
	want := scopeTrades(t, inOrderStore, infy)
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, sameTrade(want[i], got[i]), "trade %d differs", i)
	}
	assert.Equal(t, before[0].ID, got[0].ID)
	assert.False(t, got[0].IsClosed)
}

func TestApply_LockedExecutionIsImmutable(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()
	res := insert(t, c, execution(infy, models.OrderSideBuy, "10", "100", 0))
	id := res.Execution.ID
	insert(t, c, execution(infy, models.OrderSideSell, "5", "110", 1))

	_, err := c.Apply(ctx, LockExecution(id))
	require.NoError(t, err)
	before := scopeTrades(t, s, infy)

	edited := execution(infy, models.OrderSideBuy, "20", "100", 0)
	edited.ID = id
	_, err = c.Apply(ctx, EditExecution(edited))
	require.Error(t, err)
	var locked *errors.ExecutionLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, id, locked.ExecutionID)

	_, err = c.Apply(ctx, DeleteExecution(id))
	assert.ErrorIs(t, err, errors.ErrExecutionLocked)

	after := scopeTrades(t, s, infy)
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, sameTrade(before[i], after[i]))
		assert.Equal(t, before[i].ID, after[i].ID)
	}
	stored, err := s.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.Locked)
	assert.True(t, stored.Quantity.Equal(dec("10")))

	// locking twice is harmless
	_, err = c.Apply(ctx, LockExecution(id))
	assert.NoError(t, err)
}

func TestApply_InsertCannotOverwriteStoredExecution(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()
	res := insert(t, c, execution(infy, models.OrderSideBuy, "10", "100", 0))
	id := res.Execution.ID
	_, err := c.Apply(ctx, LockExecution(id))
	require.NoError(t, err)

	rewrite := execution(tcs, models.OrderSideBuy, "999", "100", 0)
	rewrite.ID = id
	_, err = c.Apply(ctx, InsertExecution(rewrite))
	assert.ErrorIs(t, err, errors.ErrInputValidation)
	_, err = c.ApplyBatch(ctx, tcs, []Mutation{InsertExecution(rewrite)})
	assert.ErrorIs(t, err, errors.ErrInputValidation)

	stored, err := s.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, infy, stored.Scope())
	assert.True(t, stored.Quantity.Equal(dec("10")))
	assert.True(t, stored.Locked)
	assert.Len(t, scopeTrades(t, s, infy), 1)
	assert.Empty(t, scopeTrades(t, s, tcs))
}

func TestApply_LogsOperationAndExecution(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newTestCoordinator(t, WithLogger(zerolog.New(&buf)))
	ctx := context.Background()

	res := insert(t, c, execution(infy, models.OrderSideBuy, "10", "100", 0))
	_, err := c.Apply(ctx, LockExecution(res.Execution.ID))
	require.NoError(t, err)

	var mutations []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if entry["event"] == "mutation" {
			mutations = append(mutations, entry)
		}
	}
	require.Len(t, mutations, 2)
	assert.Equal(t, "insert", mutations[0]["operation"])
	assert.Equal(t, "lock", mutations[1]["operation"])
	for _, m := range mutations {
		assert.Equal(t, "info", m["level"])
		assert.EqualValues(t, res.Execution.ID, m["execution_id"])
		assert.Equal(t, "zerodha:INFY", m["scope"])
	}
}

func TestApply_ValidationRejectsBeforeStorage(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	bad := []models.Execution{
		execution(infy, models.OrderSideBuy, "0", "10", 0),
		execution(infy, models.OrderSideBuy, "1", "-1", 0),
		execution(infy, "HOLD", "1", "10", 0),
		execution(models.Scope{Broker: "zerodha"}, models.OrderSideBuy, "1", "10", 0),
		execution(models.Scope{Broker: "zerodha", Ticker: "INFY; DROP"}, models.OrderSideBuy, "1", "10", 0),
	}
	for _, e := range bad {
		_, err := c.Apply(ctx, InsertExecution(e))
		assert.ErrorIs(t, err, errors.ErrInputValidation)
	}

	_, err := c.Apply(ctx, DeleteExecution(0))
	assert.ErrorIs(t, err, errors.ErrInputValidation)
	_, err = c.Apply(ctx, DeleteExecution(42))
	assert.ErrorIs(t, err, errors.ErrDataNotFound)

	execs, err := s.ListExecutions(ctx, store.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestApply_NormalizesScope(t *testing.T) {
	c, _ := newTestCoordinator(t)
	e := execution(models.Scope{Broker: " Zerodha ", Ticker: "infy"}, models.OrderSideBuy, "1", "10", 0)
	res := insert(t, c, e)
	assert.Equal(t, infy, res.Execution.Scope())
}

func TestApply_DeleteRemovesTradeAndAnnotations(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()
	res := insert(t, c, execution(infy, models.OrderSideBuy, "10", "100", 0))
	tradeID := res.Scopes[0].Trades[0].ID

	stop, err := c.AddStop(ctx, tradeID, dec("95"))
	require.NoError(t, err)
	assert.True(t, stop.IsPrimary)

	_, err = c.Apply(ctx, DeleteExecution(res.Execution.ID))
	require.NoError(t, err)

	assert.Empty(t, scopeTrades(t, s, infy))
	_, err = s.GetStop(ctx, stop.ID)
	assert.ErrorIs(t, err, errors.ErrDataNotFound)
}

func TestApply_EditAcrossScopesRecomputesBoth(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()
	res := insert(t, c, execution(infy, models.OrderSideBuy, "10", "100", 0))
	insert(t, c, execution(tcs, models.OrderSideSell, "10", "3000", 1))

	moved := *res.Execution
	moved.Ticker = tcs.Ticker
	moved.Price = dec("2900")
	out, err := c.Apply(ctx, EditExecution(moved))
	require.NoError(t, err)
	require.Len(t, out.Scopes, 2)

	assert.Empty(t, scopeTrades(t, s, infy))
	trades := scopeTrades(t, s, tcs)
	require.Len(t, trades, 1)
	assert.Equal(t, models.TradeSideLong, trades[0].Side)
	assert.True(t, trades[0].IsClosed)
	assert.True(t, trades[0].PnL.Equal(dec("1000")))
}

func TestApply_RollsBackWhenReplaceFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ok := NewCoordinator(s)
	_, err := ok.Apply(ctx, InsertExecution(execution(infy, models.OrderSideBuy, "10", "100", 0)))
	require.NoError(t, err)
	before := scopeTrades(t, s, infy)

	broken := NewCoordinator(&failingStore{SQLiteStore: s})
	_, err = broken.Apply(ctx, InsertExecution(execution(infy, models.OrderSideSell, "10", "120", 1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPersistence)

	execs, err := s.ListExecutions(ctx, store.ExecutionFilter{})
	require.NoError(t, err)
	assert.Len(t, execs, 1, "the inserted execution was rolled back")
	after := scopeTrades(t, s, infy)
	require.Len(t, after, 1)
	assert.True(t, sameTrade(before[0], after[0]))
}

func TestApply_Fees(t *testing.T) {
	registry := fees.NewRegistry()
	registry.Register("zerodha", fees.Schedule{PerFill: dec("20")})
	c, s := newTestCoordinator(t, WithFees(registry))

	insert(t, c, execution(infy, models.OrderSideBuy, "50", "10", 0))
	insert(t, c, execution(infy, models.OrderSideSell, "80", "11", 1))

	trades := scopeTrades(t, s, infy)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Fees.Equal(dec("40")))
	assert.True(t, trades[0].NetPnL.Equal(dec("10")))
	assert.True(t, trades[1].Fees.Equal(dec("20")))
}

func TestAnnotations_PrimarySelectionAndPinning(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()
	res := insert(t, c, execution(infy, models.OrderSideBuy, "100", "10", 0))
	tradeID := res.Scopes[0].Trades[0].ID

	s9, err := c.AddStop(ctx, tradeID, dec("9"))
	require.NoError(t, err)
	s8, err := c.AddStop(ctx, tradeID, dec("8"))
	require.NoError(t, err)
	t15, err := c.AddTarget(ctx, tradeID, dec("15"))
	require.NoError(t, err)
	t12, err := c.AddTarget(ctx, tradeID, dec("12"))
	require.NoError(t, err)
	assert.True(t, t12.IsPrimary)

	primaryStop := func() int64 {
		stops, err := s.ListStops(ctx, tradeID)
		require.NoError(t, err)
		for _, st := range stops {
			if st.IsPrimary {
				return st.ID
			}
		}
		return 0
	}
	primaryTarget := func() int64 {
		targets, err := s.ListTargets(ctx, tradeID)
		require.NoError(t, err)
		for _, tg := range targets {
			if tg.IsPrimary {
				return tg.ID
			}
		}
		return 0
	}
	assert.Equal(t, s8.ID, primaryStop())
	assert.Equal(t, t12.ID, primaryTarget())

	require.NoError(t, c.PinStop(ctx, s9.ID))
	require.NoError(t, c.PinTarget(ctx, t15.ID))
	assert.Equal(t, s9.ID, primaryStop())
	assert.Equal(t, t15.ID, primaryTarget())

	// pins survive recomputation caused by new executions
	insert(t, c, execution(infy, models.OrderSideBuy, "10", "10.5", 5))
	assert.Equal(t, s9.ID, primaryStop())
	assert.Equal(t, t15.ID, primaryTarget())

	require.NoError(t, c.UnpinStop(ctx, s9.ID))
	require.NoError(t, c.UnpinTarget(ctx, t15.ID))
	assert.Equal(t, s8.ID, primaryStop())
	assert.Equal(t, t12.ID, primaryTarget())

	require.NoError(t, c.RemoveStop(ctx, s8.ID))
	require.NoError(t, c.RemoveTarget(ctx, t12.ID))
	assert.Equal(t, s9.ID, primaryStop())
	assert.Equal(t, t15.ID, primaryTarget())

	_, err = c.AddStop(ctx, tradeID, decimal.Zero)
	assert.ErrorIs(t, err, errors.ErrInputValidation)
	_, err = c.AddStop(ctx, "missing", dec("1"))
	assert.ErrorIs(t, err, errors.ErrDataNotFound)
	assert.ErrorIs(t, c.PinStop(ctx, 999), errors.ErrDataNotFound)
}

func TestApplyBatch_MatchesSequentialApply(t *testing.T) {
	execs := []models.Execution{
		execution(infy, models.OrderSideBuy, "10", "100", 0),
		execution(infy, models.OrderSideSell, "25", "105", 3),
		execution(infy, models.OrderSideBuy, "5", "98", 1),
		execution(infy, models.OrderSideBuy, "20", "97", 9),
	}

	seq, seqStore := newTestCoordinator(t)
	for _, e := range execs {
		insert(t, seq, e)
	}

	batch, batchStore := newTestCoordinator(t)
	mutations := make([]Mutation, len(execs))
	for i, e := range execs {
		mutations[i] = InsertExecution(e)
	}
	_, err := batch.ApplyBatch(context.Background(), infy, mutations)
	require.NoError(t, err)

	want := scopeTrades(t, seqStore, infy)
	got := scopeTrades(t, batchStore, infy)
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, sameTrade(want[i], got[i]), "trade %d differs", i)
	}
}

func TestApplyBatch_RejectsForeignScopeAndCancelledContext(t *testing.T) {
	c, s := newTestCoordinator(t)

	_, err := c.ApplyBatch(context.Background(), infy, []Mutation{
		InsertExecution(execution(tcs, models.OrderSideBuy, "1", "1", 0)),
	})
	assert.ErrorIs(t, err, errors.ErrInputValidation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ApplyBatch(ctx, infy, []Mutation{
		InsertExecution(execution(infy, models.OrderSideBuy, "1", "1", 0)),
	})
	assert.ErrorIs(t, err, context.Canceled)

	execs, err := s.ListExecutions(context.Background(), store.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestRecompute_IsIdempotent(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()
	insert(t, c, execution(infy, models.OrderSideBuy, "50", "10", 0))
	insert(t, c, execution(infy, models.OrderSideSell, "80", "11", 1))
	before := scopeTrades(t, s, infy)

	for i := 0; i < 3; i++ {
		_, err := c.Recompute(ctx, infy)
		require.NoError(t, err)
	}
	results, err := c.RecomputeAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)

	after := scopeTrades(t, s, infy)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.True(t, before[i].UpdatedAt.Equal(after[i].UpdatedAt))
		assert.True(t, sameTrade(before[i], after[i]))
	}
}

func TestApply_ConcurrentScopes(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	g, gctx := errgroup.WithContext(ctx)
	for _, scope := range []models.Scope{infy, tcs} {
		scope := scope
		for i := 0; i < 10; i++ {
			i := i
			g.Go(func() error {
				side := models.OrderSideBuy
				if i%2 == 1 {
					side = models.OrderSideSell
				}
				_, err := c.Apply(gctx, InsertExecution(execution(scope, side, "1", fmt.Sprint(100+i), i)))
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	for _, scope := range []models.Scope{infy, tcs} {
		trades := scopeTrades(t, s, scope)
		require.Len(t, trades, 5)
		for _, tr := range trades {
			assert.True(t, tr.IsClosed)
		}
	}
}

// failingStore fails every trade replacement.
type failingStore struct {
	*store.SQLiteStore
}

func (f *failingStore) InTx(ctx context.Context, fn func(store.Tx) error) error {
	return f.SQLiteStore.InTx(ctx, func(tx store.Tx) error {
		return fn(failingTx{Tx: tx})
	})
}

type failingTx struct {
	store.Tx
}

func (failingTx) ReplaceTrades(context.Context, models.Scope, store.TradeSet) error {
	return fmt.Errorf("disk I/O error")
}
