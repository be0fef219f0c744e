package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradejournal/internal/errors"
	"tradejournal/internal/models"
	"tradejournal/internal/money"
)

var (
	testScope = models.Scope{Broker: "zerodha", Ticker: "INFY"}
	baseTime  = time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fill(id int64, side models.OrderSide, qty, price string, minute int) models.Execution {
	return models.Execution{
		ID:         id,
		Broker:     testScope.Broker,
		Ticker:     testScope.Ticker,
		Instrument: models.InstrumentEquity,
		Side:       side,
		Quantity:   dec(qty),
		Price:      dec(price),
		ExecutedAt: baseTime.Add(time.Duration(minute) * time.Minute),
	}
}

func buy(id int64, qty, price string, minute int) models.Execution {
	return fill(id, models.OrderSideBuy, qty, price, minute)
}

func sell(id int64, qty, price string, minute int) models.Execution {
	return fill(id, models.OrderSideSell, qty, price, minute)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "%s: got %s want %s", field, got, want)
}

func TestRecompute_EmptyScope(t *testing.T) {
	drafts, err := Recompute(testScope, nil)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestRecompute_MultipleEntriesThenFullExit(t *testing.T) {
	execs := []models.Execution{
		buy(1, "100", "10", 0),
		buy(2, "100", "12", 1),
	}

	drafts, err := Recompute(testScope, execs)
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	open := drafts[0]
	assert.Equal(t, models.TradeSideLong, open.Side)
	assertDec(t, "200", open.Quantity, "quantity")
	assertDec(t, "11", open.AverageEntry, "average entry")
	assert.False(t, open.IsClosed())
	assert.Nil(t, open.ExitAt)
	assert.False(t, open.AverageExit.Valid)

	execs = append(execs, sell(3, "200", "15", 2))
	drafts, err = Recompute(testScope, execs)
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	closed := drafts[0]
	assert.True(t, closed.IsClosed())
	assertDec(t, "200", closed.ClosedQuantity, "closed quantity")
	require.True(t, closed.AverageExit.Valid)
	assertDec(t, "15", closed.AverageExit.Decimal, "average exit")
	require.NotNil(t, closed.ExitAt)
	assert.True(t, closed.ExitAt.Equal(execs[2].ExecutedAt))
	assert.True(t, closed.EntryAt.Equal(execs[0].ExecutedAt))
	require.NoError(t, CheckInvariants(drafts))
}

func TestRecompute_PartialClose(t *testing.T) {
	drafts, err := Recompute(testScope, []models.Execution{
		buy(1, "100", "10", 0),
		sell(2, "40", "12", 5),
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	d := drafts[0]
	assertDec(t, "100", d.Quantity, "quantity")
	assertDec(t, "40", d.ClosedQuantity, "closed quantity")
	require.True(t, d.AverageExit.Valid)
	assertDec(t, "12", d.AverageExit.Decimal, "average exit")
	assert.False(t, d.IsClosed())
	assert.Nil(t, d.ExitAt)
	require.NoError(t, CheckInvariants(drafts))
}

func TestRecompute_CommonExitEntry(t *testing.T) {
	drafts, err := Recompute(testScope, []models.Execution{
		buy(1, "50", "10", 0),
		sell(2, "80", "11", 1),
	})
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	long, short := drafts[0], drafts[1]
	assert.Equal(t, models.TradeSideLong, long.Side)
	assert.True(t, long.IsClosed())
	assertDec(t, "50", long.ClosedQuantity, "long closed quantity")
	assertDec(t, "11", long.AverageExit.Decimal, "long average exit")

	assert.Equal(t, models.TradeSideShort, short.Side)
	assertDec(t, "30", short.Quantity, "short quantity")
	assertDec(t, "11", short.AverageEntry, "short average entry")
	assert.False(t, short.IsClosed())
	assert.True(t, short.EntryAt.Equal(*long.ExitAt))

	require.Len(t, long.Members, 2)
	assert.Equal(t, Member{ExecutionID: 2, Role: models.RoleExit, Quantity: long.Members[1].Quantity}, long.Members[1])
	assertDec(t, "50", long.Members[1].Quantity, "exit contribution")

	require.Len(t, short.Members, 1)
	assert.Equal(t, int64(2), short.Members[0].ExecutionID)
	assert.Equal(t, models.RoleEntry, short.Members[0].Role)
	assertDec(t, "30", short.Members[0].Quantity, "entry contribution")
	require.NoError(t, CheckInvariants(drafts))
}

func TestRecompute_OutOfOrderInsertMatchesInOrder(t *testing.T) {
	t1 := buy(1, "100", "10", 0)
	t3 := sell(2, "100", "12", 20)

	before, err := Recompute(testScope, []models.Execution{t1, t3})
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.True(t, before[0].IsClosed())

	// inserted later, but executed between the two
	t2 := buy(3, "50", "11", 10)
	late, err := Recompute(testScope, []models.Execution{t1, t3, t2})
	require.NoError(t, err)
	inOrder, err := Recompute(testScope, []models.Execution{t1, t2, t3})
	require.NoError(t, err)

	assertDraftsEqual(t, inOrder, late)
	require.Len(t, late, 1)
	assertDec(t, "150", late[0].Quantity, "quantity")
	assertDec(t, "100", late[0].ClosedQuantity, "closed quantity")
	assert.False(t, late[0].IsClosed())
}

func TestRecompute_TiesBrokenByInsertionSequence(t *testing.T) {
	// same timestamp: the sell was inserted first, so it opens a short
	drafts, err := Recompute(testScope, []models.Execution{
		buy(2, "10", "100", 0),
		sell(1, "10", "101", 0),
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, models.TradeSideShort, drafts[0].Side)
	assert.True(t, drafts[0].IsClosed())
}

func TestRecompute_ShortTrade(t *testing.T) {
	drafts, err := Recompute(testScope, []models.Execution{
		sell(1, "10", "200", 0),
		sell(2, "30", "180", 1),
		buy(3, "40", "150", 2),
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, models.TradeSideShort, d.Side)
	assertDec(t, "185", d.AverageEntry, "average entry")
	assertDec(t, "150", d.AverageExit.Decimal, "average exit")
	assert.True(t, d.IsClosed())
}

func TestRecompute_AverageRoundedOnceAtScale(t *testing.T) {
	engine := NewEngine(money.Context{Scale: 4, Mode: money.HalfUp})
	drafts, err := engine.Recompute(testScope, []models.Execution{
		buy(1, "1", "10", 0),
		buy(2, "1", "10", 1),
		buy(3, "1", "11", 2),
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assertDec(t, "10.3333", drafts[0].AverageEntry, "average entry")
}

func TestRecompute_Lots(t *testing.T) {
	one, two := 1, 2
	first := buy(1, "75", "100", 0)
	first.Instrument = models.InstrumentFutures
	first.Lots = &one
	flip := sell(2, "150", "110", 1)
	flip.Instrument = models.InstrumentFutures
	flip.Lots = &two

	drafts, err := Recompute(testScope, []models.Execution{first, flip})
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	require.NotNil(t, drafts[0].Lots)
	assert.Equal(t, 1, *drafts[0].Lots)
	require.NotNil(t, drafts[1].Lots)
	assert.Equal(t, 1, *drafts[1].Lots)
	assert.Equal(t, models.InstrumentFutures, drafts[1].Instrument)

	equity, err := Recompute(testScope, []models.Execution{buy(1, "5", "10", 0)})
	require.NoError(t, err)
	assert.Nil(t, equity[0].Lots)
}

func TestRecompute_RejectsInvalidExecutions(t *testing.T) {
	bad := buy(1, "0", "10", 0)
	_, err := Recompute(testScope, []models.Execution{bad})
	assert.ErrorIs(t, err, errors.ErrInputValidation)

	other := buy(2, "1", "10", 0)
	other.Ticker = "TCS"
	_, err = Recompute(testScope, []models.Execution{other})
	assert.Error(t, err)
}

func TestRecompute_DoesNotMutateInput(t *testing.T) {
	execs := []models.Execution{sell(2, "5", "10", 3), buy(1, "5", "9", 1)}
	_, err := Recompute(testScope, execs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), execs[0].ID)
}

func TestCheckInvariants_DetectsViolations(t *testing.T) {
	drafts, err := Recompute(testScope, []models.Execution{
		buy(1, "10", "10", 0),
		sell(2, "10", "11", 1),
		buy(3, "10", "12", 2),
	})
	require.NoError(t, err)
	require.NoError(t, CheckInvariants(drafts))

	broken := append([]TradeDraft(nil), drafts...)
	broken[0].ClosedQuantity = dec("11")
	err = CheckInvariants(broken)
	var iv *errors.InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "closed-quantity", iv.Rule)
	assert.ErrorIs(t, err, errors.ErrInvariantViolation)

	reordered := []TradeDraft{drafts[1], drafts[0]}
	err = CheckInvariants(reordered)
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "open-trade", iv.Rule)
}

func assertDraftsEqual(t *testing.T, want, got []TradeDraft) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, draftEqual(want[i], got[i]), "draft %d differs:\nwant %+v\ngot  %+v", i, want[i], got[i])
	}
}

func draftEqual(a, b TradeDraft) bool {
	if a.Scope != b.Scope || a.Side != b.Side || a.Instrument != b.Instrument {
		return false
	}
	if !a.Quantity.Equal(b.Quantity) || !a.ClosedQuantity.Equal(b.ClosedQuantity) || !a.AverageEntry.Equal(b.AverageEntry) {
		return false
	}
	if a.AverageExit.Valid != b.AverageExit.Valid || !a.AverageExit.Decimal.Equal(b.AverageExit.Decimal) {
		return false
	}
	if !a.EntryAt.Equal(b.EntryAt) || (a.ExitAt == nil) != (b.ExitAt == nil) {
		return false
	}
	if a.ExitAt != nil && !a.ExitAt.Equal(*b.ExitAt) {
		return false
	}
	if (a.Lots == nil) != (b.Lots == nil) || (a.Lots != nil && *a.Lots != *b.Lots) {
		return false
	}
	if len(a.Members) != len(b.Members) {
		return false
	}
	for i := range a.Members {
		ma, mb := a.Members[i], b.Members[i]
		if ma.ExecutionID != mb.ExecutionID || ma.Role != mb.Role || !ma.Quantity.Equal(mb.Quantity) {
			return false
		}
	}
	return true
}
