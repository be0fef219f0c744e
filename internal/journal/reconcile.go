package journal

import (
	"tradejournal/internal/aggregate"
	"tradejournal/internal/annotation"
	"tradejournal/internal/models"
	"tradejournal/internal/store"
)

// reconcile turns fresh drafts into the replacement trade set of a scope.
// The Nth trade keeps the id of the Nth persisted trade, so stops and
// targets stay attached across recomputation; annotations of trades that no
// longer exist are dropped. Pinned flags are kept as loaded and the primary
// flags are recomputed.
func (c *Coordinator) reconcile(scope models.Scope, drafts []aggregate.TradeDraft, execs []models.Execution, prev []models.Trade, stops []models.TradeStop, targets []models.TradeTarget) (store.TradeSet, error) {
	prevBySeq := make(map[int]models.Trade, len(prev))
	for _, t := range prev {
		prevBySeq[t.Seq] = t
	}
	byID := make(map[int64]models.Execution, len(execs))
	for _, e := range execs {
		byID[e.ID] = e
	}
	model := c.fees.For(scope.Broker)
	now := c.now()

	set := store.TradeSet{Trades: make([]models.Trade, 0, len(drafts))}
	sides := make(map[string]models.TradeSide, len(drafts))

	for seq, d := range drafts {
		result, err := c.calc.Compute(d, byID, model)
		if err != nil {
			return store.TradeSet{}, err
		}

		old, existed := prevBySeq[seq]
		id := old.ID
		if !existed {
			id = c.newID()
		}

		trade := models.Trade{
			ID:             id,
			Broker:         scope.Broker,
			Ticker:         scope.Ticker,
			Instrument:     d.Instrument,
			Side:           d.Side,
			Seq:            seq,
			Quantity:       d.Quantity,
			ClosedQuantity: d.ClosedQuantity,
			Lots:           d.Lots,
			AverageEntry:   d.AverageEntry,
			EntryAt:        d.EntryAt,
			AverageExit:    d.AverageExit,
			ExitAt:         d.ExitAt,
			PnL:            result.PnL,
			Fees:           result.Fees,
			NetPnL:         result.NetPnL,
			IsClosed:       d.IsClosed(),
			UpdatedAt:      now,
		}
		if existed && sameTrade(old, trade) {
			trade.UpdatedAt = old.UpdatedAt
		}
		set.Trades = append(set.Trades, trade)
		sides[id] = d.Side

		for i, m := range d.Members {
			set.Members = append(set.Members, models.TradeExecution{
				TradeID:     id,
				ExecutionID: m.ExecutionID,
				Role:        m.Role,
				Quantity:    m.Quantity,
				Seq:         i,
			})
		}
	}

	stopsByTrade := make(map[string][]models.TradeStop)
	for _, s := range stops {
		if _, ok := sides[s.TradeID]; ok {
			stopsByTrade[s.TradeID] = append(stopsByTrade[s.TradeID], s)
		}
	}
	targetsByTrade := make(map[string][]models.TradeTarget)
	for _, t := range targets {
		if _, ok := sides[t.TradeID]; ok {
			targetsByTrade[t.TradeID] = append(targetsByTrade[t.TradeID], t)
		}
	}

	for _, t := range set.Trades {
		ts, tt := stopsByTrade[t.ID], targetsByTrade[t.ID]
		annotation.Apply(t.Side, ts, tt)
		set.Stops = append(set.Stops, ts...)
		set.Targets = append(set.Targets, tt...)
	}

	return set, nil
}

// sameTrade reports whether two trades carry the same derived values.
func sameTrade(a, b models.Trade) bool {
	if a.Instrument != b.Instrument || a.Side != b.Side || a.IsClosed != b.IsClosed {
		return false
	}
	if !a.Quantity.Equal(b.Quantity) || !a.ClosedQuantity.Equal(b.ClosedQuantity) ||
		!a.AverageEntry.Equal(b.AverageEntry) || !a.PnL.Equal(b.PnL) ||
		!a.Fees.Equal(b.Fees) || !a.NetPnL.Equal(b.NetPnL) {
		return false
	}
	if a.AverageExit.Valid != b.AverageExit.Valid || (a.AverageExit.Valid && !a.AverageExit.Decimal.Equal(b.AverageExit.Decimal)) {
		return false
	}
	if !a.EntryAt.Equal(b.EntryAt) || (a.ExitAt == nil) != (b.ExitAt == nil) || (a.ExitAt != nil && !a.ExitAt.Equal(*b.ExitAt)) {
		return false
	}
	return (a.Lots == nil) == (b.Lots == nil) && (a.Lots == nil || *a.Lots == *b.Lots)
}
