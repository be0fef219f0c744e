// Package annotation picks the primary stop and target of a trade.
package annotation

import (
	"github.com/shopspring/decimal"

	"tradejournal/internal/models"
)

// candidate is the part of a stop or target the policy looks at.
type candidate struct {
	id     int64
	price  decimal.Decimal
	pinned bool
}

// SelectPrimary returns the ids of the primary stop and primary target for
// a trade on the given side. Prices are ranked by k = price for long trades
// and k = -price for short trades; the lowest k wins for both stops and
// targets, ties go to the lowest id. A pinned entry always wins. Either
// result is nil when there are no candidates.
func SelectPrimary(side models.TradeSide, stops []models.TradeStop, targets []models.TradeTarget) (stopID, targetID *int64) {
	sc := make([]candidate, len(stops))
	for i, s := range stops {
		sc[i] = candidate{id: s.ID, price: s.Price, pinned: s.Pinned}
	}
	tc := make([]candidate, len(targets))
	for i, t := range targets {
		tc[i] = candidate{id: t.ID, price: t.Price, pinned: t.Pinned}
	}
	return pick(side, sc), pick(side, tc)
}

func pick(side models.TradeSide, cands []candidate) *int64 {
	var (
		best    *candidate
		bestKey decimal.Decimal
	)
	for i := range cands {
		c := &cands[i]
		if c.pinned {
			if best == nil || !best.pinned || c.id < best.id {
				best = c
			}
			continue
		}
		if best != nil && best.pinned {
			continue
		}
		k := c.price.Mul(side.Sign())
		if best == nil || k.LessThan(bestKey) || (k.Equal(bestKey) && c.id < best.id) {
			best = c
			bestKey = k
		}
	}
	if best == nil {
		return nil
	}
	id := best.id
	return &id
}

// Apply sets IsPrimary on the stops and targets according to SelectPrimary.
func Apply(side models.TradeSide, stops []models.TradeStop, targets []models.TradeTarget) {
	stopID, targetID := SelectPrimary(side, stops, targets)
	for i := range stops {
		stops[i].IsPrimary = stopID != nil && stops[i].ID == *stopID
	}
	for i := range targets {
		targets[i].IsPrimary = targetID != nil && targets[i].ID == *targetID
	}
}
