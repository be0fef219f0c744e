// Package aggregate derives trades from the executions of a single
// (broker, ticker) scope.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradejournal/internal/errors"
	"tradejournal/internal/models"
	"tradejournal/internal/money"
)

// Member is one execution's contribution to a trade draft.
type Member struct {
	ExecutionID int64
	Role        models.MembershipRole
	Quantity    decimal.Decimal
}

// TradeDraft is a trade computed from executions, before identity,
// annotations and money fields are attached.
type TradeDraft struct {
	Scope          models.Scope
	Instrument     models.Instrument
	Side           models.TradeSide
	Quantity       decimal.Decimal
	ClosedQuantity decimal.Decimal
	Lots           *int
	AverageEntry   decimal.Decimal
	EntryAt        time.Time
	AverageExit    decimal.NullDecimal
	ExitAt         *time.Time
	Members        []Member

	entryNotional decimal.Decimal
	exitNotional  decimal.Decimal
	lots          int
	hasLots       bool
}

// IsClosed reports whether every entered unit has been exited.
func (d TradeDraft) IsClosed() bool {
	return d.Quantity.IsPositive() && d.ClosedQuantity.Equal(d.Quantity)
}

// EntryQuantity sums the entry contributions of the membership.
func (d TradeDraft) EntryQuantity() decimal.Decimal {
	return d.sumRole(models.RoleEntry)
}

// ExitQuantity sums the exit contributions of the membership.
func (d TradeDraft) ExitQuantity() decimal.Decimal {
	return d.sumRole(models.RoleExit)
}

func (d TradeDraft) sumRole(role models.MembershipRole) decimal.Decimal {
	total := decimal.Zero
	for _, m := range d.Members {
		if m.Role == role {
			total = total.Add(m.Quantity)
		}
	}
	return total
}

// Engine replays executions through the open-position state machine.
type Engine struct {
	arith money.Context
}

// NewEngine creates an engine that averages prices with the given context.
func NewEngine(arith money.Context) *Engine {
	return &Engine{arith: arith}
}

// Recompute derives trades with the default arithmetic context.
func Recompute(scope models.Scope, executions []models.Execution) ([]TradeDraft, error) {
	return NewEngine(money.DefaultContext()).Recompute(scope, executions)
}

// SortExecutions returns a copy of executions ordered by timestamp, then by
// insertion sequence (ID).
func SortExecutions(executions []models.Execution) []models.Execution {
	sorted := make([]models.Execution, len(executions))
	copy(sorted, executions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ExecutedAt.Equal(sorted[j].ExecutedAt) {
			return sorted[i].ExecutedAt.Before(sorted[j].ExecutedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// Recompute walks the scope history and returns the ordered trade drafts.
// The last draft may still be open; every earlier one is closed.
func (e *Engine) Recompute(scope models.Scope, executions []models.Execution) ([]TradeDraft, error) {
	var (
		drafts   []TradeDraft
		current  *TradeDraft
		position = decimal.Zero
	)

	for _, ex := range SortExecutions(executions) {
		if ex.Scope() != scope {
			return nil, fmt.Errorf("execution %d belongs to %s, not %s", ex.ID, ex.Scope(), scope)
		}
		if !ex.Quantity.IsPositive() || !ex.Price.IsPositive() {
			return nil, errors.NewValidationError("execution", ex.ID, "quantity and price must be positive")
		}

		delta := ex.Delta()
		switch {
		case position.IsZero():
			current = openDraft(scope, ex, ex.Quantity)
			position = delta

		case position.Sign() == delta.Sign():
			current.addEntry(ex, ex.Quantity)
			position = position.Add(delta)

		default:
			closing := decimal.Min(delta.Abs(), position.Abs())
			current.addExit(ex, closing)
			if delta.IsNegative() {
				position = position.Sub(closing)
			} else {
				position = position.Add(closing)
			}
			if !position.IsZero() {
				continue
			}

			exitAt := ex.ExecutedAt
			current.ExitAt = &exitAt
			drafts = append(drafts, e.finish(*current))
			current = nil

			// common exit/entry: the rest of the fill opens the opposite side
			rest := delta.Abs().Sub(closing)
			if rest.IsPositive() {
				current = openDraft(scope, ex, rest)
				if delta.IsNegative() {
					position = rest.Neg()
				} else {
					position = rest
				}
			}
		}
	}

	if current != nil {
		drafts = append(drafts, e.finish(*current))
	}
	return drafts, nil
}

func openDraft(scope models.Scope, ex models.Execution, qty decimal.Decimal) *TradeDraft {
	side := models.TradeSideLong
	if ex.Side == models.OrderSideSell {
		side = models.TradeSideShort
	}
	d := &TradeDraft{
		Scope:          scope,
		Instrument:     ex.Instrument,
		Side:           side,
		Quantity:       decimal.Zero,
		ClosedQuantity: decimal.Zero,
		EntryAt:        ex.ExecutedAt,
		entryNotional:  decimal.Zero,
		exitNotional:   decimal.Zero,
	}
	d.addEntry(ex, qty)
	return d
}

func (d *TradeDraft) addEntry(ex models.Execution, qty decimal.Decimal) {
	d.Quantity = d.Quantity.Add(qty)
	d.entryNotional = d.entryNotional.Add(ex.Price.Mul(qty))
	d.Members = append(d.Members, Member{ExecutionID: ex.ID, Role: models.RoleEntry, Quantity: qty})
	if ex.Lots != nil {
		d.hasLots = true
		d.lots += prorateLots(*ex.Lots, qty, ex.Quantity)
	}
}

func (d *TradeDraft) addExit(ex models.Execution, qty decimal.Decimal) {
	d.ClosedQuantity = d.ClosedQuantity.Add(qty)
	d.exitNotional = d.exitNotional.Add(ex.Price.Mul(qty))
	d.Members = append(d.Members, Member{ExecutionID: ex.ID, Role: models.RoleExit, Quantity: qty})
}

func (e *Engine) finish(d TradeDraft) TradeDraft {
	d.AverageEntry = e.arith.Average(d.entryNotional, d.Quantity)
	if d.ClosedQuantity.IsPositive() {
		d.AverageExit = decimal.NewNullDecimal(e.arith.Average(d.exitNotional, d.ClosedQuantity))
	} else {
		d.AverageExit = decimal.NullDecimal{}
	}
	if d.hasLots {
		lots := d.lots
		d.Lots = &lots
	}
	return d
}

// prorateLots gives a split fill the share of its lots matching qty.
func prorateLots(lots int, qty, total decimal.Decimal) int {
	if qty.Equal(total) || total.IsZero() {
		return lots
	}
	return int(decimal.NewFromInt(int64(lots)).Mul(qty).Div(total).IntPart())
}
