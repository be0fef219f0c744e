package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradejournal/internal/errors"
	"tradejournal/internal/models"
)

// CheckInvariants verifies the drafts produced for one scope. It returns an
// *errors.InvariantViolation for the first broken rule.
func CheckInvariants(drafts []TradeDraft) error {
	for i, d := range drafts {
		scope := d.Scope.String()
		fail := func(rule, format string, args ...interface{}) error {
			return errors.NewInvariantViolation(scope, i, rule, fmt.Sprintf(format, args...))
		}

		if !d.Quantity.IsPositive() {
			return fail("quantity", "quantity %s must be positive", d.Quantity)
		}
		if d.ClosedQuantity.IsNegative() || d.ClosedQuantity.GreaterThan(d.Quantity) {
			return fail("closed-quantity", "closed quantity %s outside [0, %s]", d.ClosedQuantity, d.Quantity)
		}
		if d.IsClosed() != (d.ExitAt != nil) {
			return fail("exit-time", "closed=%t but exit time set=%t", d.IsClosed(), d.ExitAt != nil)
		}
		if d.AverageExit.Valid != d.ClosedQuantity.IsPositive() {
			return fail("average-exit", "average exit set=%t with closed quantity %s", d.AverageExit.Valid, d.ClosedQuantity)
		}
		if !d.IsClosed() && i != len(drafts)-1 {
			return fail("open-trade", "only the last trade of a scope may be open")
		}
		if d.ExitAt != nil && d.ExitAt.Before(d.EntryAt) {
			return fail("exit-time", "exit %s before entry %s", d.ExitAt, d.EntryAt)
		}

		if got := d.EntryQuantity(); !got.Equal(d.Quantity) {
			return fail("conservation", "entries sum to %s, quantity is %s", got, d.Quantity)
		}
		if got := d.ExitQuantity(); !got.Equal(d.ClosedQuantity) {
			return fail("conservation", "exits sum to %s, closed quantity is %s", got, d.ClosedQuantity)
		}
		for _, m := range d.Members {
			if !m.Quantity.IsPositive() {
				return fail("membership", "execution %d contributes %s", m.ExecutionID, m.Quantity)
			}
		}
	}
	return nil
}

// NetPosition returns the signed position a draft still holds: entries minus
// exits, signed by side. It is zero for every closed draft.
func NetPosition(d TradeDraft) decimal.Decimal {
	net := decimal.Zero
	for _, m := range d.Members {
		if m.Role == models.RoleEntry {
			net = net.Add(m.Quantity)
		} else {
			net = net.Sub(m.Quantity)
		}
	}
	return net.Mul(d.Side.Sign())
}
