// Package money provides decimal arithmetic with a configurable scale and
// rounding mode for prices, quantities and cash values.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultScale is the number of fractional digits kept by raw operations.
const DefaultScale int32 = 20

var (
	decTwo = decimal.NewFromInt(2)
)

// RoundingMode selects how a value is rounded to a given number of places.
type RoundingMode string

const (
	// HalfUp rounds ties away from zero.
	HalfUp RoundingMode = "half_up"
	// HalfEven rounds ties to the even neighbour.
	HalfEven RoundingMode = "half_even"
	// Down truncates toward zero.
	Down RoundingMode = "down"
	// Up rounds away from zero.
	Up RoundingMode = "up"
	// Ceiling rounds toward positive infinity.
	Ceiling RoundingMode = "ceiling"
	// Floor rounds toward negative infinity.
	Floor RoundingMode = "floor"
)

// ParseRoundingMode parses a rounding mode name. Dashes and case are ignored.
func ParseRoundingMode(s string) (RoundingMode, error) {
	m := RoundingMode(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch m {
	case HalfUp, HalfEven, Down, Up, Ceiling, Floor:
		return m, nil
	case "":
		return HalfUp, nil
	}
	return "", fmt.Errorf("unknown rounding mode: %q", s)
}

// Round rounds d to places fractional digits.
func (m RoundingMode) Round(d decimal.Decimal, places int32) decimal.Decimal {
	switch m {
	case HalfEven:
		return d.RoundBank(places)
	case Down:
		return d.RoundDown(places)
	case Up:
		return d.RoundUp(places)
	case Ceiling:
		return d.RoundCeil(places)
	case Floor:
		return d.RoundFloor(places)
	default:
		return d.Round(places)
	}
}

// Context carries the scale and rounding mode used for raw arithmetic.
type Context struct {
	Scale int32
	Mode  RoundingMode
}

// DefaultContext returns half-up rounding at DefaultScale.
func DefaultContext() Context {
	return Context{Scale: DefaultScale, Mode: HalfUp}
}

// Round rounds d at the context scale.
func (c Context) Round(d decimal.Decimal) decimal.Decimal {
	return c.Mode.Round(d, c.Scale)
}

// Mul multiplies and rounds at the context scale.
func (c Context) Mul(a, b decimal.Decimal) decimal.Decimal {
	return c.Round(a.Mul(b))
}

// Div divides a by b and rounds the quotient once at the context scale.
// b must be non-zero.
func (c Context) Div(a, b decimal.Decimal) decimal.Decimal {
	q, r := a.QuoRem(b, c.Scale)
	if r.IsZero() {
		return q
	}

	unit := decimal.New(1, -c.Scale)
	sign := a.Sign() * b.Sign()
	away := q.Add(unit.Mul(decimal.NewFromInt(int64(sign))))
	// compare the discarded remainder with half a unit of the divisor
	half := r.Abs().Mul(decTwo).Cmp(b.Abs().Mul(unit))

	switch c.Mode {
	case Down:
		return q
	case Up:
		return away
	case Ceiling:
		if sign > 0 {
			return away
		}
		return q
	case Floor:
		if sign < 0 {
			return away
		}
		return q
	case HalfEven:
		if half > 0 {
			return away
		}
		if half == 0 && !q.Shift(c.Scale).Mod(decTwo).IsZero() {
			return away
		}
		return q
	default:
		if half >= 0 {
			return away
		}
		return q
	}
}

// Average returns total/quantity, or zero when quantity is zero.
func (c Context) Average(total, quantity decimal.Decimal) decimal.Decimal {
	if quantity.IsZero() {
		return decimal.Zero
	}
	return c.Div(total, quantity)
}

// Sum adds values exactly.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Presentation holds the decimal places and rounding mode used for display.
type Presentation struct {
	Places int32
	Mode   RoundingMode
}

// DefaultPresentation shows two places rounded half-up.
func DefaultPresentation() Presentation {
	return Presentation{Places: 2, Mode: HalfUp}
}

// Round rounds d for display.
func (p Presentation) Round(d decimal.Decimal) decimal.Decimal {
	return p.Mode.Round(d, p.Places)
}

// Format renders d with exactly Places fractional digits.
func (p Presentation) Format(d decimal.Decimal) string {
	return p.Round(d).StringFixed(p.Places)
}

// FormatNull renders a nullable decimal, using "-" when it is not set.
func (p Presentation) FormatNull(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return p.Format(d.Decimal)
}

// Parse parses a decimal string, rejecting empty input.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty decimal value")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}
