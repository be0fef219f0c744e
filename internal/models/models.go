// Package models provides domain models for the trade journal.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Instrument represents the kind of contract an execution traded.
type Instrument string

const (
	InstrumentEquity  Instrument = "EQUITY"
	InstrumentIndex   Instrument = "INDEX"
	InstrumentFutures Instrument = "FUTURES"
	InstrumentOptions Instrument = "OPTIONS"
)

// Valid reports whether the instrument is one of the known kinds.
func (i Instrument) Valid() bool {
	switch i {
	case InstrumentEquity, InstrumentIndex, InstrumentFutures, InstrumentOptions:
		return true
	}
	return false
}

// IsDerivative returns true for contracts that are usually traded in lots.
func (i Instrument) IsDerivative() bool {
	return i == InstrumentFutures || i == InstrumentOptions
}

// ParseInstrument parses an instrument name case-insensitively.
func ParseInstrument(s string) (Instrument, error) {
	i := Instrument(strings.ToUpper(strings.TrimSpace(s)))
	if !i.Valid() {
		return "", fmt.Errorf("unknown instrument: %q", s)
	}
	return i, nil
}

// OrderSide represents the side of an execution.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether the side is BUY or SELL.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// ParseOrderSide parses BUY/SELL (also B/S) case-insensitively.
func ParseOrderSide(s string) (OrderSide, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B":
		return OrderSideBuy, nil
	case "SELL", "S":
		return OrderSideSell, nil
	}
	return "", fmt.Errorf("unknown side: %q", s)
}

// TradeSide represents the direction of a trade.
type TradeSide string

const (
	TradeSideLong  TradeSide = "LONG"
	TradeSideShort TradeSide = "SHORT"
)

// Sign returns +1 for long trades and -1 for short trades.
func (s TradeSide) Sign() decimal.Decimal {
	if s == TradeSideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Scope identifies the (broker, ticker) pair executions are aggregated over.
type Scope struct {
	Broker string
	Ticker string
}

// String renders the scope as broker:ticker.
func (s Scope) String() string {
	return s.Broker + ":" + s.Ticker
}

// Execution represents a single broker fill.
type Execution struct {
	ID         int64
	Broker     string
	Instrument Instrument
	Ticker     string
	Side       OrderSide
	Quantity   decimal.Decimal
	Lots       *int
	Price      decimal.Decimal
	ExecutedAt time.Time
	Locked     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Scope returns the aggregation scope of the execution.
func (e Execution) Scope() Scope {
	return Scope{Broker: e.Broker, Ticker: e.Ticker}
}

// Delta returns the signed quantity: positive for buys, negative for sells.
func (e Execution) Delta() decimal.Decimal {
	if e.Side == OrderSideSell {
		return e.Quantity.Neg()
	}
	return e.Quantity
}

// Notional returns price times quantity.
func (e Execution) Notional() decimal.Decimal {
	return e.Price.Mul(e.Quantity)
}
