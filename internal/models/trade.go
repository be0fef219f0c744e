package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a round-trip position derived from executions.
type Trade struct {
	ID             string
	Broker         string
	Ticker         string
	Instrument     Instrument
	Side           TradeSide
	Seq            int // position within the scope, 0-based
	Quantity       decimal.Decimal
	ClosedQuantity decimal.Decimal
	Lots           *int
	AverageEntry   decimal.Decimal
	EntryAt        time.Time
	AverageExit    decimal.NullDecimal
	ExitAt         *time.Time
	PnL            decimal.Decimal
	Fees           decimal.Decimal
	NetPnL         decimal.Decimal
	IsClosed       bool
	UpdatedAt      time.Time
}

// Scope returns the aggregation scope of the trade.
func (t Trade) Scope() Scope {
	return Scope{Broker: t.Broker, Ticker: t.Ticker}
}

// OpenQuantity returns the quantity not yet exited.
func (t Trade) OpenQuantity() decimal.Decimal {
	return t.Quantity.Sub(t.ClosedQuantity)
}

// HoldDuration returns the time between entry and exit, or zero while open.
func (t Trade) HoldDuration() time.Duration {
	if t.ExitAt == nil {
		return 0
	}
	return t.ExitAt.Sub(t.EntryAt)
}

// MembershipRole tells whether an execution entered or exited a trade.
type MembershipRole string

const (
	RoleEntry MembershipRole = "ENTRY"
	RoleExit  MembershipRole = "EXIT"
)

// TradeExecution links an execution to a trade with the quantity it
// contributed. A common exit/entry execution has two rows, one per trade.
type TradeExecution struct {
	TradeID     string
	ExecutionID int64
	Role        MembershipRole
	Quantity    decimal.Decimal
	Seq         int
}

// TradeStop represents a stop price attached to a trade.
type TradeStop struct {
	ID        int64
	TradeID   string
	Price     decimal.Decimal
	IsPrimary bool
	Pinned    bool
	CreatedAt time.Time
}

// TradeTarget represents a target price attached to a trade.
type TradeTarget struct {
	ID        int64
	TradeID   string
	Price     decimal.Decimal
	IsPrimary bool
	Pinned    bool
	CreatedAt time.Time
}

// TradeDetail bundles a trade with its membership and annotations.
type TradeDetail struct {
	Trade      Trade
	Executions []TradeExecution
	Stops      []TradeStop
	Targets    []TradeTarget
}
