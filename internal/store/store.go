// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"tradejournal/internal/models"
)

// JournalStore is the persistent journal: the execution ledger and the
// trades derived from it. Derived tables are only written inside InTx.
type JournalStore interface {
	// InTx runs fn inside one write transaction. The transaction commits
	// when fn returns nil and rolls back on error or panic.
	InTx(ctx context.Context, fn func(Tx) error) error

	// Executions
	GetExecution(ctx context.Context, id int64) (*models.Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]models.Execution, error)
	ListScopes(ctx context.Context) ([]models.Scope, error)

	// Trades
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)
	TradeMembership(ctx context.Context, tradeID string) ([]models.TradeExecution, error)
	ListStops(ctx context.Context, tradeID string) ([]models.TradeStop, error)
	ListTargets(ctx context.Context, tradeID string) ([]models.TradeTarget, error)
	GetStop(ctx context.Context, id int64) (*models.TradeStop, error)
	GetTarget(ctx context.Context, id int64) (*models.TradeTarget, error)
	GetTradeDetail(ctx context.Context, id string) (*models.TradeDetail, error)

	// Lifecycle
	Close() error
}

// Tx is the write side of the journal, bound to one transaction.
type Tx interface {
	// LoadExecutions returns the scope history ordered by execution time,
	// then insertion sequence.
	LoadExecutions(ctx context.Context, scope models.Scope) ([]models.Execution, error)
	GetExecution(ctx context.Context, id int64) (*models.Execution, error)
	// UpsertExecution inserts e when e.ID is zero and assigns the new ID,
	// otherwise it updates the stored row.
	UpsertExecution(ctx context.Context, e *models.Execution) error
	DeleteExecution(ctx context.Context, id int64) error

	LoadTrades(ctx context.Context, scope models.Scope) ([]models.Trade, error)
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	LoadStops(ctx context.Context, scope models.Scope) ([]models.TradeStop, error)
	LoadTargets(ctx context.Context, scope models.Scope) ([]models.TradeTarget, error)

	InsertStop(ctx context.Context, s *models.TradeStop) error
	DeleteStop(ctx context.Context, id int64) error
	GetStop(ctx context.Context, id int64) (*models.TradeStop, error)
	InsertTarget(ctx context.Context, t *models.TradeTarget) error
	DeleteTarget(ctx context.Context, id int64) error
	GetTarget(ctx context.Context, id int64) (*models.TradeTarget, error)

	// ReplaceTrades makes set the complete derived state of scope. Trades,
	// stops and targets of the scope missing from set are deleted.
	ReplaceTrades(ctx context.Context, scope models.Scope, set TradeSet) error
}

// TradeSet is the derived state of one scope.
type TradeSet struct {
	Trades  []models.Trade
	Members []models.TradeExecution
	Stops   []models.TradeStop
	Targets []models.TradeTarget
}

// ExecutionFilter represents filters for querying executions.
// StartDate is inclusive and EndDate exclusive.
type ExecutionFilter struct {
	Broker    string
	Ticker    string
	StartDate time.Time
	EndDate   time.Time
	Locked    *bool
	Limit     int
}

// TradeFilter represents filters for querying trades by entry time.
// StartDate is inclusive and EndDate exclusive.
type TradeFilter struct {
	Broker    string
	Ticker    string
	Side      models.TradeSide
	Open      *bool
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}
