package cli

import (
	"time"

	"github.com/shopspring/decimal"

	"tradejournal/internal/journal"
	"tradejournal/internal/models"
)

// JSON shapes of the command output. Decimals marshal as strings.

type executionView struct {
	ID         int64           `json:"id"`
	Broker     string          `json:"broker"`
	Instrument string          `json:"instrument"`
	Ticker     string          `json:"ticker"`
	Side       string          `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Lots       *int            `json:"lots,omitempty"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
	Locked     bool            `json:"locked"`
}

func newExecutionView(e models.Execution) executionView {
	return executionView{
		ID:         e.ID,
		Broker:     e.Broker,
		Instrument: string(e.Instrument),
		Ticker:     e.Ticker,
		Side:       string(e.Side),
		Quantity:   e.Quantity,
		Lots:       e.Lots,
		Price:      e.Price,
		ExecutedAt: e.ExecutedAt,
		Locked:     e.Locked,
	}
}

type tradeView struct {
	ID             string              `json:"id"`
	Broker         string              `json:"broker"`
	Ticker         string              `json:"ticker"`
	Instrument     string              `json:"instrument"`
	Side           string              `json:"side"`
	Seq            int                 `json:"seq"`
	Quantity       decimal.Decimal     `json:"quantity"`
	ClosedQuantity decimal.Decimal     `json:"closed_quantity"`
	Lots           *int             `json:"lots,omitempty"`
	AverageEntry   decimal.Decimal     `json:"average_entry"`
	EntryAt        time.Time           `json:"entry_at"`
	AverageExit    decimal.NullDecimal `json:"average_exit"`
	ExitAt         *time.Time          `json:"exit_at"`
	PnL            decimal.Decimal     `json:"pnl"`
	Fees           decimal.Decimal     `json:"fees"`
	NetPnL         decimal.Decimal     `json:"net_pnl"`
	IsClosed       bool                `json:"is_closed"`
}

func newTradeView(t models.Trade) tradeView {
	return tradeView{
		ID:             t.ID,
		Broker:         t.Broker,
		Ticker:         t.Ticker,
		Instrument:     string(t.Instrument),
		Side:           string(t.Side),
		Seq:            t.Seq,
		Quantity:       t.Quantity,
		ClosedQuantity: t.ClosedQuantity,
		Lots:           t.Lots,
		AverageEntry:   t.AverageEntry,
		EntryAt:        t.EntryAt,
		AverageExit:    t.AverageExit,
		ExitAt:         t.ExitAt,
		PnL:            t.PnL,
		Fees:           t.Fees,
		NetPnL:         t.NetPnL,
		IsClosed:       t.IsClosed,
	}
}

func newTradeViews(trades []models.Trade) []tradeView {
	views := make([]tradeView, len(trades))
	for i, t := range trades {
		views[i] = newTradeView(t)
	}
	return views
}

type annotationView struct {
	ID        int64           `json:"id"`
	TradeID   string          `json:"trade_id"`
	Price     decimal.Decimal `json:"price"`
	IsPrimary bool            `json:"is_primary"`
	Pinned    bool            `json:"pinned"`
}

func stopViews(stops []models.TradeStop) []annotationView {
	views := make([]annotationView, len(stops))
	for i, s := range stops {
		views[i] = annotationView{ID: s.ID, TradeID: s.TradeID, Price: s.Price, IsPrimary: s.IsPrimary, Pinned: s.Pinned}
	}
	return views
}

func targetViews(targets []models.TradeTarget) []annotationView {
	views := make([]annotationView, len(targets))
	for i, t := range targets {
		views[i] = annotationView{ID: t.ID, TradeID: t.TradeID, Price: t.Price, IsPrimary: t.IsPrimary, Pinned: t.Pinned}
	}
	return views
}

type memberView struct {
	ExecutionID int64           `json:"execution_id"`
	Role        string          `json:"role"`
	Quantity    decimal.Decimal `json:"quantity"`
}

type tradeDetailView struct {
	tradeView
	Executions []memberView     `json:"executions"`
	Stops      []annotationView `json:"stops"`
	Targets    []annotationView `json:"targets"`
}

func newTradeDetailView(d models.TradeDetail) tradeDetailView {
	members := make([]memberView, len(d.Executions))
	for i, m := range d.Executions {
		members[i] = memberView{ExecutionID: m.ExecutionID, Role: string(m.Role), Quantity: m.Quantity}
	}
	return tradeDetailView{
		tradeView:  newTradeView(d.Trade),
		Executions: members,
		Stops:      stopViews(d.Stops),
		Targets:    targetViews(d.Targets),
	}
}

type mutationView struct {
	Execution *executionView `json:"execution,omitempty"`
	Scopes    []scopeView    `json:"scopes"`
}

type scopeView struct {
	Broker string      `json:"broker"`
	Ticker string      `json:"ticker"`
	Trades []tradeView `json:"trades"`
}

func newMutationView(res *journal.Result) mutationView {
	v := mutationView{Scopes: make([]scopeView, 0, len(res.Scopes))}
	if res.Execution != nil {
		ev := newExecutionView(*res.Execution)
		v.Execution = &ev
	}
	for _, s := range res.Scopes {
		v.Scopes = append(v.Scopes, scopeView{Broker: s.Scope.Broker, Ticker: s.Scope.Ticker, Trades: newTradeViews(s.Trades)})
	}
	return v
}
