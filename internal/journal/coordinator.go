// Package journal applies execution mutations and keeps the derived trades,
// stops and targets of each scope consistent with the execution ledger.
package journal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradejournal/internal/aggregate"
	"tradejournal/internal/audit"
	"tradejournal/internal/errors"
	"tradejournal/internal/fees"
	"tradejournal/internal/logging"
	"tradejournal/internal/models"
	"tradejournal/internal/money"
	"tradejournal/internal/pnl"
	"tradejournal/internal/store"
)

// MutationKind is the kind of change applied to the execution ledger.
type MutationKind string

const (
	Insert MutationKind = "insert"
	Edit   MutationKind = "edit"
	Delete MutationKind = "delete"
	Lock   MutationKind = "lock"
)

// Mutation is one change to the execution ledger. Insert uses every field
// of Execution and requires a zero ID; Edit replaces the stored execution with the same
// ID; Delete and Lock only use Execution.ID.
type Mutation struct {
	Kind      MutationKind
	Execution models.Execution
}

// InsertExecution builds an Insert mutation.
func InsertExecution(e models.Execution) Mutation {
	e.ID = 0
	return Mutation{Kind: Insert, Execution: e}
}

// EditExecution builds an Edit mutation.
func EditExecution(e models.Execution) Mutation {
	return Mutation{Kind: Edit, Execution: e}
}

// DeleteExecution builds a Delete mutation.
func DeleteExecution(id int64) Mutation {
	return Mutation{Kind: Delete, Execution: models.Execution{ID: id}}
}

// LockExecution builds a Lock mutation.
func LockExecution(id int64) Mutation {
	return Mutation{Kind: Lock, Execution: models.Execution{ID: id}}
}

// ScopeResult is the derived state of one scope after a mutation.
type ScopeResult struct {
	Scope models.Scope
	store.TradeSet
}

// Result describes a committed mutation.
type Result struct {
	// Execution is the stored execution, nil after a delete.
	Execution *models.Execution
	Scopes    []ScopeResult
}

// Coordinator serializes mutations per scope and recomputes the derived
// trades of every affected scope inside the mutation's transaction.
type Coordinator struct {
	store  store.JournalStore
	engine *aggregate.Engine
	calc   *pnl.Calculator
	fees   *fees.Registry
	audit  *audit.Logger
	logger zerolog.Logger
	locks  *scopeLocks
	now    func() time.Time
	newID  func() string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithArithmetic sets the decimal context for averages, P&L and fees.
func WithArithmetic(arith money.Context) Option {
	return func(c *Coordinator) {
		c.engine = aggregate.NewEngine(arith)
		c.calc = pnl.NewCalculator(arith)
	}
}

// WithFees sets the per-broker fee schedules.
func WithFees(r *fees.Registry) Option {
	return func(c *Coordinator) { c.fees = r }
}

// WithAudit records every mutation in the audit trail.
func WithAudit(a *audit.Logger) Option {
	return func(c *Coordinator) { c.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a coordinator over s.
func NewCoordinator(s store.JournalStore, opts ...Option) *Coordinator {
	arith := money.DefaultContext()
	c := &Coordinator{
		store:  s,
		engine: aggregate.NewEngine(arith),
		calc:   pnl.NewCalculator(arith),
		fees:   fees.NewRegistry(),
		logger: zerolog.Nop(),
		locks:  newScopeLocks(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply validates and persists one mutation, then recomputes the affected
// scopes. Everything happens in one transaction; on any error nothing is
// changed.
func (c *Coordinator) Apply(ctx context.Context, m Mutation) (*Result, error) {
	ctx = c.withOperation(ctx, string(m.Kind))
	if err := normalizeMutation(&m); err != nil {
		c.record(ctx, m, models.Scope{}, err)
		return nil, err
	}

	scopes, err := c.mutationScopes(ctx, m)
	if err != nil {
		c.record(ctx, m, models.Scope{}, err)
		return nil, err
	}
	unlock := c.locks.lock(scopes...)
	defer unlock()

	var res *Result
	err = c.store.InTx(ctx, func(tx store.Tx) error {
		stored, touched, err := c.persist(ctx, tx, m, scopes)
		if err != nil {
			return err
		}
		res = &Result{Execution: stored}
		if m.Kind == Lock {
			// locking does not change any derived value
			return nil
		}
		for _, scope := range touched {
			set, err := c.recomputeScope(ctx, tx, scope, nil)
			if err != nil {
				return err
			}
			res.Scopes = append(res.Scopes, ScopeResult{Scope: scope, TradeSet: set})
		}
		return nil
	})
	if err != nil {
		err = classify(string(m.Kind), scopes[0], err)
		c.record(ctx, m, scopes[0], err)
		return nil, err
	}

	if res.Execution != nil {
		m.Execution = *res.Execution
	}
	c.record(ctx, m, scopes[0], nil)
	return res, nil
}

// ApplyBatch applies mutations that all belong to scope in one transaction
// with a single recomputation. The outcome equals applying them one by one
// in order. A cancelled ctx is honoured until the transaction starts.
func (c *Coordinator) ApplyBatch(ctx context.Context, scope models.Scope, mutations []Mutation) (*Result, error) {
	ctx = c.withOperation(ctx, "batch")
	for i := range mutations {
		if err := normalizeMutation(&mutations[i]); err != nil {
			return nil, errors.Wrapf(err, "mutation %d", i)
		}
		if k := mutations[i].Kind; (k == Insert || k == Edit) && mutations[i].Execution.Scope() != scope {
			return nil, errors.NewValidationError("execution", mutations[i].Execution.Scope().String(),
				fmt.Sprintf("batch is limited to scope %s", scope))
		}
	}

	unlock := c.locks.lock(scope)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		for i, m := range mutations {
			stored, _, err := c.persist(ctx, tx, m, []models.Scope{scope})
			if err != nil {
				return errors.Wrapf(err, "mutation %d", i)
			}
			res.Execution = stored
		}
		set, err := c.recomputeScope(ctx, tx, scope, nil)
		if err != nil {
			return err
		}
		res.Scopes = []ScopeResult{{Scope: scope, TradeSet: set}}
		return nil
	})
	if err != nil {
		err = classify("batch", scope, err)
		c.auditLog(ctx, audit.Event{EventType: audit.BatchApplied, Broker: scope.Broker, Ticker: scope.Ticker,
			Details: map[string]interface{}{"mutations": len(mutations)}, ErrorMsg: err.Error()})
		return nil, err
	}

	c.auditLog(ctx, audit.Event{EventType: audit.BatchApplied, Broker: scope.Broker, Ticker: scope.Ticker,
		Details: map[string]interface{}{"mutations": len(mutations)}, Success: true})
	l := logging.WithScope(c.log(ctx), scope)
	l.Info().Int("mutations", len(mutations)).Msg("Batch applied")
	return res, nil
}

// Recompute rebuilds the derived trades of a scope from its executions.
func (c *Coordinator) Recompute(ctx context.Context, scope models.Scope) (*ScopeResult, error) {
	ctx = c.withOperation(ctx, "recompute")
	unlock := c.locks.lock(scope)
	defer unlock()

	var res *ScopeResult
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		set, err := c.recomputeScope(ctx, tx, scope, nil)
		if err != nil {
			return err
		}
		res = &ScopeResult{Scope: scope, TradeSet: set}
		return nil
	})
	if err != nil {
		return nil, classify("recompute", scope, err)
	}
	c.auditLog(ctx, audit.Event{EventType: audit.ScopeRecomputed, Broker: scope.Broker, Ticker: scope.Ticker,
		Details: map[string]interface{}{"trades": len(res.Trades)}, Success: true})
	return res, nil
}

// RecomputeAll rebuilds every scope that has executions.
func (c *Coordinator) RecomputeAll(ctx context.Context) ([]ScopeResult, error) {
	scopes, err := c.store.ListScopes(ctx)
	if err != nil {
		return nil, errors.NewPersistenceError("list scopes", "", err)
	}
	results := make([]ScopeResult, 0, len(scopes))
	for _, scope := range scopes {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := c.Recompute(ctx, scope)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// mutationScopes returns the scopes a mutation touches, current scope first.
func (c *Coordinator) mutationScopes(ctx context.Context, m Mutation) ([]models.Scope, error) {
	if m.Kind == Insert {
		return []models.Scope{m.Execution.Scope()}, nil
	}
	existing, err := c.store.GetExecution(ctx, m.Execution.ID)
	if err != nil {
		return nil, err
	}
	scopes := []models.Scope{existing.Scope()}
	if m.Kind == Edit && m.Execution.Scope() != existing.Scope() {
		scopes = append(scopes, m.Execution.Scope())
	}
	return scopes, nil
}

// persist writes the ledger change and returns the stored execution and the
// scopes whose history changed. locked lists the scopes the caller holds.
func (c *Coordinator) persist(ctx context.Context, tx store.Tx, m Mutation, locked []models.Scope) (*models.Execution, []models.Scope, error) {
	if m.Kind == Insert {
		e := m.Execution
		if err := tx.UpsertExecution(ctx, &e); err != nil {
			return nil, nil, err
		}
		return &e, []models.Scope{e.Scope()}, nil
	}

	existing, err := tx.GetExecution(ctx, m.Execution.ID)
	if err != nil {
		return nil, nil, err
	}
	if !holds(locked, existing.Scope()) {
		return nil, nil, errors.NewValidationError("execution", existing.ID,
			fmt.Sprintf("belongs to %s, outside the scopes of this mutation", existing.Scope()))
	}

	switch m.Kind {
	case Lock:
		if existing.Locked {
			return existing, nil, nil
		}
		existing.Locked = true
		if err := tx.UpsertExecution(ctx, existing); err != nil {
			return nil, nil, err
		}
		return existing, []models.Scope{existing.Scope()}, nil

	case Delete:
		if existing.Locked {
			return nil, nil, errors.NewExecutionLockedError(existing.ID, "delete")
		}
		if err := tx.DeleteExecution(ctx, existing.ID); err != nil {
			return nil, nil, err
		}
		return nil, []models.Scope{existing.Scope()}, nil

	case Edit:
		if existing.Locked {
			return nil, nil, errors.NewExecutionLockedError(existing.ID, "edit")
		}
		e := m.Execution
		if !holds(locked, e.Scope()) {
			return nil, nil, errors.NewValidationError("execution", e.ID,
				fmt.Sprintf("cannot move to %s, outside the scopes of this mutation", e.Scope()))
		}
		e.CreatedAt = existing.CreatedAt
		if err := tx.UpsertExecution(ctx, &e); err != nil {
			return nil, nil, err
		}
		touched := []models.Scope{existing.Scope()}
		if e.Scope() != existing.Scope() {
			touched = append(touched, e.Scope())
		}
		return &e, touched, nil
	}

	return nil, nil, errors.NewValidationError("kind", m.Kind, "unknown mutation kind")
}

// recomputeScope replays the scope history and writes the replacement
// trade set. adjust, when set, edits the loaded stops and targets first.
func (c *Coordinator) recomputeScope(ctx context.Context, tx store.Tx, scope models.Scope, adjust func(stops []models.TradeStop, targets []models.TradeTarget) error) (store.TradeSet, error) {
	start := time.Now()

	execs, err := tx.LoadExecutions(ctx, scope)
	if err != nil {
		return store.TradeSet{}, err
	}
	drafts, err := c.engine.Recompute(scope, execs)
	if err != nil {
		return store.TradeSet{}, err
	}
	if err := aggregate.CheckInvariants(drafts); err != nil {
		return store.TradeSet{}, err
	}

	prev, err := tx.LoadTrades(ctx, scope)
	if err != nil {
		return store.TradeSet{}, err
	}
	stops, err := tx.LoadStops(ctx, scope)
	if err != nil {
		return store.TradeSet{}, err
	}
	targets, err := tx.LoadTargets(ctx, scope)
	if err != nil {
		return store.TradeSet{}, err
	}
	if adjust != nil {
		if err := adjust(stops, targets); err != nil {
			return store.TradeSet{}, err
		}
	}

	set, err := c.reconcile(scope, drafts, execs, prev, stops, targets)
	if err != nil {
		return store.TradeSet{}, err
	}
	if err := tx.ReplaceTrades(ctx, scope, set); err != nil {
		return store.TradeSet{}, errors.NewPersistenceError("replace trades", scope.String(), err)
	}

	logging.LogRecompute(c.log(ctx), scope, len(execs), len(set.Trades), time.Since(start))
	return set, nil
}

func (c *Coordinator) record(ctx context.Context, m Mutation, scope models.Scope, err error) {
	if scope == (models.Scope{}) {
		scope = m.Execution.Scope()
	}
	logging.LogMutation(logging.WithExecutionID(c.log(ctx), m.Execution.ID), string(m.Kind), scope, err)

	event := audit.Event{
		EventType:   mutationEvent(m.Kind),
		Broker:      scope.Broker,
		Ticker:      scope.Ticker,
		ExecutionID: m.Execution.ID,
		Success:     err == nil,
	}
	if err != nil {
		event.ErrorMsg = err.Error()
	}
	if m.Kind == Insert || m.Kind == Edit {
		event.Details = map[string]interface{}{
			"side":        m.Execution.Side,
			"quantity":    m.Execution.Quantity.String(),
			"price":       m.Execution.Price.String(),
			"executed_at": m.Execution.ExecutedAt,
		}
	}
	c.auditLog(ctx, event)
}

func (c *Coordinator) auditLog(ctx context.Context, event audit.Event) {
	if err := c.audit.Log(ctx, event); err != nil {
		l := c.log(ctx)
		l.Warn().Err(err).Str("event_type", string(event.EventType)).Msg("Failed to write audit event")
	}
}

// withOperation carries the coordinator logger, tagged with op, in ctx.
func (c *Coordinator) withOperation(ctx context.Context, op string) context.Context {
	return logging.WithLogger(ctx, logging.WithOperation(c.logger, op))
}

// log returns the operation logger of ctx, falling back to the coordinator's.
func (c *Coordinator) log(ctx context.Context) zerolog.Logger {
	if _, ok := ctx.Value(logging.LoggerKey).(zerolog.Logger); ok {
		return logging.FromContext(ctx)
	}
	return c.logger
}

func mutationEvent(k MutationKind) audit.EventType {
	switch k {
	case Edit:
		return audit.ExecutionEdited
	case Delete:
		return audit.ExecutionDeleted
	case Lock:
		return audit.ExecutionLocked
	default:
		return audit.ExecutionInserted
	}
}

// normalizeMutation validates a mutation and canonicalizes its execution.
func normalizeMutation(m *Mutation) error {
	switch m.Kind {
	case Insert, Edit:
		if m.Kind == Insert && m.Execution.ID != 0 {
			return errors.NewValidationError("id", m.Execution.ID, "insert assigns the execution id; use edit to change a stored execution")
		}
		if m.Kind == Edit && m.Execution.ID <= 0 {
			return errors.NewValidationError("id", m.Execution.ID, "edit requires an execution id")
		}
		return normalizeExecution(&m.Execution)
	case Delete, Lock:
		if m.Execution.ID <= 0 {
			return errors.NewValidationError("id", m.Execution.ID, "execution id must be positive")
		}
		return nil
	}
	return errors.NewValidationError("kind", m.Kind, "unknown mutation kind")
}

// exchange symbols: letters, digits and a few separators (M&M, BAJAJ-AUTO)
var tickerPattern = regexp.MustCompile(`^[A-Z0-9&._-]{1,40}$`)

// normalizeExecution checks an execution before it reaches the ledger.
// Brokers are lower-cased and tickers upper-cased so scopes compare equal.
func normalizeExecution(e *models.Execution) error {
	e.Broker = strings.ToLower(strings.TrimSpace(e.Broker))
	e.Ticker = strings.ToUpper(strings.TrimSpace(e.Ticker))

	switch {
	case e.Broker == "":
		return errors.NewValidationError("broker", e.Broker, "broker is required")
	case e.Ticker == "":
		return errors.NewValidationError("ticker", e.Ticker, "ticker is required")
	case !tickerPattern.MatchString(e.Ticker):
		return errors.NewValidationError("ticker", e.Ticker, "ticker contains invalid characters")
	case !e.Instrument.Valid():
		return errors.NewValidationError("instrument", e.Instrument, "unknown instrument")
	case !e.Side.Valid():
		return errors.NewValidationError("side", e.Side, "unknown side")
	case !e.Quantity.IsPositive():
		return errors.NewValidationError("quantity", e.Quantity.String(), "quantity must be positive")
	case !e.Price.IsPositive():
		return errors.NewValidationError("price", e.Price.String(), "price must be positive")
	case e.Lots != nil && *e.Lots <= 0:
		return errors.NewValidationError("lots", *e.Lots, "lots must be positive")
	case e.ExecutedAt.IsZero():
		return errors.NewValidationError("executed_at", e.ExecutedAt, "execution time is required")
	}
	e.ExecutedAt = e.ExecutedAt.UTC()
	return nil
}

// classify keeps typed domain errors and wraps everything else as a
// persistence failure.
func classify(op string, scope models.Scope, err error) error {
	switch {
	case errors.Is(err, errors.ErrInputValidation),
		errors.Is(err, errors.ErrExecutionLocked),
		errors.Is(err, errors.ErrInvariantViolation),
		errors.Is(err, errors.ErrDataNotFound),
		errors.Is(err, errors.ErrPersistence),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return errors.NewPersistenceError(op, scope.String(), err)
}

func holds(scopes []models.Scope, s models.Scope) bool {
	for _, held := range scopes {
		if held == s {
			return true
		}
	}
	return false
}
