// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradejournal/internal/errors"
	"tradejournal/internal/models"
)

// SQLiteStore implements JournalStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// NewSQLiteStore creates a new SQLite-based journal store. Write
// transactions take the database write lock at BEGIN.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", errors.ErrDatabaseError, err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %w", errors.ErrDatabaseError, err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Raw broker fills, the source of truth
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		broker TEXT NOT NULL,
		instrument TEXT NOT NULL,
		ticker TEXT NOT NULL,
		side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
		quantity TEXT NOT NULL,
		lots INTEGER,
		price TEXT NOT NULL,
		executed_at DATETIME NOT NULL,
		locked INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_scope ON executions(broker, ticker, executed_at, id);

	-- Trades derived from executions, one row per sequence position in a scope
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		broker TEXT NOT NULL,
		ticker TEXT NOT NULL,
		instrument TEXT NOT NULL,
		side TEXT NOT NULL CHECK (side IN ('LONG', 'SHORT')),
		seq INTEGER NOT NULL,
		quantity TEXT NOT NULL,
		closed_quantity TEXT NOT NULL,
		lots INTEGER,
		average_entry TEXT NOT NULL,
		entry_at DATETIME NOT NULL,
		average_exit TEXT,
		exit_at DATETIME,
		pnl TEXT NOT NULL,
		fees TEXT NOT NULL,
		net_pnl TEXT NOT NULL,
		is_closed INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		UNIQUE(broker, ticker, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_trades_entry ON trades(entry_at);

	-- Execution contributions to trades; a common exit/entry fill has two rows
	CREATE TABLE IF NOT EXISTS trade_executions (
		trade_id TEXT NOT NULL,
		execution_id INTEGER NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('ENTRY', 'EXIT')),
		quantity TEXT NOT NULL,
		seq INTEGER NOT NULL,
		PRIMARY KEY (trade_id, execution_id, role)
	);
	CREATE INDEX IF NOT EXISTS idx_trade_executions_execution ON trade_executions(execution_id);

	CREATE TABLE IF NOT EXISTS trade_stops (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id TEXT NOT NULL,
		price TEXT NOT NULL,
		is_primary INTEGER NOT NULL DEFAULT 0,
		pinned INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_stops_trade ON trade_stops(trade_id);

	CREATE TABLE IF NOT EXISTS trade_targets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id TEXT NOT NULL,
		price TEXT NOT NULL,
		is_primary INTEGER NOT NULL DEFAULT 0,
		pinned INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_targets_trade ON trade_targets(trade_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InTx runs fn in a transaction, rolling back on error or panic.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(&sqliteTx{tx: tx})
	return err
}

// sqliteTx implements Tx over a *sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

// ============================================================================
// Executions
// ============================================================================

const executionColumns = `id, broker, instrument, ticker, side, quantity, lots, price, executed_at, locked, created_at, updated_at`

func scanExecution(r rowScanner) (models.Execution, error) {
	var e models.Execution
	var lots sql.NullInt64
	err := r.Scan(&e.ID, &e.Broker, &e.Instrument, &e.Ticker, &e.Side, &e.Quantity, &lots, &e.Price,
		&e.ExecutedAt, &e.Locked, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	e.Lots = intPtr(lots)
	return e, nil
}

func queryExecutions(ctx context.Context, q queryer, query string, args ...interface{}) ([]models.Execution, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var execs []models.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}
	return execs, nil
}

func getExecution(ctx context.Context, q queryer, id int64) (*models.Execution, error) {
	row := q.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("execution", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return &e, nil
}

// GetExecution returns one execution.
func (s *SQLiteStore) GetExecution(ctx context.Context, id int64) (*models.Execution, error) {
	return getExecution(ctx, s.db, id)
}

// ListExecutions returns executions matching filter in execution order.
func (s *SQLiteStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`
	args := []interface{}{}

	if filter.Broker != "" {
		query += " AND broker = ?"
		args = append(args, filter.Broker)
	}
	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, filter.Ticker)
	}
	if !filter.StartDate.IsZero() {
		query += " AND executed_at >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND executed_at < ?"
		args = append(args, filter.EndDate.UTC())
	}
	if filter.Locked != nil {
		query += " AND locked = ?"
		args = append(args, *filter.Locked)
	}

	query += " ORDER BY executed_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return queryExecutions(ctx, s.db, query, args...)
}

// ListScopes returns every (broker, ticker) pair with executions.
func (s *SQLiteStore) ListScopes(ctx context.Context) ([]models.Scope, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT broker, ticker FROM executions ORDER BY broker, ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scopes: %w", err)
	}
	defer rows.Close()

	var scopes []models.Scope
	for rows.Next() {
		var sc models.Scope
		if err := rows.Scan(&sc.Broker, &sc.Ticker); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}

// LoadExecutions returns the scope history in execution order.
func (t *sqliteTx) LoadExecutions(ctx context.Context, scope models.Scope) ([]models.Execution, error) {
	return queryExecutions(ctx, t.tx,
		`SELECT `+executionColumns+` FROM executions WHERE broker = ? AND ticker = ? ORDER BY executed_at ASC, id ASC`,
		scope.Broker, scope.Ticker)
}

func (t *sqliteTx) GetExecution(ctx context.Context, id int64) (*models.Execution, error) {
	return getExecution(ctx, t.tx, id)
}

// UpsertExecution inserts or updates an execution.
func (t *sqliteTx) UpsertExecution(ctx context.Context, e *models.Execution) error {
	now := time.Now().UTC()
	e.UpdatedAt = now

	if e.ID == 0 {
		e.CreatedAt = now
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO executions (broker, instrument, ticker, side, quantity, lots, price, executed_at, locked, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.Broker, e.Instrument, e.Ticker, e.Side, e.Quantity, nullInt(e.Lots), e.Price, e.ExecutedAt.UTC(), e.Locked, e.CreatedAt, e.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert execution: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read execution id: %w", err)
		}
		e.ID = id
		return nil
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE executions
		SET broker = ?, instrument = ?, ticker = ?, side = ?, quantity = ?, lots = ?, price = ?, executed_at = ?, locked = ?, updated_at = ?
		WHERE id = ?
	`, e.Broker, e.Instrument, e.Ticker, e.Side, e.Quantity, nullInt(e.Lots), e.Price, e.ExecutedAt.UTC(), e.Locked, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	return requireAffected(res, "execution", e.ID)
}

// DeleteExecution removes an execution from the ledger.
func (t *sqliteTx) DeleteExecution(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete execution: %w", err)
	}
	return requireAffected(res, "execution", id)
}

// ============================================================================
// Trades
// ============================================================================

const tradeColumns = `id, broker, ticker, instrument, side, seq, quantity, closed_quantity, lots, average_entry, entry_at,
	average_exit, exit_at, pnl, fees, net_pnl, is_closed, updated_at`

func scanTrade(r rowScanner) (models.Trade, error) {
	var t models.Trade
	var lots sql.NullInt64
	var exitAt sql.NullTime
	err := r.Scan(&t.ID, &t.Broker, &t.Ticker, &t.Instrument, &t.Side, &t.Seq, &t.Quantity, &t.ClosedQuantity, &lots,
		&t.AverageEntry, &t.EntryAt, &t.AverageExit, &exitAt, &t.PnL, &t.Fees, &t.NetPnL, &t.IsClosed, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.Lots = intPtr(lots)
	if exitAt.Valid {
		ts := exitAt.Time
		t.ExitAt = &ts
	}
	return t, nil
}

func queryTrades(ctx context.Context, q queryer, query string, args ...interface{}) ([]models.Trade, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

func getTrade(ctx context.Context, q queryer, id string) (*models.Trade, error) {
	t, err := scanTrade(q.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("trade", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return &t, nil
}

// GetTrade returns one trade.
func (s *SQLiteStore) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	return getTrade(ctx, s.db, id)
}

// ListTrades returns trades matching filter, most recent entry first.
func (s *SQLiteStore) ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE 1=1`
	args := []interface{}{}

	if filter.Broker != "" {
		query += " AND broker = ?"
		args = append(args, filter.Broker)
	}
	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, filter.Ticker)
	}
	if filter.Side != "" {
		query += " AND side = ?"
		args = append(args, filter.Side)
	}
	if filter.Open != nil {
		query += " AND is_closed = ?"
		args = append(args, !*filter.Open)
	}
	if !filter.StartDate.IsZero() {
		query += " AND entry_at >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND entry_at < ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY entry_at DESC, seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return queryTrades(ctx, s.db, query, args...)
}

// TradeMembership returns the execution contributions of a trade in order.
func (s *SQLiteStore) TradeMembership(ctx context.Context, tradeID string) ([]models.TradeExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, execution_id, role, quantity, seq
		FROM trade_executions
		WHERE trade_id = ?
		ORDER BY seq ASC
	`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade membership: %w", err)
	}
	defer rows.Close()

	var members []models.TradeExecution
	for rows.Next() {
		var m models.TradeExecution
		if err := rows.Scan(&m.TradeID, &m.ExecutionID, &m.Role, &m.Quantity, &m.Seq); err != nil {
			return nil, fmt.Errorf("failed to scan trade membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetTradeDetail returns a trade with its membership and annotations.
func (s *SQLiteStore) GetTradeDetail(ctx context.Context, id string) (*models.TradeDetail, error) {
	t, err := s.GetTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &models.TradeDetail{Trade: *t}
	if detail.Executions, err = s.TradeMembership(ctx, id); err != nil {
		return nil, err
	}
	if detail.Stops, err = s.ListStops(ctx, id); err != nil {
		return nil, err
	}
	if detail.Targets, err = s.ListTargets(ctx, id); err != nil {
		return nil, err
	}
	return detail, nil
}

// LoadTrades returns the persisted trades of a scope in sequence order.
func (t *sqliteTx) LoadTrades(ctx context.Context, scope models.Scope) ([]models.Trade, error) {
	return queryTrades(ctx, t.tx,
		`SELECT `+tradeColumns+` FROM trades WHERE broker = ? AND ticker = ? ORDER BY seq ASC`,
		scope.Broker, scope.Ticker)
}

func (t *sqliteTx) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	return getTrade(ctx, t.tx, id)
}

// ReplaceTrades rewrites the derived state of a scope.
func (t *sqliteTx) ReplaceTrades(ctx context.Context, scope models.Scope, set TradeSet) error {
	ids := make(map[string]bool, len(set.Trades))
	for _, tr := range set.Trades {
		if tr.Scope() != scope {
			return fmt.Errorf("trade %s belongs to %s, not %s", tr.ID, tr.Scope(), scope)
		}
		ids[tr.ID] = true
	}
	for _, st := range set.Stops {
		if !ids[st.TradeID] {
			return fmt.Errorf("stop %d references unknown trade %s", st.ID, st.TradeID)
		}
	}
	for _, tg := range set.Targets {
		if !ids[tg.TradeID] {
			return fmt.Errorf("target %d references unknown trade %s", tg.ID, tg.TradeID)
		}
	}

	scopeTrades := `SELECT id FROM trades WHERE broker = ? AND ticker = ?`
	for _, table := range []string{"trade_executions", "trade_stops", "trade_targets"} {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE trade_id IN (`+scopeTrades+`)`, scope.Broker, scope.Ticker); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM trades WHERE broker = ? AND ticker = ?`, scope.Broker, scope.Ticker); err != nil {
		return fmt.Errorf("failed to clear trades: %w", err)
	}

	tradeStmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer tradeStmt.Close()

	for _, tr := range set.Trades {
		var exitAt interface{}
		if tr.ExitAt != nil {
			exitAt = tr.ExitAt.UTC()
		}
		_, err := tradeStmt.ExecContext(ctx, tr.ID, tr.Broker, tr.Ticker, tr.Instrument, tr.Side, tr.Seq,
			tr.Quantity, tr.ClosedQuantity, nullInt(tr.Lots), tr.AverageEntry, tr.EntryAt.UTC(),
			tr.AverageExit, exitAt, tr.PnL, tr.Fees, tr.NetPnL, tr.IsClosed, tr.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
	}

	memberStmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO trade_executions (trade_id, execution_id, role, quantity, seq)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer memberStmt.Close()

	for _, m := range set.Members {
		if _, err := memberStmt.ExecContext(ctx, m.TradeID, m.ExecutionID, m.Role, m.Quantity, m.Seq); err != nil {
			return fmt.Errorf("failed to insert trade membership: %w", err)
		}
	}

	for i := range set.Stops {
		if err := insertAnnotation(ctx, t.tx, "trade_stops", &set.Stops[i].ID, set.Stops[i].TradeID,
			set.Stops[i].Price, set.Stops[i].IsPrimary, set.Stops[i].Pinned, &set.Stops[i].CreatedAt); err != nil {
			return err
		}
	}
	for i := range set.Targets {
		if err := insertAnnotation(ctx, t.tx, "trade_targets", &set.Targets[i].ID, set.Targets[i].TradeID,
			set.Targets[i].Price, set.Targets[i].IsPrimary, set.Targets[i].Pinned, &set.Targets[i].CreatedAt); err != nil {
			return err
		}
	}

	return nil
}

// ============================================================================
// Stops & Targets
// ============================================================================

// insertAnnotation writes a stop or target row, keeping its id when set.
func insertAnnotation(ctx context.Context, q queryer, table string, id *int64, tradeID string, price interface{}, isPrimary, pinned bool, createdAt *time.Time) error {
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
	var idArg interface{}
	if *id != 0 {
		idArg = *id
	}
	res, err := q.ExecContext(ctx, `INSERT INTO `+table+` (id, trade_id, price, is_primary, pinned, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		idArg, tradeID, price, isPrimary, pinned, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	if *id == 0 {
		newID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read %s id: %w", table, err)
		}
		*id = newID
	}
	return nil
}

const annotationColumns = `id, trade_id, price, is_primary, pinned, created_at`

func queryStops(ctx context.Context, q queryer, query string, args ...interface{}) ([]models.TradeStop, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stops: %w", err)
	}
	defer rows.Close()

	var stops []models.TradeStop
	for rows.Next() {
		var st models.TradeStop
		if err := rows.Scan(&st.ID, &st.TradeID, &st.Price, &st.IsPrimary, &st.Pinned, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stop: %w", err)
		}
		stops = append(stops, st)
	}
	return stops, rows.Err()
}

func queryTargets(ctx context.Context, q queryer, query string, args ...interface{}) ([]models.TradeTarget, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var targets []models.TradeTarget
	for rows.Next() {
		var tg models.TradeTarget
		if err := rows.Scan(&tg.ID, &tg.TradeID, &tg.Price, &tg.IsPrimary, &tg.Pinned, &tg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, tg)
	}
	return targets, rows.Err()
}

// ListStops returns the stops of a trade.
func (s *SQLiteStore) ListStops(ctx context.Context, tradeID string) ([]models.TradeStop, error) {
	return queryStops(ctx, s.db, `SELECT `+annotationColumns+` FROM trade_stops WHERE trade_id = ? ORDER BY id`, tradeID)
}

// ListTargets returns the targets of a trade.
func (s *SQLiteStore) ListTargets(ctx context.Context, tradeID string) ([]models.TradeTarget, error) {
	return queryTargets(ctx, s.db, `SELECT `+annotationColumns+` FROM trade_targets WHERE trade_id = ? ORDER BY id`, tradeID)
}

func (t *sqliteTx) LoadStops(ctx context.Context, scope models.Scope) ([]models.TradeStop, error) {
	return queryStops(ctx, t.tx, `
		SELECT s.id, s.trade_id, s.price, s.is_primary, s.pinned, s.created_at
		FROM trade_stops s JOIN trades t ON t.id = s.trade_id
		WHERE t.broker = ? AND t.ticker = ?
		ORDER BY s.id
	`, scope.Broker, scope.Ticker)
}

func (t *sqliteTx) LoadTargets(ctx context.Context, scope models.Scope) ([]models.TradeTarget, error) {
	return queryTargets(ctx, t.tx, `
		SELECT g.id, g.trade_id, g.price, g.is_primary, g.pinned, g.created_at
		FROM trade_targets g JOIN trades t ON t.id = g.trade_id
		WHERE t.broker = ? AND t.ticker = ?
		ORDER BY g.id
	`, scope.Broker, scope.Ticker)
}

func (t *sqliteTx) InsertStop(ctx context.Context, st *models.TradeStop) error {
	return insertAnnotation(ctx, t.tx, "trade_stops", &st.ID, st.TradeID, st.Price, st.IsPrimary, st.Pinned, &st.CreatedAt)
}

func (t *sqliteTx) InsertTarget(ctx context.Context, tg *models.TradeTarget) error {
	return insertAnnotation(ctx, t.tx, "trade_targets", &tg.ID, tg.TradeID, tg.Price, tg.IsPrimary, tg.Pinned, &tg.CreatedAt)
}

func (t *sqliteTx) DeleteStop(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM trade_stops WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stop: %w", err)
	}
	return requireAffected(res, "stop", id)
}

func (t *sqliteTx) DeleteTarget(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM trade_targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	return requireAffected(res, "target", id)
}

func getStop(ctx context.Context, q queryer, id int64) (*models.TradeStop, error) {
	stops, err := queryStops(ctx, q, `SELECT `+annotationColumns+` FROM trade_stops WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(stops) == 0 {
		return nil, errors.NewNotFoundError("stop", id)
	}
	return &stops[0], nil
}

func getTarget(ctx context.Context, q queryer, id int64) (*models.TradeTarget, error) {
	targets, err := queryTargets(ctx, q, `SELECT `+annotationColumns+` FROM trade_targets WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, errors.NewNotFoundError("target", id)
	}
	return &targets[0], nil
}

// GetStop returns one stop.
func (s *SQLiteStore) GetStop(ctx context.Context, id int64) (*models.TradeStop, error) {
	return getStop(ctx, s.db, id)
}

// GetTarget returns one target.
func (s *SQLiteStore) GetTarget(ctx context.Context, id int64) (*models.TradeTarget, error) {
	return getTarget(ctx, s.db, id)
}

func (t *sqliteTx) GetStop(ctx context.Context, id int64) (*models.TradeStop, error) {
	return getStop(ctx, t.tx, id)
}

func (t *sqliteTx) GetTarget(ctx context.Context, id int64) (*models.TradeTarget, error) {
	return getTarget(ctx, t.tx, id)
}

// ============================================================================
// Helpers
// ============================================================================

func requireAffected(res sql.Result, kind string, id interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return errors.NewNotFoundError(kind, id)
	}
	return nil
}

func nullInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
