// Package importer reads broker fills and legacy trade exports and replays
// them through the journal coordinator.
package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"tradejournal/internal/errors"
	"tradejournal/internal/models"
	"tradejournal/internal/money"
)

// FillRow is one line of a fills export.
type FillRow struct {
	Broker     string `csv:"broker"`
	Instrument string `csv:"instrument"`
	Ticker     string `csv:"ticker"`
	Side       string `csv:"side"`
	Quantity   string `csv:"quantity"`
	Lots       string `csv:"lots"`
	Price      string `csv:"price"`
	ExecutedAt string `csv:"executed_at"`
}

// LegacyTradeRow is one line of a closed-trade export. Exit columns may be
// empty for a trade that is still open.
type LegacyTradeRow struct {
	Broker     string `csv:"broker"`
	Instrument string `csv:"instrument"`
	Ticker     string `csv:"ticker"`
	Side       string `csv:"side"`
	Quantity   string `csv:"quantity"`
	Lots       string `csv:"lots"`
	EntryPrice string `csv:"entry_price"`
	EntryAt    string `csv:"entry_at"`
	ExitPrice  string `csv:"exit_price"`
	ExitAt     string `csv:"exit_at"`
}

// ReadOptions controls how rows become executions.
type ReadOptions struct {
	// DateFormat is tried before the built-in layouts.
	DateFormat string
	// Broker fills rows that leave the broker column empty.
	Broker string
}

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ReadFillsCSV parses a fills export.
func ReadFillsCSV(r io.Reader, opts ReadOptions) ([]models.Execution, error) {
	var rows []*FillRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to read fills CSV: %w", err)
	}

	execs := make([]models.Execution, 0, len(rows))
	for i, row := range rows {
		e, err := row.execution(opts)
		if err != nil {
			// header is line 1
			return nil, errors.Wrapf(err, "line %d", i+2)
		}
		execs = append(execs, e)
	}
	return execs, nil
}

func (row *FillRow) execution(opts ReadOptions) (models.Execution, error) {
	side, err := models.ParseOrderSide(row.Side)
	if err != nil {
		return models.Execution{}, errors.NewValidationError("side", row.Side, err.Error())
	}
	instrument, err := parseInstrument(row.Instrument)
	if err != nil {
		return models.Execution{}, err
	}
	qty, err := parseDecimal("quantity", row.Quantity)
	if err != nil {
		return models.Execution{}, err
	}
	price, err := parseDecimal("price", row.Price)
	if err != nil {
		return models.Execution{}, err
	}
	lots, err := parseLots(row.Lots)
	if err != nil {
		return models.Execution{}, err
	}
	at, err := parseTime("executed_at", row.ExecutedAt, opts.DateFormat)
	if err != nil {
		return models.Execution{}, err
	}

	return models.Execution{
		Broker:     pick(row.Broker, opts.Broker),
		Instrument: instrument,
		Ticker:     row.Ticker,
		Side:       side,
		Quantity:   qty,
		Lots:       lots,
		Price:      price,
		ExecutedAt: at,
	}, nil
}

// ReadClosedTradesCSV parses a legacy closed-trade export. Each row yields
// an entry execution and, when the exit columns are filled, an exit
// execution of the same quantity.
func ReadClosedTradesCSV(r io.Reader, opts ReadOptions) ([]models.Execution, error) {
	var rows []*LegacyTradeRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to read legacy trades CSV: %w", err)
	}

	execs := make([]models.Execution, 0, 2*len(rows))
	for i, row := range rows {
		pair, err := row.executions(opts)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", i+2)
		}
		execs = append(execs, pair...)
	}
	return execs, nil
}

func (row *LegacyTradeRow) executions(opts ReadOptions) ([]models.Execution, error) {
	entrySide, exitSide := models.OrderSideBuy, models.OrderSideSell
	switch strings.ToUpper(strings.TrimSpace(row.Side)) {
	case "LONG", "BUY", "B":
	case "SHORT", "SELL", "S":
		entrySide, exitSide = exitSide, entrySide
	default:
		return nil, errors.NewValidationError("side", row.Side, "side must be LONG or SHORT")
	}

	instrument, err := parseInstrument(row.Instrument)
	if err != nil {
		return nil, err
	}
	qty, err := parseDecimal("quantity", row.Quantity)
	if err != nil {
		return nil, err
	}
	lots, err := parseLots(row.Lots)
	if err != nil {
		return nil, err
	}
	entryPrice, err := parseDecimal("entry_price", row.EntryPrice)
	if err != nil {
		return nil, err
	}
	entryAt, err := parseTime("entry_at", row.EntryAt, opts.DateFormat)
	if err != nil {
		return nil, err
	}

	entry := models.Execution{
		Broker:     pick(row.Broker, opts.Broker),
		Instrument: instrument,
		Ticker:     row.Ticker,
		Side:       entrySide,
		Quantity:   qty,
		Lots:       lots,
		Price:      entryPrice,
		ExecutedAt: entryAt,
	}
	if strings.TrimSpace(row.ExitPrice) == "" && strings.TrimSpace(row.ExitAt) == "" {
		return []models.Execution{entry}, nil
	}

	exitPrice, err := parseDecimal("exit_price", row.ExitPrice)
	if err != nil {
		return nil, err
	}
	exitAt, err := parseTime("exit_at", row.ExitAt, opts.DateFormat)
	if err != nil {
		return nil, err
	}
	if exitAt.Before(entryAt) {
		return nil, errors.NewValidationError("exit_at", row.ExitAt, "exit precedes entry")
	}

	exit := entry
	exit.Side = exitSide
	exit.Price = exitPrice
	exit.ExecutedAt = exitAt
	return []models.Execution{entry, exit}, nil
}

func parseInstrument(s string) (models.Instrument, error) {
	if strings.TrimSpace(s) == "" {
		return models.InstrumentEquity, nil
	}
	i, err := models.ParseInstrument(s)
	if err != nil {
		return "", errors.NewValidationError("instrument", s, err.Error())
	}
	return i, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := money.Parse(s)
	if err != nil {
		return decimal.Zero, errors.NewValidationError(field, s, err.Error())
	}
	return d, nil
}

func parseLots(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return nil, errors.NewValidationError("lots", s, "lots must be a positive integer")
	}
	return &n, nil
}

func parseTime(field, s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := fallbackLayouts
	if layout != "" {
		layouts = append([]string{layout}, fallbackLayouts...)
	}
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.NewValidationError(field, s, "unrecognised timestamp")
}

func pick(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
