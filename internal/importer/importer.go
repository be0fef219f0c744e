package importer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tradejournal/internal/journal"
	"tradejournal/internal/logging"
	"tradejournal/internal/models"
)

// Batcher applies a scope's mutations in one transaction.
type Batcher interface {
	ApplyBatch(ctx context.Context, scope models.Scope, mutations []journal.Mutation) (*journal.Result, error)
}

// Summary reports what an import did.
type Summary struct {
	Rows       int
	Merged     int
	Executions int
	Scopes     int
	Trades     int
}

// Importer replays parsed executions through the coordinator, one batch per
// scope. Scopes are independent and run in parallel.
type Importer struct {
	batcher Batcher
	workers int
	merge   bool
	opts    ReadOptions
	logger  zerolog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithWorkers bounds how many scopes replay at once.
func WithWorkers(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.workers = n
		}
	}
}

// WithMergeDuplicates enables the duplicate-fill pre-pass.
func WithMergeDuplicates(merge bool) Option {
	return func(im *Importer) { im.merge = merge }
}

// WithReadOptions sets the CSV parsing options.
func WithReadOptions(opts ReadOptions) Option {
	return func(im *Importer) { im.opts = opts }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// New creates an importer.
func New(b Batcher, opts ...Option) *Importer {
	im := &Importer{batcher: b, workers: 1, merge: true, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportFills reads a fills CSV file and replays it.
func (im *Importer) ImportFills(ctx context.Context, path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	execs, err := ReadFillsCSV(f, im.opts)
	if err != nil {
		logging.LogImport(im.logger, path, 0, 0, 0, err)
		return nil, err
	}
	return im.Replay(ctx, path, execs)
}

// ImportLegacy reads a legacy closed-trade CSV file and replays it.
func (im *Importer) ImportLegacy(ctx context.Context, path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	execs, err := ReadClosedTradesCSV(f, im.opts)
	if err != nil {
		logging.LogImport(im.logger, path, 0, 0, 0, err)
		return nil, err
	}
	return im.Replay(ctx, path, execs)
}

// Replay groups executions by scope and applies each group in
// chronological order. A failing scope cancels the scopes not yet started;
// scopes already committed stay committed.
func (im *Importer) Replay(ctx context.Context, source string, execs []models.Execution) (*Summary, error) {
	summary := &Summary{Rows: len(execs)}
	if im.merge {
		merged := MergeDuplicates(execs)
		summary.Merged = len(execs) - len(merged)
		execs = merged
	}
	summary.Executions = len(execs)

	groups, scopes := groupByScope(execs)
	summary.Scopes = len(scopes)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for _, scope := range scopes {
		scope, group := scope, groups[scope]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mutations := make([]journal.Mutation, len(group))
			for i, e := range group {
				mutations[i] = journal.InsertExecution(e)
			}
			res, err := im.batcher.ApplyBatch(gctx, scope, mutations)
			if err != nil {
				return fmt.Errorf("failed to import %s: %w", scope, err)
			}
			mu.Lock()
			for _, sr := range res.Scopes {
				summary.Trades += len(sr.Trades)
			}
			mu.Unlock()
			l := logging.WithScope(im.logger, scope)
			l.Debug().Int("executions", len(group)).Msg("Scope imported")
			return nil
		})
	}
	err := g.Wait()

	logging.LogImport(im.logger, source, summary.Rows, summary.Merged, summary.Scopes, err)
	return summary, err
}

type mergeKey struct {
	broker     string
	ticker     string
	instrument models.Instrument
	side       models.OrderSide
	price      string
	at         int64
}

// MergeDuplicates collapses fills that share broker, ticker, side, price and
// timestamp into one fill carrying the summed quantity. Brokers often report
// a single order as several partial fills of that shape. The first
// occurrence keeps its position.
func MergeDuplicates(execs []models.Execution) []models.Execution {
	out := make([]models.Execution, 0, len(execs))
	index := make(map[mergeKey]int, len(execs))
	for _, e := range execs {
		key := mergeKey{
			broker:     strings.ToLower(strings.TrimSpace(e.Broker)),
			ticker:     strings.ToUpper(strings.TrimSpace(e.Ticker)),
			instrument: e.Instrument,
			side:       e.Side,
			price:      e.Price.String(),
			at:         e.ExecutedAt.UnixNano(),
		}
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, e)
			continue
		}
		m := &out[i]
		m.Quantity = m.Quantity.Add(e.Quantity)
		if m.Lots != nil && e.Lots != nil {
			lots := *m.Lots + *e.Lots
			m.Lots = &lots
		} else {
			m.Lots = nil
		}
	}
	return out
}

// groupByScope buckets executions by normalized scope, each bucket sorted by
// execution time with file order breaking ties.
func groupByScope(execs []models.Execution) (map[models.Scope][]models.Execution, []models.Scope) {
	groups := make(map[models.Scope][]models.Execution)
	var scopes []models.Scope
	for _, e := range execs {
		scope := models.Scope{
			Broker: strings.ToLower(strings.TrimSpace(e.Broker)),
			Ticker: strings.ToUpper(strings.TrimSpace(e.Ticker)),
		}
		e.Broker, e.Ticker = scope.Broker, scope.Ticker
		if _, ok := groups[scope]; !ok {
			scopes = append(scopes, scope)
		}
		groups[scope] = append(groups[scope], e)
	}
	for _, scope := range scopes {
		group := groups[scope]
		sort.SliceStable(group, func(i, j int) bool { return group[i].ExecutedAt.Before(group[j].ExecutedAt) })
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].String() < scopes[j].String() })
	return groups, scopes
}
