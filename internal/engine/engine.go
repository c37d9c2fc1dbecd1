package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/roach88/cohort/internal/catalog"
	"github.com/roach88/cohort/internal/config"
	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/logger"
	"github.com/roach88/cohort/internal/metrics"
	"github.com/roach88/cohort/internal/querysql"
	"github.com/roach88/cohort/internal/report"
	"github.com/roach88/cohort/internal/store"
	"github.com/roach88/cohort/internal/store/duckdb"
)

// Engine answers cohort queries over one loaded dataset.
type Engine struct {
	cfg     config.Config
	catalog *catalog.Catalog
	exec    store.Executor
	builder *querysql.Builder

	log     *slog.Logger
	metrics *metrics.Recorder
	clock   clockwork.Clock
	ids     report.IDGenerator
	cache   *catalog.Cache
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics records query metrics on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithClock sets the clock used for report timestamps and file names.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the report ID generator. Defaults to UUIDv7.
func WithIDGenerator(g report.IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithCatalogCache reuses directory scans across engines.
func WithCatalogCache(c *catalog.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// Open scans cfg.DataDir and loads it into the executor named by
// cfg.Engine.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		ids:   report.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logger.OrDefault(e.log)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		cat *catalog.Catalog
		err error
	)
	if e.cache != nil {
		cat, err = e.cache.Get(ctx, cfg.Catalog(), e.log)
	} else {
		cat, err = catalog.Scan(ctx, cfg.Catalog(), e.log)
	}
	if err != nil {
		return nil, err
	}
	e.catalog = cat

	storeOpts := store.Options{Logger: e.log, Metrics: e.metrics}
	switch cfg.Engine {
	case "duckdb":
		e.exec, err = duckdb.Open(ctx, cat, storeOpts)
	case "sqlite":
		e.exec, err = store.Open(ctx, cat, storeOpts)
	default:
		err = dataset.NewConfigurationError("open engine", fmt.Sprintf("unknown engine %q", cfg.Engine), nil)
	}
	if err != nil {
		return nil, err
	}

	cols := e.exec.Columns()
	e.builder = &querysql.Builder{
		PrimaryTable:    cat.PrimaryTable,
		AgeColumn:       cfg.AgeColumn,
		StudySiteColumn: cfg.StudySiteColumn,
		PrimaryColumns:  cols[cat.PrimaryTable],
		TableColumns:    cols,
		Whitelist:       cat.Whitelist,
		Logger:          e.log,
		Metrics:         e.metrics,
	}

	e.log.Info("dataset ready",
		"dir", cfg.DataDir,
		"engine", cfg.Engine,
		"tables", len(cols),
		"longitudinal", cat.Keys.IsLongitudinal,
		"merge_column", cat.Keys.MergeColumn())
	return e, nil
}

// Close releases the executor.
func (e *Engine) Close() error {
	if e.exec == nil {
		return nil
	}
	return e.exec.Close()
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() config.Config { return e.cfg }

// Catalog returns the scanned directory.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Keys returns the detected merge keys.
func (e *Engine) Keys() dataset.MergeKeys { return e.catalog.Keys }

// Builder returns the query builder bound to the loaded tables.
func (e *Engine) Builder() *querysql.Builder { return e.builder }

// Columns returns the loaded SQL columns per table.
func (e *Engine) Columns() map[string][]string { return e.exec.Columns() }

func (e *Engine) reports() *report.Generator {
	return &report.Generator{
		Builder: e.builder,
		Counter: e.exec,
		Clock:   e.clock,
		IDs:     e.ids,
		Logger:  e.log,
	}
}
