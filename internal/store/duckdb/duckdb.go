// Package duckdb executes cohort queries with DuckDB reading the data
// files in place.
//
// Every data file becomes a view over read_csv_auto or read_parquet with
// its columns renamed to their sanitized SQL form. The views have the same
// names and columns as the SQLite store's tables so the same query
// fragments run against either engine.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/roach88/cohort/internal/catalog"
	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/ident"
	"github.com/roach88/cohort/internal/logger"
	"github.com/roach88/cohort/internal/metrics"
	"github.com/roach88/cohort/internal/querysql"
	"github.com/roach88/cohort/internal/source"
	"github.com/roach88/cohort/internal/store"
)

// EngineDuckDB names this engine in logs and metrics.
const EngineDuckDB = "duckdb"

// Engine is an in-memory DuckDB database over a catalog's files.
type Engine struct {
	db      *sql.DB
	columns map[string][]string
	log     *slog.Logger
	metrics *metrics.Recorder
}

var _ store.Executor = (*Engine)(nil)

// Open starts an in-memory DuckDB and loads every table in cat.
func Open(ctx context.Context, cat *catalog.Catalog, opts store.Options) (*Engine, error) {
	log := logger.OrDefault(opts.Logger)

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	// Session settings do not propagate across pooled connections.
	db.SetMaxOpenConns(1)

	threads := runtime.GOMAXPROCS(0)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET threads = %d", threads)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set threads: %w", err)
	}

	e := &Engine{
		db:      db,
		columns: make(map[string][]string, len(cat.Tables)),
		log:     log,
		metrics: opts.Metrics,
	}

	for _, info := range cat.Tables {
		if err := e.load(ctx, info, cat.Keys); err != nil {
			if info.Name == cat.PrimaryTable {
				db.Close()
				return nil, err
			}
			log.Warn("skipping table that failed to load", "table", info.Name, "engine", EngineDuckDB, "error", err)
		}
	}

	log.Debug("loaded dataset into duckdb", "tables", len(e.columns), "threads", threads)
	return e, nil
}

// Close releases DuckDB resources.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Columns returns the SQL column names of every loaded table.
func (e *Engine) Columns() map[string][]string {
	out := make(map[string][]string, len(e.columns))
	for k, v := range e.columns {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Count executes a count fragment.
func (e *Engine) Count(ctx context.Context, f querysql.Fragment) (n int64, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveCount(EngineDuckDB, start, err) }()
	return store.CountRow(ctx, e.db, f)
}

// Query executes a data fragment.
func (e *Engine) Query(ctx context.Context, f querysql.Fragment) (*dataset.Table, error) {
	start := time.Now()
	defer e.metrics.ObserveQuery(EngineDuckDB, start)
	return store.QueryTable(ctx, e.db, f)
}

// load creates the view for one data file.
func (e *Engine) load(ctx context.Context, info catalog.TableInfo, keys dataset.MergeKeys) error {
	if len(info.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", info.Name)
	}
	cols := ident.Columns(info.Columns)

	var sb strings.Builder
	sb.WriteString("CREATE VIEW ")
	sb.WriteString(ident.Safe(info.Name).String())
	sb.WriteString(" AS SELECT ")
	for i, raw := range info.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(raw))
		sb.WriteString(" AS ")
		sb.WriteString(cols[i])
	}

	if extra, ok := mergeExpr(info.Columns, cols, keys); ok {
		sb.WriteString(", ")
		sb.WriteString(extra)
		sb.WriteString(" AS ")
		sb.WriteString(ident.Sanitize(keys.MergeColumn()))
		cols = append(cols, ident.Sanitize(keys.MergeColumn()))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(reader(info))

	if _, err := e.db.ExecContext(ctx, sb.String()); err != nil {
		return dataset.NewDataAccessError("load table", info.Path, err)
	}

	var rows int64
	if err := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+ident.Safe(info.Name).String()).Scan(&rows); err == nil {
		e.metrics.AddRows(info.Name, int(rows))
	}

	e.columns[info.Name] = cols
	e.log.Debug("loaded table", "table", info.Name, "engine", EngineDuckDB, "rows", rows)
	return nil
}

// mergeExpr returns the expression for a missing merge column over the
// raw source columns. ok is false when the table already has it.
func mergeExpr(raw, clean []string, keys dataset.MergeKeys) (string, bool) {
	source := make(map[string]string, len(clean))
	for i, c := range clean {
		source[c] = raw[i]
	}
	merge := ident.Sanitize(keys.MergeColumn())
	if _, ok := source[merge]; ok {
		return "", false
	}
	p, hasPrimary := source[ident.Sanitize(keys.PrimaryID)]
	s, hasSession := source[ident.Sanitize(keys.SessionID)]
	if keys.IsLongitudinal && hasPrimary && hasSession {
		return fmt.Sprintf("CAST(%s AS VARCHAR) || '_' || CAST(%s AS VARCHAR)",
			quoteIdent(p), quoteIdent(s)), true
	}
	return "CAST(NULL AS VARCHAR)", true
}

// reader returns the DuckDB table function reading info's file.
func reader(info catalog.TableInfo) string {
	path := quoteLiteral(info.Path)
	if info.Format == source.FormatParquet {
		return fmt.Sprintf("read_parquet(%s)", path)
	}
	return fmt.Sprintf("read_csv_auto(%s, header = true, delim = ',')", path)
}

// quoteIdent quotes a raw header name for DuckDB.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral quotes a string literal, doubling embedded single quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
