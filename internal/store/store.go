package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/cohort/internal/catalog"
	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/logger"
	"github.com/roach88/cohort/internal/metrics"
	"github.com/roach88/cohort/internal/querysql"
)

// EngineSQLite names this engine in logs and metrics.
const EngineSQLite = "sqlite"

// Executor executes query fragments against a loaded dataset.
type Executor interface {
	// Count runs a count fragment and returns its single integer result.
	Count(ctx context.Context, f querysql.Fragment) (int64, error)

	// Query runs a data fragment and returns every row.
	Query(ctx context.Context, f querysql.Fragment) (*dataset.Table, error)

	// Columns maps each loaded table to its SQL column names.
	Columns() map[string][]string

	Close() error
}

// Options configures Open.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Store is an in-memory SQLite database holding every table of a catalog.
type Store struct {
	db      *sql.DB
	columns map[string][]string
	log     *slog.Logger
	metrics *metrics.Recorder
}

var _ Executor = (*Store)(nil)

// Open creates the in-memory database and loads every table in cat.
//
// A table that fails to load is skipped with a warning unless it is the
// primary table, in which case Open fails.
func Open(ctx context.Context, cat *catalog.Catalog, opts Options) (*Store, error) {
	log := logger.OrDefault(opts.Logger)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps the in-memory database alive and shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := &Store{
		db:      db,
		columns: make(map[string][]string, len(cat.Tables)),
		log:     log,
		metrics: opts.Metrics,
	}

	for _, info := range cat.Tables {
		t, err := readTable(info, cat.Keys, log)
		if err == nil {
			err = s.load(ctx, info.Name, t)
		}
		if err != nil {
			if info.Name == cat.PrimaryTable {
				db.Close()
				return nil, err
			}
			log.Warn("skipping table that failed to load", "table", info.Name, "error", err)
			continue
		}
	}

	log.Debug("loaded dataset into sqlite", "tables", len(s.columns))
	return s, nil
}

// Close closes the database. The loaded data is discarded.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Columns returns the SQL column names of every loaded table.
func (s *Store) Columns() map[string][]string {
	out := make(map[string][]string, len(s.columns))
	for k, v := range s.columns {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Count executes a count fragment.
func (s *Store) Count(ctx context.Context, f querysql.Fragment) (n int64, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveCount(EngineSQLite, start, err) }()
	return CountRow(ctx, s.db, f)
}

// Query executes a data fragment.
func (s *Store) Query(ctx context.Context, f querysql.Fragment) (*dataset.Table, error) {
	start := time.Now()
	defer s.metrics.ObserveQuery(EngineSQLite, start)
	return QueryTable(ctx, s.db, f)
}

// applyPragmas sets SQLite options suited to a throwaway database.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = OFF",
		"PRAGMA synchronous = OFF",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
