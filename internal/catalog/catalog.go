// Package catalog inspects a data directory: which tables exist, what
// columns they carry and which merge structure the dataset has.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/ident"
	"github.com/roach88/cohort/internal/logger"
	"github.com/roach88/cohort/internal/source"
	"github.com/roach88/cohort/internal/structure"
)

// maxConcurrentReads bounds parallel header reads during a scan.
const maxConcurrentReads = 8

// Settings are the configuration values a scan depends on.
type Settings struct {
	DataDir          string `json:"data_dir"`
	DemographicsFile string `json:"demographics_file"`
	PrimaryID        string `json:"primary_id_column"`
	SessionID        string `json:"session_column"`
	CompositeID      string `json:"composite_id_column"`
}

// TableInfo describes one data file.
type TableInfo struct {
	// Name is the sanitized table name used in SQL.
	Name string `json:"name"`

	File    string        `json:"file"`
	Path    string        `json:"path"`
	Format  source.Format `json:"format"`
	Columns []string      `json:"columns"`

	// Problems lists structural issues, such as a missing id column.
	Problems []string `json:"problems,omitempty"`
}

// SQLColumns returns the sanitized column names.
func (t TableInfo) SQLColumns() []string {
	return ident.Columns(t.Columns)
}

// Catalog is the result of scanning a data directory.
type Catalog struct {
	Dir          string            `json:"dir"`
	PrimaryTable string            `json:"primary_table"`
	Keys         dataset.MergeKeys `json:"merge_keys"`
	Tables       []TableInfo       `json:"tables"`
	Whitelist    ident.Whitelist   `json:"-"`
}

// Table returns a table by raw or sanitized name.
func (c *Catalog) Table(name string) (TableInfo, bool) {
	member, ok := ident.ValidateTable(name, c.Whitelist)
	if !ok {
		return TableInfo{}, false
	}
	for _, t := range c.Tables {
		if t.Name == member {
			return t, true
		}
	}
	return TableInfo{}, false
}

// Primary returns the primary (demographics) table.
func (c *Catalog) Primary() TableInfo {
	t, _ := c.Table(c.PrimaryTable)
	return t
}

// BehavioralTables returns every table except the primary one, sorted.
func (c *Catalog) BehavioralTables() []string {
	var out []string
	for _, t := range c.Tables {
		if t.Name != c.PrimaryTable {
			out = append(out, t.Name)
		}
	}
	sort.Strings(out)
	return out
}

// DemographicColumns returns the primary table's sanitized columns minus
// the id columns.
func (c *Catalog) DemographicColumns() []string {
	ids := map[string]bool{
		ident.Sanitize(c.Keys.PrimaryID): true,
	}
	if c.Keys.SessionID != "" {
		ids[ident.Sanitize(c.Keys.SessionID)] = true
	}
	if c.Keys.CompositeID != "" {
		ids[ident.Sanitize(c.Keys.CompositeID)] = true
	}
	var out []string
	for _, col := range c.Primary().SQLColumns() {
		if !ids[col] {
			out = append(out, col)
		}
	}
	return out
}

// Scan lists the data directory, reads every header and detects the merge
// structure from the primary table.
//
// A missing directory or primary file returns a dataset.DataAccessError.
// Unreadable non-primary files are recorded as problems instead.
func Scan(ctx context.Context, s Settings, log *slog.Logger) (*Catalog, error) {
	log = logger.OrDefault(log)

	entries, err := os.ReadDir(s.DataDir)
	if err != nil {
		return nil, dataset.NewDataAccessError("scan data directory", s.DataDir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := source.FormatOf(e.Name()); ok {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	primaryStem, ok := ident.TableStem(s.DemographicsFile)
	if !ok {
		return nil, dataset.NewConfigurationError("scan data directory",
			fmt.Sprintf("demographics_file %q is not a csv or parquet file", s.DemographicsFile), nil)
	}
	primaryName := ident.Sanitize(primaryStem)

	tables := make([]TableInfo, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, name := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			stem, _ := ident.TableStem(name)
			format, _ := source.FormatOf(name)
			info := TableInfo{
				Name:   ident.Sanitize(stem),
				File:   name,
				Path:   filepath.Join(s.DataDir, name),
				Format: format,
			}
			headers, err := source.ReadHeader(info.Path)
			if err != nil {
				if info.Name == primaryName {
					return err
				}
				info.Problems = append(info.Problems, err.Error())
			}
			info.Columns = headers
			tables[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tables = dedupe(tables, log)

	var primary *TableInfo
	for i := range tables {
		if tables[i].Name == primaryName {
			primary = &tables[i]
		}
	}
	if primary == nil {
		return nil, dataset.NewDataAccessError("scan data directory",
			filepath.Join(s.DataDir, s.DemographicsFile), os.ErrNotExist)
	}

	keys := structure.Detect(primary.Columns, structure.Columns{
		PrimaryID:   s.PrimaryID,
		SessionID:   s.SessionID,
		CompositeID: s.CompositeID,
	}, log)

	names := make([]string, 0, len(tables))
	for i := range tables {
		tables[i].Problems = append(tables[i].Problems, checkStructure(tables[i], keys)...)
		names = append(names, tables[i].Name)
	}

	log.Debug("scanned data directory", "dir", s.DataDir, "tables", len(tables), "longitudinal", keys.IsLongitudinal)
	return &Catalog{
		Dir:          s.DataDir,
		PrimaryTable: primaryName,
		Keys:         keys,
		Tables:       tables,
		Whitelist:    ident.NewWhitelist(names...),
	}, nil
}

// dedupe drops files whose sanitized names collide with an earlier file.
func dedupe(tables []TableInfo, log *slog.Logger) []TableInfo {
	seen := map[string]string{}
	out := tables[:0]
	for _, t := range tables {
		if prev, ok := seen[t.Name]; ok {
			log.Warn("skipping data file with duplicate table name", "file", t.File, "table", t.Name, "kept", prev)
			continue
		}
		seen[t.Name] = t.File
		out = append(out, t)
	}
	return out
}

// checkStructure reports id columns a table needs but lacks.
func checkStructure(t TableInfo, keys dataset.MergeKeys) []string {
	if t.Columns == nil {
		return nil
	}
	has := map[string]bool{}
	for _, c := range t.Columns {
		has[c] = true
	}
	var problems []string
	if !has[keys.PrimaryID] && !has[keys.CompositeID] {
		problems = append(problems, fmt.Sprintf("missing primary id column %q", keys.PrimaryID))
	}
	if keys.IsLongitudinal && !has[keys.SessionID] && !has[keys.CompositeID] {
		problems = append(problems, fmt.Sprintf("missing session column %q", keys.SessionID))
	}
	return problems
}
