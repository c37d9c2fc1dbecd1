package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/cohort/internal/catalog"
	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/ident"
	"github.com/roach88/cohort/internal/logger"
	"github.com/roach88/cohort/internal/source"
)

// readTable reads a data file, renames its columns to their SQL form and
// adds the merge column the dataset's joins expect.
func readTable(info catalog.TableInfo, keys dataset.MergeKeys, log *slog.Logger) (*dataset.Table, error) {
	t, err := source.ReadTable(info.Path)
	if err != nil {
		return nil, err
	}
	t.Columns = ident.Columns(t.Columns)
	PrepareMergeColumn(t, keys, info.Name, log)
	return t, nil
}

// PrepareMergeColumn makes sure t has the SQL merge column of keys.
//
// Longitudinal tables with primary and session columns get the composite
// id built as "<primary>_<session>". A table that cannot provide the merge
// column gets an empty one so joins stay valid and simply match nothing.
func PrepareMergeColumn(t *dataset.Table, keys dataset.MergeKeys, table string, log *slog.Logger) {
	merge := ident.Sanitize(keys.MergeColumn())
	if t.HasColumn(merge) {
		return
	}

	if keys.IsLongitudinal {
		p := t.ColumnIndex(ident.Sanitize(keys.PrimaryID))
		s := t.ColumnIndex(ident.Sanitize(keys.SessionID))
		if p >= 0 && s >= 0 {
			t.Columns = append(t.Columns, merge)
			for i, row := range t.Rows {
				var id any
				if !dataset.IsNull(row[p]) && !dataset.IsNull(row[s]) {
					id = CompositeID(row[p], row[s])
				}
				t.Rows[i] = append(row, id)
			}
			return
		}
	}

	logger.OrDefault(log).Warn("table has no merge column, joins will not match", "table", table, "column", merge)
	t.Columns = append(t.Columns, merge)
	for i, row := range t.Rows {
		t.Rows[i] = append(row, nil)
	}
}

// CompositeID joins a primary id and session value into one identifier.
func CompositeID(primary, session any) string {
	return dataset.Format(primary) + "_" + dataset.Format(session)
}

// load creates table name from t and inserts every row in one transaction.
func (s *Store) load(ctx context.Context, name string, t *dataset.Table) error {
	if _, ok := s.columns[name]; ok {
		return fmt.Errorf("table %s loaded twice", name)
	}
	table := ident.Safe(name)

	var ddl strings.Builder
	ddl.WriteString("CREATE TABLE ")
	ddl.WriteString(table.String())
	ddl.WriteString(" (")
	for i, col := range t.Columns {
		if i > 0 {
			ddl.WriteString(", ")
		}
		ddl.WriteString(ident.Safe(col).String())
		ddl.WriteString(" ")
		ddl.WriteString(source.KindOf(t.Column(col)).SQLType())
	}
	ddl.WriteString(")")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load of %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, ddl.String()); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	columns := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		columns[i] = ident.Safe(col).String()
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.String(), strings.Join(columns, ", "), placeholders)

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", name, err)
	}
	defer stmt.Close()

	for _, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert into %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load of %s: %w", name, err)
	}

	s.columns[name] = append([]string(nil), t.Columns...)
	s.metrics.AddRows(name, len(t.Rows))
	s.log.Debug("loaded table", "table", name, "rows", len(t.Rows), "columns", len(t.Columns))
	return nil
}
