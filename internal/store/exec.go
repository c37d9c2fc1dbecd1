package store

import (
	"context"
	"database/sql"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/querysql"
)

// Querier is the subset of *sql.DB the executors need.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CountRow runs a count fragment and scans its single column.
// A NULL result counts as zero.
func CountRow(ctx context.Context, q Querier, f querysql.Fragment) (int64, error) {
	var n sql.NullInt64
	if err := q.QueryRowContext(ctx, f.SQL, f.Params...).Scan(&n); err != nil {
		return 0, dataset.NewQueryError("count participants", err)
	}
	return n.Int64, nil
}

// QueryTable runs a data fragment and collects every row. Values are
// normalized to the dataset cell types.
func QueryTable(ctx context.Context, q Querier, f querysql.Fragment) (*dataset.Table, error) {
	rows, err := q.QueryContext(ctx, f.SQL, f.Params...)
	if err != nil {
		return nil, dataset.NewQueryError("query data", err)
	}
	defer rows.Close()

	t, err := ScanRows(rows)
	if err != nil {
		return nil, dataset.NewQueryError("query data", err)
	}
	return t, nil
}

// ScanRows reads rows into a table named by the result columns.
func ScanRows(rows *sql.Rows) (*dataset.Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	t := dataset.NewTable(cols...)

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		if err := t.Append(values...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}
