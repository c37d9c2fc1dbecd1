package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/source"
)

// WriteCSV writes t with a header row. Missing values are empty cells.
func WriteCSV(w io.Writer, t *dataset.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = dataset.Format(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteParquet writes t as a single row group. Every column is optional and
// typed INT64, DOUBLE or STRING from its values.
//
// Parquet groups order their fields by name, so the file's column order is
// alphabetical.
func WriteParquet(w io.Writer, t *dataset.Table) error {
	group := parquet.Group{}
	kinds := make([]source.Kind, len(t.Columns))
	for i, c := range t.Columns {
		kinds[i] = source.KindOf(t.Column(c))
		group[c] = parquet.Optional(leafFor(kinds[i]))
	}
	schema := parquet.NewSchema("cohort", group)

	// Map table columns to leaf indexes of the schema.
	leaf := make([]int, len(t.Columns))
	index := map[string]int{}
	for i, path := range schema.Columns() {
		index[path[0]] = i
	}
	for i, c := range t.Columns {
		leaf[i] = index[c]
	}

	pw := parquet.NewWriter(w, schema)
	rows := make([]parquet.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := make(parquet.Row, len(t.Columns))
		for i, v := range r {
			row[leaf[i]] = cell(v, kinds[i]).Level(0, definition(v), leaf[i])
		}
		rows = append(rows, row)
	}
	if _, err := pw.WriteRows(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	return pw.Close()
}

// WriteFile writes t to path in the format implied by its extension.
func WriteFile(path string, t *dataset.Table) (err error) {
	format, ok := source.FormatOf(path)
	if !ok {
		return dataset.NewConfigurationError("write export",
			fmt.Sprintf("unsupported export file %q: use .csv or .parquet", path), nil)
	}

	f, err := os.Create(path)
	if err != nil {
		return dataset.NewDataAccessError("write export", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = dataset.NewDataAccessError("write export", path, cerr)
		}
	}()

	if format == source.FormatParquet {
		return WriteParquet(f, t)
	}
	return WriteCSV(f, t)
}

func leafFor(k source.Kind) parquet.Node {
	switch k {
	case source.KindInteger:
		return parquet.Int(64)
	case source.KindReal:
		return parquet.Leaf(parquet.DoubleType)
	}
	return parquet.String()
}

func definition(v any) int {
	if v == nil {
		return 0
	}
	return 1
}

// cell converts v to the physical type of a column of kind k.
func cell(v any, k source.Kind) parquet.Value {
	if v == nil {
		return parquet.NullValue()
	}
	switch k {
	case source.KindInteger:
		switch x := v.(type) {
		case int64:
			return parquet.Int64Value(x)
		case bool:
			if x {
				return parquet.Int64Value(1)
			}
			return parquet.Int64Value(0)
		}
	case source.KindReal:
		if f, ok := dataset.ToFloat(v); ok {
			return parquet.DoubleValue(f)
		}
	}
	return parquet.ByteArrayValue([]byte(dataset.Format(v)))
}
