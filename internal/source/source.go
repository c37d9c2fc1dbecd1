// Package source reads study data files (CSV and Parquet) into tables.
//
// Readers here are deliberately narrow: one header row, values inferred to
// integer, float or text per column, empty cells treated as missing.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/cohort/internal/dataset"
)

// Format identifies a supported data-file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// FormatOf returns the format implied by path's extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, true
	case ".parquet":
		return FormatParquet, true
	}
	return "", false
}

// ReadHeader returns the column names of a data file without reading rows.
//
// Missing or unreadable files return a dataset.DataAccessError.
func ReadHeader(path string) ([]string, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, dataset.NewDataAccessError("read header", path, fmt.Errorf("unsupported file type %q", filepath.Ext(path)))
	}

	var (
		headers []string
		err     error
	)
	switch format {
	case FormatCSV:
		headers, err = readCSVHeader(path)
	case FormatParquet:
		headers, err = readParquetHeader(path)
	}
	if err != nil {
		return nil, dataset.NewDataAccessError("read header", path, err)
	}
	if len(headers) == 0 {
		return nil, dataset.NewDataAccessError("read header", path, errors.New("file has no header"))
	}
	return headers, nil
}

// ReadTable reads every row of a data file.
func ReadTable(path string) (*dataset.Table, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, dataset.NewDataAccessError("read table", path, fmt.Errorf("unsupported file type %q", filepath.Ext(path)))
	}

	var (
		t   *dataset.Table
		err error
	)
	switch format {
	case FormatCSV:
		t, err = readCSVTable(path)
	case FormatParquet:
		t, err = readParquetTable(path)
	}
	if err != nil {
		return nil, dataset.NewDataAccessError("read table", path, err)
	}
	return t, nil
}

// ModTime returns the modification time of path in Unix nanoseconds, or 0
// when it cannot be read.
func ModTime(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}
