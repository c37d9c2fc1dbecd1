package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/roach88/cohort/internal/dataset"
)

// openParquet opens path as a parquet file. The caller closes the returned os.File.
func openParquet(path string) (*os.File, *parquet.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pqFile, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	return file, pqFile, nil
}

// readParquetHeader returns the top-level field names of the schema.
// Nested groups are not supported and appear under their group name.
func readParquetHeader(path string) ([]string, error) {
	file, pqFile, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	fields := pqFile.Schema().Fields()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.Name()
	}
	return headers, nil
}

func readParquetTable(path string) (*dataset.Table, error) {
	file, pqFile, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	fields := pqFile.Schema().Fields()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.Name()
	}
	t := dataset.NewTable(headers...)

	reader := parquet.NewReader(pqFile)
	defer func() { _ = reader.Close() }()

	for {
		row := make(map[string]interface{})
		if err := reader.Read(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		values := make([]any, len(headers))
		for i, h := range headers {
			values[i] = dataset.Normalize(row[h])
		}
		t.Rows = append(t.Rows, values)
	}
	return t, nil
}
