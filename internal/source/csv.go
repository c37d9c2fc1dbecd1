package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/roach88/cohort/internal/dataset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func openCSV(path string) (*os.File, *csv.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	br := bufio.NewReader(f)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1 // ragged rows are padded or cut to the header
	r.LazyQuotes = true
	return f, r, nil
}

func readCSVHeader(path string) ([]string, error) {
	f, r, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	headers, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return trimAll(headers), nil
}

func readCSVTable(path string) (*dataset.Table, error) {
	f, r, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	headers, err := r.Read()
	if err == io.EOF {
		return dataset.NewTable(), nil
	}
	if err != nil {
		return nil, err
	}
	headers = trimAll(headers)

	var raw [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]string, len(headers))
		for i := range row {
			if i < len(rec) {
				row[i] = strings.TrimSpace(rec[i])
			}
		}
		raw = append(raw, row)
	}

	kinds := inferKinds(len(headers), raw)
	t := dataset.NewTable(headers...)
	t.Rows = make([][]any, len(raw))
	for i, rec := range raw {
		row := make([]any, len(headers))
		for j, v := range rec {
			row[j] = convert(v, kinds[j])
		}
		t.Rows[i] = row
	}
	return t, nil
}

// Kind is the inferred storage class of a column.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindReal
)

// SQLType returns the column type used when loading into a SQL engine.
func (k Kind) SQLType() string {
	switch k {
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	}
	return "TEXT"
}

// inferKinds picks the narrowest kind every non-empty value parses as.
// Columns with no values are text.
func inferKinds(width int, rows [][]string) []Kind {
	out := make([]Kind, width)
	for col := 0; col < width; col++ {
		seen, allInt, allFloat := false, true, true
		for _, r := range rows {
			v := r[col]
			if v == "" {
				continue
			}
			seen = true
			if allInt {
				if _, err := strconv.ParseInt(v, 10, 64); err != nil {
					allInt = false
				}
			}
			if allFloat {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					allFloat = false
				}
			}
			if !allInt && !allFloat {
				break
			}
		}
		switch {
		case !seen:
			out[col] = KindText
		case allInt:
			out[col] = KindInteger
		case allFloat:
			out[col] = KindReal
		default:
			out[col] = KindText
		}
	}
	return out
}

func convert(v string, k Kind) any {
	if v == "" {
		return nil
	}
	switch k {
	case KindInteger:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case KindReal:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return v
}

// KindOf reports the kind of a loaded column from its values.
func KindOf(values []any) Kind {
	kind := KindText
	seen := false
	for _, v := range values {
		switch v.(type) {
		case nil:
			continue
		case int64, bool:
			if !seen {
				kind = KindInteger
			}
		case float64:
			if !seen || kind == KindInteger {
				kind = KindReal
			}
		default:
			return KindText
		}
		seen = true
	}
	return kind
}

func trimAll(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
