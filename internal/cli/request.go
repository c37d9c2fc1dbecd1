package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/engine"
	"github.com/roach88/cohort/internal/filter"
	"github.com/roach88/cohort/internal/params"
	"github.com/roach88/cohort/internal/querysql"
)

// RequestOptions holds the flags that describe a cohort. A parameter file
// is read first and the flags add to it.
type RequestOptions struct {
	ParamsFile string
	AgeMin     float64
	AgeMax     float64
	Sessions   []string
	Substudies []string
	Ranges     []string // table.column=min:max
	Values     []string // table.column=a,b,c
	Tables     []string
	Columns    []string // table.column

	// loaded is the imported parameter file, if any.
	loaded *params.Params
}

func addRequestFlags(cmd *cobra.Command, o *RequestOptions) {
	f := cmd.Flags()
	f.StringVar(&o.ParamsFile, "params", "", "TOML query parameter file")
	f.Float64Var(&o.AgeMin, "age-min", 0, "minimum age (inclusive)")
	f.Float64Var(&o.AgeMax, "age-max", 0, "maximum age (inclusive)")
	f.StringSliceVar(&o.Sessions, "session", nil, "session value to keep (repeatable)")
	f.StringSliceVar(&o.Substudies, "substudy", nil, "substudy a participant must belong to (repeatable)")
	f.StringArrayVar(&o.Ranges, "range", nil, "numeric filter table.column=min:max (repeatable)")
	f.StringArrayVar(&o.Values, "in", nil, "categorical filter table.column=a,b,c (repeatable)")
	f.StringSliceVar(&o.Tables, "table", nil, "table to join (repeatable)")
	f.StringArrayVar(&o.Columns, "column", nil, "column to select as table.column (repeatable)")
}

// build turns the flags into a Request. Parameter-file problems are
// returned as a single ValidationError.
func (o *RequestOptions) build(cmd *cobra.Command) (engine.Request, error) {
	var req engine.Request
	if o.ParamsFile != "" {
		data, err := os.ReadFile(o.ParamsFile)
		if err != nil {
			return req, dataset.NewDataAccessError("read query parameters", o.ParamsFile, err)
		}
		p, problems, err := params.Import(data)
		if err != nil {
			return req, err
		}
		if len(problems) > 0 {
			return req, &dataset.Error{
				Kind:    dataset.ValidationError,
				Op:      "import query parameters",
				Message: strings.Join(problems, "; "),
				Details: map[string]string{"file": o.ParamsFile},
			}
		}
		o.loaded = &p
		req = engine.RequestFromParams(p)
	}

	flags := cmd.Flags()
	minSet, maxSet := flags.Changed("age-min"), flags.Changed("age-max")
	if minSet != maxSet {
		return req, dataset.NewValidationError("parse flags", "--age-min and --age-max must be given together", nil)
	}
	if minSet {
		r := filter.NumericRange{Min: o.AgeMin, Max: o.AgeMax}
		if err := filter.CheckAge(r); err != nil {
			return req, err
		}
		req.Filters.Demographic.AgeRange = &r
	}
	req.Filters.Demographic.Sessions = append(req.Filters.Demographic.Sessions, o.Sessions...)
	req.Filters.Demographic.Substudies = append(req.Filters.Demographic.Substudies, o.Substudies...)

	for _, raw := range o.Ranges {
		table, column, value, err := splitFilter(raw)
		if err != nil {
			return req, err
		}
		lo, hi, ok := strings.Cut(value, ":")
		if !ok {
			return req, dataset.NewValidationError("parse --range", fmt.Sprintf("%q: expected min:max", raw), nil)
		}
		from, errFrom := strconv.ParseFloat(strings.TrimSpace(lo), 64)
		to, errTo := strconv.ParseFloat(strings.TrimSpace(hi), 64)
		if errFrom != nil || errTo != nil {
			return req, dataset.NewValidationError("parse --range", fmt.Sprintf("%q: bounds must be numbers", raw), nil)
		}
		b, err := filter.ParseBehavioral(table, column, "range", []float64{from, to})
		if err != nil {
			return req, err
		}
		req.Filters.Behavioral = append(req.Filters.Behavioral, b)
	}

	for _, raw := range o.Values {
		table, column, value, err := splitFilter(raw)
		if err != nil {
			return req, err
		}
		var values []any
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, literal(v))
			}
		}
		b, err := filter.ParseBehavioral(table, column, "categorical", values)
		if err != nil {
			return req, err
		}
		req.Filters.Behavioral = append(req.Filters.Behavioral, b)
	}

	req.Tables = appendUnique(req.Tables, o.Tables...)
	for _, raw := range o.Columns {
		table, column, ok := strings.Cut(raw, ".")
		if !ok || table == "" || column == "" {
			return req, dataset.NewValidationError("parse --column", fmt.Sprintf("%q: expected table.column", raw), nil)
		}
		req.Tables = appendUnique(req.Tables, table)
		req.Selections = addSelection(req.Selections, table, column)
	}
	return req, nil
}

// splitFilter parses "table.column=value".
func splitFilter(raw string) (table, column, value string, err error) {
	ref, value, ok := strings.Cut(raw, "=")
	if ok {
		table, column, ok = strings.Cut(ref, ".")
	}
	if !ok || table == "" || column == "" || value == "" {
		return "", "", "", dataset.NewValidationError("parse filter flag", fmt.Sprintf("%q: expected table.column=value", raw), nil)
	}
	return table, column, value, nil
}

// literal reads a flag value as an integer or float when it looks like one.
func literal(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func addSelection(sel []querysql.ColumnSelection, table, column string) []querysql.ColumnSelection {
	for i := range sel {
		if sel[i].Table == table {
			sel[i].Columns = appendUnique(sel[i].Columns, column)
			return sel
		}
	}
	return append(sel, querysql.ColumnSelection{Table: table, Columns: []string{column}})
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		found := false
		for _, have := range list {
			if have == it {
				found = true
				break
			}
		}
		if !found {
			list = append(list, it)
		}
	}
	return list
}
