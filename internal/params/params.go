// Package params saves and loads query parameters as TOML so a cohort
// query can be shared and rerun.
//
// A file has four sections:
//
//	[metadata]                 export_timestamp, app_version, format_version, user_notes
//	[filters.demographic]      age_range = {min, max}, substudies, sessions
//	[[filters.phenotypic]]     table, column, type ("range" | "categorical"), value
//	[selection]                tables, columns = {table = [col, ...]}
//	[options]                  enwiden_longitudinal, consolidate_baseline
package params

import (
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pelletier/go-toml/v2"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/filter"
)

// FormatVersion is the only file format version Import accepts.
const FormatVersion = "1.0"

// Params is a complete, validated query definition.
type Params struct {
	Metadata Metadata
	Filters  filter.Set

	// Tables are the tables to join and export.
	Tables []string

	// Columns selects columns per table for export.
	Columns map[string][]string

	Wide                bool
	ConsolidateBaseline bool
}

// Metadata describes who saved a parameter file and when.
type Metadata struct {
	ExportTimestamp string `toml:"export_timestamp"`
	AppVersion      string `toml:"app_version"`
	FormatVersion   string `toml:"format_version"`
	UserNotes       string `toml:"user_notes"`
}

// file is the TOML layout. Loosely typed fields accept whatever the file
// holds so Import can report problems instead of failing to decode.
type file struct {
	Metadata  *Metadata  `toml:"metadata"`
	Filters   *filters   `toml:"filters"`
	Selection *selection `toml:"selection"`
	Options   *options   `toml:"options"`
}

type filters struct {
	Demographic demographic  `toml:"demographic"`
	Phenotypic  []phenotypic `toml:"phenotypic"`
}

type demographic struct {
	AgeRange   *ageRange `toml:"age_range,omitempty"`
	Substudies []any     `toml:"substudies,omitempty"`
	Sessions   []any     `toml:"sessions,omitempty"`
}

type ageRange struct {
	Min any `toml:"min"`
	Max any `toml:"max"`
}

type phenotypic struct {
	Table  string `toml:"table"`
	Column string `toml:"column"`
	Type   string `toml:"type"`
	Value  any    `toml:"value"`
}

type selection struct {
	Tables  []string            `toml:"tables"`
	Columns map[string][]string `toml:"columns"`
}

type options struct {
	EnwidenLongitudinal bool `toml:"enwiden_longitudinal"`
	ConsolidateBaseline bool `toml:"consolidate_baseline"`
}

// Export renders p as TOML. The metadata timestamp and format version are
// filled in from clock and FormatVersion.
func Export(p Params, clock clockwork.Clock) ([]byte, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	meta := p.Metadata
	meta.ExportTimestamp = clock.Now().UTC().Format(time.RFC3339)
	meta.FormatVersion = FormatVersion

	f := file{
		Metadata:  &meta,
		Filters:   &filters{Phenotypic: []phenotypic{}},
		Selection: &selection{Tables: p.Tables, Columns: p.Columns},
		Options: &options{
			EnwidenLongitudinal: p.Wide,
			ConsolidateBaseline: p.ConsolidateBaseline,
		},
	}
	if f.Selection.Tables == nil {
		f.Selection.Tables = []string{}
	}
	if f.Selection.Columns == nil {
		f.Selection.Columns = map[string][]string{}
	}

	d := p.Filters.Demographic
	if d.AgeRange != nil {
		f.Filters.Demographic.AgeRange = &ageRange{Min: number(d.AgeRange.Min), Max: number(d.AgeRange.Max)}
	}
	f.Filters.Demographic.Substudies = anyList(d.Substudies)
	f.Filters.Demographic.Sessions = anyList(d.Sessions)

	for _, b := range p.Filters.Behavioral {
		ph := phenotypic{Table: b.Table, Column: b.Column, Type: filter.KindOf(b.Criterion)}
		switch c := b.Criterion.(type) {
		case filter.Range:
			ph.Value = []any{number(c.Min), number(c.Max)}
		case *filter.Range:
			ph.Value = []any{number(c.Min), number(c.Max)}
		case filter.Categorical:
			ph.Value = c.Values
		case *filter.Categorical:
			ph.Value = c.Values
		default:
			return nil, dataset.NewValidationError("export query parameters",
				fmt.Sprintf("filter %s.%s has no criterion", b.Table, b.Column), nil)
		}
		f.Filters.Phenotypic = append(f.Filters.Phenotypic, ph)
	}

	out, err := toml.Marshal(f)
	if err != nil {
		return nil, dataset.NewValidationError("export query parameters", "cannot encode TOML", err)
	}
	return out, nil
}

// Import parses and validates a parameter file.
//
// Malformed TOML is returned as a dataset.ValidationError. Anything else
// wrong with the content is collected in problems; the returned Params
// holds every part that was valid.
func Import(data []byte) (p Params, problems []string, err error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return Params{}, nil, dataset.NewValidationError("import query parameters", "invalid TOML", err)
	}

	if f.Metadata == nil {
		problems = append(problems, "Missing required section: metadata")
	}
	if f.Filters == nil {
		problems = append(problems, "Missing required section: filters")
	}
	if f.Selection == nil {
		problems = append(problems, "Missing required section: selection")
	}
	if f.Options == nil {
		problems = append(problems, "Missing required section: options")
	}
	if len(problems) > 0 {
		return Params{}, problems, nil
	}

	p.Metadata = *f.Metadata
	if p.Metadata.FormatVersion != FormatVersion {
		problems = append(problems, fmt.Sprintf("Unsupported format version: %q", p.Metadata.FormatVersion))
	}

	d := f.Filters.Demographic
	if d.AgeRange != nil {
		lo, okLo := dataset.ToFloat(d.AgeRange.Min)
		hi, okHi := dataset.ToFloat(d.AgeRange.Max)
		_, loText := d.AgeRange.Min.(string)
		_, hiText := d.AgeRange.Max.(string)
		switch {
		case !okLo || !okHi || loText || hiText:
			problems = append(problems, "Invalid age range values")
		default:
			r := filter.NumericRange{Min: lo, Max: hi}
			if err := filter.CheckAge(r); err != nil {
				problems = append(problems, "Age range minimum must not exceed maximum")
			} else {
				p.Filters.Demographic.AgeRange = &r
			}
		}
	}
	p.Filters.Demographic.Substudies = texts(d.Substudies)
	p.Filters.Demographic.Sessions = texts(d.Sessions)

	for i, ph := range f.Filters.Phenotypic {
		missing := false
		for _, field := range []struct {
			name  string
			empty bool
		}{
			{"table", ph.Table == ""},
			{"column", ph.Column == ""},
			{"type", ph.Type == ""},
			{"value", ph.Value == nil},
		} {
			if field.empty {
				problems = append(problems, fmt.Sprintf("Missing field '%s' in filter %d", field.name, i))
				missing = true
			}
		}
		if missing {
			continue
		}
		b, err := filter.ParseBehavioral(ph.Table, ph.Column, ph.Type, ph.Value)
		if err != nil {
			problems = append(problems, fmt.Sprintf("Invalid filter %d: %v", i, err))
			continue
		}
		p.Filters.Behavioral = append(p.Filters.Behavioral, b)
	}

	p.Tables = f.Selection.Tables
	p.Columns = f.Selection.Columns
	p.Wide = f.Options.EnwidenLongitudinal
	p.ConsolidateBaseline = f.Options.ConsolidateBaseline
	return p, problems, nil
}

// Template returns an example parameter file.
func Template(clock clockwork.Clock) ([]byte, error) {
	return Export(Params{
		Metadata: Metadata{AppVersion: "1.0.0", UserNotes: "Example query parameters"},
		Filters: filter.Set{
			Demographic: filter.Demographic{
				AgeRange:   &filter.NumericRange{Min: 18, Max: 65},
				Substudies: []string{"Discovery", "Longitudinal_Adult"},
				Sessions:   []string{"1", "2"},
			},
			Behavioral: []filter.Behavioral{{
				Table:     "example_table",
				Column:    "example_column",
				Criterion: filter.Range{Min: 0, Max: 100},
			}},
		},
		Tables: []string{"demographics", "example_table"},
		Columns: map[string][]string{
			"demographics":  {"age", "sex"},
			"example_table": {"example_column"},
		},
	}, clock)
}

// number renders integral floats as integers.
func number(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

func anyList(s []string) []any {
	if len(s) == 0 {
		return nil
	}
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func texts(values []any) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = dataset.Format(v)
	}
	return out
}
