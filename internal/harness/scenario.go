package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cohort/internal/config"
)

// Scenario defines an end-to-end cohort scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides settings by their YAML name. data_dir is always
	// replaced with the scratch directory.
	Config map[string]string `yaml:"config,omitempty"`

	// Tables maps a file name to its CSV content.
	Tables map[string]string `yaml:"tables"`

	// Request describes the cohort to build.
	Request RequestSpec `yaml:"request"`

	// Assertions validate what the engine produced.
	Assertions []Assertion `yaml:"assertions"`
}

// RequestSpec is the loosely typed request a scenario carries. Params, when
// set, is an inline TOML parameter file and the other fields add to it.
type RequestSpec struct {
	Params              string              `yaml:"params,omitempty"`
	AgeRange            []float64           `yaml:"age_range,omitempty"`
	Sessions            []string            `yaml:"sessions,omitempty"`
	Substudies          []string            `yaml:"substudies,omitempty"`
	Filters             []FilterSpec        `yaml:"filters,omitempty"`
	Tables              []string            `yaml:"tables,omitempty"`
	Columns             map[string][]string `yaml:"columns,omitempty"`
	Wide                bool                `yaml:"wide,omitempty"`
	ConsolidateBaseline bool                `yaml:"consolidate_baseline,omitempty"`
}

// FilterSpec is one behavioral filter. Type is "range" or "categorical".
type FilterSpec struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
	Type   string `yaml:"type"`
	Value  []any  `yaml:"value"`
}

// Assertion validates one aspect of a scenario run.
type Assertion struct {
	// Type selects the assertion; see the Assert* constants.
	Type string `yaml:"type"`

	// Longitudinal and MergeColumn are used by structure.
	Longitudinal *bool  `yaml:"longitudinal,omitempty"`
	MergeColumn  string `yaml:"merge_column,omitempty"`

	// Count is used by count and warnings.
	Count *int64 `yaml:"count,omitempty"`

	// Text is used by sql_contains and sql_excludes.
	Text string `yaml:"text,omitempty"`

	// Params is used by params.
	Params []any `yaml:"params,omitempty"`

	// Remaining is used by report: the count after each step.
	Remaining []int64 `yaml:"remaining,omitempty"`

	// Rows, Columns and Cells are used by data and export. Columns is a
	// subset match.
	Rows    *int       `yaml:"rows,omitempty"`
	Columns []string   `yaml:"columns,omitempty"`
	Cells   []CellSpec `yaml:"cells,omitempty"`
}

// CellSpec expects one value in the row whose primary id is ID. A missing
// Value expects null.
type CellSpec struct {
	ID     string `yaml:"id"`
	Column string `yaml:"column"`
	Value  any    `yaml:"value"`
}

// Assertion types.
const (
	AssertStructure   = "structure"
	AssertCount       = "count"
	AssertSQLContains = "sql_contains"
	AssertSQLExcludes = "sql_excludes"
	AssertParams      = "params"
	AssertWarnings    = "warnings"
	AssertReport      = "report"
	AssertData        = "data"
	AssertExport      = "export"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios in %s", dir)
	}
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Tables) == 0 {
		return fmt.Errorf("tables map is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for name := range s.Tables {
		if name != filepath.Base(name) || !strings.HasSuffix(strings.ToLower(name), ".csv") {
			return fmt.Errorf("tables: %q must be a plain .csv file name", name)
		}
	}

	known := map[string]bool{}
	for _, k := range config.Keys() {
		known[k] = true
	}
	for k := range s.Config {
		if !known[k] {
			return fmt.Errorf("config: unknown setting %q", k)
		}
	}

	if r := s.Request.AgeRange; r != nil && len(r) != 2 {
		return fmt.Errorf("request.age_range must have two values")
	}
	for i, f := range s.Request.Filters {
		if f.Table == "" || f.Column == "" || f.Type == "" {
			return fmt.Errorf("request.filters[%d]: table, column and type are required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStructure:
		if a.Longitudinal == nil && a.MergeColumn == "" {
			return fmt.Errorf("assertions[%d]: longitudinal or merge_column is required for structure", index)
		}
	case AssertCount, AssertWarnings:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
	case AssertSQLContains, AssertSQLExcludes:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case AssertParams:
		if a.Params == nil {
			return fmt.Errorf("assertions[%d]: params is required (use [] for none)", index)
		}
	case AssertReport:
		if a.Remaining == nil {
			return fmt.Errorf("assertions[%d]: remaining is required for report", index)
		}
	case AssertData, AssertExport:
		if a.Rows == nil && len(a.Columns) == 0 && len(a.Cells) == 0 {
			return fmt.Errorf("assertions[%d]: rows, columns or cells is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
