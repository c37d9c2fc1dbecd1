package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cohort/internal/querysql"
)

// RunWithGolden runs a scenario and compares its count SQL and parameters
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The scenario's assertions are evaluated as well; the result is returned
// for the caller to check.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, t.TempDir())
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, RenderFragment(result.Observation.Plan.Count))
	return result, nil
}

// RenderFragment renders SQL followed by one "type=value" line per
// parameter.
func RenderFragment(f querysql.Fragment) []byte {
	var sb strings.Builder
	sb.WriteString(f.SQL)
	sb.WriteString("\n")
	for _, p := range f.Params {
		fmt.Fprintf(&sb, "%T=%v\n", p, p)
	}
	return []byte(sb.String())
}
