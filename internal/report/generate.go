package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/filter"
	"github.com/roach88/cohort/internal/logger"
	"github.com/roach88/cohort/internal/querysql"
)

// Counter executes a count fragment and returns its single integer result.
type Counter interface {
	Count(ctx context.Context, q querysql.Fragment) (int64, error)
}

// IDGenerator produces report identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 report IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Request is the cohort a report is generated for.
type Request struct {
	Keys    dataset.MergeKeys
	Filters filter.Set
	Tables  []string
}

// Generator produces filter impact reports.
type Generator struct {
	Builder *querysql.Builder
	Counter Counter

	// Clock stamps GeneratedAt. Defaults to the real clock.
	Clock clockwork.Clock

	// IDs produces ReportID. Defaults to UUIDv7Generator.
	IDs IDGenerator

	Logger *slog.Logger
}

// stage is one cumulative filter state to count.
type stage struct {
	kind        filter.Kind
	description string
	demographic filter.Demographic
	behavioral  []filter.Behavioral
}

// stages expands a request into its cumulative filter states, in order:
// age, sessions (longitudinal only), substudies, then each behavioral filter.
func stages(req Request) []stage {
	var out []stage
	demo := req.Filters.Demographic
	cur := filter.Demographic{}

	if demo.AgeRange != nil {
		r := *demo.AgeRange
		cur.AgeRange = &r
		out = append(out, stage{filter.KindAge, filter.DescribeAge(r), cur, nil})
	}
	if len(demo.Sessions) > 0 && req.Keys.IsLongitudinal {
		cur.Sessions = demo.Sessions
		out = append(out, stage{filter.KindSession, filter.DescribeSessions(demo.Sessions), cur, nil})
	}
	if len(demo.Substudies) > 0 {
		cur.Substudies = demo.Substudies
		out = append(out, stage{filter.KindSubstudy, filter.DescribeSubstudies(demo.Substudies), cur, nil})
	}
	for i, b := range req.Filters.Behavioral {
		out = append(out, stage{filter.KindBehavioral, filter.Describe(b), cur, req.Filters.Behavioral[:i+1]})
	}
	return out
}

func (g *Generator) logger() *slog.Logger {
	return logger.OrDefault(g.Logger)
}

func (g *Generator) clock() clockwork.Clock {
	if g.Clock == nil {
		return clockwork.NewRealClock()
	}
	return g.Clock
}

func (g *Generator) ids() IDGenerator {
	if g.IDs == nil {
		return UUIDv7Generator{}
	}
	return g.IDs
}

func (g *Generator) count(ctx context.Context, keys dataset.MergeKeys, demo filter.Demographic, behavioral []filter.Behavioral, tables []string) (int64, error) {
	base := g.Builder.Base(keys, demo, behavioral, tables)
	return g.Counter.Count(ctx, querysql.Count(base, keys))
}

// Generate counts the cohort with no filters, then after each cumulative
// filter stage.
//
// Generate does not return an error. If the initial count fails the summary
// carries Error and no steps. If a stage fails it is recorded in Failures,
// skipped, and the remaining stages still run; their CountBefore is the
// last successful count.
func (g *Generator) Generate(ctx context.Context, req Request) Summary {
	id := g.ids().Generate()
	now := g.clock().Now().UTC()
	log := g.logger().With("report_id", id)

	initial, err := g.count(ctx, req.Keys, filter.Demographic{}, nil, req.Tables)
	if err != nil {
		log.Error("initial count failed", "error", err)
		return Summary{
			ReportID:    id,
			GeneratedAt: now,
			Steps:       []Step{},
			Error:       fmt.Sprintf("initial count: %v", err),
		}
	}

	tracker := NewTracker(initial)
	var failures []Failure
	for _, st := range stages(req) {
		n, err := g.count(ctx, req.Keys, st.demographic, st.behavioral, req.Tables)
		if err != nil {
			log.Warn("filter step count failed", "type", st.kind, "description", st.description, "error", err)
			failures = append(failures, Failure{Kind: string(st.kind), Description: st.description, Error: err.Error()})
			continue
		}
		step, _ := tracker.AddStep(st.kind, st.description, n)
		log.Debug("filter step counted", "step", step.Number, "remaining", step.CountAfter, "removed", step.Removed)
	}
	tracker.Finish()

	summary := tracker.Summary()
	summary.ReportID = id
	summary.GeneratedAt = now
	summary.Failures = failures
	if len(failures) > 0 {
		msgs := make([]string, len(failures))
		for i, f := range failures {
			msgs[i] = f.Description + ": " + f.Error
		}
		summary.Error = strings.Join(msgs, "; ")
	}
	return summary
}
