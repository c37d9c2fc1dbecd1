package report

import (
	"context"
	"fmt"

	"github.com/roach88/cohort/internal/filter"
)

// Impact is the effect of a filter measured against the unfiltered baseline.
type Impact struct {
	Name       string  `json:"name"`
	Remaining  int64   `json:"remaining_count"`
	Removed    int64   `json:"removed_count"`
	RemovalPct float64 `json:"removal_percentage"`
}

// ImpactAnalysis compares each filter in isolation with all filters combined.
type ImpactAnalysis struct {
	Baseline    int64    `json:"baseline_count"`
	Demographic []Impact `json:"demographic_impact"`
	Behavioral  []Impact `json:"behavioral_impact"`
	Combined    Impact   `json:"combined_impact"`
}

// AnalyzeImpact counts the baseline, each demographic and behavioral filter
// on its own, and finally every filter together. Unlike Generate, any count
// failure aborts the analysis.
func (g *Generator) AnalyzeImpact(ctx context.Context, req Request) (ImpactAnalysis, error) {
	baseline, err := g.count(ctx, req.Keys, filter.Demographic{}, nil, req.Tables)
	if err != nil {
		return ImpactAnalysis{}, fmt.Errorf("baseline count: %w", err)
	}
	out := ImpactAnalysis{Baseline: baseline, Demographic: []Impact{}, Behavioral: []Impact{}}

	impact := func(name string, n int64) Impact {
		removed := baseline - n
		return Impact{Name: name, Remaining: n, Removed: removed, RemovalPct: percent(removed, baseline)}
	}

	demo := req.Filters.Demographic
	singles := []struct {
		name string
		f    filter.Demographic
		set  bool
	}{
		{"age_range", filter.Demographic{AgeRange: demo.AgeRange}, demo.AgeRange != nil},
		{"sessions", filter.Demographic{Sessions: demo.Sessions}, len(demo.Sessions) > 0},
		{"substudies", filter.Demographic{Substudies: demo.Substudies}, len(demo.Substudies) > 0},
	}
	for _, s := range singles {
		if !s.set {
			continue
		}
		n, err := g.count(ctx, req.Keys, s.f, nil, req.Tables)
		if err != nil {
			return ImpactAnalysis{}, fmt.Errorf("%s count: %w", s.name, err)
		}
		out.Demographic = append(out.Demographic, impact(s.name, n))
	}

	for _, b := range req.Filters.Behavioral {
		name := b.Table + "." + b.Column
		n, err := g.count(ctx, req.Keys, filter.Demographic{}, []filter.Behavioral{b}, req.Tables)
		if err != nil {
			return ImpactAnalysis{}, fmt.Errorf("%s count: %w", name, err)
		}
		out.Behavioral = append(out.Behavioral, impact(name, n))
	}

	n, err := g.count(ctx, req.Keys, demo, req.Filters.Behavioral, req.Tables)
	if err != nil {
		return ImpactAnalysis{}, fmt.Errorf("combined count: %w", err)
	}
	out.Combined = impact("combined", n)
	return out, nil
}
