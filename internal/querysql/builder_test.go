package querysql

import (
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/filter"
	"github.com/roach88/cohort/internal/ident"
	"github.com/roach88/cohort/internal/metrics"
)

var (
	longitudinal = dataset.MergeKeys{
		PrimaryID:      "ursi",
		SessionID:      "session_num",
		CompositeID:    "customID",
		IsLongitudinal: true,
	}
	crossSectional = dataset.MergeKeys{PrimaryID: "ursi"}
)

func newTestBuilder() *Builder {
	return &Builder{
		PrimaryTable:    "demographics",
		AgeColumn:       "age",
		StudySiteColumn: "all_studies",
		PrimaryColumns:  []string{"ursi", "session_num", "customID", "age"},
		Whitelist:       ident.NewWhitelist("demographics", "cognitive", "mri"),
	}
}

// render formats a fragment for golden comparison.
func render(f Fragment) []byte {
	var sb strings.Builder
	sb.WriteString(f.SQL)
	sb.WriteString("\n")
	for _, p := range f.Params {
		sb.WriteString(fmt.Sprintf("%T=%v\n", p, p))
	}
	return []byte(sb.String())
}

func fullFilters() (filter.Demographic, []filter.Behavioral) {
	demo := filter.Demographic{
		AgeRange:   &filter.NumericRange{Min: 18, Max: 65},
		Sessions:   []string{"1", "2"},
		Substudies: []string{"Sleep", "Diet"},
	}
	behavioral := []filter.Behavioral{
		{Table: "cognitive", Column: "score", Criterion: filter.Range{Min: 90, Max: 120}},
		{Table: "mri", Column: "site", Criterion: filter.Categorical{Values: []any{"A", "B"}}},
	}
	return demo, behavioral
}

func TestBase_NoFilters(t *testing.T) {
	b := newTestBuilder()

	f := b.Base(crossSectional, filter.Demographic{}, nil, nil)

	assert.Equal(t, "FROM demographics AS demo", f.SQL)
	assert.Empty(t, f.Params)
	assert.Empty(t, f.Warnings)
	assert.NotContains(t, f.SQL, "WHERE")
}

func TestBase_AgeOnlyCrossSectional(t *testing.T) {
	b := newTestBuilder()

	f := b.Base(crossSectional,
		filter.Demographic{AgeRange: &filter.NumericRange{Min: 18, Max: 65}},
		nil, []string{"cognitive"})

	assert.Equal(t,
		"FROM demographics AS demo LEFT JOIN cognitive AS cognitive ON demo.ursi = cognitive.ursi WHERE demo.age BETWEEN ? AND ?",
		f.SQL)
	assert.Equal(t, []any{int64(18), int64(65)}, f.Params)
	assert.Equal(t, []string{"cognitive"}, f.Tables)
}

func TestBase_SessionsIgnoredWhenCrossSectional(t *testing.T) {
	b := newTestBuilder()

	f := b.Base(crossSectional, filter.Demographic{Sessions: []string{"1"}}, nil, nil)

	assert.NotContains(t, f.SQL, "session_num")
	assert.Empty(t, f.Params)
}

func TestBase_SubstudiesNeedSiteColumn(t *testing.T) {
	b := newTestBuilder()
	b.StudySiteColumn = ""

	f := b.Base(crossSectional, filter.Demographic{Substudies: []string{"Sleep"}}, nil, nil)

	assert.NotContains(t, f.SQL, "LIKE")
	assert.Empty(t, f.Params)
}

func TestBase_GoldenLongitudinal(t *testing.T) {
	b := newTestBuilder()
	demo, behavioral := fullFilters()

	f := b.Base(longitudinal, demo, behavioral, []string{"cognitive"})
	require.Empty(t, f.Warnings)

	g := goldie.New(t)
	g.Assert(t, "base_longitudinal", render(f))
	g.Assert(t, "count_longitudinal", render(Count(f, longitudinal)))

	data, ok := b.Data(f, []ColumnSelection{
		{Table: "cognitive", Columns: []string{"score", "age"}},
		{Table: "mri", Columns: []string{"site"}},
	})
	require.True(t, ok)
	g.Assert(t, "data_longitudinal", render(data))
}

func TestBase_PlaceholderCountMatchesParams(t *testing.T) {
	b := newTestBuilder()
	demo, behavioral := fullFilters()

	for _, keys := range []dataset.MergeKeys{crossSectional, longitudinal} {
		f := b.Base(keys, demo, behavioral, []string{"cognitive", "mri"})
		assert.Equal(t, strings.Count(f.SQL, "?"), len(f.Params), "keys %+v", keys)

		c := Count(f, keys)
		assert.Equal(t, strings.Count(c.SQL, "?"), len(c.Params))
	}
}

func TestBase_InjectionPayloadsOnlyInParams(t *testing.T) {
	b := newTestBuilder()
	payload := "'; DROP TABLE demographics; --"

	f := b.Base(longitudinal,
		filter.Demographic{Sessions: []string{payload}, Substudies: []string{payload}},
		[]filter.Behavioral{
			{Table: "cognitive", Column: "category", Criterion: filter.Categorical{Values: []any{payload}}},
		},
		[]string{payload})

	assert.NotContains(t, f.SQL, "DROP")
	assert.NotContains(t, strings.ReplaceAll(f.SQL, string(tokLike), ""), "'")
	assert.NotContains(t, f.SQL, ";")
	assert.NotContains(t, f.SQL, "--")
	assert.Contains(t, f.Params, payload)
	assert.Contains(t, f.Params, "%"+payload+"%")

	escaped := b.Base(longitudinal, filter.Demographic{Substudies: []string{`Long_Adult 100%`}}, nil, nil)
	assert.Equal(t, []any{`%Long\_Adult 100\%%`}, escaped.Params)

	require.Len(t, f.Warnings, 1)
	assert.Equal(t, dataset.SecurityRejection, f.Warnings[0].Kind)
	assert.Equal(t, payload, f.Warnings[0].Subject)
}

func TestBase_InjectedColumnNameIsSanitized(t *testing.T) {
	b := newTestBuilder()

	f := b.Base(crossSectional, filter.Demographic{}, []filter.Behavioral{
		{Table: "cognitive", Column: "score) OR 1=1 --", Criterion: filter.Range{Min: 1, Max: 2}},
	}, nil)

	assert.Contains(t, f.SQL, "cognitive.score_OR_1_1 BETWEEN ? AND ?")
	assert.NotContains(t, f.SQL, ")")
}

func TestBase_DropsNonWhitelistedTables(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := newTestBuilder()
	b.Metrics = metrics.NewRecorder(reg)

	f := b.Base(crossSectional, filter.Demographic{}, []filter.Behavioral{
		{Table: "secrets", Column: "x", Criterion: filter.Range{Min: 0, Max: 1}},
	}, []string{"cognitive", "passwords", "demographics"})

	assert.NotContains(t, f.SQL, "passwords")
	assert.NotContains(t, f.SQL, "secrets")
	assert.Contains(t, f.SQL, "LEFT JOIN cognitive")
	assert.Equal(t, []string{"cognitive"}, f.Tables)
	assert.Len(t, f.Warnings, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(b.Metrics.IdentifierRejections.WithLabelValues("table")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics.FiltersDropped.WithLabelValues("rejected_table")))
}

func TestBase_SkipsMalformedFilters(t *testing.T) {
	b := newTestBuilder()

	f := b.Base(crossSectional,
		filter.Demographic{AgeRange: &filter.NumericRange{Min: 70, Max: 20}},
		[]filter.Behavioral{
			{Table: "cognitive", Column: "score", Criterion: filter.Range{Min: 5, Max: 5}},
			{Table: "cognitive", Column: "group", Criterion: filter.Categorical{}},
			{Table: "cognitive", Column: "iq", Criterion: filter.Range{Min: 80, Max: 90}},
		}, nil)

	assert.Equal(t,
		"FROM demographics AS demo LEFT JOIN cognitive AS cognitive ON demo.ursi = cognitive.ursi WHERE cognitive.iq BETWEEN ? AND ?",
		f.SQL)
	assert.Equal(t, []any{int64(80), int64(90)}, f.Params)
	require.Len(t, f.Warnings, 3)
	for _, w := range f.Warnings {
		assert.Equal(t, dataset.ValidationError, w.Kind)
	}
}

func TestBase_FilterOnPrimaryTableUsesDemoAlias(t *testing.T) {
	b := newTestBuilder()

	f := b.Base(crossSectional, filter.Demographic{}, []filter.Behavioral{
		{Table: "demographics", Column: "sex", Criterion: filter.Categorical{Values: []any{"F"}}},
	}, nil)

	assert.Equal(t, "FROM demographics AS demo WHERE demo.sex IN (?)", f.SQL)
	assert.Empty(t, f.Tables)
}

func TestBase_FractionalBoundsStayFloats(t *testing.T) {
	b := newTestBuilder()

	f := b.Base(crossSectional, filter.Demographic{AgeRange: &filter.NumericRange{Min: 18.5, Max: 65}}, nil, nil)

	assert.Equal(t, []any{18.5, int64(65)}, f.Params)
}

func TestBase_ColumnWhitelist(t *testing.T) {
	b := newTestBuilder()
	b.TableColumns = map[string][]string{"cognitive": {"ursi", "score"}}

	f := b.Base(crossSectional, filter.Demographic{}, []filter.Behavioral{
		{Table: "cognitive", Column: "secret", Criterion: filter.Range{Min: 0, Max: 1}},
		{Table: "cognitive", Column: "score", Criterion: filter.Range{Min: 0, Max: 1}},
	}, nil)

	assert.Contains(t, f.SQL, "cognitive.score BETWEEN")
	assert.NotContains(t, f.SQL, "secret")
	require.Len(t, f.Warnings, 1)
	assert.Equal(t, "cognitive.secret", f.Warnings[0].Subject)
}

func TestCount_CrossSectionalUsesPrimary(t *testing.T) {
	b := newTestBuilder()

	c := Count(b.Base(crossSectional, filter.Demographic{}, nil, nil), crossSectional)

	assert.Equal(t, "SELECT COUNT(DISTINCT demo.ursi) AS participant_count FROM demographics AS demo", c.SQL)
}

func TestData_EmptySelectList(t *testing.T) {
	b := newTestBuilder()
	b.PrimaryColumns = nil
	base := b.Base(crossSectional, filter.Demographic{}, nil, nil)

	_, ok := b.Data(base, nil)
	assert.False(t, ok)

	_, ok = b.Data(base, []ColumnSelection{{Table: "cognitive", Columns: []string{"score"}}})
	assert.False(t, ok, "cognitive is not joined by the base fragment")
}

func TestData_SkipsDuplicates(t *testing.T) {
	b := newTestBuilder()
	base := b.Base(crossSectional, filter.Demographic{}, nil, []string{"cognitive"})

	f, ok := b.Data(base, []ColumnSelection{
		{Table: "demographics", Columns: []string{"age"}},
		{Table: "cognitive", Columns: []string{"score", "score"}},
	})
	require.True(t, ok)

	assert.Equal(t,
		"SELECT demo.ursi, demo.session_num, demo.customID, demo.age, cognitive.score FROM demographics AS demo LEFT JOIN cognitive AS cognitive ON demo.ursi = cognitive.ursi",
		f.SQL)
}

func TestValidate_ReportsProblems(t *testing.T) {
	b := newTestBuilder()

	warnings := b.Validate(crossSectional, filter.Set{
		Behavioral: []filter.Behavioral{{Table: "cognitive", Column: "score", Criterion: filter.Categorical{}}},
	}, []string{"nope"})

	require.Len(t, warnings, 2)
	assert.Equal(t, dataset.SecurityRejection, warnings[0].Kind)
	assert.Equal(t, dataset.ValidationError, warnings[1].Kind)
}

func TestSelectionsFromMap(t *testing.T) {
	sel := SelectionsFromMap(map[string][]string{"mri": {"site"}, "cognitive": {"score"}})
	require.Len(t, sel, 2)
	assert.Equal(t, "cognitive", sel[0].Table)
	assert.Equal(t, "mri", sel[1].Table)
}

func TestValidateRequest_RenamedColumns(t *testing.T) {
	b := newTestBuilder()

	warnings := b.ValidateRequest(longitudinal, filter.Set{}, []ColumnSelection{
		{Table: "cognitive", Columns: []string{"Score Total"}},
		{Table: "nope", Columns: []string{"x"}},
	})

	require.Len(t, warnings, 3)
	assert.Equal(t, dataset.SecurityRejection, warnings[0].Kind)
	assert.Equal(t, "nope", warnings[0].Subject)
	assert.Equal(t, dataset.SecurityRejection, warnings[1].Kind)
	assert.Equal(t, Warning{
		Kind:    dataset.ValidationError,
		Subject: "cognitive.Score Total",
		Message: `column name is rewritten to "Score_Total"`,
	}, warnings[2])
}
