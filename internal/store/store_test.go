package store

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/catalog"
	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/filter"
	"github.com/roach88/cohort/internal/metrics"
	"github.com/roach88/cohort/internal/querysql"
	fixtures "github.com/roach88/cohort/internal/testutil"
)

type loaded struct {
	cat     *catalog.Catalog
	store   *Store
	builder *querysql.Builder
	metrics *metrics.Recorder
	reg     *prometheus.Registry
}

func openDataset(t *testing.T, dir string) loaded {
	t.Helper()
	ctx := context.Background()

	cat, err := catalog.Scan(ctx, catalog.Settings{
		DataDir:          dir,
		DemographicsFile: "demographics.csv",
		PrimaryID:        "ursi",
		SessionID:        "session_num",
		CompositeID:      "customID",
	}, nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	s, err := Open(ctx, cat, Options{Metrics: rec})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cols := s.Columns()
	return loaded{
		cat:   cat,
		store: s,
		builder: &querysql.Builder{
			PrimaryTable:    cat.PrimaryTable,
			AgeColumn:       "age",
			StudySiteColumn: "all_studies",
			PrimaryColumns:  cols[cat.PrimaryTable],
			TableColumns:    cols,
			Whitelist:       cat.Whitelist,
		},
		metrics: rec,
		reg:     reg,
	}
}

func (l loaded) count(t *testing.T, set filter.Set, tables ...string) int64 {
	t.Helper()
	base := l.builder.Base(l.cat.Keys, set.Demographic, set.Behavioral, tables)
	n, err := l.store.Count(context.Background(), querysql.Count(base, l.cat.Keys))
	require.NoError(t, err)
	return n
}

func TestOpen_SynthesizesCompositeID(t *testing.T) {
	l := openDataset(t, fixtures.LongitudinalDataset(t))

	cols := l.store.Columns()
	assert.Equal(t, []string{"ursi", "session_num", "age", "sex", "all_studies", "customID"}, cols["demographics"])
	assert.Equal(t, []string{"ursi", "session_num", "score", "safe_group", "customID"}, cols["cognitive"])

	var id string
	err := l.store.DB().QueryRow("SELECT customID FROM cognitive WHERE score = 95").Scan(&id)
	require.NoError(t, err)
	assert.Equal(t, "S2_1", id)

	assert.Equal(t, 6.0, testutil.ToFloat64(l.metrics.RowsLoaded.WithLabelValues("demographics")))
}

func TestCount_Longitudinal(t *testing.T) {
	l := openDataset(t, fixtures.LongitudinalDataset(t))

	tests := []struct {
		name string
		set  filter.Set
		want int64
	}{
		{"no filters", filter.Set{}, 6},
		{"age", filter.Set{Demographic: filter.Demographic{AgeRange: &filter.NumericRange{Min: 18, Max: 65}}}, 3},
		{"session", filter.Set{Demographic: filter.Demographic{Sessions: []string{"1"}}}, 4},
		{"substudy", filter.Set{Demographic: filter.Demographic{Substudies: []string{"Sleep"}}}, 4},
		{"substudy any of", filter.Set{Demographic: filter.Demographic{Substudies: []string{"Sleep", "Exercise"}}}, 5},
		{"behavioral range", filter.Set{Behavioral: []filter.Behavioral{
			{Table: "cognitive", Column: "score", Criterion: filter.Range{Min: 90, Max: 120}},
		}}, 3},
		{"behavioral categorical", filter.Set{Behavioral: []filter.Behavioral{
			{Table: "cognitive", Column: "safe_group", Criterion: filter.Categorical{Values: []any{"B"}}},
		}}, 1},
		{"combined", filter.Set{
			Demographic: filter.Demographic{
				AgeRange: &filter.NumericRange{Min: 18, Max: 65},
				Sessions: []string{"1"},
			},
			Behavioral: []filter.Behavioral{
				{Table: "cognitive", Column: "score", Criterion: filter.Range{Min: 90, Max: 120}},
			},
		}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.count(t, tt.set))
		})
	}
}

func TestCount_CrossSectional(t *testing.T) {
	l := openDataset(t, fixtures.CrossSectionalDataset(t))
	assert.False(t, l.cat.Keys.IsLongitudinal)

	assert.Equal(t, int64(3), l.count(t, filter.Set{}))
	assert.Equal(t, int64(2), l.count(t, filter.Set{
		Demographic: filter.Demographic{
			AgeRange: &filter.NumericRange{Min: 18, Max: 65},
			// Sessions are ignored on cross-sectional data.
			Sessions: []string{"9"},
		},
	}))

	assert.Equal(t, 2.0, testutil.ToFloat64(l.metrics.CountQueriesTotal.WithLabelValues("ok")))
}

func TestCount_InjectionIsInert(t *testing.T) {
	l := openDataset(t, fixtures.LongitudinalDataset(t))

	set := filter.Set{
		Demographic: filter.Demographic{Substudies: []string{"'; DROP TABLE demographics; --"}},
	}
	assert.Equal(t, int64(0), l.count(t, set, "demographics; DROP TABLE cognitive"))
	assert.Equal(t, int64(6), l.count(t, filter.Set{}, "cognitive"))
}

func TestCount_SQLErrorIsDataAccess(t *testing.T) {
	l := openDataset(t, fixtures.LongitudinalDataset(t))

	_, err := l.store.Count(context.Background(), querysql.Fragment{SQL: "SELECT COUNT(*) FROM missing"})
	require.Error(t, err)
	assert.True(t, dataset.IsKind(err, dataset.DataAccessError))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.CountQueriesTotal.WithLabelValues("error")))
}

func TestQuery_MergedData(t *testing.T) {
	l := openDataset(t, fixtures.LongitudinalDataset(t))

	base := l.builder.Base(l.cat.Keys,
		filter.Demographic{AgeRange: &filter.NumericRange{Min: 18, Max: 65}}, nil, []string{"cognitive"})
	frag, ok := l.builder.Data(base, []querysql.ColumnSelection{
		{Table: "cognitive", Columns: []string{"score", "ursi"}},
	})
	require.True(t, ok)

	got, err := l.store.Query(context.Background(), frag)
	require.NoError(t, err)

	assert.Equal(t, []string{"ursi", "session_num", "age", "sex", "all_studies", "customID", "score", "cognitive_ursi"}, got.Columns)
	require.Equal(t, 3, got.Len())

	sorted := got.SortBy("customID")
	assert.Equal(t, []any{"S1_1", "S1_2", "S2_1"}, sorted.Column("customID"))
	assert.Equal(t, []any{int64(100), int64(110), int64(95)}, sorted.Column("score"))
}

func TestQuery_LeftJoinKeepsUnmatched(t *testing.T) {
	l := openDataset(t, fixtures.LongitudinalDataset(t))

	base := l.builder.Base(l.cat.Keys, filter.Demographic{}, nil, []string{"mri"})
	frag, ok := l.builder.Data(base, []querysql.ColumnSelection{{Table: "mri", Columns: []string{"volume"}}})
	require.True(t, ok)

	got, err := l.store.Query(context.Background(), frag)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Len())
	assert.Equal(t, 4, got.NullCount("volume"))
}

func TestPrepareMergeColumn_MissingIDs(t *testing.T) {
	keys := dataset.MergeKeys{PrimaryID: "ursi", SessionID: "session_num", CompositeID: "customID", IsLongitudinal: true}

	tbl := dataset.NewTable("ursi", "note")
	require.NoError(t, tbl.Append("S1", "x"))
	PrepareMergeColumn(tbl, keys, "notes", nil)

	assert.Equal(t, []string{"ursi", "note", "customID"}, tbl.Columns)
	assert.Nil(t, tbl.Rows[0][2])
}

func TestPrepareMergeColumn_NullParts(t *testing.T) {
	keys := dataset.MergeKeys{PrimaryID: "ursi", SessionID: "session_num", CompositeID: "customID", IsLongitudinal: true}

	tbl := dataset.NewTable("ursi", "session_num")
	require.NoError(t, tbl.Append("S1", int64(1)))
	require.NoError(t, tbl.Append("S2", nil))
	PrepareMergeColumn(tbl, keys, "t", nil)

	assert.Equal(t, []any{"S1_1", nil}, tbl.Column("customID"))
}

func TestCount_SubstudyWildcardsMatchLiterally(t *testing.T) {
	dir := t.TempDir()
	fixtures.WriteCSV(t, dir, "demographics.csv", []string{"ursi", "age", "all_studies"},
		[]string{"S1", "30", "Long_Adult"},
		[]string{"S2", "31", "LongXAdult"},
		[]string{"S3", "32", "Sleep 100%"},
		[]string{"S4", "33", "Sleep 1000"},
	)
	l := openDataset(t, dir)

	assert.Equal(t, int64(1), l.count(t, filter.Set{Demographic: filter.Demographic{Substudies: []string{"Long_Adult"}}}))
	assert.Equal(t, int64(1), l.count(t, filter.Set{Demographic: filter.Demographic{Substudies: []string{"100%"}}}))
}
