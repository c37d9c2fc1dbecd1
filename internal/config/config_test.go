package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/dataset"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(Sources{Environ: []string{}})
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_Precedence(t *testing.T) {
	file := write(t, "cohort.yaml", `
data_dir: /srv/study
primary_id_column: subject
session_column: visit
engine: duckdb
`)
	env := write(t, ".env", "COHORT_SESSION_COLUMN=wave\nCOHORT_AGE_COLUMN=age_years\n")

	c, err := Load(Sources{
		File:    file,
		EnvFile: env,
		Environ: []string{
			"COHORT_AGE_COLUMN=age_at_visit",
			"COHORT_UNKNOWN=ignored",
			"HOME=/root",
		},
		Overrides: map[string]string{"engine": "sqlite"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/srv/study", c.DataDir)
	assert.Equal(t, "subject", c.PrimaryID)
	assert.Equal(t, "wave", c.SessionID)
	assert.Equal(t, "age_at_visit", c.AgeColumn)
	assert.Equal(t, "sqlite", c.Engine)
	assert.Equal(t, "demographics.csv", c.DemographicsFile)
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	_, err := Load(Sources{EnvFile: filepath.Join(t.TempDir(), ".env"), Environ: []string{}})
	require.NoError(t, err)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(Sources{File: filepath.Join(t.TempDir(), "nope.yaml"), Environ: []string{}})
	require.Error(t, err)
	assert.True(t, dataset.IsKind(err, dataset.ConfigurationError))
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(Sources{File: write(t, "bad.yaml", "data_dir: [unclosed"), Environ: []string{}})
	require.Error(t, err)
	assert.True(t, dataset.IsKind(err, dataset.ConfigurationError))
}

func TestValidate_Schema(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown engine", "engine", "postgres"},
		{"empty data dir", "data_dir", ""},
		{"empty primary id", "primary_id_column", ""},
		{"demographics not a data file", "demographics_file", "demographics.xlsx"},
		{"demographics with a path", "demographics_file", "../secret/demographics.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(map[string]string{tt.key: tt.val})
			require.Error(t, err)
			assert.True(t, dataset.IsKind(err, dataset.ConfigurationError))

			var de *dataset.Error
			require.ErrorAs(t, err, &de)
			assert.NotEmpty(t, de.Details["cue"])
		})
	}
}

func TestFromMap_UnknownKey(t *testing.T) {
	_, err := FromMap(map[string]string{"colour": "blue"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown setting "colour"`)
}

func TestFromMap_ParquetDemographics(t *testing.T) {
	c, err := FromMap(map[string]string{"demographics_file": "demo.parquet", "study_site_column": "all_studies"})
	require.NoError(t, err)
	assert.Equal(t, "demo.parquet", c.Catalog().DemographicsFile)
	assert.Equal(t, "all_studies", c.StudySiteColumn)
}

func TestHash(t *testing.T) {
	a, b := Default(), Default()
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 64)

	b.Engine = "duckdb"
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{
		"age_column", "composite_id_column", "data_dir", "demographics_file", "engine",
		"primary_id_column", "session_column", "sex_column", "study_site_column",
	}, Keys())
}
