package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhitelistFromListing(t *testing.T) {
	wl := WhitelistFromListing([]string{
		"demographics.csv", "cognitive scores.csv", "mri.PARQUET", "README.md", "notes.txt",
	})

	assert.Equal(t, []string{"cognitive_scores", "demographics", "mri"}, wl.Names())
	assert.Equal(t, 3, wl.Len())
}

func TestValidateTable(t *testing.T) {
	wl := NewWhitelist("demographics", "cognitive_scores")

	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"member", "demographics", "demographics", true},
		{"sanitized member", "cognitive scores", "cognitive_scores", true},
		{"not a member", "secrets", "", false},
		{"injection", "demographics; DROP TABLE demographics", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ValidateTable(tt.in, wl)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	var empty Whitelist
	_, ok := ValidateTable("demographics", empty)
	assert.False(t, ok)
}

func TestValidateColumn(t *testing.T) {
	allowed := []string{"age", "reaction_time"}

	got, ok := ValidateColumn("reaction time", allowed)
	assert.True(t, ok)
	assert.Equal(t, "reaction_time", got)

	_, ok = ValidateColumn("password", allowed)
	assert.False(t, ok)
}

func TestTableAlias(t *testing.T) {
	assert.Equal(t, DemoAlias, TableAlias("demographics", "demographics").String())
	assert.Equal(t, "cognitive_scores", TableAlias("cognitive scores", "demographics").String())
	assert.Equal(t, "tbl_demo", TableAlias("demo", "demographics").String())
}

func TestColumns_SuffixesCollisions(t *testing.T) {
	got := Columns([]string{"a b", "a_b", "a-b", "select"})
	assert.Equal(t, []string{"a_b", "a_b_2", "a_b_3", "safe_select"}, got)
}
