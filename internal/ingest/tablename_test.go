package ingest

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTableName(t *testing.T) {
	tests := map[string]string{
		"world-bank-gdp":   "dataset_world_bank_gdp",
		"covid_19.cases":   "dataset_covid_19_cases",
		"2024":             "dataset_2024",
		"select":           "dataset_select",
		"a b/c":            "dataset_a_b_c",
		"":                 "dataset_",
		"café":             "dataset_caf_",
		`x"; DROP TABLE y`: "dataset_x___DROP_TABLE_y",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeTableName(in), in)
	}
}

func TestSanitizeTableName_AlwaysSafe(t *testing.T) {
	safe := regexp.MustCompile(`^dataset_[A-Za-z0-9_]*$`)
	for _, id := range []string{"ok", "日本", "tab\tand\nnewline", "'quoted'", "../../etc"} {
		got := SanitizeTableName(id)
		assert.Regexp(t, safe, got)
		assert.Equal(t, got, SanitizeTableName(id), "deterministic")
	}
}
