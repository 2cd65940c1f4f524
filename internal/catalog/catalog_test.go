package catalog

import (
	"testing"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/analyze"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gdpRows() []api.Row {
	return []api.Row{
		{"year": int64(2018), "country": "USA", "value": 1.5},
		{"year": int64(2019), "country": "Canada", "value": 2.5},
		{"year": int64(2020), "country": "USA", "value": 3.5},
		{"year": int64(2021), "country": "Canada", "value": 4.5},
		{"year": int64(2022), "country": "USA", "value": 5.5},
		{"year": int64(2023), "country": "Canada", "value": 6.5},
	}
}

func TestComplete_DerivesFiltersForDeclaredColumns(t *testing.T) {
	p := complete(&api.DatasetPayload{
		DatasetID: "gdp",
		Columns: []api.Column{
			{Name: "year", Type: api.TypeTemporal, DType: "int64"},
			{Name: "value", Type: api.TypeNumerical, DType: "float64"},
		},
		Rows: gdpRows(),
	}, analyze.DefaultConfig())

	require.Len(t, p.Columns, 2, "declared columns are kept")
	var cols []string
	for _, f := range p.Filters {
		cols = append(cols, f.Column)
	}
	assert.ElementsMatch(t, []string{"year", "value"}, cols)
	assert.Nil(t, p.Recommended)
}

func TestComplete_KeepsDeclaredFilters(t *testing.T) {
	declared := []api.FilterConfig{{Column: "country", FilterType: api.FilterMultiSelect}}
	p := complete(&api.DatasetPayload{
		DatasetID: "gdp",
		Columns:   []api.Column{{Name: "country", Type: api.TypeCategorical}},
		Filters:   declared,
		Rows:      gdpRows(),
	}, analyze.DefaultConfig())

	assert.Equal(t, declared, p.Filters)
}

func TestComplete_AnalyzesBareRows(t *testing.T) {
	p := complete(&api.DatasetPayload{DatasetID: "gdp", Rows: gdpRows()}, analyze.DefaultConfig())

	assert.Len(t, p.Columns, 3)
	assert.Len(t, p.Filters, 3)
	require.NotNil(t, p.Recommended)
	assert.Equal(t, "line", p.Recommended.ChartType)
}
