package analyze

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/agentic-research/catalyst/api"
)

func filterConfigs(profiles []*profile, cfg Config) []api.FilterConfig {
	filters := []api.FilterConfig{}
	for _, p := range profiles {
		fc := api.FilterConfig{Column: p.col.Name, Type: p.col.Type}
		switch p.col.Type {
		case api.TypeTemporal:
			fc.FilterType = api.FilterDateRange
			fc.Min, fc.Max = p.col.Min, p.col.Max
		case api.TypeNumerical:
			fc.FilterType = api.FilterRange
			fc.Min, fc.Max = p.col.Min, p.col.Max
			fc.Step = 1
			lo, okLo := p.col.Min.(float64)
			hi, okHi := p.col.Max.(float64)
			if okLo && okHi && hi > lo {
				fc.Step = (hi - lo) / 100
			}
		case api.TypeCategorical:
			fc.FilterType = api.FilterMultiSelect
			fc.Options = p.categories[:min(len(p.categories), cfg.MaxOptions)]
		default:
			continue
		}
		filters = append(filters, fc)
	}
	return filters
}

// suggestCharts proposes charts for the column mix, best first. Line charts
// need a temporal and a numerical column, bar and pie charts a categorical and
// a numerical one, scatter plots two numerical columns and maps a geographic
// column.
func suggestCharts(profiles []*profile) []api.RecommendedChart {
	var temporal, numerical, categorical, geographic []*profile
	for _, p := range profiles {
		switch p.col.Type {
		case api.TypeTemporal:
			temporal = append(temporal, p)
		case api.TypeNumerical:
			numerical = append(numerical, p)
		case api.TypeCategorical:
			categorical = append(categorical, p)
		}
		if p.col.IsGeographic {
			geographic = append(geographic, p)
		}
	}

	out := []api.RecommendedChart{}
	if len(temporal) > 0 {
		t := temporal[0]
		for _, n := range numerical[:min(3, len(numerical))] {
			out = append(out, api.RecommendedChart{
				ChartType:   "line",
				Title:       fmt.Sprintf("%s over time", n.col.Name),
				XAxis:       t.col.Name,
				YAxis:       n.col.Name,
				Description: "Time series visualization showing trends over time",
				Priority:    1,
			})
		}
	}
	if len(numerical) > 0 {
		for _, c := range categorical[:min(2, len(categorical))] {
			for _, n := range numerical[:min(2, len(numerical))] {
				out = append(out, api.RecommendedChart{
					ChartType:   "bar",
					Title:       fmt.Sprintf("%s by %s", n.col.Name, c.col.Name),
					XAxis:       c.col.Name,
					YAxis:       n.col.Name,
					Description: "Comparison across categories",
					Priority:    2,
				})
			}
		}
		if len(categorical) > 0 && *categorical[0].col.UniqueCount <= 10 {
			c, n := categorical[0], numerical[0]
			out = append(out, api.RecommendedChart{
				ChartType:   "pie",
				Title:       fmt.Sprintf("Distribution of %s by %s", n.col.Name, c.col.Name),
				Category:    c.col.Name,
				Value:       n.col.Name,
				Description: "Proportional distribution",
				Priority:    3,
			})
		}
	}
	if len(numerical) >= 2 {
		out = append(out, api.RecommendedChart{
			ChartType:   "scatter",
			Title:       fmt.Sprintf("%s vs %s", numerical[0].col.Name, numerical[1].col.Name),
			XAxis:       numerical[0].col.Name,
			YAxis:       numerical[1].col.Name,
			Description: "Correlation between two variables",
			Priority:    4,
		})
	}
	if len(geographic) > 0 && len(numerical) > 0 {
		out = append(out, api.RecommendedChart{
			ChartType:   "map",
			Title:       fmt.Sprintf("%s by location", numerical[0].col.Name),
			Location:    geographic[0].col.Name,
			Value:       numerical[0].col.Name,
			Description: "Geographic distribution",
			Priority:    2,
		})
	}

	slices.SortStableFunc(out, func(a, b api.RecommendedChart) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	if len(out) > 0 || len(profiles) == 0 {
		return out
	}

	// Fallback: every dataset gets at least one chart.
	first := profiles[0].col.Name
	switch {
	case len(numerical) > 0:
		n := numerical[0].col.Name
		out = append(out, api.RecommendedChart{
			ChartType:   "bar",
			Title:       fmt.Sprintf("%s by category", n),
			XAxis:       first,
			YAxis:       n,
			Description: "Fallback comparison chart",
			Priority:    5,
		})
	default:
		out = append(out, api.RecommendedChart{
			ChartType:   "bar",
			Title:       "Record count by category",
			XAxis:       first,
			YAxis:       first,
			Description: "Fallback chart",
			Priority:    5,
		})
	}
	return out
}
