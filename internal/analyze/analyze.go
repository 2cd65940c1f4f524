// Package analyze classifies dataset columns and derives filter configurations
// and chart recommendations for datasets that arrive without metadata.
package analyze

import (
	"cmp"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"strings"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/sqlbuild"
)

// Config controls the analysis.
type Config struct {
	SampleSize       int   // max rows inspected for type detection (default 1000)
	Seed             int64 // random seed for reservoir sampling (0 = deterministic)
	DateProbe        int   // non-null values that must parse as dates (default 10)
	CategoricalLimit int   // distinct values below which text is categorical (default 50)
	MaxOptions       int   // multi_select options per filter (default 20)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SampleSize:       1000,
		DateProbe:        10,
		CategoricalLimit: 50,
		MaxOptions:       20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleSize <= 0 {
		c.SampleSize = d.SampleSize
	}
	if c.DateProbe <= 0 {
		c.DateProbe = d.DateProbe
	}
	if c.CategoricalLimit <= 0 {
		c.CategoricalLimit = d.CategoricalLimit
	}
	if c.MaxOptions <= 0 {
		c.MaxOptions = d.MaxOptions
	}
	return c
}

var geoKeywords = []string{"country", "state", "city", "region", "location", "place"}

// Analyze inspects rows and returns column metadata, filter configs and chart
// suggestions ordered by priority. Columns are reported in name order.
func Analyze(rows []api.Row, cfg Config) api.Analysis {
	cfg = cfg.withDefaults()
	out := api.Analysis{
		Columns:          []api.Column{},
		ChartSuggestions: []api.RecommendedChart{},
		Filters:          []api.FilterConfig{},
	}
	if len(rows) == 0 {
		return out
	}

	sample := reservoirSample(rows, cfg.SampleSize, cfg.Seed)
	profiles := make([]*profile, 0)
	for _, name := range columnNames(rows) {
		p := newProfile(name, rows, sample, cfg)
		profiles = append(profiles, p)
		out.Columns = append(out.Columns, p.col)
	}

	out.Filters = filterConfigs(profiles, cfg)
	out.ChartSuggestions = suggestCharts(profiles)
	if len(out.ChartSuggestions) > 0 {
		rec := out.ChartSuggestions[0]
		out.RecommendedChart = &rec
	}

	st := api.Statistics{TotalRows: len(rows), TotalColumns: len(profiles)}
	for _, p := range profiles {
		switch p.col.Type {
		case api.TypeNumerical:
			st.NumericalColumns++
		case api.TypeCategorical:
			st.CategoricalColumns++
		case api.TypeTemporal:
			st.TemporalColumns++
			st.HasTimeSeries = true
		}
		if p.col.IsGeographic {
			st.HasGeographic = true
		}
	}
	out.Statistics = st
	return out
}

// Payload analyzes rows and wraps them with the resulting metadata, ready to
// load.
func Payload(datasetID string, rows []api.Row, cfg Config) *api.DatasetPayload {
	a := Analyze(rows, cfg)
	return &api.DatasetPayload{
		DatasetID:   datasetID,
		Rows:        rows,
		Columns:     a.Columns,
		Filters:     a.Filters,
		Recommended: a.RecommendedChart,
	}
}

type profile struct {
	col        api.Column
	categories []any // most frequent first
}

func newProfile(name string, rows, sample []api.Row, cfg Config) *profile {
	p := &profile{col: api.Column{Name: name}}

	counts := map[string]int{}
	var order []any
	numeric, integral := true, true
	nonNull := 0
	var lo, hi float64
	for _, r := range rows {
		v, ok := r[name]
		if !ok || v == nil {
			p.col.NullCount++
			continue
		}
		nonNull++
		key := fmt.Sprint(v)
		if counts[key] == 0 {
			order = append(order, v)
		}
		counts[key]++

		f, isInt, isNum := number(v)
		if !isNum {
			numeric = false
			continue
		}
		integral = integral && isInt
		if nonNull == 1 || f < lo {
			lo = f
		}
		if nonNull == 1 || f > hi {
			hi = f
		}
	}
	unique := len(counts)
	p.col.UniqueCount = &unique

	lname := strings.ToLower(name)
	for _, kw := range geoKeywords {
		if strings.Contains(lname, kw) {
			p.col.IsGeographic = true
			break
		}
	}

	switch {
	case nonNull > 0 && numeric:
		p.col.DType = "float64"
		if integral {
			p.col.DType = "int64"
		}
		p.col.Type = api.TypeNumerical
		if integral && strings.Contains(lname, "year") && lo >= 1000 && hi <= 9999 {
			p.col.Type = api.TypeTemporal
		}
		p.col.Min, p.col.Max = lo, hi

	case nonNull > 0 && allBool(rows, name):
		p.col.DType = "bool"
		p.col.Type = api.TypeUnknown

	default:
		p.col.DType = "object"
		switch {
		case looksTemporal(sample, name, cfg.DateProbe) || strings.Contains(lname, "date") || strings.Contains(lname, "time"):
			p.col.Type = api.TypeTemporal
			p.col.Min, p.col.Max = textBounds(order)
		case float64(unique) < float64(len(rows))*0.5 && unique < cfg.CategoricalLimit:
			p.col.Type = api.TypeCategorical
			p.categories = byFrequency(order, counts)
		default:
			p.col.Type = api.TypeText
		}
	}
	return p
}

// number reports v as a float, whether it is an integer type, and whether it
// is numeric at all.
func number(v any) (float64, bool, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true, true
	case int32:
		return float64(x), true, true
	case int64:
		return float64(x), true, true
	case uint64:
		return float64(x), true, true
	case float32:
		return float64(x), false, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false, false
		}
		return x, false, true
	}
	return 0, false, false
}

func allBool(rows []api.Row, name string) bool {
	for _, r := range rows {
		if v := r[name]; v != nil {
			if _, ok := v.(bool); !ok {
				return false
			}
		}
	}
	return true
}

// looksTemporal reports whether the first probe non-null sampled values are all
// date strings.
func looksTemporal(sample []api.Row, name string, probe int) bool {
	seen := 0
	for _, r := range sample {
		v := r[name]
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		if _, ok := sqlbuild.ParseTime(s); !ok {
			return false
		}
		if seen++; seen >= probe {
			break
		}
	}
	return seen > 0
}

func textBounds(values []any) (any, any) {
	if len(values) == 0 {
		return nil, nil
	}
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = fmt.Sprint(v)
	}
	return slices.Min(strs), slices.Max(strs)
}

func byFrequency(order []any, counts map[string]int) []any {
	out := slices.Clone(order)
	slices.SortStableFunc(out, func(a, b any) int {
		return cmp.Compare(counts[fmt.Sprint(b)], counts[fmt.Sprint(a)])
	})
	return out
}

func columnNames(rows []api.Row) []string {
	seen := map[string]bool{}
	var names []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	slices.Sort(names)
	return names
}

// reservoirSample keeps at most k rows, each with equal probability.
func reservoirSample(rows []api.Row, k int, seed int64) []api.Row {
	if len(rows) <= k {
		return rows
	}
	rng := rand.New(rand.NewSource(seed))
	reservoir := make([]api.Row, k)
	copy(reservoir, rows[:k])
	for i := k; i < len(rows); i++ {
		j := rng.Intn(i + 1)
		if j < k {
			reservoir[j] = rows[i]
		}
	}
	return reservoir
}
