package api

import (
	"encoding/json"
	"fmt"
)

// FilterKind is the catalog-declared shape of a column filter.
type FilterKind string

const (
	FilterRange       FilterKind = "range"
	FilterDateRange   FilterKind = "date_range"
	FilterMultiSelect FilterKind = "multi_select"
)

// FilterConfig declares how a column may be filtered. Only columns named by a
// FilterConfig ever reach a WHERE clause.
type FilterConfig struct {
	Column     string     `json:"column"`
	Type       ColumnType `json:"type,omitempty"`
	FilterType FilterKind `json:"filter_type"`
	Min        any        `json:"min,omitempty"`
	Max        any        `json:"max,omitempty"`
	Step       float64    `json:"step,omitempty"`
	Options    []any      `json:"options,omitempty"`
}

// Range is a two-sided bound. Either side may be nil.
type Range struct {
	Min any `json:"min"`
	Max any `json:"max"`
}

// FilterState maps a column name (or <col>_min, <col>_max, <col>_from, <col>_to)
// to the value currently selected by the user.
type FilterState map[string]any

// Axis holds one or more column names. The JSON form may be a bare string or an
// array; only the first element is used when compiling queries.
type Axis []string

// First returns the first column name, or "".
func (a Axis) First() string {
	if len(a) == 0 {
		return ""
	}
	return a[0]
}

func (a *Axis) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*a = nil
		} else {
			*a = Axis{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("axis must be a string or an array of strings: %w", err)
	}
	*a = Axis(many)
	return nil
}

// ChartSpec is the declarative description of what to plot.
type ChartSpec struct {
	ChartType   string `json:"chart_type"`
	XAxis       Axis   `json:"x_axis"`
	YAxis       Axis   `json:"y_axis"`
	ColorBy     Axis   `json:"color_by,omitempty"`
	Aggregation string `json:"aggregation,omitempty"`
}

// RecommendedChart is the analyzer's suggestion used to seed a chart config.
type RecommendedChart struct {
	ChartType   string `json:"chart_type"`
	Title       string `json:"title,omitempty"`
	XAxis       string `json:"x_axis,omitempty"`
	YAxis       string `json:"y_axis,omitempty"`
	Category    string `json:"category,omitempty"`
	Value       string `json:"value,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

// ChartSpec converts the recommendation into a default chart configuration.
// Pie and map suggestions name their axes category/location + value.
func (r RecommendedChart) ChartSpec() ChartSpec {
	spec := ChartSpec{ChartType: r.ChartType, Aggregation: "SUM"}
	if spec.ChartType == "" {
		spec.ChartType = "bar"
	}
	switch {
	case r.XAxis != "":
		spec.XAxis = Axis{r.XAxis}
	case r.Category != "":
		spec.XAxis = Axis{r.Category}
	case r.Location != "":
		spec.XAxis = Axis{r.Location}
	}
	switch {
	case r.YAxis != "":
		spec.YAxis = Axis{r.YAxis}
	case r.Value != "":
		spec.YAxis = Axis{r.Value}
	}
	return spec
}
