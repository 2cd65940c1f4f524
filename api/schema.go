package api

// ColumnType is the analyzer's semantic classification of a column.
type ColumnType string

const (
	TypeTemporal    ColumnType = "temporal"
	TypeNumerical   ColumnType = "numerical"
	TypeCategorical ColumnType = "categorical"
	TypeText        ColumnType = "text"
	TypeUnknown     ColumnType = "unknown"
)

// Column describes one column of a dataset as reported by the catalog analyzer.
// It drives both storage typing and axis classification, and is immutable once a
// table has been created from it.
type Column struct {
	// Name is the column key exactly as it appears in source rows.
	Name string `json:"name"`
	// Type is the semantic classification.
	Type ColumnType `json:"type"`
	// DType is the raw storage hint from the analyzer (e.g. "int64", "float64", "object").
	DType string `json:"dtype,omitempty"`
	// IsGeographic marks country/region/city style columns.
	IsGeographic bool `json:"is_geographic,omitempty"`
	// UniqueCount is the number of distinct values seen by the analyzer, if known.
	UniqueCount *int `json:"unique_count,omitempty"`
	NullCount   int  `json:"null_count,omitempty"`
	// Min and Max are the observed bounds (numbers for numerical, strings for temporal).
	Min any `json:"min,omitempty"`
	Max any `json:"max,omitempty"`
}

// Row is one record, keyed by column name.
type Row map[string]any

// Dataset is a catalog listing record.
type Dataset struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Provider        string   `json:"provider,omitempty"`
	Category        string   `json:"category,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	URL             string   `json:"url,omitempty"`
	SizeEstimate    int      `json:"size_estimate,omitempty"`
	UpdateFrequency string   `json:"update_frequency,omitempty"`
}

// DatasetPayload is everything needed to load one dataset into the engine.
type DatasetPayload struct {
	DatasetID   string            `json:"dataset_id"`
	Rows        []Row             `json:"data"`
	Columns     []Column          `json:"columns,omitempty"`
	Filters     []FilterConfig    `json:"filters,omitempty"`
	Recommended *RecommendedChart `json:"recommended_chart,omitempty"`
}

// Statistics summarizes an analyzed dataset.
type Statistics struct {
	TotalRows          int  `json:"total_rows"`
	TotalColumns       int  `json:"total_columns"`
	NumericalColumns   int  `json:"numerical_columns"`
	CategoricalColumns int  `json:"categorical_columns"`
	TemporalColumns    int  `json:"temporal_columns"`
	HasTimeSeries      bool `json:"has_time_series"`
	HasGeographic      bool `json:"has_geographic"`
}

// Analysis is the analyzer's view of a dataset: column metadata, filter
// configurations and chart recommendations.
type Analysis struct {
	DatasetID        string             `json:"dataset_id"`
	Statistics       Statistics         `json:"statistics"`
	Columns          []Column           `json:"columns"`
	ChartSuggestions []RecommendedChart `json:"chart_suggestions"`
	Filters          []FilterConfig     `json:"filters"`
	RecommendedChart *RecommendedChart  `json:"recommended_chart,omitempty"`
}
