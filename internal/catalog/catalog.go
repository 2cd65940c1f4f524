// Package catalog fetches dataset payloads for the lifecycle controller, either
// from a remote catalog service over HTTP or from files in a local directory.
//
// Rows are located inside a fetched document with a JSONPath selector. Column
// metadata, filter configurations and the recommended chart are taken from the
// document when present and derived with the analyzer when not.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/analyze"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// DefaultRowsSelector locates the row array in a catalog data response.
const DefaultRowsSelector = "$.data[*]"

// ErrNotFound is returned when the catalog has no dataset with the requested id.
var ErrNotFound = errors.New("dataset not found")

// extractor turns a decoded JSON document into a dataset payload.
type extractor struct {
	rows     jp.Expr
	analysis analyze.Config
}

func newExtractor(selector string, analysis analyze.Config) (*extractor, error) {
	if selector == "" {
		selector = DefaultRowsSelector
	}
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	return &extractor{rows: x, analysis: analysis}, nil
}

// payload builds the dataset payload for id out of root.
func (e *extractor) payload(id string, root any) (*api.DatasetPayload, error) {
	rows := selectRows(e.rows, root)
	out := &api.DatasetPayload{DatasetID: id, Rows: rows}

	if doc, ok := root.(map[string]any); ok {
		if err := decodeField(doc, "columns", &out.Columns); err != nil {
			return nil, err
		}
		if err := decodeField(doc, "filters", &out.Filters); err != nil {
			return nil, err
		}
		if err := decodeField(doc, "recommended_chart", &out.Recommended); err != nil {
			return nil, err
		}
	}
	return complete(out, e.analysis), nil
}

// complete fills missing metadata from the analyzer. Declared columns and
// filters are kept as given; when filters are missing they are derived, limited
// to columns the table will actually have.
func complete(p *api.DatasetPayload, cfg analyze.Config) *api.DatasetPayload {
	if len(p.Rows) == 0 || (len(p.Columns) > 0 && len(p.Filters) > 0 && p.Recommended != nil) {
		return p
	}
	a := analyze.Analyze(p.Rows, cfg)
	declared := len(p.Columns) > 0
	if !declared {
		p.Columns = a.Columns
	}
	if len(p.Filters) == 0 {
		p.Filters = a.Filters
		if declared {
			p.Filters = slices.DeleteFunc(slices.Clone(p.Filters), func(f api.FilterConfig) bool {
				return !hasColumn(p.Columns, f.Column)
			})
		}
	}
	if p.Recommended == nil && !declared {
		p.Recommended = a.RecommendedChart
	}
	return p
}

func hasColumn(cols []api.Column, name string) bool {
	return slices.ContainsFunc(cols, func(c api.Column) bool { return c.Name == name })
}

// selectRows applies the selector and wraps every non-object match as a
// single-column row.
func selectRows(x jp.Expr, root any) []api.Row {
	matches := x.Get(root)
	rows := make([]api.Row, 0, len(matches))
	for _, m := range matches {
		switch v := m.(type) {
		case map[string]any:
			rows = append(rows, api.Row(v))
		default:
			rows = append(rows, api.Row{"value": v})
		}
	}
	return rows
}

// decodeField decodes doc[key] into out when it holds structured metadata.
// A catalog that lists bare column names (the data endpoint's short form) is
// treated as carrying no column metadata.
func decodeField(doc map[string]any, key string, out any) error {
	v, ok := doc[key]
	if !ok || v == nil {
		return nil
	}
	switch x := v.(type) {
	case []any:
		if len(x) == 0 {
			return nil
		}
		if _, isObj := x[0].(map[string]any); !isObj {
			return nil
		}
	case map[string]any:
	default:
		return nil
	}
	if err := json.Unmarshal([]byte(oj.JSON(v)), out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
