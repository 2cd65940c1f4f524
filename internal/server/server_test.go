package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/catalog"
	"github.com/agentic-research/catalyst/internal/engine"
	"github.com/agentic-research/catalyst/internal/ingest"
	"github.com/agentic-research/catalyst/internal/lifecycle"
	"github.com/agentic-research/catalyst/internal/sqlbuild"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource map[string]*api.DatasetPayload

func (m memSource) Fetch(_ context.Context, id string) (*api.DatasetPayload, error) {
	p, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, catalog.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m memSource) List(context.Context) ([]api.Dataset, error) {
	var out []api.Dataset
	for id := range m {
		out = append(out, api.Dataset{ID: id, Name: id})
	}
	return out, nil
}

func gdp() *api.DatasetPayload {
	return &api.DatasetPayload{
		Columns: []api.Column{
			{Name: "year", Type: api.TypeTemporal, DType: "int64"},
			{Name: "country", Type: api.TypeCategorical},
			{Name: "value", Type: api.TypeNumerical, DType: "float64"},
		},
		Filters: []api.FilterConfig{
			{Column: "year", FilterType: api.FilterRange},
			{Column: "country", FilterType: api.FilterMultiSelect},
		},
		Rows: []api.Row{
			{"year": int64(2010), "country": "USA", "value": 1.5},
			{"year": int64(2010), "country": "Canada", "value": 2.0},
			{"year": int64(2015), "country": "USA", "value": 3.0},
			{"year": int64(2020), "country": "Canada", "value": 4.0},
		},
		Recommended: &api.RecommendedChart{ChartType: "line", XAxis: "year", YAxis: "value"},
	}
}

func newTestServer(t *testing.T, lister Lister) *echo.Echo {
	t.Helper()
	sess := engine.NewSession("", zerolog.Nop())
	t.Cleanup(func() { _ = sess.Close() })
	src := memSource{"gdp": gdp()}
	ctrl := lifecycle.New(ingest.NewRegistry(sess), src, zerolog.Nop())
	if lister == nil {
		lister = src
	}
	return New(NewHandler(ctrl, lister, zerolog.Nop()))
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestServer_DatasetFlow(t *testing.T) {
	e := newTestServer(t, nil)

	rec, body := do(t, e, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unloaded", body["state"])
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec, body = do(t, e, http.MethodGet, "/api/count", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["error"], "not ready")

	rec, body = do(t, e, http.MethodPost, "/api/datasets/gdp/open", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	load := body["load"].(map[string]any)
	assert.Equal(t, "dataset_gdp", load["table_name"])
	assert.EqualValues(t, 4, load["row_count"])

	t.Run("recommended chart", func(t *testing.T) {
		rec, body := do(t, e, http.MethodPost, "/api/chart", `{}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		spec := body["spec"].(map[string]any)
		assert.Equal(t, "line", spec["chart_type"])
		assert.Len(t, body["data"], 3)
	})

	t.Run("explicit chart with filters", func(t *testing.T) {
		rec, body := do(t, e, http.MethodPost, "/api/chart", `{
			"spec": {"chart_type": "bar", "x_axis": "country", "y_axis": ["value"], "aggregation": "count"},
			"filters": {"year": {"min": 2010, "max": 2015}}
		}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		data := body["data"].([]any)
		require.Len(t, data, 2)
		first := data[0].(map[string]any)
		assert.Equal(t, "Canada", first["x_label"])
		assert.EqualValues(t, 1, first["y_value"])
	})

	t.Run("configuration errors are 400", func(t *testing.T) {
		rec, body := do(t, e, http.MethodPost, "/api/chart", `{"spec": {"x_axis": "year"}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, body["error"], "x_axis and y_axis")

		rec, _ = do(t, e, http.MethodPost, "/api/chart", `{"spec": {"x_axis": "year", "y_axis": "value", "aggregation": "MODE"}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = do(t, e, http.MethodPost, "/api/chart", `{"spec": `)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rows", func(t *testing.T) {
		rec, body := do(t, e, http.MethodPost, "/api/rows", `{"filters": {"country": ["Canada"]}, "limit": 10}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, body["data"], 2)
	})

	t.Run("preview", func(t *testing.T) {
		rec, body := do(t, e, http.MethodGet, "/api/preview?limit=1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["data"], 1)
	})

	t.Run("columns", func(t *testing.T) {
		rec, body := do(t, e, http.MethodGet, "/api/columns/country/distinct", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []any{"Canada", "USA"}, body["values"])

		rec, body = do(t, e, http.MethodGet, "/api/columns/value/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 1.5, body["min"])
		assert.EqualValues(t, 4, body["unique_count"])
	})

	t.Run("count and schema", func(t *testing.T) {
		rec, body := do(t, e, http.MethodGet, "/api/count", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 4, body["count"])

		rec, _ = do(t, e, http.MethodGet, "/api/schema", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var cols []ingest.ColumnInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cols))
		assert.Equal(t, []ingest.ColumnInfo{
			{Name: "year", Type: ingest.StorageInteger},
			{Name: "country", Type: ingest.StorageVarchar},
			{Name: "value", Type: ingest.StorageDouble},
		}, cols)
	})

	rec, _ = do(t, e, http.MethodDelete, "/api/datasets/current", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/count", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = do(t, e, http.MethodPost, "/api/datasets/reload", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "loaded", body["status"].(map[string]any)["state"])
}

func TestServer_OpenMissingDataset(t *testing.T) {
	e := newTestServer(t, nil)

	rec, body := do(t, e, http.MethodPost, "/api/datasets/nope/open", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "not found")

	_, body = do(t, e, http.MethodGet, "/api/state", "")
	assert.Equal(t, "error", body["state"])
}

func TestServer_ListDatasets(t *testing.T) {
	e := newTestServer(t, nil)
	rec, _ := do(t, e, http.MethodGet, "/api/datasets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []api.Dataset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "gdp", list[0].ID)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{sqlbuild.ErrMissingAxis, http.StatusBadRequest},
		{fmt.Errorf("filter: %w", sqlbuild.ErrInvalidValue), http.StatusBadRequest},
		{fmt.Errorf("fetch: %w", catalog.ErrNotFound), http.StatusNotFound},
		{ingest.ErrEmptyDataset, http.StatusUnprocessableEntity},
		{lifecycle.ErrNotReady, http.StatusConflict},
		{lifecycle.ErrStale, http.StatusConflict},
		{&engine.QueryError{SQL: "SELECT 1", Err: errors.New("no such table: dataset_x")}, http.StatusServiceUnavailable},
		{lifecycle.ErrNoSource, http.StatusServiceUnavailable},
		{echo.NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}
