package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/analyze"
	"github.com/agentic-research/catalyst/internal/engine"
	"github.com/agentic-research/catalyst/internal/ingest"
	"github.com/agentic-research/catalyst/internal/sqlbuild"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	payloads map[string]*api.DatasetPayload
	failures map[string]int
	gate     map[string]chan struct{}
	started  chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		payloads: map[string]*api.DatasetPayload{},
		failures: map[string]int{},
		gate:     map[string]chan struct{}{},
		started:  make(chan string, 8),
	}
}

func (s *fakeSource) Fetch(ctx context.Context, id string) (*api.DatasetPayload, error) {
	s.mu.Lock()
	gate := s.gate[id]
	p, ok := s.payloads[id]
	fail := s.failures[id] > 0
	if fail {
		s.failures[id]--
	}
	s.mu.Unlock()

	s.started <- id
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("catalog unavailable")
	}
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *p
	return &cp, nil
}

func payload(id string) *api.DatasetPayload {
	return &api.DatasetPayload{
		DatasetID: id,
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
			{"year": int64(2010), "country": "USA", "value": 1.0},
			{"year": int64(2010), "country": "Canada", "value": 2.0},
			{"year": int64(2015), "country": "USA", "value": 3.0},
			{"year": int64(2020), "country": "Canada", "value": 4.0},
			{"year": int64(2025), "country": "USA", "value": 5.0},
		},
		Recommended: &api.RecommendedChart{ChartType: "line", XAxis: "year", YAxis: "value"},
	}
}

func newTestController(t *testing.T, src Source) (*Controller, *ingest.Registry) {
	t.Helper()
	sess := engine.NewSession("", zerolog.Nop())
	t.Cleanup(func() { _ = sess.Close() })
	reg := ingest.NewRegistry(sess)
	return New(reg, src, zerolog.Nop()), reg
}

func TestController_LoadAndQuery(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, nil)
	assert.Equal(t, StateUnloaded, c.State())

	res, err := c.Load(ctx, payload("gdp"))
	require.NoError(t, err)
	assert.Equal(t, 5, res.RowCount)
	assert.Equal(t, StateLoaded, c.State())

	rows, err := c.ChartData(ctx,
		api.ChartSpec{XAxis: api.Axis{"year"}, YAxis: api.Axis{"value"}, Aggregation: "SUM"},
		api.FilterState{"year": map[string]any{"min": 2010, "max": 2020}},
	)
	require.NoError(t, err)
	assert.Equal(t, StateReady, c.State())
	require.Len(t, rows, 3)
	assert.Equal(t, int64(2010), rows[0]["x_label"])
	assert.Equal(t, 3.0, rows[0]["y_value"])

	rows, err = c.ChartData(ctx,
		api.ChartSpec{XAxis: api.Axis{"year"}, YAxis: api.Axis{"value"}, ColorBy: api.Axis{"country"}, Aggregation: "MEDIAN"},
		nil,
	)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Contains(t, rows[0], "group_by")

	flat, err := c.Rows(ctx, api.FilterState{"country": []any{"Canada"}}, 0)
	require.NoError(t, err)
	assert.Len(t, flat, 2)

	preview, err := c.Preview(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, preview, 2)

	values, err := c.DistinctValues(ctx, "country", 0)
	require.NoError(t, err)
	assert.Equal(t, []any{"Canada", "USA"}, values)

	stats, err := c.ColumnStats(ctx, "value")
	require.NoError(t, err)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 5.0, stats.Max)
	assert.Equal(t, int64(5), stats.UniqueCount)
	assert.Equal(t, int64(5), stats.TotalCount)

	n, err := c.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	schema, err := c.Schema(ctx)
	require.NoError(t, err)
	require.Len(t, schema, 3)
	assert.Equal(t, ingest.ColumnInfo{Name: "year", Type: "INTEGER"}, schema[0])

	st := c.Status()
	assert.Equal(t, "gdp", st.DatasetID)
	assert.Equal(t, StateReady, st.State)
	require.NotNil(t, st.Load)
	assert.Equal(t, "dataset_gdp", st.Load.TableName)
	assert.Equal(t, "line", st.Recommended.ChartType)
}

func TestController_QueryBeforeLoad(t *testing.T) {
	c, _ := newTestController(t, nil)
	_, err := c.RowCount(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = c.Schema(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestController_FailedQueryKeepsTable(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, nil)
	_, err := c.Load(ctx, payload("gdp"))
	require.NoError(t, err)

	_, err = c.ChartData(ctx, api.ChartSpec{YAxis: api.Axis{"value"}}, nil)
	require.ErrorIs(t, err, sqlbuild.ErrMissingAxis)

	_, err = c.ChartData(ctx, api.ChartSpec{XAxis: api.Axis{"missing"}, YAxis: api.Axis{"value"}}, nil)
	require.Error(t, err)

	assert.Equal(t, StateReady, c.State())
	n, err := c.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestController_SwitchDropsPreviousTable(t *testing.T) {
	ctx := context.Background()
	c, reg := newTestController(t, nil)

	_, err := c.Load(ctx, payload("first"))
	require.NoError(t, err)
	_, err = c.Load(ctx, payload("second"))
	require.NoError(t, err)

	assert.Equal(t, []string{"second"}, reg.Tables())
	_, err = reg.RowCount(ctx, "first")
	assert.ErrorIs(t, err, engine.ErrNoSuchTable)
	assert.Equal(t, uint64(2), c.Status().Generation)
}

func TestController_LoadFailureAndReload(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	src.payloads["gdp"] = payload("gdp")
	src.failures["gdp"] = 1
	c, _ := newTestController(t, src)

	_, err := c.Open(ctx, "gdp")
	require.Error(t, err)
	assert.Equal(t, StateError, c.State())
	assert.Contains(t, c.Status().Error, "catalog unavailable")

	_, err = c.ChartData(ctx, api.ChartSpec{XAxis: api.Axis{"year"}, YAxis: api.Axis{"value"}}, nil)
	assert.ErrorIs(t, err, ErrNotReady)

	res, err := c.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.RowCount)
	assert.Equal(t, StateLoaded, c.State())
	assert.Empty(t, c.Status().Error)
}

func TestController_EmptyDatasetIsAnError(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, nil)

	p := payload("empty")
	p.Rows = nil
	_, err := c.Load(ctx, p)
	require.ErrorIs(t, err, ingest.ErrEmptyDataset)
	assert.Equal(t, StateError, c.State())
}

func TestController_ReloadWithoutSelection(t *testing.T) {
	c, _ := newTestController(t, nil)
	_, err := c.Reload(context.Background())
	assert.ErrorIs(t, err, ErrNoDataset)

	_, err = c.Open(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestController_StaleOpenIsDiscarded(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	src.payloads["slow"] = payload("slow")
	src.gate["slow"] = make(chan struct{})
	c, reg := newTestController(t, src)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Open(ctx, "slow")
		errc <- err
	}()

	select {
	case id := <-src.started:
		require.Equal(t, "slow", id)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never started")
	}

	_, err := c.Load(ctx, payload("fast"))
	require.NoError(t, err)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrStale)
	case <-time.After(5 * time.Second):
		t.Fatal("stale open never returned")
	}

	assert.Equal(t, StateLoaded, c.State())
	assert.Equal(t, "fast", c.Status().DatasetID)
	assert.Equal(t, []string{"fast"}, reg.Tables())
}

func TestController_DateRangeMatchesStoredTimestamps(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, nil)

	rows := []api.Row{
		{"date": "2020-01-01", "value": 1.0},
		{"date": "2020-06-01", "value": 2.0},
		{"date": "2020-12-31", "value": 3.0},
	}
	a := analyze.Analyze(rows, analyze.DefaultConfig())
	require.Len(t, a.Filters, 2)
	dates := a.Filters[0]
	require.Equal(t, api.FilterDateRange, dates.FilterType)

	_, err := c.Load(ctx, &api.DatasetPayload{DatasetID: "events", Columns: a.Columns, Filters: a.Filters, Rows: rows})
	require.NoError(t, err)

	got, err := c.Rows(ctx, api.FilterState{"date": map[string]any{"min": dates.Min, "max": dates.Max}}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3, "the full analyzed range keeps its last day")

	got, err = c.Rows(ctx, api.FilterState{"date": map[string]any{"min": "2020-06-01T00:00:00Z", "max": "2020-06-01T00:00:00Z"}}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0]["value"])

	got, err = c.Rows(ctx, api.FilterState{"date_from": "2020-02-01"}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCountOf(t *testing.T) {
	n, err := countOf([]api.Row{{"count": int64(7)}})
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = countOf(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = countOf([]api.Row{{"count": 7.0}})
	assert.ErrorContains(t, err, "unexpected float64")
}

func TestController_StaleQueryIsDiscarded(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, nil)
	_, err := c.Load(ctx, payload("first"))
	require.NoError(t, err)

	started, release := make(chan struct{}), make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		_, err := c.query(ctx, func(*selection) (string, error) {
			close(started)
			<-release
			return sqlbuild.RowCountQuery, nil
		})
		errc <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("query never started")
	}
	assert.Equal(t, StateQuerying, c.State())

	_, err = c.Load(ctx, payload("second"))
	require.NoError(t, err)
	close(release)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrStale)
	case <-time.After(5 * time.Second):
		t.Fatal("stale query never returned")
	}

	assert.Equal(t, StateLoaded, c.State())
	assert.Equal(t, "second", c.Status().DatasetID)
	n, err := c.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, StateReady, c.State())
}

func TestController_Close(t *testing.T) {
	ctx := context.Background()
	c, reg := newTestController(t, nil)

	_, err := c.Load(ctx, payload("gdp"))
	require.NoError(t, err)

	c.Close(ctx)
	assert.Equal(t, StateUnloaded, c.State())
	assert.Empty(t, reg.Tables())

	_, err = c.RowCount(ctx)
	assert.ErrorIs(t, err, ErrNotReady)

	c.Close(ctx)

	_, err = c.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, c.State())
}
