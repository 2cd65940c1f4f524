// Package lifecycle sequences dataset loads and queries so that exactly one
// dataset table lives in the engine and stale work never leaks into the
// current selection.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/ingest"
	"github.com/agentic-research/catalyst/internal/sqlbuild"
	"github.com/rs/zerolog"
)

// Source fetches a dataset's rows and metadata by id.
type Source interface {
	Fetch(ctx context.Context, datasetID string) (*api.DatasetPayload, error)
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State       State                 `json:"state"`
	DatasetID   string                `json:"dataset_id,omitempty"`
	Generation  uint64                `json:"generation"`
	Load        *ingest.LoadResult    `json:"load,omitempty"`
	Error       string                `json:"error,omitempty"`
	Columns     []api.Column          `json:"columns,omitempty"`
	Filters     []api.FilterConfig    `json:"filters,omitempty"`
	Recommended *api.RecommendedChart `json:"recommended_chart,omitempty"`
}

// ColumnStats summarizes the non-null values of one column.
type ColumnStats struct {
	Column      string `json:"column"`
	Min         any    `json:"min"`
	Max         any    `json:"max"`
	UniqueCount int64  `json:"unique_count"`
	TotalCount  int64  `json:"total_count"`
}

type selection struct {
	id      string
	payload *api.DatasetPayload // nil until fetched
	result  ingest.LoadResult
}

// Controller owns the dataset selection. Every Load, Open or Close starts a new
// generation; work begun under an older generation finishes with ErrStale.
type Controller struct {
	reg *ingest.Registry
	src Source
	log zerolog.Logger

	gen    atomic.Uint64
	loadMu sync.Mutex // one load runs against the engine at a time

	mu         sync.Mutex
	state      State
	current    *selection // loaded and queryable
	last       *selection // most recent request, kept for Reload
	lastErr    error
	cancelLoad context.CancelFunc
	inflight   int
}

// New returns a controller in StateUnloaded. src may be nil when datasets are
// only ever handed over through Load.
func New(reg *ingest.Registry, src Source, logger zerolog.Logger) *Controller {
	return &Controller{
		reg:   reg,
		src:   src,
		log:   logger.With().Str("component", "lifecycle").Logger(),
		state: StateUnloaded,
	}
}

// Load replaces the current dataset with payload.
func (c *Controller) Load(ctx context.Context, payload *api.DatasetPayload) (ingest.LoadResult, error) {
	if payload == nil || payload.DatasetID == "" {
		return ingest.LoadResult{}, fmt.Errorf("load: %w", ErrNoDataset)
	}
	ctx, gen, done := c.begin(ctx, &selection{id: payload.DatasetID, payload: payload})
	defer done()
	return c.load(ctx, gen, payload)
}

// Open fetches a dataset from the Source and loads it.
func (c *Controller) Open(ctx context.Context, datasetID string) (ingest.LoadResult, error) {
	if c.src == nil {
		return ingest.LoadResult{}, ErrNoSource
	}
	if datasetID == "" {
		return ingest.LoadResult{}, fmt.Errorf("open: %w", ErrNoDataset)
	}
	ctx, gen, done := c.begin(ctx, &selection{id: datasetID})
	defer done()

	payload, err := c.src.Fetch(ctx, datasetID)
	if err == nil && payload == nil {
		err = errors.New("source returned no payload")
	}
	if err != nil {
		return ingest.LoadResult{}, c.fail(gen, fmt.Errorf("fetch %s: %w", datasetID, err))
	}
	payload.DatasetID = datasetID

	c.mu.Lock()
	if c.gen.Load() == gen {
		c.last.payload = payload
	}
	c.mu.Unlock()
	return c.load(ctx, gen, payload)
}

// Reload repeats the most recent Load or Open. It is the only way out of
// StateError. A dataset whose fetch failed is fetched again.
func (c *Controller) Reload(ctx context.Context) (ingest.LoadResult, error) {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()

	switch {
	case last == nil:
		return ingest.LoadResult{}, ErrNoDataset
	case last.payload != nil:
		return c.Load(ctx, last.payload)
	default:
		return c.Open(ctx, last.id)
	}
}

// begin starts a new generation for sel: the previous load is cancelled and
// the previous table stops being queryable.
func (c *Controller) begin(ctx context.Context, sel *selection) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	gen := c.gen.Add(1)
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	c.cancelLoad = cancel
	c.current = nil
	c.last = sel
	c.lastErr = nil
	c.inflight = 0
	c.setState(StateLoading)
	c.mu.Unlock()

	c.log.Info().Str("dataset", sel.id).Uint64("generation", gen).Msg("loading dataset")
	return ctx, gen, cancel
}

func (c *Controller) load(ctx context.Context, gen uint64, payload *api.DatasetPayload) (ingest.LoadResult, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if c.gen.Load() != gen {
		return ingest.LoadResult{}, ErrStale
	}

	// One table at a time: whatever an earlier selection left behind goes first.
	for _, id := range c.reg.Tables() {
		if id != payload.DatasetID {
			c.reg.DropDataset(ctx, id)
		}
	}

	res, err := c.reg.LoadDataset(ctx, payload.DatasetID, payload.Rows, payload.Columns)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen.Load() != gen {
		if c.state == StateUnloaded || c.last == nil || c.last.id != payload.DatasetID {
			c.reg.DropDataset(context.WithoutCancel(ctx), payload.DatasetID)
		}
		c.log.Debug().Str("dataset", payload.DatasetID).Uint64("generation", gen).Msg("discarding stale load")
		return ingest.LoadResult{}, ErrStale
	}
	c.cancelLoad = nil

	if err != nil {
		c.lastErr = err
		c.setState(StateError)
		c.log.Error().Err(err).Str("dataset", payload.DatasetID).Msg("load failed")
		return res, err
	}

	c.current = &selection{id: payload.DatasetID, payload: payload, result: res}
	c.setState(StateLoaded)
	return res, nil
}

func (c *Controller) fail(gen uint64, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.Load() != gen {
		return ErrStale
	}
	c.cancelLoad = nil
	c.lastErr = err
	c.setState(StateError)
	c.log.Error().Err(err).Msg("load failed")
	return err
}

// Close drops the current table and returns to StateUnloaded. An in-flight
// load is cancelled. Drop failures are logged, never returned.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	c.gen.Add(1)
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	cur := c.current
	c.current = nil
	c.lastErr = nil
	c.inflight = 0
	c.setState(StateUnloaded)
	c.mu.Unlock()

	if cur != nil {
		c.reg.DropDataset(ctx, cur.id)
	}
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state, Generation: c.gen.Load()}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	sel := c.current
	if sel == nil {
		sel = c.last
	}
	if sel != nil {
		st.DatasetID = sel.id
		if p := sel.payload; p != nil {
			st.Columns = p.Columns
			st.Filters = p.Filters
			st.Recommended = p.Recommended
		}
	}
	if c.current != nil {
		res := c.current.result
		st.Load = &res
	}
	return st
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	if c.state != s {
		c.log.Debug().Str("from", string(c.state)).Str("to", string(s)).Msg("state")
	}
	c.state = s
}

// ChartData runs the aggregation query for spec over the current dataset,
// filtered by the dataset's declared filter configs.
func (c *Controller) ChartData(ctx context.Context, spec api.ChartSpec, filters api.FilterState) ([]api.Row, error) {
	return c.query(ctx, func(sel *selection) (string, error) {
		return sqlbuild.AggregationQuery(spec, filters, sel.payload.Filters)
	})
}

// Rows returns filtered rows of the current dataset.
func (c *Controller) Rows(ctx context.Context, filters api.FilterState, limit int) ([]api.Row, error) {
	return c.query(ctx, func(sel *selection) (string, error) {
		return sqlbuild.SelectQuery(filters, sel.payload.Filters, limit)
	})
}

// Preview returns the first rows of the current dataset.
func (c *Controller) Preview(ctx context.Context, limit int) ([]api.Row, error) {
	return c.query(ctx, func(*selection) (string, error) {
		return sqlbuild.PreviewQuery(limit), nil
	})
}

// DistinctValues lists the sorted non-null values of column.
func (c *Controller) DistinctValues(ctx context.Context, column string, limit int) ([]any, error) {
	rows, err := c.query(ctx, func(*selection) (string, error) {
		return sqlbuild.DistinctValuesQuery(column, limit)
	})
	if err != nil {
		return nil, err
	}
	values := make([]any, len(rows))
	for i, r := range rows {
		values[i] = r["value"]
	}
	return values, nil
}

// ColumnStats summarizes column over the current dataset.
func (c *Controller) ColumnStats(ctx context.Context, column string) (ColumnStats, error) {
	rows, err := c.query(ctx, func(*selection) (string, error) {
		return sqlbuild.ColumnStatsQuery(column)
	})
	if err != nil {
		return ColumnStats{}, err
	}
	st := ColumnStats{Column: column}
	if len(rows) == 1 {
		st.Min, st.Max = rows[0]["min"], rows[0]["max"]
		st.UniqueCount, _ = rows[0]["unique_count"].(int64)
		st.TotalCount, _ = rows[0]["total_count"].(int64)
	}
	return st, nil
}

// RowCount counts the rows of the current dataset.
func (c *Controller) RowCount(ctx context.Context) (int, error) {
	rows, err := c.query(ctx, func(*selection) (string, error) {
		return sqlbuild.RowCountQuery, nil
	})
	if err != nil {
		return 0, err
	}
	return countOf(rows)
}

func countOf(rows []api.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, ok := rows[0]["count"].(int64)
	if !ok {
		return 0, fmt.Errorf("row count: unexpected %T", rows[0]["count"])
	}
	return int(n), nil
}

// Schema lists the current table's columns with their declared storage types.
func (c *Controller) Schema(ctx context.Context) ([]ingest.ColumnInfo, error) {
	c.mu.Lock()
	sel, state := c.current, c.state
	c.mu.Unlock()
	if sel == nil || !state.Queryable() {
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}
	return c.reg.TableInfo(ctx, sel.id)
}

// query compiles and runs one statement against the current table. A failed
// query leaves the table and the controller's readiness untouched.
func (c *Controller) query(ctx context.Context, compile func(*selection) (string, error)) ([]api.Row, error) {
	c.mu.Lock()
	sel := c.current
	if sel == nil || !c.state.Queryable() {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}
	gen := c.gen.Load()
	c.inflight++
	c.setState(StateQuerying)
	c.mu.Unlock()

	q, err := compile(sel)
	var rows []api.Row
	if err == nil {
		rows, err = c.reg.QueryDataset(ctx, sel.id, q)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.Load() != gen {
		return nil, ErrStale
	}
	c.inflight--
	if c.inflight == 0 {
		c.setState(StateReady)
	}
	if err != nil {
		if !errors.Is(err, sqlbuild.ErrConfiguration) {
			c.log.Warn().Err(err).Str("dataset", sel.id).Msg("query failed")
		}
		return nil, err
	}
	return rows, nil
}
