package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/engine"
	"github.com/agentic-research/catalyst/internal/sqlbuild"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
)

var (
	// ErrEmptyDataset is returned when a load is given no rows.
	ErrEmptyDataset = errors.New("dataset has no rows")
	// ErrPartialLoad marks a non-atomic load that failed after committing at
	// least one batch. The table is left in place with StatusPartial.
	ErrPartialLoad = errors.New("dataset partially loaded")
)

// LoadStatus says whether every batch of a table made it into the engine.
type LoadStatus string

const (
	StatusComplete LoadStatus = "complete"
	StatusPartial  LoadStatus = "partial"
)

// LoadResult describes a finished load.
type LoadResult struct {
	TableName string     `json:"table_name"`
	RowCount  int        `json:"row_count"`
	Batches   int        `json:"batches"`
	Status    LoadStatus `json:"status"`
}

// BatchProgress is reported after each batch is inserted.
type BatchProgress struct {
	DatasetID string
	TableName string
	Batch     int // zero-based ordinal
	Batches   int
	Rows      int // rows inserted so far
	Total     int
}

// Table is the registry's record of one loaded dataset table.
type Table struct {
	DatasetID string
	Name      string
	Columns   []api.Column
	Types     []StorageType
	RowCount  int
	Batches   int
	Committed *roaring.Bitmap // ordinals of batches that reached the engine
	Status    LoadStatus
	LoadedAt  time.Time
}

// ColumnInfo is a column as the engine reports it.
type ColumnInfo struct {
	Name string      `json:"name"`
	Type StorageType `json:"type"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithBatchSize sets the rows per ingest batch. Non-positive sizes are ignored.
func WithBatchSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithAtomicLoad controls whether a load runs in one transaction (the default)
// or commits batch by batch.
func WithAtomicLoad(atomic bool) Option {
	return func(r *Registry) { r.atomic = atomic }
}

// WithAllocator sets the allocator ingest batches are built with.
func WithAllocator(mem memory.Allocator) Option {
	return func(r *Registry) { r.mem = mem }
}

// WithLogger sets the registry logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithProgress registers a callback invoked after every inserted batch. It runs
// while the load holds the engine connection and must not query the engine.
func WithProgress(fn func(BatchProgress)) Option {
	return func(r *Registry) { r.onBatch = fn }
}

// Registry creates, fills, queries and drops per-dataset tables on an engine
// session.
type Registry struct {
	sess      *engine.Session
	log       zerolog.Logger
	cleanup   zerolog.Logger
	batchSize int
	atomic    bool
	mem       memory.Allocator
	onBatch   func(BatchProgress)

	mu     sync.RWMutex
	tables map[string]*Table
}

// NewRegistry returns a registry over sess.
func NewRegistry(sess *engine.Session, opts ...Option) *Registry {
	r := &Registry{
		sess:      sess,
		log:       zerolog.Nop(),
		batchSize: DefaultBatchSize,
		atomic:    true,
		mem:       memory.NewGoAllocator(),
		tables:    make(map[string]*Table),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cleanup = r.log.With().Str("component", "cleanup").Logger()
	r.log = r.log.With().Str("component", "registry").Logger()
	return r
}

// LoadDataset replaces the dataset's table with one holding rows.
//
// Any existing table of the same name is dropped first, even when rows turns
// out to be empty. Column types come from cols; without metadata every key of
// the first row becomes a VARCHAR column, in sorted order.
func (r *Registry) LoadDataset(ctx context.Context, datasetID string, rows []api.Row, cols []api.Column) (LoadResult, error) {
	name := SanitizeTableName(datasetID)
	r.DropDataset(ctx, datasetID)

	if len(rows) == 0 {
		return LoadResult{}, fmt.Errorf("load %s: %w", datasetID, ErrEmptyDataset)
	}
	if len(cols) == 0 {
		cols = inferColumns(rows[0])
	}
	if err := validateColumns(cols); err != nil {
		return LoadResult{}, fmt.Errorf("load %s: %w", datasetID, err)
	}

	schema := newTableSchema(cols)
	t := &Table{
		DatasetID: datasetID,
		Name:      name,
		Columns:   slices.Clone(cols),
		Types:     schema.types,
		Batches:   (len(rows) + r.batchSize - 1) / r.batchSize,
		Committed: roaring.New(),
		Status:    StatusComplete,
	}

	start := time.Now()
	var err error
	if r.atomic {
		err = r.loadAtomic(ctx, t, schema, rows)
	} else {
		err = r.loadIncremental(ctx, t, schema, rows)
	}

	res := LoadResult{TableName: name, RowCount: t.RowCount, Batches: int(t.Committed.GetCardinality()), Status: t.Status}
	if err != nil && t.Status != StatusPartial {
		return LoadResult{}, fmt.Errorf("load %s: %w", datasetID, err)
	}

	t.LoadedAt = time.Now()
	r.mu.Lock()
	r.tables[datasetID] = t
	r.mu.Unlock()

	if err != nil {
		r.log.Warn().Err(err).Str("table", name).Int("rows", t.RowCount).Int("batches", res.Batches).Msg("partial load")
		return res, fmt.Errorf("load %s: %w: %w", datasetID, ErrPartialLoad, err)
	}
	r.log.Info().Str("table", name).Int("rows", t.RowCount).Int("batches", res.Batches).Dur("took", time.Since(start)).Msg("dataset loaded")
	return res, nil
}

// loadAtomic creates the table and inserts every batch in one transaction. On
// failure nothing is left behind.
func (r *Registry) loadAtomic(ctx context.Context, t *Table, schema *tableSchema, rows []api.Row) error {
	tx, err := r.sess.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	create := createTableSQL(t.Name, schema)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return r.sess.Fail(create, err)
	}
	stmt, insert, err := prepareInsert(ctx, tx, t.Name, len(schema.columns))
	if err != nil {
		return r.sess.Fail(insert, err)
	}
	defer func() { _ = stmt.Close() }() // safe to ignore

	inserted := 0
	for i := 0; i < t.Batches; i++ {
		batch := batchAt(rows, i, r.batchSize)
		if err := r.insertBatch(ctx, stmt, schema, batch); err != nil {
			return r.sess.Fail(insert, fmt.Errorf("batch %d: %w", i, err))
		}
		inserted += len(batch)
		r.progress(t, i, inserted, len(rows))
	}
	if err := tx.Commit(); err != nil {
		return r.sess.Fail("COMMIT", err)
	}
	t.Committed.AddRange(0, uint64(t.Batches))
	t.RowCount = inserted
	return nil
}

// loadIncremental commits batch by batch. A failure after the first commit
// leaves a queryable table marked StatusPartial.
func (r *Registry) loadIncremental(ctx context.Context, t *Table, schema *tableSchema, rows []api.Row) error {
	create := createTableSQL(t.Name, schema)
	if _, err := r.sess.Exec(ctx, create); err != nil {
		return err
	}

	for i := 0; i < t.Batches; i++ {
		batch := batchAt(rows, i, r.batchSize)
		if err := r.commitBatch(ctx, t.Name, schema, batch); err != nil {
			if t.Committed.IsEmpty() {
				r.dropTable(ctx, t.Name)
			} else {
				t.Status = StatusPartial
			}
			return fmt.Errorf("batch %d: %w", i, err)
		}
		t.Committed.Add(uint32(i))
		t.RowCount += len(batch)
		r.progress(t, i, t.RowCount, len(rows))
	}
	return nil
}

func (r *Registry) commitBatch(ctx context.Context, table string, schema *tableSchema, batch []api.Row) error {
	tx, err := r.sess.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	stmt, insert, err := prepareInsert(ctx, tx, table, len(schema.columns))
	if err != nil {
		return r.sess.Fail(insert, err)
	}
	defer func() { _ = stmt.Close() }() // safe to ignore

	if err := r.insertBatch(ctx, stmt, schema, batch); err != nil {
		return r.sess.Fail(insert, err)
	}
	if err := tx.Commit(); err != nil {
		return r.sess.Fail("COMMIT", err)
	}
	return nil
}

// insertBatch encodes batch as one record, inserts it row by row through stmt
// and releases the record before returning.
func (r *Registry) insertBatch(ctx context.Context, stmt *sql.Stmt, schema *tableSchema, batch []api.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := encodeBatch(r.mem, schema, batch)
	defer rec.Release()
	return insertRecord(ctx, stmt, rec)
}

func insertRecord(ctx context.Context, stmt *sql.Stmt, rec arrow.Record) error {
	args := make([]any, 0, rec.NumCols())
	for i := 0; i < int(rec.NumRows()); i++ {
		args = rowArgs(rec, i, args)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

func (r *Registry) progress(t *Table, batch, inserted, total int) {
	r.log.Debug().Str("table", t.Name).Int("batch", batch).Int("rows", inserted).Msg("batch inserted")
	if r.onBatch != nil {
		r.onBatch(BatchProgress{
			DatasetID: t.DatasetID,
			TableName: t.Name,
			Batch:     batch,
			Batches:   t.Batches,
			Rows:      inserted,
			Total:     total,
		})
	}
}

// QueryDataset runs compiler-generated SQL against the dataset's table,
// substituting the {table} placeholder.
func (r *Registry) QueryDataset(ctx context.Context, datasetID, query string) ([]api.Row, error) {
	return r.sess.Query(ctx, sqlbuild.ExpandTable(query, SanitizeTableName(datasetID)))
}

// DropDataset drops the dataset's table if it exists. Failures are logged and
// swallowed.
func (r *Registry) DropDataset(ctx context.Context, datasetID string) {
	r.mu.Lock()
	delete(r.tables, datasetID)
	r.mu.Unlock()
	r.dropTable(ctx, SanitizeTableName(datasetID))
}

// dropTable runs even when ctx is already cancelled; a cancelled load still
// has to clean up after itself.
func (r *Registry) dropTable(ctx context.Context, name string) {
	if _, err := r.sess.Exec(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+name); err != nil {
		r.cleanup.Warn().Err(err).Str("table", name).Msg("drop table failed")
	}
}

// RowCount counts the rows of the dataset's table.
func (r *Registry) RowCount(ctx context.Context, datasetID string) (int, error) {
	rows, err := r.QueryDataset(ctx, datasetID, sqlbuild.RowCountQuery)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, ok := rows[0]["count"].(int64)
	if !ok {
		return 0, fmt.Errorf("row count: unexpected %T", rows[0]["count"])
	}
	return int(n), nil
}

// TableInfo lists the columns of the dataset's table as the engine declares them.
func (r *Registry) TableInfo(ctx context.Context, datasetID string) ([]ColumnInfo, error) {
	name := SanitizeTableName(datasetID)
	rows, err := r.sess.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", name))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("table %s: %w", name, engine.ErrNoSuchTable)
	}
	out := make([]ColumnInfo, len(rows))
	for i, row := range rows {
		colName, _ := row["name"].(string)
		colType, _ := row["type"].(string)
		out[i] = ColumnInfo{Name: colName, Type: StorageType(colType)}
	}
	return out, nil
}

// Table returns a snapshot of the registry's record for a dataset.
func (r *Registry) Table(datasetID string) (Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[datasetID]
	if !ok {
		return Table{}, false
	}
	cp := *t
	cp.Columns = slices.Clone(t.Columns)
	cp.Types = slices.Clone(t.Types)
	cp.Committed = t.Committed.Clone()
	return cp, true
}

// Tables lists the ids of every registered dataset.
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tables))
	for id := range r.tables {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func batchAt(rows []api.Row, i, size int) []api.Row {
	lo := i * size
	hi := min(lo+size, len(rows))
	return rows[lo:hi]
}

func inferColumns(first api.Row) []api.Column {
	names := make([]string, 0, len(first))
	for k := range first {
		names = append(names, k)
	}
	slices.Sort(names)
	cols := make([]api.Column, len(names))
	for i, n := range names {
		cols[i] = api.Column{Name: n, Type: api.TypeText}
	}
	return cols
}

func validateColumns(cols []api.Column) error {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if err := sqlbuild.ValidateIdentifier(c.Name); err != nil {
			return fmt.Errorf("column: %w", err)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[key] = true
	}
	return nil
}

func createTableSQL(name string, s *tableSchema) string {
	defs := make([]string, len(s.columns))
	for i, c := range s.columns {
		defs[i] = `"` + c.Name + `" ` + string(s.types[i])
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
}

func prepareInsert(ctx context.Context, tx *sql.Tx, table string, ncols int) (*sql.Stmt, string, error) {
	marks := strings.TrimSuffix(strings.Repeat("?, ", ncols), ", ")
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, marks)
	stmt, err := tx.PrepareContext(ctx, insert)
	return stmt, insert, err
}
