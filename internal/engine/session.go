// Package engine owns the single embedded SQL engine session shared by every
// dataset operation in the process.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/agentic-research/catalyst/api"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// DefaultDSN is a private in-memory database. Every connection to it would be a
// separate database, which is one reason the pool is pinned to one connection.
const DefaultDSN = "file::memory:"

// Session is a lazily opened handle on the engine. The first operation opens the
// database; concurrent first callers wait for that one open. A failed open is
// not remembered, so the next caller tries again. All statements run on a
// single connection, so a query issued while a load transaction is open queues
// behind it.
type Session struct {
	dsn string
	log zerolog.Logger

	// openMu serializes opens; mu guards db and closed.
	openMu sync.Mutex

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewSession returns an unopened session for dsn (DefaultDSN when empty).
func NewSession(dsn string, logger zerolog.Logger) *Session {
	if dsn == "" {
		dsn = DefaultDSN
	}
	return &Session{dsn: dsn, log: logger.With().Str("component", "engine").Logger()}
}

// DB returns the underlying pool, opening it on first use.
func (s *Session) DB(ctx context.Context) (*sql.DB, error) {
	if db, err := s.current(); db != nil || err != nil {
		return db, err
	}

	s.openMu.Lock()
	defer s.openMu.Unlock()
	if db, err := s.current(); db != nil || err != nil {
		return db, err
	}

	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = db.Close()
		return nil, ErrClosed
	}
	s.db = db
	return db, nil
}

func (s *Session) current() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.db, nil
}

func (s *Session) open(ctx context.Context) (*sql.DB, error) {
	if err := registerAggregates(); err != nil {
		return nil, err
	}

	start := time.Now()
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("open engine %s: %w", s.dsn, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect engine: %w", err)
	}
	s.log.Info().Str("dsn", s.dsn).Dur("took", time.Since(start)).Msg("engine ready")
	return db, nil
}

// Opened reports whether the engine has been opened successfully.
func (s *Session) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil && !s.closed
}

// Query runs query and materializes every result row as a column-name map.
// Text values are strings, integers int64, reals float64 and TIMESTAMP columns
// time.Time in UTC.
func (s *Session) Query(ctx context.Context, query string, args ...any) ([]api.Row, error) {
	db, err := s.DB(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("sql", query).Msg("query")
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(query, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	out, err := ScanRows(rows)
	if err != nil {
		return nil, s.fail(query, err)
	}
	return out, nil
}

// Exec runs a statement that returns no rows.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := s.DB(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Debug().Str("sql", query).Msg("exec")
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(query, err)
	}
	return res, nil
}

// BeginTx starts a transaction on the session's connection. Other callers
// block until it commits or rolls back.
func (s *Session) BeginTx(ctx context.Context) (*sql.Tx, error) {
	db, err := s.DB(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.fail("BEGIN", err)
	}
	return tx, nil
}

// Fail logs an engine failure with its SQL and wraps it as a *QueryError.
// Callers that run statements on their own transaction use it to report errors
// the same way the session does.
func (s *Session) Fail(query string, err error) error {
	return s.fail(query, err)
}

func (s *Session) fail(query string, err error) error {
	s.log.Error().Err(err).Str("sql", query).Msg("engine error")
	return &QueryError{SQL: query, Err: err}
}

// Close releases the engine. It is safe to call more than once and on a
// session that was never opened.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ScanRows reads every row of rows into column-name maps.
func ScanRows(rows *sql.Rows) ([]api.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := []api.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(api.Row, len(cols))
		for i, c := range cols {
			row[c] = normalize(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC()
	}
	return v
}
