package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSuchTable matches a QueryError raised because the table a query names is
// gone, typically a late query racing a dataset switch. Callers may retry once the
// next dataset is loaded.
var ErrNoSuchTable = errors.New("no such table")

// ErrClosed is returned by every operation on a closed Session.
var ErrClosed = errors.New("engine: session closed")

// QueryError is an engine failure carrying the SQL that caused it.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is reports ErrNoSuchTable for missing-table failures, whatever the driver's
// error type.
func (e *QueryError) Is(target error) bool {
	return target == ErrNoSuchTable && e.Err != nil && strings.Contains(e.Err.Error(), "no such table")
}
