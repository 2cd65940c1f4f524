package lifecycle

import "errors"

// State is the controller's view of the selected dataset.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
	StateQuerying State = "querying"
	StateReady    State = "ready"
	StateError    State = "error"
)

// Queryable reports whether queries may run against the current table.
func (s State) Queryable() bool {
	return s == StateLoaded || s == StateQuerying || s == StateReady
}

var (
	// ErrNotReady is returned for queries issued while no table is loaded.
	ErrNotReady = errors.New("dataset not ready")
	// ErrStale is returned by a load or query whose dataset selection was
	// replaced before it finished. Its result has been discarded.
	ErrStale = errors.New("superseded by a newer dataset selection")
	// ErrNoDataset is returned by Reload before any dataset was requested.
	ErrNoDataset = errors.New("no dataset selected")
	// ErrNoSource is returned by Open on a controller built without a Source.
	ErrNoSource = errors.New("no dataset source configured")
)
