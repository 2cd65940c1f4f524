package sqlbuild

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the root of every error the compiler returns. These are
// caller mistakes (bad chart or filter config) and are never worth retrying.
var ErrConfiguration = errors.New("invalid query configuration")

var (
	ErrMissingAxis            = fmt.Errorf("%w: both x_axis and y_axis are required for aggregation query", ErrConfiguration)
	ErrInvalidIdentifier      = fmt.Errorf("%w: invalid identifier", ErrConfiguration)
	ErrInvalidValue           = fmt.Errorf("%w: invalid filter value", ErrConfiguration)
	ErrUnsupportedAggregation = fmt.Errorf("%w: unsupported aggregation", ErrConfiguration)
)
