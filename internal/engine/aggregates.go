package engine

import (
	"database/sql/driver"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"

	"modernc.org/sqlite"
)

// Aggregate names registered with the driver. SQLite resolves function names
// case-insensitively, so STDDEV(x) and stddev(x) both reach stddevAgg.
const (
	StddevFunc   = "stddev"
	QuantileFunc = "quantile_cont"
)

// The driver keeps a process-wide function table and rejects duplicate names,
// so registration happens exactly once no matter how many sessions are opened.
var (
	registerOnce sync.Once
	registerErr  error
)

func registerAggregates() error {
	registerOnce.Do(func() {
		if err := sqlite.RegisterFunction(StddevFunc, &sqlite.FunctionImpl{
			NArgs:         1,
			Deterministic: true,
			MakeAggregate: func(sqlite.FunctionContext) (sqlite.AggregateFunction, error) {
				return &stddevAgg{}, nil
			},
		}); err != nil {
			registerErr = fmt.Errorf("register %s: %w", StddevFunc, err)
			return
		}
		if err := sqlite.RegisterFunction(QuantileFunc, &sqlite.FunctionImpl{
			NArgs:         2,
			Deterministic: true,
			MakeAggregate: func(sqlite.FunctionContext) (sqlite.AggregateFunction, error) {
				return &quantileAgg{q: math.NaN()}, nil
			},
		}); err != nil {
			registerErr = fmt.Errorf("register %s: %w", QuantileFunc, err)
		}
	})
	return registerErr
}

// toFloat converts an aggregate argument to a number. NULLs and text that does
// not parse are skipped.
func toFloat(v driver.Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, !math.IsNaN(x)
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	}
	return 0, false
}

// stddevAgg is the sample standard deviation (Welford's running update).
// It yields NULL for fewer than two values.
type stddevAgg struct {
	n    int
	mean float64
	m2   float64
}

func (a *stddevAgg) Step(_ *sqlite.FunctionContext, args []driver.Value) error {
	x, ok := toFloat(args[0])
	if !ok {
		return nil
	}
	a.n++
	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
	return nil
}

func (a *stddevAgg) WindowInverse(_ *sqlite.FunctionContext, args []driver.Value) error {
	x, ok := toFloat(args[0])
	if !ok || a.n == 0 {
		return nil
	}
	a.n--
	if a.n == 0 {
		a.mean, a.m2 = 0, 0
		return nil
	}
	delta := x - a.mean
	a.mean -= delta / float64(a.n)
	a.m2 -= delta * (x - a.mean)
	return nil
}

func (a *stddevAgg) WindowValue(*sqlite.FunctionContext) (driver.Value, error) {
	if a.n < 2 {
		return nil, nil
	}
	return math.Sqrt(math.Max(a.m2, 0) / float64(a.n-1)), nil
}

func (a *stddevAgg) Final(*sqlite.FunctionContext) {}

// quantileAgg is a continuous quantile: linear interpolation between the two
// order statistics around q*(n-1). q comes from the second argument of the
// first row and must lie in [0, 1].
type quantileAgg struct {
	q      float64
	values []float64
}

func (a *quantileAgg) Step(_ *sqlite.FunctionContext, args []driver.Value) error {
	if math.IsNaN(a.q) {
		q, ok := toFloat(args[1])
		if !ok || q < 0 || q > 1 {
			return fmt.Errorf("%s: quantile must be between 0 and 1, got %v", QuantileFunc, args[1])
		}
		a.q = q
	}
	if x, ok := toFloat(args[0]); ok {
		a.values = append(a.values, x)
	}
	return nil
}

func (a *quantileAgg) WindowInverse(_ *sqlite.FunctionContext, args []driver.Value) error {
	x, ok := toFloat(args[0])
	if !ok {
		return nil
	}
	if i := slices.Index(a.values, x); i >= 0 {
		a.values = slices.Delete(a.values, i, i+1)
	}
	return nil
}

func (a *quantileAgg) WindowValue(*sqlite.FunctionContext) (driver.Value, error) {
	if len(a.values) == 0 {
		return nil, nil
	}
	return Quantile(a.values, a.q), nil
}

func (a *quantileAgg) Final(*sqlite.FunctionContext) {}

// Quantile returns the continuous q-quantile of values without modifying them.
func Quantile(values []float64, q float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
