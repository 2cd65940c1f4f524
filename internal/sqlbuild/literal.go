package sqlbuild

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the canonical text form of TIMESTAMP values, both as stored
// by the loader and as compared against in filters. It sorts lexicographically.
const TimestampLayout = "2006-01-02 15:04:05.999999"

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01",
	"2006",
}

// ParseTime parses a date or timestamp string in any of the layouts the loader
// accepts. Strings without a zone are UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// literal renders a scalar as SQL. Strings are quoted and escaped; when
// numericStrings is set, strings that parse as finite numbers are emitted bare so
// that range bounds typed into a text box still compare numerically.
func literal(v any, numericStrings bool) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		if numericStrings {
			if s := strings.TrimSpace(x); s != "" {
				if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
					return strconv.FormatFloat(f, 'f', -1, 64), nil
				}
			}
		}
		return QuoteString(x), nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return "", fmt.Errorf("%w: %q is not a number", ErrInvalidValue, x.String())
		}
		return formatFloat(f)
	case time.Time:
		return QuoteString(x.UTC().Format(TimestampLayout)), nil
	default:
		return "", fmt.Errorf("%w: unsupported literal type %T", ErrInvalidValue, v)
	}
}

func formatFloat(f float64) (string, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("%w: non-finite number %v", ErrInvalidValue, f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// isAbsent reports whether a filter value carries no selection.
func isAbsent(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []byte:
		return len(x) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		if rv.Len() == 0 {
			return true
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return true
		}
	}
	if lo, hi, ok := rangeBounds(v); ok {
		return isAbsent(lo) && isAbsent(hi)
	}
	return false
}

// listValues flattens any slice or array into []any.
func listValues(v any) ([]any, bool) {
	if xs, ok := v.([]any); ok {
		return xs, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
