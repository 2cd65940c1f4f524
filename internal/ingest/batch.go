package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/sqlbuild"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/ohler55/ojg/oj"
)

// DefaultBatchSize is the number of rows encoded into one record and inserted
// together.
const DefaultBatchSize = 5000

// tableSchema is the typed column layout of one dataset table.
type tableSchema struct {
	columns []api.Column
	types   []StorageType
	arrow   *arrow.Schema
}

func newTableSchema(cols []api.Column) *tableSchema {
	s := &tableSchema{
		columns: cols,
		types:   make([]StorageType, len(cols)),
	}
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		s.types[i] = MapColumnType(c)
		fields[i] = arrow.Field{Name: c.Name, Type: s.types[i].ArrowType(), Nullable: true}
	}
	s.arrow = arrow.NewSchema(fields, nil)
	return s
}

// encodeBatch builds one record from rows. Values that cannot be coerced to
// their column's type are stored as NULL. The caller owns the record and must
// Release it.
func encodeBatch(mem memory.Allocator, s *tableSchema, rows []api.Row) arrow.Record {
	b := array.NewRecordBuilder(mem, s.arrow)
	defer b.Release()
	b.Reserve(len(rows))

	for i, col := range s.columns {
		fb := b.Field(i)
		for _, row := range rows {
			appendValue(fb, row[col.Name])
		}
	}
	return b.NewRecord()
}

func appendValue(fb array.Builder, v any) {
	if v == nil {
		fb.AppendNull()
		return
	}
	switch fb := fb.(type) {
	case *array.Int64Builder:
		if n, ok := toInt64(v); ok {
			fb.Append(n)
			return
		}
	case *array.Float64Builder:
		if f, ok := toFloat64(v); ok {
			fb.Append(f)
			return
		}
	case *array.TimestampBuilder:
		if t, ok := toTime(v); ok {
			if ts, err := arrow.TimestampFromTime(t, arrow.Microsecond); err == nil {
				fb.Append(ts)
				return
			}
		}
	case *array.StringBuilder:
		fb.Append(toText(v))
		return
	}
	fb.AppendNull()
}

// rowArgs decodes row i of rec into statement arguments. Timestamps are bound as
// text in sqlbuild.TimestampLayout so that they compare correctly with the
// string literals filters produce.
func rowArgs(rec arrow.Record, i int, args []any) []any {
	args = args[:0]
	for _, col := range rec.Columns() {
		if col.IsNull(i) {
			args = append(args, nil)
			continue
		}
		switch c := col.(type) {
		case *array.Int64:
			args = append(args, c.Value(i))
		case *array.Float64:
			args = append(args, c.Value(i))
		case *array.Timestamp:
			args = append(args, c.Value(i).ToTime(arrow.Microsecond).UTC().Format(sqlbuild.TimestampLayout))
		case *array.String:
			args = append(args, c.Value(i))
		default:
			args = append(args, col.ValueStr(i))
		}
	}
	return args
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case time.Time:
		return int64(x.Year()), true
	}
	// Fractional values round half away from zero, as a SQL cast does.
	f, ok := toFloat64(v)
	if !ok {
		return 0, false
	}
	f = math.Round(f)
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat64(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		if n, ok := toInt64Exact(v); ok {
			return float64(n), true
		}
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt64Exact(v any) (int64, bool) {
	switch x := v.(type) {
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

// toTime reads a temporal value. Strings are tried against common date layouts
// and interpreted as UTC when they carry no zone. A number between 1000 and 9999
// is a calendar year; any other number is unix seconds.
func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case string:
		return sqlbuild.ParseTime(x)
	}
	f, ok := toFloat64(v)
	if !ok {
		return time.Time{}, false
	}
	if f >= 1000 && f <= 9999 && f == math.Trunc(f) {
		return time.Date(int(f), time.January, 1, 0, 0, 0, 0, time.UTC), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.UTC().Format(sqlbuild.TimestampLayout)
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		return oj.JSON(x)
	}
	if n, ok := toInt64(v); ok {
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprint(v)
}
