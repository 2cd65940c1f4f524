package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/agentic-research/catalyst/api"
)

// TablePlaceholder stands in for the dataset's table in compiled SQL. The registry
// substitutes the sanitized table name at execution time.
const TablePlaceholder = "{table}"

const (
	// MaxChartRows caps aggregated chart results. It is not configurable per query.
	MaxChartRows = 1000
	// DefaultLimit applies to flat row and distinct-value queries.
	DefaultLimit = 1000
	// DefaultPreviewLimit is the row count of a dataset preview.
	DefaultPreviewLimit = 100
)

// RowCountQuery counts every row of the table.
const RowCountQuery = "SELECT COUNT(*) as count FROM " + TablePlaceholder

// ExpandTable substitutes table for every placeholder in query.
func ExpandTable(query, table string) string {
	return strings.ReplaceAll(query, TablePlaceholder, table)
}

// AggregationQuery compiles a chart spec into a grouped query returning
// x_label, optional group_by, and y_value columns, ordered by the x column.
func AggregationQuery(spec api.ChartSpec, filters api.FilterState, configs []api.FilterConfig) (string, error) {
	xName, yName := spec.XAxis.First(), spec.YAxis.First()
	if xName == "" || yName == "" {
		return "", ErrMissingAxis
	}
	x, err := QuoteIdentifier(xName)
	if err != nil {
		return "", fmt.Errorf("x_axis: %w", err)
	}
	var color string
	if c := spec.ColorBy.First(); c != "" {
		if color, err = QuoteIdentifier(c); err != nil {
			return "", fmt.Errorf("color_by: %w", err)
		}
	}
	agg, err := AggregationFunction(spec.Aggregation, yName)
	if err != nil {
		return "", fmt.Errorf("y_axis: %w", err)
	}
	where, err := WhereClause(filters, configs)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(x)
	b.WriteString(" as x_label")
	if color != "" {
		b.WriteString(", ")
		b.WriteString(color)
		b.WriteString(" as group_by")
	}
	b.WriteString(", ")
	b.WriteString(agg)
	b.WriteString(" as y_value FROM ")
	b.WriteString(TablePlaceholder)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	b.WriteString(" GROUP BY ")
	b.WriteString(x)
	if color != "" {
		b.WriteString(", ")
		b.WriteString(color)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(x)
	fmt.Fprintf(&b, " LIMIT %d", MaxChartRows)
	return b.String(), nil
}

// SelectQuery returns the filtered rows themselves, capped at limit
// (DefaultLimit when limit <= 0).
func SelectQuery(filters api.FilterState, configs []api.FilterConfig, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	where, err := WhereClause(filters, configs)
	if err != nil {
		return "", err
	}
	q := "SELECT * FROM " + TablePlaceholder
	if where != "" {
		q += " WHERE " + where
	}
	return fmt.Sprintf("%s LIMIT %d", q, limit), nil
}

// PreviewQuery returns the first limit rows.
func PreviewQuery(limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", TablePlaceholder, limit)
}

// DistinctValuesQuery lists the non-null values of column in sorted order, for
// populating filter options.
func DistinctValuesQuery(column string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	col, err := QuoteIdentifier(column)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT DISTINCT %s as value FROM %s WHERE %s IS NOT NULL ORDER BY %s LIMIT %d",
		col, TablePlaceholder, col, col, limit), nil
}

// ColumnStatsQuery returns min, max, unique_count and total_count of column over
// its non-null values.
func ColumnStatsQuery(column string) (string, error) {
	col, err := QuoteIdentifier(column)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT MIN(%s) as min, MAX(%s) as max, COUNT(DISTINCT %s) as unique_count, COUNT(*) as total_count FROM %s WHERE %s IS NOT NULL",
		col, col, col, TablePlaceholder, col), nil
}
