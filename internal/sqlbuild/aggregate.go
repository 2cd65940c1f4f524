package sqlbuild

import (
	"fmt"
	"regexp"
	"strings"
)

// Aggregation vocabulary. Anything else is a custom expression template.
const (
	AggSum    = "SUM"
	AggAvg    = "AVG"
	AggCount  = "COUNT"
	AggMin    = "MIN"
	AggMax    = "MAX"
	AggMedian = "MEDIAN"
	AggStddev = "STDDEV"
	AggP25    = "P25"
	AggP75    = "P75"
	AggP90    = "P90"
)

// ColumnPlaceholder is replaced by the quoted column in custom aggregations.
const ColumnPlaceholder = "{column}"

// QuantileFunc is the engine aggregate backing MEDIAN and the percentiles.
const QuantileFunc = "quantile_cont"

var quantiles = map[string]string{
	AggMedian: "0.5",
	AggP25:    "0.25",
	AggP75:    "0.75",
	AggP90:    "0.9",
}

// bareWord matches a lone token such as "MODE" or "P95": a vocabulary word that
// does not exist, not an expression.
var bareWord = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AggregationFunction returns the SQL aggregate expression for aggregation over
// column. COUNT never references the column. Custom expressions are trusted SQL
// supplied by the chart author: every {column} token is replaced by the quoted
// column, and an expression without the token is passed through verbatim.
func AggregationFunction(aggregation, column string) (string, error) {
	token := strings.ToUpper(strings.TrimSpace(aggregation))
	if token == "" {
		token = AggSum
	}

	if token == AggCount {
		return "COUNT(*)", nil
	}

	switch token {
	case AggSum, AggAvg, AggMin, AggMax, AggStddev:
		col, err := QuoteIdentifier(column)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", token, col), nil
	case AggMedian, AggP25, AggP75, AggP90:
		col, err := QuoteIdentifier(column)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s, %s)", QuantileFunc, col, quantiles[token]), nil
	}

	if strings.Contains(aggregation, ColumnPlaceholder) {
		col, err := QuoteIdentifier(column)
		if err != nil {
			return "", err
		}
		return strings.ReplaceAll(aggregation, ColumnPlaceholder, col), nil
	}
	if bareWord.MatchString(strings.TrimSpace(aggregation)) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAggregation, aggregation)
	}
	return aggregation, nil
}
