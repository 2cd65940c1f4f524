package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/agentic-research/catalyst/api"
)

// WhereClause compiles the active filters into a condition list joined by AND,
// without the WHERE keyword. It returns "" when nothing is filtered.
//
// Only columns named by a FilterConfig are considered; keys of filters that no
// config declares are ignored, so filter state can never introduce a column.
func WhereClause(filters api.FilterState, configs []api.FilterConfig) (string, error) {
	if len(filters) == 0 || len(configs) == 0 {
		return "", nil
	}

	var conditions []string
	for _, cfg := range configs {
		cond, err := condition(filters, cfg)
		if err != nil {
			return "", fmt.Errorf("filter %q: %w", cfg.Column, err)
		}
		if cond != "" {
			conditions = append(conditions, cond)
		}
	}
	return strings.Join(conditions, " AND "), nil
}

func condition(filters api.FilterState, cfg api.FilterConfig) (string, error) {
	value := filters[cfg.Column]

	switch cfg.FilterType {
	case api.FilterRange, api.FilterDateRange:
		lo, hi := boundsFor(filters, cfg)
		if isAbsent(lo) && isAbsent(hi) {
			return "", nil
		}
		col, err := QuoteIdentifier(cfg.Column)
		if err != nil {
			return "", err
		}
		return rangeCondition(col, lo, hi, cfg.FilterType == api.FilterDateRange)

	case api.FilterMultiSelect:
		if isAbsent(value) {
			return "", nil
		}
		values, ok := listValues(value)
		if !ok {
			return "", nil
		}
		col, err := QuoteIdentifier(cfg.Column)
		if err != nil {
			return "", err
		}
		parts := make([]string, len(values))
		for i, v := range values {
			lit, err := literal(v, false)
			if err != nil {
				return "", err
			}
			parts[i] = lit
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(parts, ", ")), nil

	default:
		if isAbsent(value) {
			return "", nil
		}
		col, err := QuoteIdentifier(cfg.Column)
		if err != nil {
			return "", err
		}
		lit, err := literal(value, false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", col, lit), nil
	}
}

func rangeCondition(col string, lo, hi any, temporal bool) (string, error) {
	hasLo, hasHi := !isAbsent(lo), !isAbsent(hi)
	var loLit, hiLit string
	var err error
	if hasLo {
		if loLit, err = boundLiteral(lo, temporal); err != nil {
			return "", err
		}
	}
	if hasHi {
		if hiLit, err = boundLiteral(hi, temporal); err != nil {
			return "", err
		}
	}
	switch {
	case hasLo && hasHi:
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, loLit, hiLit), nil
	case hasLo:
		return fmt.Sprintf("%s >= %s", col, loLit), nil
	default:
		return fmt.Sprintf("%s <= %s", col, hiLit), nil
	}
}

// boundLiteral renders a range bound. Numeric strings are emitted as numbers.
// For date ranges, other strings that parse as a date or timestamp are
// rewritten into TimestampLayout so they compare against stored values on the
// same footing; anything else stays an escaped string.
func boundLiteral(v any, temporal bool) (string, error) {
	if s, ok := v.(string); ok && temporal {
		if lit, err := literal(s, true); err != nil || lit != QuoteString(s) {
			return lit, err
		}
		if t, ok := ParseTime(s); ok {
			return literal(t, false)
		}
	}
	return literal(v, true)
}

// boundsFor resolves a range filter's bounds. The column key holds a {min, max}
// pair; when it is absent, the flattened <col>_min/<col>_max keys are used, and
// for date ranges also <col>_from/<col>_to.
func boundsFor(filters api.FilterState, cfg api.FilterConfig) (lo, hi any) {
	if v, ok := filters[cfg.Column]; ok && !isAbsent(v) {
		lo, hi, _ = rangeBounds(v)
		return lo, hi
	}
	lo, hi = filters[cfg.Column+"_min"], filters[cfg.Column+"_max"]
	if cfg.FilterType == api.FilterDateRange {
		if isAbsent(lo) {
			lo = filters[cfg.Column+"_from"]
		}
		if isAbsent(hi) {
			hi = filters[cfg.Column+"_to"]
		}
	}
	return lo, hi
}

// rangeBounds extracts min/max from the shapes a range value arrives in.
func rangeBounds(v any) (lo, hi any, ok bool) {
	switch x := v.(type) {
	case api.Range:
		return x.Min, x.Max, true
	case *api.Range:
		if x == nil {
			return nil, nil, false
		}
		return x.Min, x.Max, true
	case map[string]any:
		lo, okLo := x["min"]
		hi, okHi := x["max"]
		return lo, hi, okLo || okHi
	case api.FilterState:
		return rangeBounds(map[string]any(x))
	}
	return nil, nil, false
}
