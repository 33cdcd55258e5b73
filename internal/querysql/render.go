package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/elementstore/internal/queryir"
)

// FoldFunc is the SQL function the store registers for case folding.
const FoldFunc = "casefold"

// RenderOp renders op as a predicate over column, which must be a
// qualified wide-row value column (e.g. "v1.int_value").
// Returns (sql, params, error).
//
// CRITICAL: Values are NEVER interpolated - always use ? placeholders.
func RenderOp(op queryir.SearchOp, column string) (string, []any, error) {
	switch o := op.(type) {
	case queryir.Equals:
		return renderEquals(o, column)
	case queryir.GreaterThan:
		return renderCompare(column, ">", o)
	case queryir.Interval:
		return renderInterval(o, column)
	case queryir.In:
		return renderIn(o, column)
	default:
		return "", nil, fmt.Errorf("unsupported search operator type: %T", op)
	}
}

func renderEquals(op queryir.Equals, column string) (string, []any, error) {
	if op.Value == nil {
		return "", nil, fmt.Errorf("equals on %s has no value", column)
	}
	if !op.Value.Kind().Textual() {
		p, err := Param(op.Value)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		return column + " = ?", []any{p}, nil
	}

	text := op.Value.String()
	if op.Folds() {
		column = FoldFunc + "(" + column + ")"
		text = queryir.Fold(text)
	}
	if op.IsPattern() {
		return column + " LIKE ? ESCAPE '" + queryir.LikeEscape + "'", []any{queryir.LikePattern(text)}, nil
	}
	return column + " = ?", []any{text}, nil
}

func renderCompare(column, cmp string, op queryir.GreaterThan) (string, []any, error) {
	p, err := Param(op.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	return column + " " + cmp + " ?", []any{p}, nil
}

func renderInterval(op queryir.Interval, column string) (string, []any, error) {
	var parts []string
	var params []any

	if op.Lower != nil {
		p, err := Param(op.Lower)
		if err != nil {
			return "", nil, fmt.Errorf("convert lower bound: %w", err)
		}
		cmp := ">"
		if op.Bound.LowerInclusive() {
			cmp = ">="
		}
		parts = append(parts, column+" "+cmp+" ?")
		params = append(params, p)
	}
	if op.Upper != nil {
		p, err := Param(op.Upper)
		if err != nil {
			return "", nil, fmt.Errorf("convert upper bound: %w", err)
		}
		cmp := "<"
		if op.Bound.UpperInclusive() {
			cmp = "<="
		}
		parts = append(parts, column+" "+cmp+" ?")
		params = append(params, p)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("interval on %s has no bound", column)
	}
	return strings.Join(parts, " AND "), params, nil
}

func renderIn(op queryir.In, column string) (string, []any, error) {
	if len(op.Values) == 0 {
		return "0 = 1", nil, nil // Empty set matches nothing
	}
	params := make([]any, len(op.Values))
	for i, v := range op.Values {
		p, err := Param(v)
		if err != nil {
			return "", nil, fmt.Errorf("convert set member %d: %w", i, err)
		}
		params[i] = p
	}
	return column + " IN (" + placeholders(len(params)) + ")", params, nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
