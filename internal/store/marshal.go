package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/querysql"
)

// valueColumns is the insert order of the property_values wide row.
var valueColumns = []string{
	querysql.ColString,
	querysql.ColText,
	querysql.ColLong,
	querysql.ColInt,
	querysql.ColDouble,
	querysql.ColDecimal,
	querysql.ColDecimalExact,
	querysql.ColDate,
	querysql.ColBool,
}

// marshalValue returns the wide-row column values for v, in valueColumns
// order. Every column but the one selected by v's kind is NULL; decimals
// also fill decimal_exact.
func marshalValue(v ir.Value) ([]any, error) {
	col, err := querysql.Column(v.Kind())
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	param, err := querysql.Param(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}

	row := make([]any, len(valueColumns))
	for i, name := range valueColumns {
		switch name {
		case col:
			row[i] = param
		case querysql.ColDecimalExact:
			if v.Kind() == ir.KindDecimal {
				row[i] = v.String()
			}
		}
	}
	return row, nil
}

// valueRow is one scanned property_values row.
type valueRow struct {
	String       sql.NullString
	Text         sql.NullString
	Long         sql.NullInt64
	Int          sql.NullInt64
	Double       sql.NullFloat64
	Decimal      sql.NullFloat64
	DecimalExact sql.NullString
	Date         sql.NullInt64
	Bool         sql.NullInt64
}

// dest returns scan destinations in valueColumns order.
func (r *valueRow) dest() []any {
	return []any{&r.String, &r.Text, &r.Long, &r.Int, &r.Double, &r.Decimal, &r.DecimalExact, &r.Date, &r.Bool}
}

// unmarshalValue reads the column selected by k.
// A NULL in that column is reported as CORRUPTION.
func (r *valueRow) unmarshalValue(k ir.Kind) (ir.Value, error) {
	missing := func() error {
		return ir.NewCorruptionError("stored %s value has no %s column", k, k)
	}
	switch k {
	case ir.KindString:
		if !r.String.Valid {
			return nil, missing()
		}
		return ir.String(r.String.String), nil
	case ir.KindCDATA:
		if !r.Text.Valid {
			return nil, missing()
		}
		return ir.CDATA(r.Text.String), nil
	case ir.KindLong:
		if !r.Long.Valid {
			return nil, missing()
		}
		return ir.Long(r.Long.Int64), nil
	case ir.KindInteger:
		if !r.Int.Valid {
			return nil, missing()
		}
		return ir.Integer(int32(r.Int.Int64)), nil
	case ir.KindDouble:
		if !r.Double.Valid {
			return nil, missing()
		}
		return ir.Double(r.Double.Float64), nil
	case ir.KindDecimal:
		if r.DecimalExact.Valid {
			d, err := ir.NewDecimal(r.DecimalExact.String)
			if err != nil {
				return nil, ir.NewCorruptionError("stored decimal %q is unreadable", r.DecimalExact.String)
			}
			return d, nil
		}
		if !r.Decimal.Valid {
			return nil, missing()
		}
		d, err := ir.DecimalFromFloat(r.Decimal.Float64)
		if err != nil {
			return nil, ir.NewCorruptionError("stored decimal %v is unreadable", r.Decimal.Float64)
		}
		return d, nil
	case ir.KindDate:
		if !r.Date.Valid {
			return nil, missing()
		}
		return ir.DateFromMillis(r.Date.Int64), nil
	case ir.KindBoolean:
		if !r.Bool.Valid {
			return nil, missing()
		}
		return ir.Boolean(r.Bool.Int64 != 0), nil
	default:
		return nil, ir.NewCorruptionError("stored value list has unknown kind %q", string(k))
	}
}

// marshalDims renders a dimension vector as "2,3". Empty means flat.
func marshalDims(dims []int) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// unmarshalDims parses the output of marshalDims.
func unmarshalDims(text string) ([]int, error) {
	if text == "" {
		return nil, nil
	}
	parts := strings.Split(text, ",")
	dims := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, ir.NewCorruptionError("stored dimensions %q are unreadable", text)
		}
		dims[i] = d
	}
	return dims, nil
}

// listKind is the kind recorded on a value list row. Cleared lists have
// no values and record no kind.
func listKind(vals ir.Values) ir.Kind {
	if len(vals.Items) == 0 {
		return ""
	}
	return vals.Items[0].Kind()
}
