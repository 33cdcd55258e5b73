package querysql

import (
	"fmt"

	"github.com/roach88/elementstore/internal/ir"
)

// Value columns of the property_values wide row. Exactly one of them is
// populated per row, selected by the owning property's kind.
const (
	ColString  = "string_value"
	ColText    = "text_value"
	ColLong    = "long_value"
	ColInt     = "int_value"
	ColDouble  = "double_value"
	ColDecimal = "decimal_value"
	ColDate    = "date_value"
	ColBool    = "bool_value"

	// ColDecimalExact keeps the exact decimal text next to the REAL used
	// for comparisons. It is never filtered on.
	ColDecimalExact = "decimal_exact"
)

// SortColumns is the tie-break order used when sorting on an attribute.
// Only one column is non-NULL per row, so ordering by all of them in turn
// yields a total order whatever the attribute kind.
var SortColumns = []string{
	ColDate,
	ColDecimal,
	ColDouble,
	ColInt,
	ColLong,
	ColString,
	ColText,
	ColBool,
}

// Column returns the wide-row column holding values of kind k.
func Column(k ir.Kind) (string, error) {
	switch k {
	case ir.KindString:
		return ColString, nil
	case ir.KindCDATA:
		return ColText, nil
	case ir.KindLong:
		return ColLong, nil
	case ir.KindInteger:
		return ColInt, nil
	case ir.KindDouble:
		return ColDouble, nil
	case ir.KindDecimal:
		return ColDecimal, nil
	case ir.KindDate:
		return ColDate, nil
	case ir.KindBoolean:
		return ColBool, nil
	default:
		return "", ir.NewSchemaError("no value column for kind %q", string(k))
	}
}

// textual reports whether col holds text and sorts with COLLATE BINARY.
func textual(col string) bool {
	return col == ColString || col == ColText
}

// Param converts v to the driver value stored in its column.
// Dates are stored as Unix milliseconds and booleans as 0 or 1.
func Param(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.CDATA:
		return string(val), nil
	case ir.Long:
		return int64(val), nil
	case ir.Integer:
		return int64(val), nil
	case ir.Double:
		return float64(val), nil
	case ir.Decimal:
		return val.Float64(), nil
	case ir.Date:
		return val.Millis(), nil
	case ir.Boolean:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case nil:
		return nil, fmt.Errorf("nil value cannot be used as SQL parameter")
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
