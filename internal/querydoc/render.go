package querydoc

import (
	"fmt"

	"github.com/roach88/elementstore/internal/queryir"
)

// RenderOp renders op as criteria over the values at path.
// The result matches exactly the values querysql.RenderOp matches.
func RenderOp(op queryir.SearchOp, path string) (Criteria, error) {
	switch o := op.(type) {
	case queryir.Equals:
		if o.Value == nil {
			return nil, fmt.Errorf("equals on %s has no value", path)
		}
		if !o.Value.Kind().Textual() {
			return Eq{Path: path, Value: o.Value}, nil
		}
		text := o.Value.String()
		if o.Folds() {
			text = queryir.Fold(text)
			if o.IsPattern() {
				return Like{Path: path, Pattern: text, Fold: true}, nil
			}
			return EqFold{Path: path, Value: text}, nil
		}
		if o.IsPattern() {
			return Like{Path: path, Pattern: text}, nil
		}
		return Eq{Path: path, Value: o.Value}, nil
	case queryir.GreaterThan:
		return Range{Path: path, Lower: o.Value}, nil
	case queryir.Interval:
		if o.Lower == nil && o.Upper == nil {
			return nil, fmt.Errorf("interval on %s has no bound", path)
		}
		return Range{
			Path:           path,
			Lower:          o.Lower,
			LowerInclusive: o.Bound.LowerInclusive(),
			Upper:          o.Upper,
			UpperInclusive: o.Bound.UpperInclusive(),
		}, nil
	case queryir.In:
		return In{Path: path, Values: o.Values}, nil
	default:
		return nil, fmt.Errorf("unsupported search operator type: %T", op)
	}
}
