package docstore

import (
	"fmt"
	"strings"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/querydoc"
	"github.com/roach88/elementstore/internal/queryir"
)

// Match evaluates c against a document tree built by Document.Fields.
// Lookups must be resolved first.
func Match(c querydoc.Criteria, doc map[string]any) (bool, error) {
	switch n := c.(type) {
	case querydoc.And:
		for _, sub := range n.Criteria {
			ok, err := Match(sub, doc)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case querydoc.Not:
		ok, err := Match(n.Criteria, doc)
		return !ok, err
	case querydoc.ElemMatch:
		arr, _ := lookup(doc, n.Path).([]any)
		for _, elem := range arr {
			sub, ok := elem.(map[string]any)
			if !ok {
				return false, fmt.Errorf("element match on %s: element is %T, not a sub-document", n.Path, elem)
			}
			ok, err := Match(n.Where, sub)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case querydoc.Lookup:
		return false, fmt.Errorf("unresolved lookup on %s", n.Path)
	case querydoc.Eq:
		return anyValue(doc, n.Path, func(v ir.Value) (bool, error) {
			return ir.CollateEqual(v, n.Value), nil
		})
	case querydoc.EqFold:
		return anyValue(doc, n.Path, func(v ir.Value) (bool, error) {
			return v.Kind().Textual() && queryir.Fold(v.String()) == n.Value, nil
		})
	case querydoc.Like:
		return anyValue(doc, n.Path, func(v ir.Value) (bool, error) {
			if !v.Kind().Textual() {
				return false, nil
			}
			s := v.String()
			if n.Fold {
				s = queryir.Fold(s)
			}
			return queryir.MatchWildcard(s, n.Pattern), nil
		})
	case querydoc.Range:
		return anyValue(doc, n.Path, func(v ir.Value) (bool, error) {
			return inRange(v, n)
		})
	case querydoc.In:
		return anyValue(doc, n.Path, func(v ir.Value) (bool, error) {
			for _, want := range n.Values {
				if ir.CollateEqual(v, want) {
					return true, nil
				}
			}
			return false, nil
		})
	default:
		return false, fmt.Errorf("unsupported criteria type: %T", c)
	}
}

// lookup resolves a dotted path; nil when any segment is missing.
func lookup(doc map[string]any, path string) any {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

// anyValue applies fn to the value at path, or to each value when the path
// holds an array. A missing field never matches.
func anyValue(doc map[string]any, path string, fn func(ir.Value) (bool, error)) (bool, error) {
	switch v := lookup(doc, path).(type) {
	case nil:
		return false, nil
	case ir.Value:
		return fn(v)
	case []any:
		for _, elem := range v {
			iv, ok := elem.(ir.Value)
			if !ok {
				return false, fmt.Errorf("criteria on %s: element is %T, not a value", path, elem)
			}
			ok, err := fn(iv)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("criteria on %s: field is %T, not a value", path, v)
	}
}

func inRange(v ir.Value, r querydoc.Range) (bool, error) {
	if r.Lower != nil {
		c, err := ir.Collate(v, r.Lower)
		if err != nil {
			return false, fmt.Errorf("range on %s: %w", r.Path, err)
		}
		if c < 0 || (c == 0 && !r.LowerInclusive) {
			return false, nil
		}
	}
	if r.Upper != nil {
		c, err := ir.Collate(v, r.Upper)
		if err != nil {
			return false, fmt.Errorf("range on %s: %w", r.Path, err)
		}
		if c > 0 || (c == 0 && !r.UpperInclusive) {
			return false, nil
		}
	}
	return true, nil
}
