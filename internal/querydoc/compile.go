package querydoc

import (
	"fmt"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/queryir"
	"github.com/roach88/elementstore/internal/revision"
)

// Query is a compiled find against one collection.
type Query struct {
	Collection string
	Where      Criteria

	// View is the view matches are materialized under.
	View revision.View

	Order Order

	// Skip and Limit select the page; Limit 0 means unpaged.
	Skip  int
	Limit int
}

// Paged reports whether q requests a page.
func (q *Query) Paged() bool {
	return q.Limit > 0
}

// Compile converts a bound plan to document criteria.
func Compile(p *queryir.Plan) (*Query, error) {
	if p == nil || p.Type == nil {
		return nil, fmt.Errorf("cannot compile nil plan")
	}
	if p.StateView.Mode == revision.ModeAny {
		return nil, fmt.Errorf("state view cannot be %s", p.StateView)
	}

	where, err := elementCriteria(p, p.Type.Name, p.IDs, p.Filters)
	if err != nil {
		return nil, err
	}
	var parts []Criteria
	if p.Owner != "" {
		parts = append(parts, Eq{Path: ir.FieldOwner, Value: ir.String(p.Owner)})
	}
	if p.ChangedSince != nil {
		parts = append(parts, Range{Path: ir.FieldChanged, Lower: ir.NewDate(*p.ChangedSince), LowerInclusive: true})
	}
	for _, rf := range p.RefFilters {
		c, err := refCriteria(p, rf)
		if err != nil {
			return nil, fmt.Errorf("compile reference filter %s: %w", rf.Reference.Name, err)
		}
		parts = append(parts, c)
	}

	order, err := CompileOrder(p.Sort)
	if err != nil {
		return nil, fmt.Errorf("compile sort: %w", err)
	}
	return &Query{
		Collection: p.Type.Name,
		Where:      appendAll(where, parts...),
		View:       p.MaterializeView(),
		Order:      order,
		Skip:       p.Offset,
		Limit:      p.Limit,
	}, nil
}

// elementCriteria builds the criteria shared by top-level and referenced
// elements: type, visible state, identifiers and attribute filters.
func elementCriteria(p *queryir.Plan, typeName string, ids *queryir.IDFilter, filters []queryir.AttrFilter) (And, error) {
	out := And{Criteria: []Criteria{
		Eq{Path: ir.FieldType, Value: ir.String(typeName)},
		stateCriteria(p),
	}}
	if ids != nil {
		out.Criteria = append(out.Criteria, idCriteria(ids))
	}
	for _, f := range filters {
		op, err := RenderOp(f.Op, FieldValues)
		if err != nil {
			return And{}, fmt.Errorf("compile filter %s: %w", f.Property.Name, err)
		}
		var c Criteria = ElemMatch{
			Path:  FieldProps + "." + f.Property.Name,
			Where: all(visible(p.AttrView), op),
		}
		if f.Negate {
			c = Not{Criteria: c}
		}
		out.Criteria = append(out.Criteria, c)
	}
	return out, nil
}

func stateCriteria(p *queryir.Plan) Criteria {
	var deleted Criteria
	if !p.IncludeDeleted {
		deleted = Eq{Path: FieldDeleted, Value: ir.Boolean(false)}
	}
	return ElemMatch{Path: FieldStates, Where: all(visible(p.StateView), deleted)}
}

func refCriteria(p *queryir.Plan, rf queryir.RefFilter) (Criteria, error) {
	child, err := elementCriteria(p, rf.Target.Name, rf.IDs, rf.Filters)
	if err != nil {
		return nil, err
	}
	lookup := Lookup{Path: FieldIDs, Collection: rf.Target.Name, Where: child}
	return ElemMatch{
		Path:  FieldRefs + "." + rf.Reference.Name,
		Where: all(visible(rf.View), lookup),
	}, nil
}

func idCriteria(f *queryir.IDFilter) Criteria {
	vals := make([]ir.Value, len(f.IDs))
	for i, id := range f.IDs {
		vals[i] = ir.String(id)
	}
	var c Criteria = In{Path: ir.FieldID, Values: vals}
	if f.Negate {
		c = Not{Criteria: c}
	}
	return c
}

// visible restricts version sub-documents to view; nil for revision.ModeAny.
func visible(view revision.View) Criteria {
	switch view.Mode {
	case revision.ModeHead:
		return Eq{Path: FieldNext, Value: ir.Long(ir.MaxRevision)}
	case revision.ModeAsOf:
		return And{Criteria: []Criteria{
			Range{Path: FieldRevision, Upper: ir.Long(view.Revision), UpperInclusive: true},
			Range{Path: FieldNext, Lower: ir.Long(view.Revision)},
		}}
	default:
		return nil
	}
}

func appendAll(a And, cs ...Criteria) And {
	a.Criteria = append(a.Criteria, cs...)
	return a
}

// ResolveLookups returns c with every Lookup replaced by an In over the
// identifiers fn returns for it. c itself is not modified.
func ResolveLookups(c Criteria, fn func(Lookup) ([]string, error)) (Criteria, error) {
	switch n := c.(type) {
	case Lookup:
		ids, err := fn(n)
		if err != nil {
			return nil, err
		}
		vals := make([]ir.Value, len(ids))
		for i, id := range ids {
			vals[i] = ir.String(id)
		}
		return In{Path: n.Path, Values: vals}, nil
	case And:
		out := And{Criteria: make([]Criteria, len(n.Criteria))}
		for i, sub := range n.Criteria {
			r, err := ResolveLookups(sub, fn)
			if err != nil {
				return nil, err
			}
			out.Criteria[i] = r
		}
		return out, nil
	case Not:
		r, err := ResolveLookups(n.Criteria, fn)
		if err != nil {
			return nil, err
		}
		return Not{Criteria: r}, nil
	case ElemMatch:
		r, err := ResolveLookups(n.Where, fn)
		if err != nil {
			return nil, err
		}
		return ElemMatch{Path: n.Path, Where: r}, nil
	default:
		return c, nil
	}
}
