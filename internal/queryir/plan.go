package queryir

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/revision"
)

// Resolver is the slice of the type registry Bind needs.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*ir.ElementType, error)
	ResolveAttribute(t *ir.ElementType, attr string) (ir.PropertyType, error)
	ResolveReference(ctx context.Context, t *ir.ElementType, name string) (ir.ReferenceType, *ir.ElementType, error)
}

// Plan is a bound find request. Every literal has the kind of its attribute
// and every name is resolved. Filters are ordered by attribute name.
type Plan struct {
	Type         *ir.ElementType
	Owner        string
	ChangedSince *time.Time

	// IDs constrains element identifiers; nil means no constraint.
	IDs *IDFilter

	Filters    []AttrFilter
	RefFilters []RefFilter
	Sort       []SortKey

	// Offset and Limit select the page; Limit 0 means unpaged.
	Offset int
	Limit  int

	// AttrView selects which value list versions filters see.
	AttrView revision.View

	// StateView selects the element state version; StateView.Mode is never
	// revision.ModeAny.
	StateView revision.View

	IncludeDeleted bool
}

// Paged reports whether the plan requests a page.
func (p *Plan) Paged() bool {
	return p.Limit > 0
}

// MaterializeView is the view results are materialized and sorted under.
func (p *Plan) MaterializeView() revision.View {
	return p.StateView
}

// IDFilter constrains element identifiers.
type IDFilter struct {
	IDs    []string
	Negate bool
}

// AttrFilter is one bound attribute predicate.
type AttrFilter struct {
	Property ir.PropertyType
	Op       SearchOp
	Negate   bool
}

// RefFilter constrains the elements referenced through one slot. A parent
// matches when some referenced element visible under the views satisfies
// IDs and every filter.
type RefFilter struct {
	Reference ir.ReferenceType
	Target    *ir.ElementType

	// View selects which reference list versions are followed.
	View revision.View

	IDs     *IDFilter
	Filters []AttrFilter
}

// SortField enumerates the sortable fields.
type SortField int

const (
	SortByID SortField = iota
	SortByOwner
	SortByChanged
	SortByOwnerName
	SortByAttribute
)

// SortKey is one bound ordering. Property is set for SortByAttribute.
type SortKey struct {
	Field    SortField
	Property ir.PropertyType
	Desc     bool
}

// Bind resolves f against the registry and checks every literal, operator
// and paging parameter. It never touches a backend.
func Bind(ctx context.Context, r Resolver, f Find) (*Plan, error) {
	if f.Type == "" {
		return nil, ir.NewSchemaError("element type is required")
	}
	t, err := r.Resolve(ctx, f.Type)
	if err != nil {
		return nil, err
	}
	if f.Page < 0 || f.PageSize < 0 {
		return nil, ir.NewValidationError("page (%d) and pageSize (%d) must not be negative", f.Page, f.PageSize)
	}
	if f.PageSize > 0 && f.Page > math.MaxInt/f.PageSize {
		return nil, ir.NewValidationError("page %d with pageSize %d is out of range", f.Page, f.PageSize)
	}
	if f.AsOfRevision < 0 {
		return nil, ir.NewValidationError("as-of revision %d must not be negative", f.AsOfRevision)
	}

	p := &Plan{
		Type:           t,
		Owner:          f.Owner,
		ChangedSince:   f.ChangedSince,
		IncludeDeleted: f.IncludeDeleted,
	}
	refView := revision.Any()
	switch {
	case f.AsOfRevision > 0:
		p.AttrView = revision.AsOf(f.AsOfRevision)
		p.StateView = revision.AsOf(f.AsOfRevision)
		refView = revision.AsOf(f.AsOfRevision)
	default:
		p.StateView = revision.Head()
		p.AttrView = revision.Any()
		if f.LatestOnly {
			p.AttrView = revision.Head()
		}
		if f.LatestRefsOnly {
			refView = revision.Head()
		}
	}
	if f.PageSize > 0 {
		p.Offset = f.Page * f.PageSize
		p.Limit = f.PageSize
	}

	p.IDs, p.Filters, err = bindFilters(r, t, f.Attrs)
	if err != nil {
		return nil, err
	}

	for _, refName := range sortedKeys(f.ChildAttrs) {
		ref, target, err := r.ResolveReference(ctx, t, refName)
		if err != nil {
			return nil, err
		}
		ids, filters, err := bindFilters(r, target, f.ChildAttrs[refName])
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", refName, err)
		}
		if ids == nil && len(filters) == 0 {
			continue
		}
		p.RefFilters = append(p.RefFilters, RefFilter{
			Reference: ref,
			Target:    target,
			View:      refView,
			IDs:       ids,
			Filters:   filters,
		})
	}

	for _, s := range f.Sort {
		key, err := bindSort(r, t, s)
		if err != nil {
			return nil, err
		}
		p.Sort = append(p.Sort, key)
	}
	return p, nil
}

func bindFilters(r Resolver, t *ir.ElementType, attrs map[string]SearchOp) (*IDFilter, []AttrFilter, error) {
	var ids *IDFilter
	var filters []AttrFilter

	for _, rawKey := range sortedKeys(attrs) {
		key := ParseKey(rawKey)
		op := attrs[rawKey]

		if key.Name == ir.FieldID {
			f, err := bindIDs(op, key.Negate)
			if err != nil {
				return nil, nil, err
			}
			if ids != nil {
				return nil, nil, ir.NewValidationError("element type %q has more than one id filter", t.Name)
			}
			ids = f
			continue
		}

		prop, err := r.ResolveAttribute(t, key.Name)
		if err != nil {
			return nil, nil, err
		}
		if eq, ok := op.(Equals); ok && key.IgnoreCase {
			eq.IgnoreCase = true
			op = eq
		}
		bound, err := bindOp(op, prop.Name, prop.Kind)
		if err != nil {
			return nil, nil, err
		}
		negate := key.Negate
		if eq, ok := bound.(Equals); ok && eq.Negate {
			negate = !negate
		}
		filters = append(filters, AttrFilter{Property: prop, Op: bound, Negate: negate})
	}
	return ids, filters, nil
}

func bindIDs(op SearchOp, negate bool) (*IDFilter, error) {
	var lits []ir.Value
	switch op := op.(type) {
	case Equals:
		lits = []ir.Value{op.Value}
		if op.Negate {
			negate = !negate
		}
	case In:
		lits = op.Values
	default:
		return nil, ir.NewValidationError("id filters support equality and set membership only, got %s", op)
	}
	f := &IDFilter{Negate: negate, IDs: make([]string, 0, len(lits))}
	for _, l := range lits {
		v, err := ir.Convert(l, ir.KindString)
		if err != nil {
			return nil, fmt.Errorf("id filter: %w", err)
		}
		f.IDs = append(f.IDs, v.String())
	}
	return f, nil
}

func bindSort(r Resolver, t *ir.ElementType, s Sort) (SortKey, error) {
	key := SortKey{Desc: s.Desc}
	switch s.Field {
	case ir.FieldID:
		key.Field = SortByID
	case ir.FieldOwner:
		key.Field = SortByOwner
	case ir.FieldChanged:
		key.Field = SortByChanged
	case ir.FieldOwnerName:
		key.Field = SortByOwnerName
	default:
		prop, err := r.ResolveAttribute(t, s.Field)
		if err != nil {
			return SortKey{}, err
		}
		key.Field = SortByAttribute
		key.Property = prop
	}
	return key, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
