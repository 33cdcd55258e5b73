package querydoc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/queryir"
)

// Accessor extracts one sort key from a materialized element. A nil value
// sorts before every other value.
type Accessor func(el *model.Element) ir.Value

// OrderKey is one resolved ordering.
type OrderKey struct {
	Name string
	Key  Accessor
	Desc bool
}

// Order compares elements key by key, then by ascending id.
type Order []OrderKey

// CompileOrder resolves each sort key to its accessor once.
func CompileOrder(keys []queryir.SortKey) (Order, error) {
	out := make(Order, 0, len(keys))
	for _, k := range keys {
		ok := OrderKey{Desc: k.Desc}
		switch k.Field {
		case queryir.SortByID:
			ok.Name, ok.Key = ir.FieldID, func(el *model.Element) ir.Value { return ir.String(el.ID) }
		case queryir.SortByOwner:
			ok.Name, ok.Key = ir.FieldOwner, func(el *model.Element) ir.Value { return ir.String(el.Owner) }
		case queryir.SortByOwnerName:
			ok.Name, ok.Key = ir.FieldOwnerName, func(el *model.Element) ir.Value { return ir.String(el.OwnerName) }
		case queryir.SortByChanged:
			ok.Name, ok.Key = ir.FieldChanged, func(el *model.Element) ir.Value { return ir.NewDate(el.ChangedAt) }
		case queryir.SortByAttribute:
			name := k.Property.Name
			ok.Name, ok.Key = name, func(el *model.Element) ir.Value {
				vals, found := el.Properties[name]
				if !found || len(vals.Items) == 0 {
					return nil
				}
				return vals.Items[0]
			}
		default:
			return nil, fmt.Errorf("unsupported sort field %d", int(k.Field))
		}
		out = append(out, ok)
	}
	return out, nil
}

// Compare orders a before b with a negative result.
func (o Order) Compare(a, b *model.Element) int {
	for _, k := range o {
		c := compareValues(k.Key(a), k.Key(b))
		if k.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return strings.Compare(a.ID, b.ID)
}

// Sort sorts els in place.
func (o Order) Sort(els []*model.Element) {
	slices.SortStableFunc(els, o.Compare)
}

func compareValues(a, b ir.Value) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, err := ir.Collate(a, b)
	if err != nil {
		// Mixed kinds cannot occur within one attribute; order by kind name.
		return strings.Compare(string(a.Kind()), string(b.Kind()))
	}
	return c
}
