package querydoc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/queryir"
	"github.com/roach88/elementstore/internal/revision"
	"github.com/roach88/elementstore/internal/testutil"
)

var head = Eq{Path: FieldNext, Value: ir.Long(ir.MaxRevision)}

func bind(t *testing.T, f queryir.Find) *queryir.Plan {
	t.Helper()
	p, err := queryir.Bind(context.Background(), testutil.NewRegistry(t, nil), f)
	require.NoError(t, err)
	return p
}

func activeState(v Criteria) Criteria {
	return ElemMatch{Path: FieldStates, Where: And{Criteria: []Criteria{v, Eq{Path: FieldDeleted, Value: ir.Boolean(false)}}}}
}

func TestCompile_CustomerScenario(t *testing.T) {
	q, err := Compile(bind(t, queryir.Find{
		Type:           "Customer",
		Attrs:          map[string]queryir.SearchOp{"customerNumber": queryir.Eq("123")},
		ChildAttrs:     map[string]map[string]queryir.SearchOp{"addresses": {"city": queryir.Eq("%ity%")}},
		LatestOnly:     true,
		LatestRefsOnly: true,
	}))
	require.NoError(t, err)

	want := And{Criteria: []Criteria{
		Eq{Path: ir.FieldType, Value: ir.String("Customer")},
		activeState(head),
		ElemMatch{Path: "props.customerNumber", Where: And{Criteria: []Criteria{
			head,
			Eq{Path: FieldValues, Value: ir.Integer(123)},
		}}},
		ElemMatch{Path: "refs.addresses", Where: And{Criteria: []Criteria{
			head,
			Lookup{Path: FieldIDs, Collection: "Address", Where: And{Criteria: []Criteria{
				Eq{Path: ir.FieldType, Value: ir.String("Address")},
				activeState(head),
				ElemMatch{Path: "props.city", Where: And{Criteria: []Criteria{
					head,
					Like{Path: FieldValues, Pattern: "%ity%"},
				}}},
			}}},
		}}},
	}}
	assert.Equal(t, want, q.Where)
	assert.Equal(t, "Customer", q.Collection)
	assert.Equal(t, revision.Head(), q.View)
	assert.False(t, q.Paged())
}

func TestCompile_ViewsAndHeaderFilters(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	q, err := Compile(bind(t, queryir.Find{
		Type:           "Customer",
		Owner:          "alice",
		ChangedSince:   &since,
		Attrs:          map[string]queryir.SearchOp{"!visits": queryir.Gt("3"), "!id": queryir.Eq("x")},
		AsOfRevision:   4,
		IncludeDeleted: true,
		Page:           2,
		PageSize:       5,
	}))
	require.NoError(t, err)

	asOf := And{Criteria: []Criteria{
		Range{Path: FieldRevision, Upper: ir.Long(4), UpperInclusive: true},
		Range{Path: FieldNext, Lower: ir.Long(4)},
	}}
	want := And{Criteria: []Criteria{
		Eq{Path: ir.FieldType, Value: ir.String("Customer")},
		ElemMatch{Path: FieldStates, Where: asOf},
		Not{Criteria: In{Path: ir.FieldID, Values: []ir.Value{ir.String("x")}}},
		Not{Criteria: ElemMatch{Path: "props.visits", Where: And{Criteria: []Criteria{
			asOf,
			Range{Path: FieldValues, Lower: ir.Long(3)},
		}}}},
		Eq{Path: ir.FieldOwner, Value: ir.String("alice")},
		Range{Path: ir.FieldChanged, Lower: ir.NewDate(since), LowerInclusive: true},
	}}
	assert.Equal(t, want, q.Where)
	assert.Equal(t, revision.AsOf(4), q.View)
	assert.Equal(t, 10, q.Skip)
	assert.Equal(t, 5, q.Limit)
}

func TestCompile_AnyViewOmitsVersionCriteria(t *testing.T) {
	q, err := Compile(bind(t, queryir.Find{
		Type:  "Customer",
		Attrs: map[string]queryir.SearchOp{"active": queryir.Eq("true")},
	}))
	require.NoError(t, err)

	and := q.Where.(And)
	assert.Equal(t, ElemMatch{Path: "props.active", Where: Eq{Path: FieldValues, Value: ir.Boolean(true)}}, and.Criteria[2])
}

func TestCompile_Rejects(t *testing.T) {
	_, err := Compile(nil)
	assert.Error(t, err)

	p := bind(t, queryir.Find{Type: "Customer"})
	p.StateView = revision.Any()
	_, err = Compile(p)
	assert.Error(t, err)
}

func TestRenderOp(t *testing.T) {
	tests := []struct {
		name string
		op   queryir.SearchOp
		want Criteria
	}{
		{"equals number", queryir.Equals{Value: ir.Long(4)}, Eq{Path: "v", Value: ir.Long(4)}},
		{"equals number ignore case", queryir.Equals{Value: ir.Long(4), IgnoreCase: true}, Eq{Path: "v", Value: ir.Long(4)}},
		{"equals string", queryir.Equals{Value: ir.String("Ann")}, Eq{Path: "v", Value: ir.String("Ann")}},
		{"equals fold", queryir.Equals{Value: ir.String("ANN"), IgnoreCase: true}, EqFold{Path: "v", Value: "ann"}},
		{"wildcard", queryir.Equals{Value: ir.CDATA("%x%")}, Like{Path: "v", Pattern: "%x%"}},
		{"wildcard fold", queryir.Equals{Value: ir.String("A%"), IgnoreCase: true}, Like{Path: "v", Pattern: "a%", Fold: true}},
		{"greater than", queryir.GreaterThan{Value: ir.Double(2)}, Range{Path: "v", Lower: ir.Double(2)}},
		{
			"interval left open",
			queryir.Interval{Lower: ir.Long(0), Upper: ir.Long(10), Bound: queryir.LeftOpen},
			Range{Path: "v", Lower: ir.Long(0), Upper: ir.Long(10), UpperInclusive: true},
		},
		{
			"interval without lower",
			queryir.Interval{Upper: ir.Long(10), Bound: queryir.Bounded},
			Range{Path: "v", Upper: ir.Long(10), LowerInclusive: true, UpperInclusive: true},
		},
		{"set", queryir.In{Values: []ir.Value{ir.Long(1)}}, In{Path: "v", Values: []ir.Value{ir.Long(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderOp(tt.op, "v")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := RenderOp(queryir.Interval{}, "v")
	assert.Error(t, err)
}

func TestResolveLookups(t *testing.T) {
	c := And{Criteria: []Criteria{
		Eq{Path: "type", Value: ir.String("Customer")},
		Not{Criteria: ElemMatch{Path: "refs.friends", Where: Lookup{Path: FieldIDs, Collection: "Customer"}}},
	}}

	got, err := ResolveLookups(c, func(l Lookup) ([]string, error) {
		assert.Equal(t, "Customer", l.Collection)
		return []string{"a", "b"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, And{Criteria: []Criteria{
		Eq{Path: "type", Value: ir.String("Customer")},
		Not{Criteria: ElemMatch{Path: "refs.friends", Where: In{Path: FieldIDs, Values: []ir.Value{ir.String("a"), ir.String("b")}}}},
	}}, got)

	boom := errors.New("boom")
	_, err = ResolveLookups(c, func(Lookup) ([]string, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestOrder(t *testing.T) {
	el := func(id string, visits ...int64) *model.Element {
		e := &model.Element{ID: id, Properties: map[string]ir.Values{}}
		if len(visits) > 0 {
			e.Properties["visits"] = ir.Single(ir.Long(visits[0]))
		}
		return e
	}
	els := []*model.Element{el("d", 5), el("c"), el("b", 5), el("a", 9)}

	order, err := CompileOrder([]queryir.SortKey{{
		Field:    queryir.SortByAttribute,
		Property: ir.PropertyType{Name: "visits", Kind: ir.KindLong},
	}})
	require.NoError(t, err)
	order.Sort(els)
	assert.Equal(t, []string{"c", "b", "d", "a"}, ids(els))

	order[0].Desc = true
	order.Sort(els)
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids(els))

	order, err = CompileOrder([]queryir.SortKey{{Field: queryir.SortByID, Desc: true}})
	require.NoError(t, err)
	order.Sort(els)
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(els))
}

func ids(els []*model.Element) []string {
	out := make([]string, len(els))
	for i, e := range els {
		out[i] = e.ID
	}
	return out
}
