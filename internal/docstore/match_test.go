package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/querydoc"
)

func sampleFields(t *testing.T) map[string]any {
	t.Helper()
	doc := &Document{
		ID:     "c1",
		Type:   "Customer",
		Owner:  "alice",
		States: []StateVersion{{Revision: 1, Next: ir.MaxRevision}},
		Props: map[string][]ValueVersion{
			"name": {
				{Revision: 1, Next: 3, Kind: ir.KindString, Values: []string{"Old Name"}},
				{Revision: 3, Next: ir.MaxRevision, Kind: ir.KindString, Values: []string{"Ann Smith"}},
			},
			"visits": {{Revision: 1, Next: ir.MaxRevision, Kind: ir.KindLong, Values: []string{"5", "10"}}},
		},
		Refs: map[string][]RefVersion{
			"addresses": {{Revision: 1, Next: ir.MaxRevision, IDs: []string{"a1", "a2"}}},
		},
	}
	fields, err := doc.Fields()
	require.NoError(t, err)
	return fields
}

func TestMatch(t *testing.T) {
	head := querydoc.Eq{Path: querydoc.FieldNext, Value: ir.Long(ir.MaxRevision)}
	prop := func(name string, where ...querydoc.Criteria) querydoc.Criteria {
		return querydoc.ElemMatch{Path: "props." + name, Where: querydoc.And{Criteria: where}}
	}

	tests := []struct {
		name string
		c    querydoc.Criteria
		want bool
	}{
		{"header equals", querydoc.Eq{Path: ir.FieldOwner, Value: ir.String("alice")}, true},
		{"header differs", querydoc.Eq{Path: ir.FieldOwner, Value: ir.String("bob")}, false},
		{"head value", prop("name", head, querydoc.Eq{Path: "values", Value: ir.String("Ann Smith")}), true},
		{"stale value at head", prop("name", head, querydoc.Eq{Path: "values", Value: ir.String("Old Name")}), false},
		{"stale value any version", prop("name", querydoc.Eq{Path: "values", Value: ir.String("Old Name")}), true},
		{"wildcard", prop("name", head, querydoc.Like{Path: "values", Pattern: "Ann%"}), true},
		{"wildcard is case sensitive", prop("name", head, querydoc.Like{Path: "values", Pattern: "ann%"}), false},
		{"folded wildcard", prop("name", head, querydoc.Like{Path: "values", Pattern: "%smith", Fold: true}), true},
		{"folded equals", prop("name", head, querydoc.EqFold{Path: "values", Value: "ann smith"}), true},
		{"any of multiple values", prop("visits", querydoc.Range{Path: "values", Lower: ir.Long(9)}), true},
		{"exclusive bound", prop("visits", querydoc.Range{Path: "values", Lower: ir.Long(10)}), false},
		{"inclusive bound", prop("visits", querydoc.Range{Path: "values", Lower: ir.Long(10), LowerInclusive: true}), true},
		{"upper only", prop("visits", querydoc.Range{Path: "values", Upper: ir.Long(4), UpperInclusive: true}), false},
		{"set", prop("visits", querydoc.In{Path: "values", Values: []ir.Value{ir.Long(1), ir.Long(5)}}), true},
		{"empty set", prop("visits", querydoc.In{Path: "values"}), false},
		{"missing attribute", prop("rating", querydoc.Eq{Path: "values", Value: ir.Double(1)}), false},
		{"negated missing attribute", querydoc.Not{Criteria: prop("rating", querydoc.Eq{Path: "values", Value: ir.Double(1)})}, true},
		{"reference ids", querydoc.ElemMatch{Path: "refs.addresses", Where: querydoc.In{Path: querydoc.FieldIDs, Values: []ir.Value{ir.String("a2")}}}, true},
		{"empty and", querydoc.And{}, true},
	}

	fields := sampleFields(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.c, fields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_Errors(t *testing.T) {
	fields := sampleFields(t)

	_, err := Match(querydoc.Lookup{Path: querydoc.FieldIDs, Collection: "Address"}, fields)
	assert.Error(t, err, "lookups must be resolved first")

	_, err = Match(querydoc.ElemMatch{Path: "props.visits", Where: querydoc.Range{Path: "values", Lower: ir.String("x")}}, fields)
	assert.True(t, ir.IsValidation(err), "mixed kinds: %v", err)
}
