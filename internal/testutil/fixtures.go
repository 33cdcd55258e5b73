package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/schema"
)

// CustomerSchema is the Customer/Address schema used across tests.
func CustomerSchema() []ir.ElementType {
	return []ir.ElementType{
		{
			Name: "Address",
			Properties: []ir.PropertyType{
				{Name: "city", Kind: ir.KindString},
				{Name: "zip", Kind: ir.KindString},
			},
		},
		{
			Name: "Customer",
			Properties: []ir.PropertyType{
				{Name: "customerNumber", Kind: ir.KindInteger},
				{Name: "name", Kind: ir.KindString},
				{Name: "balance", Kind: ir.KindDecimal},
				{Name: "rating", Kind: ir.KindDouble},
				{Name: "visits", Kind: ir.KindLong},
				{Name: "since", Kind: ir.KindDate},
				{Name: "active", Kind: ir.KindBoolean},
				{Name: "notes", Kind: ir.KindCDATA},
			},
			References: []ir.ReferenceType{
				{Name: "addresses", Target: "Address"},
				{Name: "friends", Target: "Customer"},
			},
		},
	}
}

// NewRegistry returns a registry over source loaded with CustomerSchema.
// A nil source uses a fresh schema.MemorySource.
func NewRegistry(t testing.TB, source schema.Source) *schema.Registry {
	t.Helper()
	if source == nil {
		source = schema.NewMemorySource()
	}
	reg, err := schema.New(source)
	require.NoError(t, err)
	require.NoError(t, reg.DefineAll(context.Background(), CustomerSchema()))
	return reg
}
