package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/elementstore/internal/ir"
)

// countingSource counts LoadType calls to observe cache hits.
type countingSource struct {
	*MemorySource
	loads int
}

func (c *countingSource) LoadType(ctx context.Context, name string) (*ir.ElementType, bool, error) {
	c.loads++
	return c.MemorySource.LoadType(ctx, name)
}

func customerType() ir.ElementType {
	return ir.ElementType{
		Name: "Customer",
		Properties: []ir.PropertyType{
			{Name: "customerNumber", Kind: ir.KindInteger},
			{Name: "name", Kind: ir.KindString},
		},
		References: []ir.ReferenceType{{Name: "addresses", Target: "Address"}},
	}
}

func newRegistry(t *testing.T) (*Registry, *countingSource) {
	t.Helper()
	src := &countingSource{MemorySource: NewMemorySource()}
	reg, err := New(src)
	require.NoError(t, err)
	return reg, src
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	require.NoError(t, reg.Define(ctx, customerType()))

	ct, err := reg.Resolve(ctx, "Customer")
	require.NoError(t, err)
	assert.Equal(t, "Customer", ct.Name)
	assert.Len(t, ct.Properties, 2)

	p, err := reg.ResolveAttribute(ct, "customerNumber")
	require.NoError(t, err)
	assert.Equal(t, ir.KindInteger, p.Kind)
}

func TestResolveUnknown(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	require.NoError(t, reg.Define(ctx, customerType()))

	_, err := reg.Resolve(ctx, "Nope")
	assert.True(t, ir.IsSchema(err))

	ct, err := reg.Resolve(ctx, "Customer")
	require.NoError(t, err)
	_, err = reg.ResolveAttribute(ct, "shoeSize")
	assert.True(t, ir.IsSchema(err))

	_, _, err = reg.ResolveReference(ctx, ct, "addresses")
	assert.True(t, ir.IsSchema(err), "target type Address is not defined")

	_, _, err = reg.ResolveReference(ctx, ct, "friends")
	assert.True(t, ir.IsSchema(err))
}

func TestResolveReturnsPrivateCopy(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	require.NoError(t, reg.Define(ctx, customerType()))

	ct, err := reg.Resolve(ctx, "Customer")
	require.NoError(t, err)
	ct.Properties = nil

	again, err := reg.Resolve(ctx, "Customer")
	require.NoError(t, err)
	assert.Len(t, again.Properties, 2)
}

func TestCacheServesRepeatedResolves(t *testing.T) {
	ctx := context.Background()
	reg, src := newRegistry(t)
	require.NoError(t, reg.Define(ctx, customerType()))
	src.loads = 0

	for i := 0; i < 3; i++ {
		_, err := reg.Resolve(ctx, "Customer")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.loads)
}

func TestAddPropertyIsVisibleImmediately(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	require.NoError(t, reg.Define(ctx, customerType()))

	_, err := reg.Resolve(ctx, "Customer") // warm the cache
	require.NoError(t, err)

	require.NoError(t, reg.AddProperty(ctx, "Customer", ir.PropertyType{Name: "vip", Kind: ir.KindBoolean}))

	ct, err := reg.Resolve(ctx, "Customer")
	require.NoError(t, err)
	_, err = reg.ResolveAttribute(ct, "vip")
	assert.NoError(t, err)
}

func TestDefineIsAdditive(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	require.NoError(t, reg.Define(ctx, customerType()))

	require.NoError(t, reg.Define(ctx, ir.ElementType{
		Name:       "Customer",
		Properties: []ir.PropertyType{{Name: "email", Kind: ir.KindString}},
	}))

	ct, err := reg.Resolve(ctx, "Customer")
	require.NoError(t, err)
	names := make([]string, 0, len(ct.Properties))
	for _, p := range ct.Properties {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"customerNumber", "name", "email"}, names)
	assert.Len(t, ct.References, 1)
}

func TestKindChangeRejected(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	require.NoError(t, reg.Define(ctx, customerType()))

	err := reg.Define(ctx, ir.ElementType{
		Name:       "Customer",
		Properties: []ir.PropertyType{{Name: "customerNumber", Kind: ir.KindString}},
	})
	assert.True(t, ir.IsSchema(err))

	err = reg.AddProperty(ctx, "Customer", ir.PropertyType{Name: "name", Kind: ir.KindLong})
	assert.True(t, ir.IsSchema(err))
}

func TestSetUnit(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	require.NoError(t, reg.Define(ctx, ir.ElementType{
		Name:       "Parcel",
		Properties: []ir.PropertyType{{Name: "weight", Kind: ir.KindDouble, Unit: "g"}},
	}))

	require.NoError(t, reg.SetUnit(ctx, "Parcel", "weight", "kg"))

	pt, err := reg.Resolve(ctx, "Parcel")
	require.NoError(t, err)
	p, err := reg.ResolveAttribute(pt, "weight")
	require.NoError(t, err)
	assert.Equal(t, "kg", p.Unit)
	assert.Equal(t, ir.KindDouble, p.Kind)

	assert.True(t, ir.IsSchema(reg.SetUnit(ctx, "Parcel", "height", "cm")))
	assert.True(t, ir.IsSchema(reg.SetUnit(ctx, "Box", "weight", "kg")))
}

func TestDefineValidation(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	tests := []struct {
		name string
		def  ir.ElementType
	}{
		{"missing name", ir.ElementType{}},
		{"reserved attribute", ir.ElementType{Name: "A", Properties: []ir.PropertyType{{Name: "version", Kind: ir.KindLong}}}},
		{"bad kind", ir.ElementType{Name: "A", Properties: []ir.PropertyType{{Name: "x", Kind: "blob"}}}},
		{"duplicate", ir.ElementType{Name: "A", Properties: []ir.PropertyType{{Name: "x", Kind: ir.KindLong}, {Name: "x", Kind: ir.KindLong}}}},
		{"reference clash", ir.ElementType{
			Name:       "A",
			Properties: []ir.PropertyType{{Name: "x", Kind: ir.KindLong}},
			References: []ir.ReferenceType{{Name: "x", Target: "B"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, ir.IsSchema(reg.Define(ctx, tt.def)))
		})
	}
}

func TestTypeNames(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	require.NoError(t, reg.DefineAll(ctx, []ir.ElementType{
		customerType(),
		{Name: "Address", Properties: []ir.PropertyType{{Name: "city", Kind: ir.KindString}}},
	}))

	names, err := reg.TypeNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Address", "Customer"}, names)
}
