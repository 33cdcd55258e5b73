package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/elementstore/internal/ir"
)

const customerCUE = `
elementType: Customer: {
	properties: {
		customerNumber: "integer"
		weight: {kind: "double", unit: "kg"}
	}
	references: addresses: "Address"
}
elementType: Address: properties: city: "string"
`

func TestCompileCUEString(t *testing.T) {
	types, err := CompileCUEString(customerCUE)
	require.NoError(t, err)
	require.Len(t, types, 2)

	customer := types[0]
	assert.Equal(t, "Customer", customer.Name)
	assert.Equal(t, []ir.PropertyType{
		{Name: "customerNumber", Kind: ir.KindInteger},
		{Name: "weight", Kind: ir.KindDouble, Unit: "kg"},
	}, customer.Properties)
	assert.Equal(t, []ir.ReferenceType{{Name: "addresses", Target: "Address"}}, customer.References)

	assert.Equal(t, "Address", types[1].Name)
}

func TestCompileCUEErrors(t *testing.T) {
	_, err := CompileCUEString(`other: 1`)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "elementType", ce.Field)

	_, err = CompileCUEString(`elementType: A: properties: x: "blob"`)
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Field, "elementType.A.properties.x")

	_, err = CompileCUEString(`elementType: A: properties: x: {unit: "kg"}`)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "kind is required", ce.Message)
}

func TestLoadCUEFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.cue")
	require.NoError(t, os.WriteFile(path, []byte(customerCUE), 0o644))

	types, err := LoadPath(path)
	require.NoError(t, err)
	assert.Len(t, types, 2)
}

const customerYAML = `
elementTypes:
  - name: Customer
    properties:
      - {name: customerNumber, kind: integer}
      - {name: notes, kind: text}
    references:
      - {name: addresses, target: Address}
  - name: Address
    properties:
      - {name: city, kind: string}
`

func TestDecodeYAML(t *testing.T) {
	types, err := DecodeYAML(strings.NewReader(customerYAML))
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, ir.KindCDATA, types[0].Properties[1].Kind)
	assert.Equal(t, "Address", types[0].References[0].Target)
}

func TestDecodeYAMLRejectsUnknownFields(t *testing.T) {
	_, err := DecodeYAML(strings.NewReader("elementTypes:\n  - name: A\n    colour: red\n"))
	assert.Error(t, err)
}

func TestLoadPathYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customerYAML), 0o644))

	types, err := LoadPath(path)
	require.NoError(t, err)
	assert.Len(t, types, 2)

	_, err = LoadPath(filepath.Join(t.TempDir(), "schema.txt"))
	assert.Error(t, err)
}
