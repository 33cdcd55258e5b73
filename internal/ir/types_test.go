package ir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestElementTypeLookup(t *testing.T) {
	customer := &ElementType{
		Name:       "Customer",
		Properties: []PropertyType{{Name: "customerNumber", Kind: KindInteger}},
		References: []ReferenceType{{Name: "addresses", Target: "Address"}},
	}

	p, ok := customer.Property("customerNumber")
	assert.True(t, ok)
	assert.Equal(t, KindInteger, p.Kind)

	_, ok = customer.Property("missing")
	assert.False(t, ok)

	r, ok := customer.Reference("addresses")
	assert.True(t, ok)
	assert.Equal(t, "Address", r.Target)
}

func TestElementTypeCloneIsDeep(t *testing.T) {
	orig := &ElementType{Name: "A", Properties: []PropertyType{{Name: "x", Kind: KindString}}}
	c := orig.Clone()
	c.Properties[0].Unit = "kg"
	assert.Empty(t, orig.Properties[0].Unit)
}

func TestReservedNames(t *testing.T) {
	assert.True(t, IsReserved("id"))
	assert.True(t, IsReserved("version"))
	assert.False(t, IsReserved("city"))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("text")
	assert.NoError(t, err)
	assert.Equal(t, KindCDATA, k)

	_, err = ParseKind("blob")
	assert.True(t, IsSchema(err))
}

func TestErrorHelpersUnwrap(t *testing.T) {
	err := fmt.Errorf("save element: %w", NewConflictError("e1", 1, 2))

	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrSchema))
	assert.Equal(t, ErrCodeConflict, CodeOf(err))

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "2", e.Details["stored"])
}

func TestErrorWith(t *testing.T) {
	base := NewSchemaError("unknown type %q", "Foo")
	withDetail := base.With("type", "Foo")
	assert.Equal(t, "Foo", withDetail.Details["type"])
	assert.Nil(t, base.Details)
	assert.Equal(t, `SCHEMA_ERROR: unknown type "Foo"`, base.Error())
}
