package ir

import (
	"math"
	"slices"
	"time"
)

// MaxRevision is the head sentinel: a versioned row whose next-revision
// pointer equals MaxRevision is the current version.
const MaxRevision int64 = math.MaxInt64

// Reserved entity map keys. They are header fields, never attributes.
const (
	FieldID        = "id"
	FieldType      = "type"
	FieldOwner     = "owner"
	FieldOwnerName = "ownerName"
	FieldGroup     = "group"
	FieldCreatedAt = "createdAt"
	FieldChanged   = "changed"
	FieldRevision  = "revision"
	FieldVersion   = "version"
	FieldDeleted   = "deleted"
)

var reservedNames = []string{
	FieldID, FieldType, FieldOwner, FieldOwnerName, FieldGroup,
	FieldCreatedAt, FieldChanged, FieldRevision, FieldVersion, FieldDeleted,
}

// IsReserved reports whether name is a header field that cannot be used as
// an attribute or reference name.
func IsReserved(name string) bool {
	return slices.Contains(reservedNames, name)
}

// PropertyType is the schema definition of one attribute.
// Only Unit may change after creation.
type PropertyType struct {
	Name string `json:"name" yaml:"name"`
	Kind Kind   `json:"kind" yaml:"kind"`
	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// ReferenceType is a named to-many reference slot pointing at elements of
// the Target type.
type ReferenceType struct {
	Name   string `json:"name" yaml:"name"`
	Target string `json:"target" yaml:"target"`
}

// ElementType is the schema of a class of elements.
// Properties keep their declaration order.
type ElementType struct {
	Name       string          `json:"name" yaml:"name"`
	Properties []PropertyType  `json:"properties" yaml:"properties"`
	References []ReferenceType `json:"references,omitempty" yaml:"references,omitempty"`
}

// Property looks up an attribute definition by name.
func (t *ElementType) Property(name string) (PropertyType, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyType{}, false
}

// Reference looks up a reference slot by name.
func (t *ElementType) Reference(name string) (ReferenceType, bool) {
	for _, r := range t.References {
		if r.Name == name {
			return r, true
		}
	}
	return ReferenceType{}, false
}

// Clone returns a deep copy so callers can hold a type across schema
// evolution without observing later changes.
func (t *ElementType) Clone() *ElementType {
	return &ElementType{
		Name:       t.Name,
		Properties: slices.Clone(t.Properties),
		References: slices.Clone(t.References),
	}
}

// Modification records one revision-producing save.
type Modification struct {
	Revision  int64     `json:"revision"`
	ElementID string    `json:"element_id"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Comment   string    `json:"comment,omitempty"`
}

// Owner is the identity record returned by the external identity provider.
type Owner struct {
	Username    string
	DisplayName string
	Groups      []string
	Roles       []string
}
