// Package querydoc compiles bound find plans to document criteria.
//
// A document holds the header fields of one element plus the version arrays
// of its state, property and reference chains:
//
//	{
//	  "id": "...", "type": "Customer", "owner": "...", "changed": <date>, ...
//	  "states": [{"revision": 3, "next": MaxRevision, "deleted": false}],
//	  "props":  {"name": [{"revision": 3, "next": MaxRevision, "values": ["Ann"]}]},
//	  "refs":   {"addresses": [{"revision": 3, "next": MaxRevision, "ids": ["a1"]}]}
//	}
//
// Criteria address fields by dotted path. Leaf criteria applied to an array
// match when any element matches; ElemMatch evaluates its criteria against
// each element of an array of sub-documents.
package querydoc

import (
	"fmt"
	"strings"

	"github.com/roach88/elementstore/internal/ir"
)

// Document field names below the header.
const (
	FieldStates   = "states"
	FieldProps    = "props"
	FieldRefs     = "refs"
	FieldNext     = "next"
	FieldValues   = "values"
	FieldDims     = "dimensions"
	FieldIDs      = "ids"
	FieldRevision = ir.FieldRevision
	FieldDeleted  = ir.FieldDeleted
)

// Criteria is a predicate over one document.
//
// This is a sealed interface - only types in this package implement it.
type Criteria interface {
	criteria() // Marker method - seals interface to this package
	String() string
}

// Eq matches when the value at Path equals Value.
type Eq struct {
	Path  string
	Value ir.Value
}

// EqFold matches when the case-folded text at Path equals Value, which is
// already folded.
type EqFold struct {
	Path  string
	Value string
}

// Like matches text at Path against a "%" wildcard pattern. With Fold the
// text is case-folded first; the pattern is already folded.
type Like struct {
	Path    string
	Pattern string
	Fold    bool
}

// Range matches values at Path between Lower and Upper. A nil bound is
// unbounded on that side.
type Range struct {
	Path           string
	Lower          ir.Value
	LowerInclusive bool
	Upper          ir.Value
	UpperInclusive bool
}

// In matches when the value at Path equals any of Values.
type In struct {
	Path   string
	Values []ir.Value
}

// And matches when every criteria matches. An empty And matches everything.
type And struct {
	Criteria []Criteria
}

// Not inverts Criteria.
type Not struct {
	Criteria Criteria
}

// ElemMatch matches when some element of the array at Path satisfies Where,
// evaluated relative to that element.
type ElemMatch struct {
	Path  string
	Where Criteria
}

// Lookup matches when some identifier at Path names a document of
// Collection satisfying Where. Executors resolve it with ResolveLookups.
type Lookup struct {
	Path       string
	Collection string
	Where      Criteria
}

func (Eq) criteria()        {}
func (EqFold) criteria()    {}
func (Like) criteria()      {}
func (Range) criteria()     {}
func (In) criteria()        {}
func (And) criteria()       {}
func (Not) criteria()       {}
func (ElemMatch) criteria() {}
func (Lookup) criteria()    {}

func (c Eq) String() string     { return fmt.Sprintf("%s == %s", c.Path, text(c.Value)) }
func (c EqFold) String() string { return fmt.Sprintf("fold(%s) == %q", c.Path, c.Value) }

func (c Like) String() string {
	if c.Fold {
		return fmt.Sprintf("fold(%s) like %q", c.Path, c.Pattern)
	}
	return fmt.Sprintf("%s like %q", c.Path, c.Pattern)
}

func (c Range) String() string {
	var parts []string
	if c.Lower != nil {
		op := ">"
		if c.LowerInclusive {
			op = ">="
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Path, op, text(c.Lower)))
	}
	if c.Upper != nil {
		op := "<"
		if c.UpperInclusive {
			op = "<="
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Path, op, text(c.Upper)))
	}
	return strings.Join(parts, " && ")
}

func (c In) String() string {
	vals := make([]string, len(c.Values))
	for i, v := range c.Values {
		vals[i] = text(v)
	}
	return fmt.Sprintf("%s in [%s]", c.Path, strings.Join(vals, ", "))
}

func (c And) String() string {
	parts := make([]string, len(c.Criteria))
	for i, sub := range c.Criteria {
		parts[i] = sub.String()
	}
	return "(" + strings.Join(parts, " && ") + ")"
}

func (c Not) String() string { return "!" + c.Criteria.String() }

func (c ElemMatch) String() string {
	return fmt.Sprintf("%s[any %s]", c.Path, c.Where)
}

func (c Lookup) String() string {
	return fmt.Sprintf("%s -> %s%s", c.Path, c.Collection, c.Where)
}

func text(v ir.Value) string {
	if v == nil {
		return "null"
	}
	if v.Kind().Textual() {
		return fmt.Sprintf("%q", v.String())
	}
	return v.String()
}

// all combines criteria with And, dropping nils. A single criteria is
// returned as is.
func all(cs ...Criteria) Criteria {
	var out []Criteria
	for _, c := range cs {
		if c != nil {
			out = append(out, c)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return And{Criteria: out}
}
