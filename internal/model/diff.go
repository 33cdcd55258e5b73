package model

import (
	"slices"
	"sort"

	"github.com/roach88/elementstore/internal/ir"
)

// ModifiedProperties returns the sorted names of the attributes, reference
// slots and owner/group fields whose value in d differs from current.
//
// Keys absent from d are unchanged by definition. Volatile fields (id,
// version, revision, timestamps, owner display name) are never reported.
func ModifiedProperties(current *Element, d *Draft) []string {
	var names []string

	for name, vals := range d.Properties {
		prev, ok := current.Properties[name]
		switch {
		case !ok && vals.Empty():
		case !ok, !prev.Equal(vals):
			names = append(names, name)
		}
	}
	for name, ids := range d.Refs {
		prev, ok := current.Refs[name]
		switch {
		case !ok && len(ids) == 0:
		case !ok, !slices.Equal(prev, ids):
			names = append(names, name)
		}
	}
	if d.Owner != "" && d.Owner != current.Owner {
		names = append(names, ir.FieldOwner)
	}
	if d.Group != "" && d.Group != current.Group {
		names = append(names, ir.FieldGroup)
	}

	sort.Strings(names)
	return names
}
