// Package docstore is the document backend.
//
// Each element is stored as one Document in the collection named after its
// type. A Document carries the header fields plus the full version arrays of
// the element's state, property and reference chains. Modification history
// is kept apart in an append-only collection. Collections abstracts the
// physical store (bbolt here, DynamoDB in package dynamo); Backend drives it
// with querydoc criteria and model.Record.Apply.
package docstore

import (
	"fmt"
	"time"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/querydoc"
	"github.com/roach88/elementstore/internal/revision"
)

// Document is the stored form of one element.
type Document struct {
	ID        string `cbor:"id" dynamodbav:"id"`
	Type      string `cbor:"type" dynamodbav:"type"`
	Owner     string `cbor:"owner" dynamodbav:"owner"`
	OwnerName string `cbor:"ownerName" dynamodbav:"ownerName"`
	Group     string `cbor:"group" dynamodbav:"group"`
	CreatedAt int64  `cbor:"createdAt" dynamodbav:"createdAt"`
	ChangedAt int64  `cbor:"changed" dynamodbav:"changed"`
	Revision  int64  `cbor:"revision" dynamodbav:"revision"`
	Version   int64  `cbor:"version" dynamodbav:"version"`

	States []StateVersion            `cbor:"states" dynamodbav:"states"`
	Props  map[string][]ValueVersion `cbor:"props,omitempty" dynamodbav:"props,omitempty"`
	Refs   map[string][]RefVersion   `cbor:"refs,omitempty" dynamodbav:"refs,omitempty"`
}

// StateVersion is one version of the element state chain.
type StateVersion struct {
	Revision int64 `cbor:"revision" dynamodbav:"revision"`
	Next     int64 `cbor:"next" dynamodbav:"next"`
	Deleted  bool  `cbor:"deleted" dynamodbav:"deleted"`
}

// ValueVersion is one version of a property value list. Values hold the
// canonical text of each value; Kind says how to parse them.
type ValueVersion struct {
	Revision int64    `cbor:"revision" dynamodbav:"revision"`
	Next     int64    `cbor:"next" dynamodbav:"next"`
	Kind     ir.Kind  `cbor:"kind" dynamodbav:"kind"`
	Values   []string `cbor:"values" dynamodbav:"values"`
	Dims     []int    `cbor:"dimensions,omitempty" dynamodbav:"dimensions,omitempty"`
}

// RefVersion is one version of a reference list.
type RefVersion struct {
	Revision int64    `cbor:"revision" dynamodbav:"revision"`
	Next     int64    `cbor:"next" dynamodbav:"next"`
	IDs      []string `cbor:"ids" dynamodbav:"ids"`
}

// FromRecord converts a record into its document.
func FromRecord(r *model.Record) *Document {
	d := &Document{
		ID:        r.ID,
		Type:      r.Type,
		Owner:     r.Owner,
		OwnerName: r.OwnerName,
		Group:     r.Group,
		CreatedAt: r.CreatedAt.UnixMilli(),
		ChangedAt: r.ChangedAt.UnixMilli(),
		Revision:  r.Revision,
		Version:   r.Version,
		Props:     make(map[string][]ValueVersion, len(r.Properties)),
		Refs:      make(map[string][]RefVersion, len(r.Refs)),
	}
	if r.State != nil {
		for _, v := range r.State.Versions {
			d.States = append(d.States, StateVersion{Revision: v.Revision, Next: v.NextRevision, Deleted: v.Data.Deleted})
		}
	}
	for name, chain := range r.Properties {
		for _, v := range chain.Versions {
			vv := ValueVersion{Revision: v.Revision, Next: v.NextRevision, Dims: v.Data.Dims}
			for _, item := range v.Data.Items {
				vv.Kind = item.Kind()
				vv.Values = append(vv.Values, item.String())
			}
			d.Props[name] = append(d.Props[name], vv)
		}
	}
	for name, chain := range r.Refs {
		for _, v := range chain.Versions {
			d.Refs[name] = append(d.Refs[name], RefVersion{Revision: v.Revision, Next: v.NextRevision, IDs: v.Data})
		}
	}
	return d
}

// Record converts d back into a record.
func (d *Document) Record() (*model.Record, error) {
	r := model.NewRecord(d.ID, d.Type)
	r.Owner = d.Owner
	r.OwnerName = d.OwnerName
	r.Group = d.Group
	r.CreatedAt = time.UnixMilli(d.CreatedAt).UTC()
	r.ChangedAt = time.UnixMilli(d.ChangedAt).UTC()
	r.Revision = d.Revision
	r.Version = d.Version

	for _, s := range d.States {
		r.State.Versions = append(r.State.Versions, revision.Version[model.State]{
			Revision: s.Revision, NextRevision: s.Next, Data: model.State{Deleted: s.Deleted},
		})
	}
	for name, versions := range d.Props {
		chain := &revision.Chain[ir.Values]{}
		for _, v := range versions {
			vals, err := v.values()
			if err != nil {
				return nil, fmt.Errorf("document %s property %s: %w", d.ID, name, err)
			}
			chain.Versions = append(chain.Versions, revision.Version[ir.Values]{
				Revision: v.Revision, NextRevision: v.Next, Data: vals,
			})
		}
		r.Properties[name] = chain
	}
	for name, versions := range d.Refs {
		chain := &revision.Chain[[]string]{}
		for _, v := range versions {
			chain.Versions = append(chain.Versions, revision.Version[[]string]{
				Revision: v.Revision, NextRevision: v.Next, Data: v.IDs,
			})
		}
		r.Refs[name] = chain
	}
	return r, nil
}

func (v ValueVersion) values() (ir.Values, error) {
	out := ir.Values{Dims: v.Dims}
	for _, text := range v.Values {
		val, err := ir.Parse(v.Kind, text)
		if err != nil {
			return ir.Values{}, ir.NewCorruptionError("stored %s value %q is unreadable: %v", v.Kind, text, err)
		}
		out.Items = append(out.Items, val)
	}
	return out, nil
}

// Fields returns d as the generic tree criteria are evaluated against.
// Leaves are ir.Value; version arrays are []any of map[string]any.
func (d *Document) Fields() (map[string]any, error) {
	m := map[string]any{
		ir.FieldID:        ir.String(d.ID),
		ir.FieldType:      ir.String(d.Type),
		ir.FieldOwner:     ir.String(d.Owner),
		ir.FieldOwnerName: ir.String(d.OwnerName),
		ir.FieldGroup:     ir.String(d.Group),
		ir.FieldCreatedAt: ir.DateFromMillis(d.CreatedAt),
		ir.FieldChanged:   ir.DateFromMillis(d.ChangedAt),
		ir.FieldRevision:  ir.Long(d.Revision),
		ir.FieldVersion:   ir.Long(d.Version),
	}

	states := make([]any, len(d.States))
	for i, s := range d.States {
		states[i] = map[string]any{
			querydoc.FieldRevision: ir.Long(s.Revision),
			querydoc.FieldNext:     ir.Long(s.Next),
			querydoc.FieldDeleted:  ir.Boolean(s.Deleted),
		}
	}
	m[querydoc.FieldStates] = states

	props := make(map[string]any, len(d.Props))
	for name, versions := range d.Props {
		arr := make([]any, len(versions))
		for i, v := range versions {
			vals, err := v.values()
			if err != nil {
				return nil, fmt.Errorf("document %s property %s: %w", d.ID, name, err)
			}
			items := make([]any, len(vals.Items))
			for j, item := range vals.Items {
				items[j] = item
			}
			arr[i] = map[string]any{
				querydoc.FieldRevision: ir.Long(v.Revision),
				querydoc.FieldNext:     ir.Long(v.Next),
				querydoc.FieldValues:   items,
			}
		}
		props[name] = arr
	}
	m[querydoc.FieldProps] = props

	refs := make(map[string]any, len(d.Refs))
	for name, versions := range d.Refs {
		arr := make([]any, len(versions))
		for i, v := range versions {
			ids := make([]any, len(v.IDs))
			for j, id := range v.IDs {
				ids[j] = ir.String(id)
			}
			arr[i] = map[string]any{
				querydoc.FieldRevision: ir.Long(v.Revision),
				querydoc.FieldNext:     ir.Long(v.Next),
				querydoc.FieldIDs:      ids,
			}
		}
		refs[name] = arr
	}
	m[querydoc.FieldRefs] = refs
	return m, nil
}
