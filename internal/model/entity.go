package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/roach88/elementstore/internal/ir"
)

// EntityMap is the map form of an element exchanged with callers.
//
// Header fields use the ir.Field* keys. A single-valued attribute maps to a
// scalar, a multi-valued one to a list, and a shaped one to
// {"values": [...], "dimensions": [...]}. A reference slot maps to a list of
// element ids.
type EntityMap map[string]any

// Map returns the entity map of el.
func (el *Element) Map() EntityMap {
	m := EntityMap{
		ir.FieldID:        el.ID,
		ir.FieldType:      el.Type,
		ir.FieldOwner:     el.Owner,
		ir.FieldOwnerName: el.OwnerName,
		ir.FieldGroup:     el.Group,
		ir.FieldCreatedAt: el.CreatedAt,
		ir.FieldChanged:   el.ChangedAt,
		ir.FieldRevision:  el.Revision,
		ir.FieldVersion:   el.Version,
		ir.FieldDeleted:   el.Deleted,
	}
	for name, vals := range el.Properties {
		m[name] = encodeValues(vals)
	}
	for name, ids := range el.Refs {
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = id
		}
		m[name] = out
	}
	return m
}

func encodeValues(vals ir.Values) any {
	items := make([]any, len(vals.Items))
	for i, v := range vals.Items {
		items[i] = ir.ToNative(v)
	}
	if len(vals.Dims) > 0 {
		dims := make([]any, len(vals.Dims))
		for i, d := range vals.Dims {
			dims[i] = d
		}
		return map[string]any{"values": items, "dimensions": dims}
	}
	if len(items) == 1 {
		return items[0]
	}
	return items
}

// Draft is a decoded, schema-checked entity map ready for save planning.
type Draft struct {
	ID         string
	Type       string
	Version    int64
	HasVersion bool
	Owner      string
	Group      string

	// Properties holds every attribute key present in the map. An empty
	// Values means the attribute is cleared.
	Properties map[string]ir.Values

	// Refs holds every reference key present in the map.
	Refs map[string][]string
}

// Decode checks m against t and converts it into a Draft.
//
// Attribute and reference keys must be declared on t (SCHEMA_ERROR
// otherwise); values must convert to the declared kind (VALIDATION_ERROR
// otherwise). Read-only header fields are ignored.
func Decode(t *ir.ElementType, m EntityMap) (*Draft, error) {
	d := &Draft{
		Type:       t.Name,
		Properties: make(map[string]ir.Values),
		Refs:       make(map[string][]string),
	}

	for key, raw := range m {
		switch key {
		case ir.FieldID:
			id, err := decodeString(key, raw)
			if err != nil {
				return nil, err
			}
			d.ID = id
			continue
		case ir.FieldType:
			name, err := decodeString(key, raw)
			if err != nil {
				return nil, err
			}
			if name != "" && name != t.Name {
				return nil, ir.NewValidationError("entity type %q does not match %q", name, t.Name)
			}
			continue
		case ir.FieldVersion:
			if raw == nil {
				continue
			}
			v, err := ir.FromNative(ir.KindLong, raw)
			if err != nil {
				return nil, ir.NewValidationError("invalid version: %s", err.Error())
			}
			d.Version = int64(v.(ir.Long))
			d.HasVersion = true
			continue
		case ir.FieldOwner:
			owner, err := decodeString(key, raw)
			if err != nil {
				return nil, err
			}
			d.Owner = owner
			continue
		case ir.FieldGroup:
			group, err := decodeString(key, raw)
			if err != nil {
				return nil, err
			}
			d.Group = group
			continue
		}
		if ir.IsReserved(key) {
			continue
		}

		if p, ok := t.Property(key); ok {
			vals, err := decodeValues(p, raw)
			if err != nil {
				return nil, err
			}
			d.Properties[key] = vals
			continue
		}
		if _, ok := t.Reference(key); ok {
			ids, err := decodeRefs(key, raw)
			if err != nil {
				return nil, err
			}
			d.Refs[key] = ids
			continue
		}
		return nil, ir.NewSchemaError("element type %q has no attribute %q", t.Name, key).
			With("type", t.Name).With("attribute", key)
	}
	return d, nil
}

func decodeString(key string, raw any) (string, error) {
	switch s := raw.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	default:
		return "", ir.NewValidationError("%s must be a string, got %T", key, raw)
	}
}

func decodeValues(p ir.PropertyType, raw any) (ir.Values, error) {
	if raw == nil {
		return ir.Values{}, nil
	}
	var vals ir.Values
	if shaped, ok := raw.(map[string]any); ok {
		items, err := decodeList(p, shaped["values"])
		if err != nil {
			return vals, err
		}
		dims, err := decodeDims(p.Name, shaped["dimensions"])
		if err != nil {
			return vals, err
		}
		vals = ir.Values{Items: items, Dims: dims}
	} else if isList(raw) {
		items, err := decodeList(p, raw)
		if err != nil {
			return vals, err
		}
		vals = ir.Values{Items: items}
	} else {
		v, err := ir.FromNative(p.Kind, raw)
		if err != nil {
			return vals, fmt.Errorf("attribute %s: %w", p.Name, err)
		}
		vals = ir.Single(v)
	}
	if err := vals.Validate(p.Kind); err != nil {
		return ir.Values{}, fmt.Errorf("attribute %s: %w", p.Name, err)
	}
	return vals, nil
}

func isList(raw any) bool {
	if raw == nil {
		return false
	}
	if _, ok := raw.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(raw).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func listItems(raw any) []any {
	if items, ok := raw.([]any); ok {
		return items
	}
	rv := reflect.ValueOf(raw)
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items
}

func decodeList(p ir.PropertyType, raw any) ([]ir.Value, error) {
	if raw == nil {
		return nil, nil
	}
	if !isList(raw) {
		return nil, ir.NewValidationError("attribute %s: values must be a list", p.Name)
	}
	items := listItems(raw)
	out := make([]ir.Value, 0, len(items))
	for i, item := range items {
		v, err := ir.FromNative(p.Kind, item)
		if err != nil {
			return nil, fmt.Errorf("attribute %s[%d]: %w", p.Name, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeDims(name string, raw any) ([]int, error) {
	if raw == nil {
		return nil, nil
	}
	if !isList(raw) {
		return nil, ir.NewValidationError("attribute %s: dimensions must be a list", name)
	}
	items := listItems(raw)
	dims := make([]int, len(items))
	for i, item := range items {
		v, err := ir.FromNative(ir.KindInteger, item)
		if err != nil {
			return nil, fmt.Errorf("attribute %s dimensions: %w", name, err)
		}
		dims[i] = int(v.(ir.Integer))
	}
	return dims, nil
}

func decodeRefs(name string, raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	if !isList(raw) {
		return nil, ir.NewValidationError("reference %s must be a list of ids", name)
	}
	items := listItems(raw)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		switch x := item.(type) {
		case string:
			ids = append(ids, x)
		case map[string]any:
			id, ok := x[ir.FieldID].(string)
			if !ok || id == "" {
				return nil, ir.NewValidationError("reference %s entry has no id", name)
			}
			ids = append(ids, id)
		default:
			return nil, ir.NewValidationError("reference %s entry must be an id, got %T", name, item)
		}
	}
	return ids, nil
}

// DecodeJSON parses a JSON object into an EntityMap, keeping numbers exact.
func DecodeJSON(data []byte) (EntityMap, error) {
	var m EntityMap
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, ir.NewValidationError("invalid entity JSON: %s", err.Error())
	}
	return m, nil
}
