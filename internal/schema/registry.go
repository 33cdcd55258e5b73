// Package schema implements the type registry.
//
// The registry resolves element type names to their definitions and applies
// additive schema evolution. Definitions are persisted by a Source (each
// backend provides one) and fronted by a process-wide LRU cache that is
// invalidated on every write, so a newly added attribute is visible to the
// next compiled query.
package schema

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/elementstore/internal/ir"
)

// DefaultCacheSize is the number of resolved types kept in memory.
const DefaultCacheSize = 256

// Source persists element type definitions.
type Source interface {
	// LoadType returns the stored definition; found is false when no type
	// with that name exists.
	LoadType(ctx context.Context, name string) (t *ir.ElementType, found bool, err error)

	// SaveType creates or replaces the definition.
	SaveType(ctx context.Context, t *ir.ElementType) error

	// TypeNames lists every stored type name in ascending order.
	TypeNames(ctx context.Context) ([]string, error)
}

// Registry resolves and evolves element types. Safe for concurrent use.
type Registry struct {
	source Source
	cache  *lru.Cache[string, *ir.ElementType]

	// writeMu serializes read-modify-write schema evolution.
	writeMu sync.Mutex
}

// Option configures a Registry.
type Option func(*registryConfig)

type registryConfig struct {
	cacheSize int
}

// WithCacheSize overrides DefaultCacheSize.
func WithCacheSize(n int) Option {
	return func(c *registryConfig) {
		c.cacheSize = n
	}
}

// New creates a registry over source.
func New(source Source, opts ...Option) (*Registry, error) {
	cfg := registryConfig{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cacheSize <= 0 {
		cfg.cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *ir.ElementType](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create type cache: %w", err)
	}
	return &Registry{source: source, cache: cache}, nil
}

// Resolve returns a private copy of the named type.
// Unknown types are a SCHEMA_ERROR.
func (r *Registry) Resolve(ctx context.Context, name string) (*ir.ElementType, error) {
	if t, ok := r.cache.Get(name); ok {
		return t.Clone(), nil
	}
	t, found, err := r.source.LoadType(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load element type %s: %w", name, err)
	}
	if !found {
		return nil, ir.NewSchemaError("unknown element type %q", name).With("type", name)
	}
	r.cache.Add(name, t.Clone())
	return t.Clone(), nil
}

// ResolveAttribute returns the definition of attr on t.
// Unknown attributes are a SCHEMA_ERROR.
func (r *Registry) ResolveAttribute(t *ir.ElementType, attr string) (ir.PropertyType, error) {
	p, ok := t.Property(attr)
	if !ok {
		return ir.PropertyType{}, ir.NewSchemaError("element type %q has no attribute %q", t.Name, attr).
			With("type", t.Name).With("attribute", attr)
	}
	return p, nil
}

// ResolveReference returns the reference slot name on t and the resolved
// target type.
func (r *Registry) ResolveReference(ctx context.Context, t *ir.ElementType, name string) (ir.ReferenceType, *ir.ElementType, error) {
	ref, ok := t.Reference(name)
	if !ok {
		return ir.ReferenceType{}, nil, ir.NewSchemaError("element type %q has no reference %q", t.Name, name).
			With("type", t.Name).With("reference", name)
	}
	target, err := r.Resolve(ctx, ref.Target)
	if err != nil {
		return ir.ReferenceType{}, nil, err
	}
	return ref, target, nil
}

// TypeNames lists all registered types.
func (r *Registry) TypeNames(ctx context.Context) ([]string, error) {
	names, err := r.source.TypeNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list element types: %w", err)
	}
	return names, nil
}

// Define creates a type or additively extends an existing one.
//
// New properties and references are appended; existing ones are kept even
// when absent from def. Redefining a property with a different kind, or a
// reference with a different target, is a SCHEMA_ERROR. A changed unit is
// applied.
func (r *Registry) Define(ctx context.Context, def ir.ElementType) error {
	if err := validateDefinition(&def); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, found, err := r.source.LoadType(ctx, def.Name)
	if err != nil {
		return fmt.Errorf("load element type %s: %w", def.Name, err)
	}
	merged := def.Clone()
	if found {
		merged, err = merge(current, &def)
		if err != nil {
			return err
		}
	}
	return r.save(ctx, merged)
}

// DefineAll applies Define to each type in order.
func (r *Registry) DefineAll(ctx context.Context, types []ir.ElementType) error {
	for _, t := range types {
		if err := r.Define(ctx, t); err != nil {
			return fmt.Errorf("define %s: %w", t.Name, err)
		}
	}
	return nil
}

// AddProperty appends an attribute to an existing type.
func (r *Registry) AddProperty(ctx context.Context, typeName string, p ir.PropertyType) error {
	return r.evolve(ctx, typeName, func(t *ir.ElementType) error {
		if existing, ok := t.Property(p.Name); ok {
			if existing.Kind != p.Kind {
				return kindChangeError(t.Name, existing, p.Kind)
			}
			return nil
		}
		t.Properties = append(t.Properties, p)
		return nil
	})
}

// AddReference appends a reference slot to an existing type.
func (r *Registry) AddReference(ctx context.Context, typeName string, ref ir.ReferenceType) error {
	return r.evolve(ctx, typeName, func(t *ir.ElementType) error {
		if existing, ok := t.Reference(ref.Name); ok {
			if existing.Target != ref.Target {
				return ir.NewSchemaError("reference %s.%s already targets %q", t.Name, ref.Name, existing.Target)
			}
			return nil
		}
		t.References = append(t.References, ref)
		return nil
	})
}

// SetUnit changes the unit of an existing attribute. The unit is the only
// mutable part of a PropertyType.
func (r *Registry) SetUnit(ctx context.Context, typeName, attr, unit string) error {
	return r.evolve(ctx, typeName, func(t *ir.ElementType) error {
		for i := range t.Properties {
			if t.Properties[i].Name == attr {
				t.Properties[i].Unit = unit
				return nil
			}
		}
		return ir.NewSchemaError("element type %q has no attribute %q", t.Name, attr)
	})
}

func (r *Registry) evolve(ctx context.Context, typeName string, change func(*ir.ElementType) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, found, err := r.source.LoadType(ctx, typeName)
	if err != nil {
		return fmt.Errorf("load element type %s: %w", typeName, err)
	}
	if !found {
		return ir.NewSchemaError("unknown element type %q", typeName)
	}
	next := current.Clone()
	if err := change(next); err != nil {
		return err
	}
	if err := validateDefinition(next); err != nil {
		return err
	}
	return r.save(ctx, next)
}

func (r *Registry) save(ctx context.Context, t *ir.ElementType) error {
	if err := r.source.SaveType(ctx, t); err != nil {
		return fmt.Errorf("save element type %s: %w", t.Name, err)
	}
	r.cache.Remove(t.Name)
	return nil
}

func merge(current, def *ir.ElementType) (*ir.ElementType, error) {
	out := current.Clone()
	for _, p := range def.Properties {
		existing, ok := out.Property(p.Name)
		if !ok {
			out.Properties = append(out.Properties, p)
			continue
		}
		if existing.Kind != p.Kind {
			return nil, kindChangeError(out.Name, existing, p.Kind)
		}
		for i := range out.Properties {
			if out.Properties[i].Name == p.Name {
				out.Properties[i].Unit = p.Unit
			}
		}
	}
	for _, ref := range def.References {
		existing, ok := out.Reference(ref.Name)
		if !ok {
			out.References = append(out.References, ref)
			continue
		}
		if existing.Target != ref.Target {
			return nil, ir.NewSchemaError("reference %s.%s already targets %q", out.Name, ref.Name, existing.Target)
		}
	}
	return out, nil
}

func kindChangeError(typeName string, existing ir.PropertyType, kind ir.Kind) error {
	return ir.NewSchemaError("attribute %s.%s is %s and cannot become %s", typeName, existing.Name, existing.Kind, kind).
		With("type", typeName).With("attribute", existing.Name)
}

func validateDefinition(t *ir.ElementType) error {
	if t.Name == "" {
		return ir.NewSchemaError("element type name is required")
	}
	seen := make(map[string]bool)
	for _, p := range t.Properties {
		if p.Name == "" {
			return ir.NewSchemaError("element type %q has an unnamed attribute", t.Name)
		}
		if ir.IsReserved(p.Name) {
			return ir.NewSchemaError("attribute name %q is reserved", p.Name)
		}
		if !p.Kind.Valid() {
			return ir.NewSchemaError("attribute %s.%s has unknown kind %q", t.Name, p.Name, p.Kind)
		}
		if seen[p.Name] {
			return ir.NewSchemaError("element type %q declares %q twice", t.Name, p.Name)
		}
		seen[p.Name] = true
	}
	for _, ref := range t.References {
		if ref.Name == "" || ref.Target == "" {
			return ir.NewSchemaError("element type %q has an incomplete reference", t.Name)
		}
		if ir.IsReserved(ref.Name) {
			return ir.NewSchemaError("reference name %q is reserved", ref.Name)
		}
		if seen[ref.Name] {
			return ir.NewSchemaError("element type %q declares %q twice", t.Name, ref.Name)
		}
		seen[ref.Name] = true
	}
	return nil
}
