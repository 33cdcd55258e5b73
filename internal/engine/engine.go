package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/queryir"
	"github.com/roach88/elementstore/internal/schema"
)

// Backend is a physical element store.
// Implemented by store.Store (SQLite) and docstore.Backend (bbolt and
// DynamoDB collections).
type Backend interface {
	schema.Source

	// Name identifies the backend in logs and metrics.
	Name() string

	// Find executes a bound plan. Result.Paginated is false when the
	// backend returned every match and the caller must page.
	Find(ctx context.Context, p *queryir.Plan) (*model.Result, error)

	// Load returns the stored record of id with every chain.
	Load(ctx context.Context, id string) (*model.Record, bool, error)

	// Apply records cs as one new revision.
	Apply(ctx context.Context, cs *model.ChangeSet) (*model.Record, error)

	// StoredVersion returns the optimistic version stored for id.
	StoredVersion(ctx context.Context, id string) (int64, bool, error)

	// History returns the modifications of id in revision order.
	History(ctx context.Context, id string) ([]ir.Modification, error)

	Close() error
}

// Engine is the element store facade. Safe for concurrent use when the
// backend is.
type Engine struct {
	backend  Backend
	registry *schema.Registry
	logger   *slog.Logger
	clock    Clock
	ids      IDGenerator
	owners   OwnerResolver
	tracer   trace.Tracer

	cacheSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the clock used for save timestamps. Default: WallClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the generator of new element ids.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithOwnerResolver sets the identity provider. Default: StaticOwners{},
// which resolves every username to itself.
func WithOwnerResolver(r OwnerResolver) Option {
	return func(e *Engine) {
		e.owners = r
	}
}

// WithTypeCacheSize sets the number of element types the registry caches.
func WithTypeCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// New creates an Engine over backend. The engine owns the backend and
// closes it in Close.
func New(backend Backend, opts ...Option) (*Engine, error) {
	e := &Engine{
		backend: backend,
		logger:  slog.Default(),
		clock:   WallClock{},
		ids:     UUIDv7Generator{},
		owners:  StaticOwners{},
		tracer:  otel.Tracer("elementstore"),
	}
	for _, opt := range opts {
		opt(e)
	}

	var regOpts []schema.Option
	if e.cacheSize > 0 {
		regOpts = append(regOpts, schema.WithCacheSize(e.cacheSize))
	}
	reg, err := schema.New(backend, regOpts...)
	if err != nil {
		return nil, fmt.Errorf("create type registry: %w", err)
	}
	e.registry = reg
	return e, nil
}

// Backend returns the backend name.
func (e *Engine) Backend() string {
	return e.backend.Name()
}

// Registry returns the type registry.
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Close closes the backend.
func (e *Engine) Close() error {
	return e.backend.Close()
}

// DefineType creates t or extends the stored type additively.
func (e *Engine) DefineType(ctx context.Context, t ir.ElementType) (err error) {
	ctx, done := e.observe(ctx, "define_type", typeAttr(t.Name))
	defer func() { done(err) }()

	return e.registry.Define(ctx, t)
}

// DefineTypes defines every type in order.
func (e *Engine) DefineTypes(ctx context.Context, types []ir.ElementType) (err error) {
	ctx, done := e.observe(ctx, "define_type")
	defer func() { done(err) }()

	return e.registry.DefineAll(ctx, types)
}

// TypeNames lists the defined element types in ascending order.
func (e *Engine) TypeNames(ctx context.Context) ([]string, error) {
	return e.registry.TypeNames(ctx)
}

// Type resolves one element type.
func (e *Engine) Type(ctx context.Context, name string) (*ir.ElementType, error) {
	return e.registry.Resolve(ctx, name)
}
