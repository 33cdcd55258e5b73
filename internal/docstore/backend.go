package docstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/querydoc"
	"github.com/roach88/elementstore/internal/queryir"
)

// Backend executes finds and saves against a document store.
type Backend struct {
	cols   Collections
	logger *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = l
	}
}

// New returns a backend over cols. The backend owns cols and closes it.
func New(cols Collections, opts ...Option) *Backend {
	b := &Backend{cols: cols, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the collection store name.
func (b *Backend) Name() string { return b.cols.Name() }

// Close closes the collections.
func (b *Backend) Close() error { return b.cols.Close() }

// LoadType implements schema.Source.
func (b *Backend) LoadType(ctx context.Context, name string) (*ir.ElementType, bool, error) {
	return b.cols.LoadType(ctx, name)
}

// SaveType implements schema.Source.
func (b *Backend) SaveType(ctx context.Context, t *ir.ElementType) error {
	return b.cols.SaveType(ctx, t)
}

// TypeNames implements schema.Source.
func (b *Backend) TypeNames(ctx context.Context) ([]string, error) {
	return b.cols.TypeNames(ctx)
}

// Find compiles p to criteria, resolves reference lookups against the
// referenced collections and matches every candidate document.
func (b *Backend) Find(ctx context.Context, p *queryir.Plan) (*model.Result, error) {
	q, err := querydoc.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	where, err := querydoc.ResolveLookups(q.Where, func(l querydoc.Lookup) ([]string, error) {
		ids, err := b.matchingIDs(ctx, l.Collection, l.Where)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", l.Collection, err)
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	b.logger.Debug("document find", "backend", b.Name(), "collection", q.Collection, "where", where.String())

	var els []*model.Element
	err = b.scan(ctx, q.Collection, where, func(doc *Document) error {
		rec, err := doc.Record()
		if err != nil {
			return err
		}
		el, ok, err := model.Materialize(rec, q.View)
		if err != nil {
			return err
		}
		if ok {
			els = append(els, el)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.Order.Sort(els)

	if !b.cols.Paginates() {
		return &model.Result{Elements: els, Paginated: false}, nil
	}
	return &model.Result{Elements: page(els, q.Skip, q.Limit, q.Paged()), Paginated: true}, nil
}

// matchingIDs returns the ids of documents in collection satisfying where.
func (b *Backend) matchingIDs(ctx context.Context, collection string, where querydoc.Criteria) ([]string, error) {
	var ids []string
	err := b.scan(ctx, collection, where, func(doc *Document) error {
		ids = append(ids, doc.ID)
		return nil
	})
	return ids, err
}

// scan visits the documents of collection that match where.
func (b *Backend) scan(ctx context.Context, collection string, where querydoc.Criteria, visit func(*Document) error) error {
	return b.cols.Scan(ctx, collection, where, func(doc *Document) error {
		fields, err := doc.Fields()
		if err != nil {
			return err
		}
		ok, err := Match(where, fields)
		if err != nil {
			return fmt.Errorf("match document %s: %w", doc.ID, err)
		}
		if !ok {
			return nil
		}
		return visit(doc)
	})
}

func page(els []*model.Element, skip, limit int, paged bool) []*model.Element {
	if !paged {
		return els
	}
	if skip >= len(els) {
		return nil
	}
	end := min(skip+limit, len(els))
	return els[skip:end]
}

// Load returns the stored record of id. Every chain of the record is
// verified; a broken chain is CORRUPTION.
func (b *Backend) Load(ctx context.Context, id string) (*model.Record, bool, error) {
	doc, ok, err := b.cols.Get(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	rec, err := doc.Record()
	if err != nil {
		return nil, false, err
	}
	if err := rec.Verify(); err != nil {
		b.logger.Error("corrupt document", "id", id, "error", err)
		return nil, false, err
	}
	return rec, true, nil
}

// StoredVersion returns the optimistic version stored for id.
func (b *Backend) StoredVersion(ctx context.Context, id string) (int64, bool, error) {
	doc, ok, err := b.cols.Get(ctx, id)
	if err != nil || !ok {
		return 0, ok, err
	}
	return doc.Version, true, nil
}

// Apply records cs as a new revision. The document is rewritten whole with
// a write conditional on the version read here, so a concurrent save that
// committed in between surfaces as a CONFLICT.
func (b *Backend) Apply(ctx context.Context, cs *model.ChangeSet) (*model.Record, error) {
	rec := model.NewRecord(cs.ElementID, cs.Type)
	if !cs.Create {
		stored, ok, err := b.Load(ctx, cs.ElementID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ir.NewNotFoundError(cs.ElementID)
		}
		rec = stored
	}
	expected := rec.Version

	rev, err := b.cols.NextRevision(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := rec.Apply(cs, rev); err != nil {
		return nil, err
	}
	if err := b.cols.Commit(ctx, FromRecord(rec), cs.Create, expected, cs.Modification(rev)); err != nil {
		return nil, err
	}
	b.logger.Debug("document commit", "backend", b.Name(), "id", rec.ID, "revision", rev, "version", rec.Version)
	return rec, nil
}

// History returns the modifications of id in revision order.
func (b *Backend) History(ctx context.Context, id string) ([]ir.Modification, error) {
	return b.cols.History(ctx, id)
}
