package docstore

import (
	"context"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/querydoc"
)

// Collections is a physical document store.
//
// Implementations need no cross-document transactions: Commit must be
// atomic for one document and its history record, and conditional on the
// stored version.
type Collections interface {
	// Name identifies the store in logs and metrics.
	Name() string

	LoadType(ctx context.Context, name string) (*ir.ElementType, bool, error)
	SaveType(ctx context.Context, t *ir.ElementType) error
	TypeNames(ctx context.Context) ([]string, error)

	// Get returns the document with the given id from any collection.
	Get(ctx context.Context, id string) (*Document, bool, error)

	// Scan calls visit for every document of collection that may satisfy
	// where. Implementations may push part of where down to the store but
	// need not filter at all; the caller re-matches every document.
	Scan(ctx context.Context, collection string, where querydoc.Criteria, visit func(*Document) error) error

	// NextRevision allocates a store-wide revision number.
	NextRevision(ctx context.Context) (int64, error)

	// Commit writes doc and appends mod to the history collection. When
	// create is set no document with doc.ID may exist; otherwise the stored
	// version must equal expected. Violations are CONFLICT errors.
	Commit(ctx context.Context, doc *Document, create bool, expected int64, mod ir.Modification) error

	// History returns the modifications of one element in revision order.
	History(ctx context.Context, id string) ([]ir.Modification, error)

	// Paginates reports whether the backend should apply skip and limit
	// itself. When false all matches are returned and the caller pages.
	Paginates() bool

	Close() error
}
