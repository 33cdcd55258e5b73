package queryir

import (
	"time"
)

// Find is an unbound find request.
type Find struct {
	// Type is the element type name.
	Type string

	// Owner restricts results to one owner when set.
	Owner string

	// ChangedSince restricts results to elements changed at or after it.
	ChangedSince *time.Time

	// Attrs filters on the element's own attributes. Keys may carry the
	// "!" and "~" markers; "id" filters on element identifiers.
	Attrs map[string]SearchOp

	// ChildAttrs filters on attributes of referenced elements, keyed by
	// reference name. A parent matches when at least one referenced element
	// satisfies every filter of the group.
	ChildAttrs map[string]map[string]SearchOp

	// Page and PageSize select one page; PageSize 0 means no paging.
	Page     int
	PageSize int

	Sort []Sort

	// LatestOnly restricts own attribute matching to head versions.
	LatestOnly bool

	// LatestRefsOnly restricts reference filters to the head version of
	// each reference list. Always passed explicitly.
	LatestRefsOnly bool

	// AsOfRevision, when positive, evaluates the whole query as of that
	// revision. It takes precedence over LatestOnly and LatestRefsOnly.
	AsOfRevision int64

	// IncludeDeleted also returns elements carrying the deleted marker.
	IncludeDeleted bool
}

// Sort is one requested ordering.
type Sort struct {
	Field string
	Desc  bool
}
