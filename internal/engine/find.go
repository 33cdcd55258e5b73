package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/queryir"
)

// Find binds f against the registry and runs it on the backend.
//
// Binding fails fast: unknown types, attributes, references and sort fields
// and malformed literals are rejected before the backend is touched. When the
// backend returns every match the requested page is cut here.
func (e *Engine) Find(ctx context.Context, f queryir.Find) (els []*model.Element, err error) {
	ctx, done := e.observe(ctx, "find", typeAttr(f.Type),
		attribute.Bool("latest_only", f.LatestOnly),
		attribute.Int64("as_of", f.AsOfRevision))
	defer func() { done(err) }()

	p, err := queryir.Bind(ctx, e.registry, f)
	if err != nil {
		return nil, err
	}
	res, err := e.backend.Find(ctx, p)
	if err != nil {
		return nil, err
	}

	els = res.Elements
	if !res.Paginated && p.Paged() {
		els = pageOf(els, p.Offset, p.Limit)
	}
	e.logger.Debug("find", "type", f.Type, "backend", e.backend.Name(),
		"filters", len(p.Filters), "ref_filters", len(p.RefFilters), "results", len(els))
	return els, nil
}

// FindMaps is Find returning entity maps.
func (e *Engine) FindMaps(ctx context.Context, f queryir.Find) ([]model.EntityMap, error) {
	els, err := e.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	maps := make([]model.EntityMap, len(els))
	for i, el := range els {
		maps[i] = el.Map()
	}
	return maps, nil
}

// Plan binds f without running it.
func (e *Engine) Plan(ctx context.Context, f queryir.Find) (*queryir.Plan, error) {
	return queryir.Bind(ctx, e.registry, f)
}

func pageOf(els []*model.Element, offset, limit int) []*model.Element {
	if offset >= len(els) {
		return []*model.Element{}
	}
	return els[offset:min(offset+limit, len(els))]
}
