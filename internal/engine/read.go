package engine

import (
	"context"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/revision"
)

// GetElementMap returns the head map of id, deleted elements included.
func (e *Engine) GetElementMap(ctx context.Context, id string) (m model.EntityMap, err error) {
	ctx, done := e.observe(ctx, "get")
	defer func() { done(err) }()

	return e.elementMap(ctx, id, revision.Head())
}

// GetElementMapAt returns the map of id as it was at revision rev.
func (e *Engine) GetElementMapAt(ctx context.Context, id string, rev int64) (m model.EntityMap, err error) {
	ctx, done := e.observe(ctx, "get_at")
	defer func() { done(err) }()

	if rev <= 0 {
		return nil, ir.NewValidationError("as-of revision %d must be positive", rev)
	}
	return e.elementMap(ctx, id, revision.AsOf(rev))
}

func (e *Engine) elementMap(ctx context.Context, id string, view revision.View) (model.EntityMap, error) {
	el, err := e.element(ctx, id, view)
	if err != nil {
		return nil, err
	}
	return el.Map(), nil
}

func (e *Engine) element(ctx context.Context, id string, view revision.View) (*model.Element, error) {
	rec, ok, err := e.backend.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ir.NewNotFoundError(id)
	}
	el, ok, err := model.Materialize(rec, view)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ir.NewNotFoundError(id)
	}
	return el, nil
}

// GetModifiedProperties returns the sorted names of the attributes,
// references and owner fields whose value in candidate differs from the
// stored head. candidate must carry the id of a stored element.
func (e *Engine) GetModifiedProperties(ctx context.Context, typeName string, candidate model.EntityMap) (names []string, err error) {
	ctx, done := e.observe(ctx, "modified_properties", typeAttr(typeName))
	defer func() { done(err) }()

	t, err := e.registry.Resolve(ctx, typeName)
	if err != nil {
		return nil, err
	}
	d, err := model.Decode(t, candidate)
	if err != nil {
		return nil, err
	}
	if d.ID == "" {
		return nil, ir.NewValidationError("candidate has no %s", ir.FieldID)
	}
	current, err := e.element(ctx, d.ID, revision.Head())
	if err != nil {
		return nil, err
	}
	return model.ModifiedProperties(current, d), nil
}

// History returns the modifications of id in revision order.
func (e *Engine) History(ctx context.Context, id string) (mods []ir.Modification, err error) {
	ctx, done := e.observe(ctx, "history")
	defer func() { done(err) }()

	if _, ok, err := e.backend.StoredVersion(ctx, id); err != nil {
		return nil, err
	} else if !ok {
		return nil, ir.NewNotFoundError(id)
	}
	return e.backend.History(ctx, id)
}
