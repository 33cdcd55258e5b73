package engine

import (
	"context"
	"fmt"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/revision"
)

// SaveOptions carries the audit fields of one save.
type SaveOptions struct {
	// User is recorded in the modification history and becomes the owner
	// of new elements that name none.
	User    string
	Comment string
}

// Save creates or updates one element of typeName and returns its head map.
//
// A map without an id creates a new element with a generated id. A map with
// an id updates that element and must carry the version it was read at; a
// stale version is a CONFLICT and nothing is written. Keys absent from data
// are left unchanged and an explicit null clears the attribute or reference.
// Every successful save creates exactly one revision.
func (e *Engine) Save(ctx context.Context, typeName string, data model.EntityMap, opts SaveOptions) (out model.EntityMap, err error) {
	ctx, done := e.observe(ctx, "save", typeAttr(typeName))
	defer func() { done(err) }()

	t, err := e.registry.Resolve(ctx, typeName)
	if err != nil {
		return nil, err
	}
	d, err := model.Decode(t, data)
	if err != nil {
		return nil, err
	}

	var cs *model.ChangeSet
	if d.ID == "" {
		cs, err = e.planCreate(ctx, d, opts)
	} else {
		cs, err = e.planUpdate(ctx, d)
	}
	if err != nil {
		return nil, err
	}
	cs.Timestamp = e.clock.Now()
	cs.User = opts.User
	cs.Comment = opts.Comment

	rec, err := e.backend.Apply(ctx, cs)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("save", "type", typeName, "id", rec.ID, "revision", rec.Revision,
		"version", rec.Version, "create", cs.Create, "backend", e.backend.Name())

	el, ok, err := model.Materialize(rec, revision.Head())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ir.NewCorruptionError("element %s has no state after save", rec.ID)
	}
	return el.Map(), nil
}

func (e *Engine) planCreate(ctx context.Context, d *model.Draft, opts SaveOptions) (*model.ChangeSet, error) {
	d.ID = e.ids.Generate()
	cs, err := model.PlanSave(nil, d)
	if err != nil {
		return nil, err
	}

	owner := d.Owner
	if owner == "" {
		owner = opts.User
	}
	if owner != "" {
		if err := e.assignOwner(ctx, cs, owner, d.Group); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func (e *Engine) planUpdate(ctx context.Context, d *model.Draft) (*model.ChangeSet, error) {
	rec, ok, err := e.backend.Load(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ir.NewNotFoundError(d.ID)
	}
	if rec.Type != d.Type {
		return nil, ir.NewValidationError("element %s is a %s, not a %s", d.ID, rec.Type, d.Type).
			With("id", d.ID)
	}
	if !d.HasVersion {
		return nil, ir.NewValidationError("saving element %s requires its version", d.ID).
			With("id", d.ID)
	}

	cs, err := model.PlanSave(rec, d)
	if err != nil {
		return nil, err
	}

	ownerChanged := d.Owner != "" && d.Owner != rec.Owner
	groupChanged := d.Group != "" && d.Group != rec.Group
	if ownerChanged || groupChanged {
		owner := rec.Owner
		if d.Owner != "" {
			owner = d.Owner
		}
		group := d.Group
		if group == "" && !ownerChanged {
			group = rec.Group
		}
		if err := e.assignOwner(ctx, cs, owner, group); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

// assignOwner resolves username through the identity provider and sets the
// owner header of cs. An empty group defaults to the owner's first group.
func (e *Engine) assignOwner(ctx context.Context, cs *model.ChangeSet, username, group string) error {
	o, err := e.owners.ResolveOwner(ctx, username)
	if err != nil {
		return fmt.Errorf("resolve owner %s: %w", username, err)
	}
	if group == "" && len(o.Groups) > 0 {
		group = o.Groups[0]
	}
	cs.Owner = o.Username
	cs.OwnerName = o.DisplayName
	cs.Group = group
	return nil
}

// DeleteByID marks the element deleted through a new revision. Earlier
// revisions stay readable by point-in-time queries.
func (e *Engine) DeleteByID(ctx context.Context, id, typeName, user string) (err error) {
	ctx, done := e.observe(ctx, "delete", typeAttr(typeName))
	defer func() { done(err) }()

	if _, err := e.registry.Resolve(ctx, typeName); err != nil {
		return err
	}
	rec, ok, err := e.backend.Load(ctx, id)
	if err != nil {
		return err
	}
	if !ok || rec.Type != typeName {
		return ir.NewNotFoundError(id)
	}
	deleted, err := rec.Deleted()
	if err != nil {
		return err
	}
	if deleted {
		return ir.NewNotFoundError(id)
	}

	cs := &model.ChangeSet{
		ElementID:       id,
		Type:            typeName,
		Delete:          true,
		ExpectedVersion: rec.Version,
		Timestamp:       e.clock.Now(),
		User:            user,
	}
	applied, err := e.backend.Apply(ctx, cs)
	if err != nil {
		return err
	}
	e.logger.Debug("delete", "type", typeName, "id", id, "revision", applied.Revision, "backend", e.backend.Name())
	return nil
}

// CheckVersion returns a CONFLICT when the stored version of id differs
// from expected. An element that does not exist passes. The check holds no
// lock; Save repeats it atomically with the write.
func (e *Engine) CheckVersion(ctx context.Context, id string, expected int64, typeName string) (err error) {
	ctx, done := e.observe(ctx, "check_version", typeAttr(typeName))
	defer func() { done(err) }()

	if _, err := e.registry.Resolve(ctx, typeName); err != nil {
		return err
	}
	stored, ok, err := e.backend.StoredVersion(ctx, id)
	if err != nil {
		return err
	}
	if ok && stored != expected {
		return ir.NewConflictError(id, expected, stored)
	}
	return nil
}
