package model

import (
	"fmt"
	"time"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/revision"
)

var headView = revision.Head()

// Element is a record materialized under one view.
// Cleared attributes and reference slots are omitted.
type Element struct {
	ID        string
	Type      string
	Owner     string
	OwnerName string
	Group     string
	CreatedAt time.Time
	ChangedAt time.Time
	Revision  int64
	Version   int64
	Deleted   bool

	Properties map[string]ir.Values
	Refs       map[string][]string
}

// Result is what a backend returns for a find.
type Result struct {
	Elements []*Element

	// Paginated is false when the backend ignored the requested page and
	// returned every match; the caller must then paginate.
	Paginated bool
}

// Materialize builds the element visible under view. ok is false when the
// element did not exist under that view. Under revision.ModeAny the head is
// used.
func Materialize(r *Record, view revision.View) (*Element, bool, error) {
	state, ok, err := revision.Pick(r.State, view)
	if err != nil {
		return nil, false, fmt.Errorf("element %s state: %w", r.ID, err)
	}
	if !ok {
		return nil, false, nil
	}

	el := &Element{
		ID:         r.ID,
		Type:       r.Type,
		Owner:      r.Owner,
		OwnerName:  r.OwnerName,
		Group:      r.Group,
		CreatedAt:  r.CreatedAt,
		ChangedAt:  r.ChangedAt,
		Revision:   r.Revision,
		Version:    r.Version,
		Deleted:    state.Data.Deleted,
		Properties: make(map[string]ir.Values),
		Refs:       make(map[string][]string),
	}
	latest := state.Revision

	for name, chain := range r.Properties {
		v, ok, err := revision.Pick(chain, view)
		if err != nil {
			return nil, false, fmt.Errorf("element %s property %s: %w", r.ID, name, err)
		}
		if !ok || v.Data.Empty() {
			continue
		}
		el.Properties[name] = v.Data
		latest = max(latest, v.Revision)
	}

	for name, chain := range r.Refs {
		v, ok, err := revision.Pick(chain, view)
		if err != nil {
			return nil, false, fmt.Errorf("element %s reference %s: %w", r.ID, name, err)
		}
		if !ok || len(v.Data) == 0 {
			continue
		}
		el.Refs[name] = v.Data
		latest = max(latest, v.Revision)
	}

	if view.Mode == revision.ModeAsOf {
		el.Revision = latest
	}
	return el, true, nil
}
