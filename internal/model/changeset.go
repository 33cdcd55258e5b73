package model

import (
	"slices"
	"time"

	"github.com/roach88/elementstore/internal/ir"
)

// ChangeSet describes one revision-producing save of one element.
//
// Properties and Refs hold only the sub-objects whose content changed; an
// empty Values or nil slice clears the attribute or reference slot.
type ChangeSet struct {
	ElementID string
	Type      string

	// Create marks the first save of a new element.
	Create bool

	// Delete sets the deleted marker.
	Delete bool

	// ExpectedVersion is the caller's version for updates.
	ExpectedVersion int64

	// Owner, OwnerName and Group replace the header fields when Owner is set.
	Owner     string
	OwnerName string
	Group     string

	Timestamp time.Time
	User      string
	Comment   string

	Properties map[string]ir.Values
	Refs       map[string][]string
}

// Modification returns the history record of cs at revision rev.
func (cs *ChangeSet) Modification(rev int64) ir.Modification {
	return ir.Modification{
		Revision:  rev,
		ElementID: cs.ElementID,
		Timestamp: cs.Timestamp,
		User:      cs.User,
		Comment:   cs.Comment,
	}
}

// PlanSave compares a decoded draft with the stored record and returns the
// change set holding only the attributes and references whose content
// differs from the head. current is nil for a new element.
func PlanSave(current *Record, d *Draft) (*ChangeSet, error) {
	cs := &ChangeSet{
		ElementID:  d.ID,
		Type:       d.Type,
		Create:     current == nil,
		Properties: make(map[string]ir.Values),
		Refs:       make(map[string][]string),
	}
	if current != nil {
		cs.ExpectedVersion = d.Version
	}

	var head *Element
	if current != nil {
		el, ok, err := Materialize(current, headView)
		if err != nil {
			return nil, err
		}
		if !ok || el.Deleted {
			return nil, ir.NewNotFoundError(current.ID)
		}
		head = el
	}

	for name, vals := range d.Properties {
		if head != nil {
			if prev, ok := head.Properties[name]; ok && prev.Equal(vals) {
				continue
			}
			if _, ok := head.Properties[name]; !ok && vals.Empty() {
				continue
			}
		} else if vals.Empty() {
			continue
		}
		cs.Properties[name] = vals
	}

	for name, ids := range d.Refs {
		if head != nil {
			if prev, ok := head.Refs[name]; ok && slices.Equal(prev, ids) {
				continue
			}
			if _, ok := head.Refs[name]; !ok && len(ids) == 0 {
				continue
			}
		} else if len(ids) == 0 {
			continue
		}
		cs.Refs[name] = ids
	}
	return cs, nil
}
