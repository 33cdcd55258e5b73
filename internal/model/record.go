// Package model holds the stored and materialized forms of elements.
//
// A Record is an element as persisted: header fields plus one revision chain
// for its state, one per property and one per reference slot. An Element is
// a Record materialized under a revision.View. ChangeSet is the
// backend-neutral description of one save; both backends apply it through
// Record.Apply so the revision-chain transitions are identical.
package model

import (
	"sort"
	"time"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/revision"
)

// State is the versioned lifecycle marker of an element.
type State struct {
	Deleted bool
}

// Record is the stored form of an element.
type Record struct {
	ID        string
	Type      string
	Owner     string
	OwnerName string
	Group     string
	CreatedAt time.Time
	ChangedAt time.Time

	// Revision is the latest revision that touched the element.
	Revision int64

	// Version is the optimistic concurrency counter.
	Version int64

	State      *revision.Chain[State]
	Properties map[string]*revision.Chain[ir.Values]
	Refs       map[string]*revision.Chain[[]string]
}

// NewRecord returns an empty record with initialized chains.
func NewRecord(id, typeName string) *Record {
	return &Record{
		ID:         id,
		Type:       typeName,
		State:      &revision.Chain[State]{},
		Properties: make(map[string]*revision.Chain[ir.Values]),
		Refs:       make(map[string]*revision.Chain[[]string]),
	}
}

// Exists reports whether the record has ever been persisted.
func (r *Record) Exists() bool {
	return r.State != nil && r.State.Len() > 0
}

// Deleted reports whether the head state carries the deleted marker.
func (r *Record) Deleted() (bool, error) {
	head, err := r.State.Head()
	if err != nil {
		return false, err
	}
	return head.Data.Deleted, nil
}

// Verify checks every chain of the record.
func (r *Record) Verify() error {
	if err := r.State.Verify(); err != nil {
		return err
	}
	for _, name := range sortedKeys(r.Properties) {
		if err := r.Properties[name].Verify(); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(r.Refs) {
		if err := r.Refs[name].Verify(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the chains so Apply can run on the copy.
func (r *Record) Clone() *Record {
	out := *r
	out.State = &revision.Chain[State]{}
	if r.State != nil {
		out.State = r.State.Clone()
	}
	out.Properties = make(map[string]*revision.Chain[ir.Values], len(r.Properties))
	for k, c := range r.Properties {
		out.Properties[k] = c.Clone()
	}
	out.Refs = make(map[string]*revision.Chain[[]string], len(r.Refs))
	for k, c := range r.Refs {
		out.Refs[k] = c.Clone()
	}
	return &out
}

// Applied lists the chain transitions produced by Apply, keyed by property
// or reference name. State is nil when the state chain was not touched.
type Applied struct {
	Revision   int64
	State      *revision.Transition
	Properties map[string]revision.Transition
	Refs       map[string]revision.Transition
}

// Apply records cs as revision rev.
//
// Only the sub-objects named by cs get a new version; every other chain is
// left as is, so unmodified attributes carry forward. For updates the
// record's version must equal cs.ExpectedVersion, otherwise a CONFLICT is
// returned and the record is not modified.
func (r *Record) Apply(cs *ChangeSet, rev int64) (*Applied, error) {
	if cs.Create {
		if r.Exists() {
			return nil, ir.NewConflictError(r.ID, 0, r.Version)
		}
	} else {
		if !r.Exists() {
			return nil, ir.NewNotFoundError(r.ID)
		}
		if r.Version != cs.ExpectedVersion {
			return nil, ir.NewConflictError(r.ID, cs.ExpectedVersion, r.Version)
		}
	}

	next := r.Clone()
	applied := &Applied{
		Revision:   rev,
		Properties: make(map[string]revision.Transition),
		Refs:       make(map[string]revision.Transition),
	}

	if cs.Create || cs.Delete {
		tr, err := next.State.CreateNewVersion(rev, State{Deleted: cs.Delete})
		if err != nil {
			return nil, err
		}
		applied.State = &tr
	}

	for _, name := range sortedKeys(cs.Properties) {
		chain, ok := next.Properties[name]
		if !ok {
			chain = &revision.Chain[ir.Values]{}
			next.Properties[name] = chain
		}
		tr, err := chain.CreateNewVersion(rev, cs.Properties[name])
		if err != nil {
			return nil, err
		}
		applied.Properties[name] = tr
	}

	for _, name := range sortedKeys(cs.Refs) {
		chain, ok := next.Refs[name]
		if !ok {
			chain = &revision.Chain[[]string]{}
			next.Refs[name] = chain
		}
		tr, err := chain.CreateNewVersion(rev, cs.Refs[name])
		if err != nil {
			return nil, err
		}
		applied.Refs[name] = tr
	}

	if cs.Create {
		next.CreatedAt = cs.Timestamp
		next.Version = 0
	}
	if cs.Owner != "" {
		next.Owner = cs.Owner
		next.OwnerName = cs.OwnerName
		next.Group = cs.Group
	}
	next.ChangedAt = cs.Timestamp
	next.Revision = rev
	next.Version++

	*r = *next
	return applied, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
