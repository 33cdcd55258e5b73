// Package revision manages append-only revision chains.
//
// Every versioned sub-object of an element (its state, each property value
// list, each reference list) is a Chain. A chain is a sequence of versions
// linked by next-revision pointers; the version whose pointer equals
// ir.MaxRevision is the head. CreateNewVersion is the only operation that
// touches an existing version, and it only rewrites the head's pointer.
package revision

import (
	"github.com/roach88/elementstore/internal/ir"
)

// Version is one entry of a chain.
type Version[T any] struct {
	Revision     int64
	NextRevision int64
	Data         T
}

// IsHead reports whether v is the current version.
func (v Version[T]) IsHead() bool {
	return v.NextRevision == ir.MaxRevision
}

// ValidAt reports whether v was the current version at revision r.
func (v Version[T]) ValidAt(r int64) bool {
	return v.Revision <= r && v.NextRevision > r
}

// Chain is the ordered version history of one sub-object.
// Versions are kept in ascending revision order.
type Chain[T any] struct {
	Versions []Version[T]
}

// Transition describes the rows touched by CreateNewVersion.
// Previous is 0 when the chain was empty.
type Transition struct {
	Previous int64
	Revision int64
}

// Len returns the number of versions.
func (c *Chain[T]) Len() int {
	return len(c.Versions)
}

// Head returns the current version.
// Returns a CORRUPTION error when the chain has no head or more than one.
func (c *Chain[T]) Head() (Version[T], error) {
	idx, err := c.headIndex()
	if err != nil {
		return Version[T]{}, err
	}
	return c.Versions[idx], nil
}

func (c *Chain[T]) headIndex() (int, error) {
	found := -1
	for i, v := range c.Versions {
		if !v.IsHead() {
			continue
		}
		if found >= 0 {
			return -1, ir.NewCorruptionError("revision chain has two heads (revisions %d and %d)",
				c.Versions[found].Revision, v.Revision)
		}
		found = i
	}
	if found < 0 {
		return -1, ir.NewCorruptionError("revision chain of %d versions has no head", len(c.Versions))
	}
	return found, nil
}

// AsOf returns the version that was current at revision r: the one with the
// largest revision number not greater than r. ok is false when the
// sub-object did not exist yet at r.
func (c *Chain[T]) AsOf(r int64) (Version[T], bool) {
	best := -1
	for i, v := range c.Versions {
		if v.Revision > r {
			continue
		}
		if best < 0 || v.Revision > c.Versions[best].Revision {
			best = i
		}
	}
	if best < 0 {
		return Version[T]{}, false
	}
	return c.Versions[best], true
}

// CreateNewVersion appends data as the new head at revision rev and relinks
// the previous head to rev.
//
// rev must be greater than every revision already in the chain. A non-empty
// chain without a head is reported as corruption and left untouched.
func (c *Chain[T]) CreateNewVersion(rev int64, data T) (Transition, error) {
	if rev <= 0 || rev == ir.MaxRevision {
		return Transition{}, ir.NewValidationError("invalid revision number %d", rev)
	}
	for _, v := range c.Versions {
		if v.Revision >= rev {
			return Transition{}, ir.NewCorruptionError("revision %d is not newer than existing revision %d", rev, v.Revision)
		}
	}

	t := Transition{Revision: rev}
	if len(c.Versions) > 0 {
		idx, err := c.headIndex()
		if err != nil {
			return Transition{}, err
		}
		c.Versions[idx].NextRevision = rev
		t.Previous = c.Versions[idx].Revision
	}

	c.Versions = append(c.Versions, Version[T]{
		Revision:     rev,
		NextRevision: ir.MaxRevision,
		Data:         data,
	})
	return t, nil
}

// Verify checks the structural invariants of the chain: ascending
// revisions, exactly one head, and every non-head pointer naming the
// revision of the version that follows it.
func (c *Chain[T]) Verify() error {
	if len(c.Versions) == 0 {
		return nil
	}
	for i, v := range c.Versions {
		if i == len(c.Versions)-1 {
			if !v.IsHead() {
				return ir.NewCorruptionError("last version %d is not the head (next=%d)", v.Revision, v.NextRevision)
			}
			break
		}
		next := c.Versions[i+1]
		if next.Revision <= v.Revision {
			return ir.NewCorruptionError("revisions out of order: %d before %d", v.Revision, next.Revision)
		}
		if v.NextRevision != next.Revision {
			return ir.NewCorruptionError("version %d points at %d, expected %d", v.Revision, v.NextRevision, next.Revision)
		}
	}
	return nil
}

// Clone returns a copy whose version slice can be mutated independently.
func (c *Chain[T]) Clone() *Chain[T] {
	out := &Chain[T]{Versions: make([]Version[T], len(c.Versions))}
	copy(out.Versions, c.Versions)
	return out
}
