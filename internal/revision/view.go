package revision

import "fmt"

// Mode selects which versions of a chain a query sees.
type Mode int

const (
	// ModeHead sees only the current version.
	ModeHead Mode = iota
	// ModeAsOf sees the version that was current at View.Revision.
	ModeAsOf
	// ModeAny sees every version. Materialization under ModeAny uses the head.
	ModeAny
)

func (m Mode) String() string {
	switch m {
	case ModeHead:
		return "head"
	case ModeAsOf:
		return "as-of"
	case ModeAny:
		return "any"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// View is a traversal mode plus the revision used by ModeAsOf.
type View struct {
	Mode     Mode
	Revision int64
}

// Head returns the head-only view.
func Head() View { return View{Mode: ModeHead} }

// AsOf returns the point-in-time view at revision r.
func AsOf(r int64) View { return View{Mode: ModeAsOf, Revision: r} }

// Any returns the all-versions view.
func Any() View { return View{Mode: ModeAny} }

func (v View) String() string {
	if v.Mode == ModeAsOf {
		return fmt.Sprintf("as-of %d", v.Revision)
	}
	return v.Mode.String()
}

// Visible reports whether version ver is matched under v.
func Visible[T any](ver Version[T], v View) bool {
	switch v.Mode {
	case ModeAsOf:
		return ver.ValidAt(v.Revision)
	case ModeAny:
		return true
	default:
		return ver.IsHead()
	}
}

// Pick returns the single version materialized under v. ok is false when the
// sub-object has no version visible under v. A chain without a head is
// reported as corruption for head and any views.
func Pick[T any](c *Chain[T], v View) (ver Version[T], ok bool, err error) {
	if c == nil || c.Len() == 0 {
		return Version[T]{}, false, nil
	}
	if v.Mode == ModeAsOf {
		ver, ok = c.AsOf(v.Revision)
		return ver, ok, nil
	}
	ver, err = c.Head()
	if err != nil {
		return Version[T]{}, false, err
	}
	return ver, true, nil
}
