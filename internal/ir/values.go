package ir

import "slices"

// Values is the content of one property value list: an ordered sequence of
// values of a single kind, optionally shaped by a dimension vector
// (e.g. [2, 3] for a 2x3 matrix stored row-major).
type Values struct {
	Items []Value
	Dims  []int
}

// Single wraps one value.
func Single(v Value) Values {
	return Values{Items: []Value{v}}
}

// Empty reports whether the list holds no values.
func (v Values) Empty() bool {
	return len(v.Items) == 0
}

// Equal reports whether two lists hold equal values in the same order with
// the same shape.
func (v Values) Equal(o Values) bool {
	if len(v.Items) != len(o.Items) || !slices.Equal(v.Dims, o.Dims) {
		return false
	}
	for i := range v.Items {
		if !Equal(v.Items[i], o.Items[i]) {
			return false
		}
	}
	return true
}

// Validate checks that every item has kind k and that the dimension vector,
// when present, describes exactly len(Items) cells.
func (v Values) Validate(k Kind) error {
	for i, item := range v.Items {
		if item == nil || item.Kind() != k {
			return NewValidationError("value %d is not a %s", i, k)
		}
	}
	if len(v.Dims) == 0 {
		return nil
	}
	cells := 1
	for _, d := range v.Dims {
		if d <= 0 {
			return NewValidationError("dimension %d must be positive", d)
		}
		cells *= d
	}
	if cells != len(v.Items) {
		return NewValidationError("dimensions %v describe %d cells, got %d values", v.Dims, cells, len(v.Items))
	}
	return nil
}
