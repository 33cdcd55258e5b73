package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/elementstore/internal/ir"
)

// SearchOp is a backend-neutral predicate over one attribute's values.
//
// This is a sealed interface - only types in this package implement it.
type SearchOp interface {
	searchOp() // Marker method - seals interface to this package
	String() string
}

// Equals matches values equal to Value. For string and cdata attributes a
// "%" in Value turns the match into a wildcard match. IgnoreCase compares
// case-folded text and has no effect on other kinds. Negate inverts the
// attribute filter.
type Equals struct {
	Value      ir.Value
	IgnoreCase bool
	Negate     bool
}

// GreaterThan matches values strictly greater than Value.
// Only numeric and date attributes support it.
type GreaterThan struct {
	Value ir.Value
}

// Bound selects per-side inclusivity of an Interval.
type Bound int

const (
	// Bounded includes both ends.
	Bounded Bound = iota
	// Open excludes both ends.
	Open
	// LeftOpen excludes the lower end and includes the upper one.
	LeftOpen
	// RightOpen includes the lower end and excludes the upper one.
	RightOpen
)

// LowerInclusive reports whether the lower bound itself matches.
func (b Bound) LowerInclusive() bool {
	return b == Bounded || b == RightOpen
}

// UpperInclusive reports whether the upper bound itself matches.
func (b Bound) UpperInclusive() bool {
	return b == Bounded || b == LeftOpen
}

func (b Bound) String() string {
	switch b {
	case Bounded:
		return "bounded"
	case Open:
		return "open"
	case LeftOpen:
		return "left-open"
	case RightOpen:
		return "right-open"
	default:
		return fmt.Sprintf("Bound(%d)", int(b))
	}
}

// Interval matches values between Lower and Upper. A nil bound is
// unbounded on that side; at least one must be present.
type Interval struct {
	Lower ir.Value
	Upper ir.Value
	Bound Bound
}

// In matches values equal to any of Values. An empty set matches nothing.
type In struct {
	Values []ir.Value
}

func (Equals) searchOp()      {}
func (GreaterThan) searchOp() {}
func (Interval) searchOp()    {}
func (In) searchOp()          {}

func (op Equals) String() string {
	s := "= " + valueText(op.Value)
	if op.IgnoreCase {
		s = "~" + s
	}
	if op.Negate {
		s = "!" + s
	}
	return s
}

func (op GreaterThan) String() string {
	return "> " + valueText(op.Value)
}

func (op Interval) String() string {
	left, right := "[", "]"
	if !op.Bound.LowerInclusive() {
		left = "("
	}
	if !op.Bound.UpperInclusive() {
		right = ")"
	}
	return left + valueText(op.Lower) + "," + valueText(op.Upper) + right
}

func (op In) String() string {
	parts := make([]string, len(op.Values))
	for i, v := range op.Values {
		parts[i] = valueText(v)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func valueText(v ir.Value) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// IsPattern reports whether op is a wildcard match.
func (op Equals) IsPattern() bool {
	return op.Value != nil && op.Value.Kind().Textual() && HasWildcard(op.Value.String())
}

// Folds reports whether op compares case-folded text.
func (op Equals) Folds() bool {
	return op.IgnoreCase && op.Value != nil && op.Value.Kind().Textual()
}

// Eq builds an Equals from a textual literal.
func Eq(literal string) Equals {
	return Equals{Value: ir.Raw(literal)}
}

// Gt builds a GreaterThan from a textual literal.
func Gt(literal string) GreaterThan {
	return GreaterThan{Value: ir.Raw(literal)}
}

// Between builds an Interval from textual literals. An empty literal is a
// missing bound.
func Between(lower, upper string, b Bound) Interval {
	op := Interval{Bound: b}
	if lower != "" {
		op.Lower = ir.Raw(lower)
	}
	if upper != "" {
		op.Upper = ir.Raw(upper)
	}
	return op
}

// OneOf builds an In from textual literals.
func OneOf(literals ...string) In {
	op := In{Values: make([]ir.Value, len(literals))}
	for i, l := range literals {
		op.Values[i] = ir.Raw(l)
	}
	return op
}

// bindOp converts the literals of op to kind k and checks that the operator
// applies to that kind.
func bindOp(op SearchOp, attr string, k ir.Kind) (SearchOp, error) {
	switch op := op.(type) {
	case Equals:
		v, err := convert(op.Value, attr, k)
		if err != nil {
			return nil, err
		}
		op.Value = v
		return op, nil
	case GreaterThan:
		if !k.Ordered() {
			return nil, ir.NewValidationError("greater-than is not supported on %s attribute %q", k, attr)
		}
		v, err := convert(op.Value, attr, k)
		if err != nil {
			return nil, err
		}
		op.Value = v
		return op, nil
	case Interval:
		if k == ir.KindBoolean {
			return nil, ir.NewValidationError("interval is not supported on boolean attribute %q", attr)
		}
		if op.Lower == nil && op.Upper == nil {
			return nil, ir.NewValidationError("interval on %q needs at least one bound", attr)
		}
		if op.Bound < Bounded || op.Bound > RightOpen {
			return nil, ir.NewValidationError("interval on %q has unknown bound kind %d", attr, int(op.Bound))
		}
		var err error
		if op.Lower != nil {
			if op.Lower, err = convert(op.Lower, attr, k); err != nil {
				return nil, err
			}
		}
		if op.Upper != nil {
			if op.Upper, err = convert(op.Upper, attr, k); err != nil {
				return nil, err
			}
		}
		return op, nil
	case In:
		out := In{Values: make([]ir.Value, len(op.Values))}
		for i, v := range op.Values {
			cv, err := convert(v, attr, k)
			if err != nil {
				return nil, err
			}
			out.Values[i] = cv
		}
		return out, nil
	case nil:
		return nil, ir.NewValidationError("missing search operator for %q", attr)
	default:
		return nil, fmt.Errorf("unsupported search operator type: %T", op)
	}
}

func convert(v ir.Value, attr string, k ir.Kind) (ir.Value, error) {
	out, err := ir.Convert(v, k)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", attr, err)
	}
	return out, nil
}
