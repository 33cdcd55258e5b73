package ir

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface over the closed set of primitive kinds.
// Only the types in this file implement it.
type Value interface {
	Kind() Kind
	String() string
	value() // Sealed
}

// String is a short text value.
type String string

// CDATA is an unbounded text value. It matches like String but is stored in
// its own column on the relational backend.
type CDATA string

// Long is a 64-bit integer value.
type Long int64

// Integer is a 32-bit integer value.
type Integer int32

// Double is a 64-bit floating point value. NaN and infinities are rejected
// at construction.
type Double float64

// Boolean is a truth value.
type Boolean bool

// Raw is a textual literal whose kind is decided later by Convert.
type Raw string

// Decimal is an exact decimal value backed by apd.
// The zero value is 0.
type Decimal struct {
	d *apd.Decimal
}

// Date is a point in time with millisecond precision, always in UTC.
type Date struct {
	t time.Time
}

func (String) value()  {}
func (CDATA) value()   {}
func (Long) value()    {}
func (Integer) value() {}
func (Double) value()  {}
func (Boolean) value() {}
func (Raw) value()     {}
func (Decimal) value() {}
func (Date) value()    {}

func (String) Kind() Kind  { return KindString }
func (CDATA) Kind() Kind   { return KindCDATA }
func (Long) Kind() Kind    { return KindLong }
func (Integer) Kind() Kind { return KindInteger }
func (Double) Kind() Kind  { return KindDouble }
func (Boolean) Kind() Kind { return KindBoolean }
func (Raw) Kind() Kind     { return KindRaw }
func (Decimal) Kind() Kind { return KindDecimal }
func (Date) Kind() Kind    { return KindDate }

func (v String) String() string  { return string(v) }
func (v CDATA) String() string   { return string(v) }
func (v Long) String() string    { return strconv.FormatInt(int64(v), 10) }
func (v Integer) String() string { return strconv.FormatInt(int64(v), 10) }
func (v Double) String() string  { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Boolean) String() string { return strconv.FormatBool(bool(v)) }
func (v Raw) String() string     { return string(v) }

func (v Decimal) String() string {
	if v.d == nil {
		return "0"
	}
	return v.d.Text('f')
}

func (v Date) String() string {
	return v.t.Format(time.RFC3339Nano)
}

// NewString returns an NFC-normalized String.
func NewString(s string) String {
	return String(norm.NFC.String(s))
}

// NewCDATA returns an NFC-normalized CDATA value.
func NewCDATA(s string) CDATA {
	return CDATA(norm.NFC.String(s))
}

// NewDate truncates t to milliseconds and converts it to UTC.
func NewDate(t time.Time) Date {
	return Date{t: t.UTC().Truncate(time.Millisecond)}
}

// DateFromMillis builds a Date from Unix milliseconds.
func DateFromMillis(ms int64) Date {
	return Date{t: time.UnixMilli(ms).UTC()}
}

// Time returns the date as a time.Time in UTC.
func (v Date) Time() time.Time { return v.t }

// Millis returns the date as Unix milliseconds.
func (v Date) Millis() int64 { return v.t.UnixMilli() }

// NewDecimal parses an exact decimal from its textual form.
func NewDecimal(s string) (Decimal, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Decimal{}, NewValidationError("invalid decimal literal %q", s)
	}
	if d.Form != apd.Finite {
		return Decimal{}, NewValidationError("decimal literal %q is not finite", s)
	}
	return Decimal{d: d}, nil
}

// DecimalFromFloat converts f to an exact decimal.
func DecimalFromFloat(f float64) (Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Decimal{}, NewValidationError("decimal value %v is not finite", f)
	}
	d, err := new(apd.Decimal).SetFloat64(f)
	if err != nil {
		return Decimal{}, NewValidationError("invalid decimal value %v: %v", f, err)
	}
	return Decimal{d: d}, nil
}

// DecimalFromInt converts n to a decimal.
func DecimalFromInt(n int64) Decimal {
	return Decimal{d: apd.New(n, 0)}
}

// Float64 returns the nearest float64. Used for the relational REAL column.
func (v Decimal) Float64() float64 {
	if v.d == nil {
		return 0
	}
	f, err := v.d.Float64()
	if err != nil {
		return math.NaN()
	}
	return f
}

func (v Decimal) apd() *apd.Decimal {
	if v.d == nil {
		return apd.New(0, 0)
	}
	return v.d
}

// Parse converts text into a value of kind k.
// Returns a ValidationError when the text is not a valid literal of k.
func Parse(k Kind, text string) (Value, error) {
	switch k {
	case KindString:
		return NewString(text), nil
	case KindCDATA:
		return NewCDATA(text), nil
	case KindLong:
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return nil, NewValidationError("invalid long literal %q", text)
		}
		return Long(n), nil
	case KindInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
		if err != nil {
			return nil, NewValidationError("invalid integer literal %q", text)
		}
		return Integer(int32(n)), nil
	case KindDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, NewValidationError("invalid double literal %q", text)
		}
		return Double(f), nil
	case KindDecimal:
		return NewDecimal(text)
	case KindDate:
		return parseDate(text)
	case KindBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil {
			return nil, NewValidationError("invalid boolean literal %q", text)
		}
		return Boolean(b), nil
	case KindRaw:
		return Raw(text), nil
	default:
		return nil, NewSchemaError("unknown property kind %q", string(k))
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(text string) (Value, error) {
	s := strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return DateFromMillis(ms), nil
	}
	return nil, NewValidationError("invalid date literal %q", text)
}

// Convert coerces v into kind k.
//
// Raw literals are parsed; lossless numeric widenings and the
// string/cdata pair are converted; anything else is a ValidationError.
func Convert(v Value, k Kind) (Value, error) {
	if v == nil {
		return nil, NewValidationError("missing %s value", k)
	}
	if v.Kind() == k {
		return v, nil
	}
	if r, ok := v.(Raw); ok {
		return Parse(k, string(r))
	}
	switch k {
	case KindString:
		if c, ok := v.(CDATA); ok {
			return String(c), nil
		}
	case KindCDATA:
		if s, ok := v.(String); ok {
			return CDATA(s), nil
		}
	case KindLong:
		if n, ok := v.(Integer); ok {
			return Long(n), nil
		}
	case KindInteger:
		if n, ok := v.(Long); ok {
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, NewValidationError("value %d out of integer range", int64(n))
			}
			return Integer(int32(n)), nil
		}
	case KindDouble:
		switch n := v.(type) {
		case Long:
			return Double(float64(n)), nil
		case Integer:
			return Double(float64(n)), nil
		}
	case KindDecimal:
		switch n := v.(type) {
		case Long:
			return DecimalFromInt(int64(n)), nil
		case Integer:
			return DecimalFromInt(int64(n)), nil
		case Double:
			return DecimalFromFloat(float64(n))
		}
	}
	return nil, NewValidationError("cannot use %s value %q as %s", v.Kind(), v.String(), k)
}

// Compare orders two values of the same kind.
// Returns -1, 0 or +1. Comparing different kinds is a ValidationError.
func Compare(a, b Value) (int, error) {
	if a.Kind() != b.Kind() {
		return 0, NewValidationError("cannot compare %s with %s", a.Kind(), b.Kind())
	}
	switch x := a.(type) {
	case String:
		return strings.Compare(string(x), string(b.(String))), nil
	case CDATA:
		return strings.Compare(string(x), string(b.(CDATA))), nil
	case Raw:
		return strings.Compare(string(x), string(b.(Raw))), nil
	case Long:
		return cmp.Compare(x, b.(Long)), nil
	case Integer:
		return cmp.Compare(x, b.(Integer)), nil
	case Double:
		return cmp.Compare(x, b.(Double)), nil
	case Decimal:
		return x.apd().Cmp(b.(Decimal).apd()), nil
	case Date:
		return cmp.Compare(x.Millis(), b.(Date).Millis()), nil
	case Boolean:
		y := b.(Boolean)
		switch {
		case x == y:
			return 0, nil
		case !bool(x):
			return -1, nil
		default:
			return 1, nil
		}
	default:
		return 0, fmt.Errorf("compare: unsupported value type %T", a)
	}
}

// Equal reports whether a and b have the same kind and compare equal.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, err := Compare(a, b)
	return err == nil && c == 0
}

// Collate orders two values the way queries see them. It agrees with Compare
// except for decimals, which collate by their float64 image so that every
// backend matches the relational REAL column.
func Collate(a, b Value) (int, error) {
	if x, ok := a.(Decimal); ok {
		if y, ok := b.(Decimal); ok {
			return cmp.Compare(x.Float64(), y.Float64()), nil
		}
	}
	return Compare(a, b)
}

// CollateEqual reports whether a and b collate equal.
func CollateEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, err := Collate(a, b)
	return err == nil && c == 0
}

// FromNative converts a Go value decoded from an entity map (JSON, YAML or
// Go literals) into a value of kind k.
func FromNative(k Kind, v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return nil, NewValidationError("missing %s value", k)
	case Value:
		return Convert(x, k)
	case string:
		return Parse(k, x)
	case json.Number:
		return Parse(k, x.String())
	case bool:
		return Convert(Boolean(x), k)
	case int:
		return Convert(Long(x), k)
	case int32:
		return Convert(Long(x), k)
	case int64:
		return Convert(Long(x), k)
	case uint64:
		if x > math.MaxInt64 {
			return nil, NewValidationError("value %d out of long range", x)
		}
		return Convert(Long(int64(x)), k)
	case float64:
		if k == KindLong || k == KindInteger {
			if x != math.Trunc(x) {
				return nil, NewValidationError("value %v is not a whole number", x)
			}
			return Convert(Long(int64(x)), k)
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, NewValidationError("value %v is not finite", x)
		}
		return Convert(Double(x), k)
	case time.Time:
		return Convert(NewDate(x), k)
	case *apd.Decimal:
		return Convert(Decimal{d: x}, k)
	default:
		return nil, NewValidationError("unsupported %s value of type %T", k, v)
	}
}

// ToNative converts v into the Go value used in entity maps.
// Decimals are returned as their exact text.
func ToNative(v Value) any {
	switch x := v.(type) {
	case String:
		return string(x)
	case CDATA:
		return string(x)
	case Raw:
		return string(x)
	case Long:
		return int64(x)
	case Integer:
		return int64(x)
	case Double:
		return float64(x)
	case Decimal:
		return x.String()
	case Date:
		return x.Time()
	case Boolean:
		return bool(x)
	default:
		return nil
	}
}
