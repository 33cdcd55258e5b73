package ir

// Kind identifies the primitive type of a property value.
// The set is closed: every stored value carries exactly one of these kinds.
type Kind string

const (
	KindString  Kind = "string"
	KindLong    Kind = "long"
	KindInteger Kind = "integer"
	KindDouble  Kind = "double"
	KindDecimal Kind = "decimal"
	KindDate    Kind = "date"
	KindBoolean Kind = "boolean"
	KindCDATA   Kind = "cdata"

	// KindRaw marks an untyped textual literal that has not yet been
	// resolved against a PropertyType.
	KindRaw Kind = "raw"
)

var storableKinds = []Kind{
	KindString, KindLong, KindInteger, KindDouble,
	KindDecimal, KindDate, KindBoolean, KindCDATA,
}

// Kinds returns the storable kinds in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(storableKinds))
	copy(out, storableKinds)
	return out
}

// ParseKind converts a schema kind name into a Kind.
// "text" is accepted as an alias for cdata.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "text":
		return KindCDATA, nil
	case "int":
		return KindInteger, nil
	}
	for _, k := range storableKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", NewSchemaError("unknown property kind %q", s)
}

// Valid reports whether k is a storable kind.
func (k Kind) Valid() bool {
	for _, sk := range storableKinds {
		if sk == k {
			return true
		}
	}
	return false
}

// Ordered reports whether values of this kind support strict ordering
// comparisons (greater-than).
func (k Kind) Ordered() bool {
	switch k {
	case KindLong, KindInteger, KindDouble, KindDecimal, KindDate:
		return true
	}
	return false
}

// Textual reports whether values of this kind are strings that may carry
// wildcard patterns.
func (k Kind) Textual() bool {
	return k == KindString || k == KindCDATA
}

func (k Kind) String() string {
	return string(k)
}
