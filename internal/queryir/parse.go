package queryir

import (
	"strings"

	"github.com/roach88/elementstore/internal/ir"
)

// Key is a parsed filter key.
type Key struct {
	Name       string
	Negate     bool
	IgnoreCase bool
}

// ParseKey strips the "!" and "~" markers from a filter key.
func ParseKey(raw string) Key {
	k := Key{}
	for len(raw) > 0 {
		if raw[0] == '!' {
			k.Negate = !k.Negate
		} else if raw[0] == '~' {
			k.IgnoreCase = true
		} else {
			break
		}
		raw = raw[1:]
	}
	k.Name = raw
	return k
}

// ParseOp parses a textual filter value into an unbound SearchOp.
// Literals stay ir.Raw until Bind converts them to the attribute's kind.
func ParseOp(text string) (SearchOp, error) {
	switch {
	case strings.HasPrefix(text, "="):
		return Eq(text[1:]), nil
	case strings.HasPrefix(text, ">"):
		lit := strings.TrimSpace(text[1:])
		if lit == "" {
			return nil, ir.NewValidationError("greater-than needs a value")
		}
		return Gt(lit), nil
	case strings.HasPrefix(text, "[") || strings.HasPrefix(text, "("):
		return parseInterval(text)
	case strings.HasPrefix(text, "{"):
		return parseSet(text)
	default:
		return Eq(text), nil
	}
}

func parseInterval(text string) (SearchOp, error) {
	last := text[len(text)-1]
	if len(text) < 2 || (last != ']' && last != ')') {
		return nil, ir.NewValidationError("unterminated interval %q", text)
	}
	body := text[1 : len(text)-1]
	lower, upper, ok := strings.Cut(body, ",")
	if !ok {
		return nil, ir.NewValidationError("interval %q needs a comma between its bounds", text)
	}
	if strings.Contains(upper, ",") {
		return nil, ir.NewValidationError("interval %q has more than two bounds", text)
	}
	lower, upper = strings.TrimSpace(lower), strings.TrimSpace(upper)
	if lower == "" && upper == "" {
		return nil, ir.NewValidationError("interval %q needs at least one bound", text)
	}

	lowerOpen := text[0] == '('
	upperOpen := last == ')'
	var b Bound
	switch {
	case lowerOpen && upperOpen:
		b = Open
	case lowerOpen:
		b = LeftOpen
	case upperOpen:
		b = RightOpen
	default:
		b = Bounded
	}
	return Between(lower, upper, b), nil
}

func parseSet(text string) (SearchOp, error) {
	if len(text) < 2 || !strings.HasSuffix(text, "}") {
		return nil, ir.NewValidationError("unterminated set %q", text)
	}
	body := strings.TrimSpace(text[1 : len(text)-1])
	if body == "" {
		return In{}, nil
	}
	parts := strings.Split(body, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return OneOf(parts...), nil
}

// ParseFilters parses a map of textual filters. Keys keep their markers;
// Bind interprets them.
func ParseFilters(raw map[string]string) (map[string]SearchOp, error) {
	out := make(map[string]SearchOp, len(raw))
	for key, text := range raw {
		op, err := ParseOp(text)
		if err != nil {
			return nil, err
		}
		out[key] = op
	}
	return out, nil
}

// ParseSort parses "field", "field:asc" or "field:desc".
func ParseSort(text string) (Sort, error) {
	field, dir, _ := strings.Cut(text, ":")
	field = strings.TrimSpace(field)
	if field == "" {
		return Sort{}, ir.NewValidationError("empty sort field")
	}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "asc":
		return Sort{Field: field}, nil
	case "desc":
		return Sort{Field: field, Desc: true}, nil
	default:
		return Sort{}, ir.NewValidationError("invalid sort direction %q", dir)
	}
}
