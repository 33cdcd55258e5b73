package harness

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the engine's final
// state and returns the failure messages.
func (h *Harness) EvaluateAssertions(ctx context.Context, assertions []Assertion, trace []TraceEvent) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertElement:
			err = h.assertElement(ctx, a)
		case AssertHistory:
			err = h.assertHistory(ctx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err == nil {
			continue
		}
		if ae, ok := err.(*AssertionError); ok {
			ae.Trace = trace
		}
		errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
	}
	return errs
}

// assertElement checks that the head map of the referenced element holds
// every expected key (subset match).
func (h *Harness) assertElement(ctx context.Context, a Assertion) error {
	b := h.bindings[a.Ref]
	m, err := h.engine.GetElementMap(ctx, b.id)
	if err != nil {
		return &AssertionError{
			Type:     AssertElement,
			Expected: fmt.Sprintf("element %s", a.Ref),
			Actual:   fmt.Sprintf("error: %v", err),
		}
	}

	for _, key := range sortedKeys(a.Expect) {
		want := h.substitute(a.Expect[key])
		got, ok := m[key]
		if !ok && want == nil {
			continue
		}
		if !ok {
			return &AssertionError{
				Type:     AssertElement,
				Expected: fmt.Sprintf("%s.%s = %v", a.Ref, key, want),
				Actual:   "key not present",
			}
		}
		if !valuesMatch(got, want) {
			return &AssertionError{
				Type:     AssertElement,
				Expected: fmt.Sprintf("%s.%s = %v", a.Ref, key, want),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
	}
	return nil
}

// assertHistory checks the number of modifications of the referenced
// element.
func (h *Harness) assertHistory(ctx context.Context, a Assertion) error {
	mods, err := h.engine.History(ctx, h.bindings[a.Ref].id)
	if err != nil {
		return &AssertionError{
			Type:     AssertHistory,
			Expected: fmt.Sprintf("history of %s", a.Ref),
			Actual:   fmt.Sprintf("error: %v", err),
		}
	}
	if len(mods) != a.Count {
		return &AssertionError{
			Type:     AssertHistory,
			Expected: fmt.Sprintf("%d modifications of %s", a.Count, a.Ref),
			Actual:   fmt.Sprintf("%d modifications", len(mods)),
		}
	}
	return nil
}

// valuesMatch compares an entity map value with a YAML value by their
// printed form, so YAML ints match int64 and floats match doubles.
func valuesMatch(got, want any) bool {
	return render(got) == render(want)
}

func render(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = render(item)
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return fmt.Sprint(v)
	}
}
