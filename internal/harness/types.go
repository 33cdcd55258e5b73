package harness

import (
	"fmt"
	"strings"
)

// TraceEvent records the outcome of one step.
// Elements are named by alias so traces compare across backends.
type TraceEvent struct {
	Step    int      `json:"step"`
	Op      string   `json:"op"`
	Type    string   `json:"type"`
	Target  string   `json:"target,omitempty"`
	Outcome string   `json:"outcome"`
	IDs     []string `json:"ids,omitempty"`
	Version int64    `json:"version,omitempty"`
}

// String renders the event as one trace line.
func (e TraceEvent) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%d %s %s", e.Step, e.Op, e.Type)
	if e.Target != "" {
		fmt.Fprintf(&buf, " %s", e.Target)
	}
	fmt.Fprintf(&buf, " -> %s", e.Outcome)
	if e.Version > 0 {
		fmt.Fprintf(&buf, " version=%d", e.Version)
	}
	if e.Op == OpFind && e.Outcome == outcomeOK {
		fmt.Fprintf(&buf, " [%s]", strings.Join(e.IDs, " "))
	}
	return buf.String()
}

const outcomeOK = "ok"

// Result is the outcome of running a scenario on one backend.
type Result struct {
	Backend string `json:"backend"`

	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(backend string) *Result {
	return &Result{
		Backend: backend,
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// TraceText renders the trace one event per line.
func (r *Result) TraceText() string {
	var buf strings.Builder
	for _, e := range r.Trace {
		buf.WriteString(e.String())
		buf.WriteByte('\n')
	}
	return buf.String()
}
