package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/elementstore/internal/engine"
	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/queryir"
	"github.com/roach88/elementstore/internal/schema"
	"github.com/roach88/elementstore/internal/testutil"
)

// aliasRef matches "$alias" inside data values, filters and as_of.
var aliasRef = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// defaultUser is the audit user of steps that name none.
const defaultUser = "harness"

// Backend is a named backend factory. Each call to Open returns an empty
// backend.
type Backend struct {
	Name string
	Open func() (engine.Backend, error)
}

// binding is what the harness knows about an aliased element.
type binding struct {
	id       string
	typeName string
	version  int64
	revision int64
}

// Harness executes one scenario against one engine.
type Harness struct {
	engine   *engine.Engine
	logger   *slog.Logger
	bindings map[string]*binding
	aliases  map[string]string // id -> alias
}

// Run executes scenario against a fresh engine over backend.
//
// Run owns backend and closes it. Expectation and assertion failures are
// reported in the result; an error is returned only when the scenario could
// not be executed at all.
func Run(ctx context.Context, scenario *Scenario, backend engine.Backend) (*Result, error) {
	types, err := schema.LoadPath(scenario.Schema)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("load schema: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.New(backend,
		engine.WithLogger(logger),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithIDGenerator(testutil.NewSequenceIDGenerator("el")),
	)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close()

	if err := eng.DefineTypes(ctx, types); err != nil {
		return nil, fmt.Errorf("define schema: %w", err)
	}

	h := &Harness{
		engine:   eng,
		logger:   logger,
		bindings: make(map[string]*binding),
		aliases:  make(map[string]string),
	}

	result := NewResult(eng.Backend())
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}

	for _, msg := range h.EvaluateAssertions(ctx, scenario.Assertions, result.Trace) {
		result.AddError(msg)
	}
	return result, nil
}

// RunAll runs scenario on every backend. Besides each result's own
// expectations, every trace must equal the first backend's trace; a
// difference is added to the diverging result.
func RunAll(ctx context.Context, scenario *Scenario, backends []Backend) ([]*Result, error) {
	results := make([]*Result, 0, len(backends))
	for _, b := range backends {
		backend, err := b.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", b.Name, err)
		}
		r, err := Run(ctx, scenario, backend)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name, err)
		}
		results = append(results, r)
	}

	for _, r := range results[min(1, len(results)):] {
		if want, got := results[0].TraceText(), r.TraceText(); want != got {
			r.AddError(fmt.Sprintf("trace differs from %s:\n--- %s\n%s--- %s\n%s",
				results[0].Backend, results[0].Backend, want, r.Backend, got))
		}
	}
	return results, nil
}

// executeStep runs one step, appends its trace event and checks its
// expect clause.
func (h *Harness) executeStep(ctx context.Context, n int, step Step, result *Result) error {
	event := TraceEvent{Step: n, Op: step.Op, Type: step.Type, Target: step.As}

	var err error
	switch step.Op {
	case OpSave:
		err = h.save(ctx, step, &event)
	case OpUpdate:
		err = h.update(ctx, step, &event)
	case OpDelete:
		err = h.delete(ctx, step, &event)
	case OpCheckVersion:
		err = h.checkVersion(ctx, step, &event)
	case OpFind:
		err = h.find(ctx, step, &event)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	event.Outcome = outcomeOK
	if err != nil {
		code := ir.CodeOf(err)
		if code == "" {
			return err
		}
		event.Outcome = string(code)
	}
	result.Trace = append(result.Trace, event)

	if msg := checkExpect(step.Expect, event); msg != "" {
		result.AddError(fmt.Sprintf("step %d (%s %s): %s", n, step.Op, event.Type, msg))
	}
	h.logger.Debug("scenario step", "step", n, "op", step.Op, "outcome", event.Outcome)
	return nil
}

func (h *Harness) save(ctx context.Context, step Step, event *TraceEvent) error {
	data := h.substituteMap(step.Data)
	out, err := h.engine.Save(ctx, step.Type, data, engine.SaveOptions{User: userOf(step)})
	if err != nil {
		return err
	}

	b := &binding{typeName: step.Type}
	b.record(out)
	if step.As != "" {
		h.bindings[step.As] = b
		h.aliases[b.id] = step.As
	}
	event.Version = b.version
	return nil
}

func (h *Harness) update(ctx context.Context, step Step, event *TraceEvent) error {
	b := h.bindings[step.Ref]
	h.target(step, b, event)

	data := h.substituteMap(step.Data)
	data[ir.FieldID] = b.id
	data[ir.FieldVersion] = b.version
	if step.Version != nil {
		data[ir.FieldVersion] = *step.Version
	}

	out, err := h.engine.Save(ctx, event.Type, data, engine.SaveOptions{User: userOf(step)})
	if err != nil {
		return err
	}
	b.record(out)
	event.Version = b.version
	return nil
}

func (h *Harness) delete(ctx context.Context, step Step, event *TraceEvent) error {
	b := h.bindings[step.Ref]
	h.target(step, b, event)

	if err := h.engine.DeleteByID(ctx, b.id, event.Type, userOf(step)); err != nil {
		return err
	}
	m, err := h.engine.GetElementMap(ctx, b.id)
	if err != nil {
		return err
	}
	b.record(m)
	return nil
}

func (h *Harness) checkVersion(ctx context.Context, step Step, event *TraceEvent) error {
	b := h.bindings[step.Ref]
	h.target(step, b, event)

	version := b.version
	if step.Version != nil {
		version = *step.Version
	}
	return h.engine.CheckVersion(ctx, b.id, version, event.Type)
}

func (h *Harness) find(ctx context.Context, step Step, event *TraceEvent) error {
	f, err := h.buildFind(step.Type, step.Find)
	if err != nil {
		return err
	}
	els, err := h.engine.Find(ctx, f)
	if err != nil {
		return err
	}
	event.IDs = make([]string, len(els))
	for i, el := range els {
		event.IDs[i] = h.aliasOf(el.ID)
	}
	return nil
}

// buildFind converts the YAML query into a find request.
func (h *Harness) buildFind(typeName string, q *Query) (queryir.Find, error) {
	f := queryir.Find{
		Type:           typeName,
		Owner:          q.Owner,
		Page:           q.Page,
		PageSize:       q.PageSize,
		LatestOnly:     q.LatestOnly,
		LatestRefsOnly: q.LatestRefsOnly,
		IncludeDeleted: q.IncludeDeleted,
	}

	attrs, err := queryir.ParseFilters(h.substituteFilters(q.Where))
	if err != nil {
		return f, err
	}
	f.Attrs = attrs

	if len(q.Children) > 0 {
		f.ChildAttrs = make(map[string]map[string]queryir.SearchOp, len(q.Children))
		for ref, where := range q.Children {
			ops, err := queryir.ParseFilters(h.substituteFilters(where))
			if err != nil {
				return f, err
			}
			f.ChildAttrs[ref] = ops
		}
	}

	for _, s := range q.Sort {
		key, err := queryir.ParseSort(s)
		if err != nil {
			return f, err
		}
		f.Sort = append(f.Sort, key)
	}

	if q.AsOf != "" {
		rev, err := h.revisionOf(q.AsOf)
		if err != nil {
			return f, err
		}
		f.AsOfRevision = rev
	}
	return f, nil
}

// revisionOf resolves an as_of value: "$alias" is the revision of the
// alias's last write, anything else a revision number.
func (h *Harness) revisionOf(text string) (int64, error) {
	if alias, ok := strings.CutPrefix(text, "$"); ok {
		b, ok := h.bindings[alias]
		if !ok {
			return 0, fmt.Errorf("as_of: alias %q is not bound", alias)
		}
		return b.revision, nil
	}
	rev, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("as_of: %q is neither an alias nor a revision", text)
	}
	return rev, nil
}

func (h *Harness) target(step Step, b *binding, event *TraceEvent) {
	event.Target = step.Ref
	if event.Type == "" {
		event.Type = b.typeName
	}
}

func (h *Harness) aliasOf(id string) string {
	if alias, ok := h.aliases[id]; ok {
		return alias
	}
	return id
}

// substitute replaces "$alias" references in strings, recursively through
// lists and maps.
func (h *Harness) substitute(v any) any {
	switch x := v.(type) {
	case string:
		return aliasRef.ReplaceAllStringFunc(x, func(ref string) string {
			if b, ok := h.bindings[ref[1:]]; ok {
				return b.id
			}
			return ref
		})
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = h.substitute(item)
		}
		return out
	case map[string]any:
		return map[string]any(h.substituteMap(x))
	default:
		return v
	}
}

func (h *Harness) substituteMap(m map[string]any) model.EntityMap {
	out := make(model.EntityMap, len(m))
	for k, v := range m {
		out[k] = h.substitute(v)
	}
	return out
}

func (h *Harness) substituteFilters(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = h.substitute(v).(string)
	}
	return out
}

// record copies the header fields of a returned entity map.
func (b *binding) record(m model.EntityMap) {
	b.id, _ = m[ir.FieldID].(string)
	b.version, _ = m[ir.FieldVersion].(int64)
	b.revision, _ = m[ir.FieldRevision].(int64)
}

func userOf(step Step) string {
	if step.User != "" {
		return step.User
	}
	return defaultUser
}

// checkExpect returns a description of how event violates expect, or ""
// when it holds.
func checkExpect(expect *Expect, event TraceEvent) string {
	want := outcomeOK
	if expect != nil && expect.Error != "" {
		want = expect.Error
	}
	if event.Outcome != want {
		return fmt.Sprintf("expected outcome %s, got %s", want, event.Outcome)
	}
	if expect == nil {
		return ""
	}

	if expect.IDs != nil {
		got, wantIDs := event.IDs, expect.IDs
		if !expect.Ordered {
			got, wantIDs = slices.Sorted(slices.Values(got)), slices.Sorted(slices.Values(wantIDs))
		}
		if !slices.Equal(got, wantIDs) {
			return fmt.Sprintf("expected ids %v, got %v", wantIDs, got)
		}
	}
	if expect.Version != nil && event.Version != *expect.Version {
		return fmt.Sprintf("expected version %d, got %d", *expect.Version, event.Version)
	}
	return ""
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
