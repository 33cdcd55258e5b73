package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/elementstore/internal/docstore"
	"github.com/roach88/elementstore/internal/dynamo"
	"github.com/roach88/elementstore/internal/dynamo/dynamotest"
	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/queryir"
	"github.com/roach88/elementstore/internal/store"
	"github.com/roach88/elementstore/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// backends opens one empty instance of every backend.
var backends = []struct {
	name string
	open func(t *testing.T) Backend
}{
	{"sqlite", func(t *testing.T) Backend {
		opts := store.DefaultOptions()
		opts.Logger = discard
		s, err := store.OpenWithOptions(filepath.Join(t.TempDir(), "elements.db"), opts)
		require.NoError(t, err)
		return s
	}},
	{"bolt", func(t *testing.T) Backend {
		b, err := docstore.OpenBolt(docstore.DefaultConfig(filepath.Join(t.TempDir(), "elements.bolt")))
		require.NoError(t, err)
		return docstore.New(b, docstore.WithLogger(discard))
	}},
	{"dynamodb", func(t *testing.T) Backend {
		cols := dynamo.New(dynamotest.NewClient(), dynamo.DefaultConfig())
		return docstore.New(cols, docstore.WithLogger(discard))
	}},
}

// forEachBackend runs fn against a fresh engine with the customer schema on
// every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, e *Engine), opts ...Option) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, newTestEngine(t, b.open(t), opts...))
		})
	}
}

func newTestEngine(t *testing.T, backend Backend, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithLogger(discard),
		WithClock(testutil.NewDeterministicClock()),
		WithIDGenerator(testutil.NewSequenceIDGenerator("el")),
	}, opts...)
	e, err := New(backend, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.DefineTypes(context.Background(), testutil.CustomerSchema()))
	return e
}

func save(t *testing.T, e *Engine, typeName string, data model.EntityMap) model.EntityMap {
	t.Helper()
	out, err := e.Save(context.Background(), typeName, data, SaveOptions{User: "tester"})
	require.NoError(t, err)
	return out
}

func idOf(m model.EntityMap) string {
	return m[ir.FieldID].(string)
}

func ids(els []*model.Element) []string {
	out := make([]string, len(els))
	for i, el := range els {
		out[i] = el.ID
	}
	return out
}

func find(t *testing.T, e *Engine, f queryir.Find) []string {
	t.Helper()
	els, err := e.Find(context.Background(), f)
	require.NoError(t, err)
	return ids(els)
}

func TestEngine_CustomerScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		city := save(t, e, "Address", model.EntityMap{"city": "Big City"})
		town := save(t, e, "Address", model.EntityMap{"city": "Town"})

		want := save(t, e, "Customer", model.EntityMap{"customerNumber": 123, "addresses": []any{idOf(city)}})
		save(t, e, "Customer", model.EntityMap{"customerNumber": 123, "addresses": []any{idOf(town)}})
		save(t, e, "Customer", model.EntityMap{"customerNumber": 7, "addresses": []any{idOf(city)}})

		got := find(t, e, queryir.Find{
			Type:           "Customer",
			Attrs:          map[string]queryir.SearchOp{"customerNumber": queryir.Eq("123")},
			ChildAttrs:     map[string]map[string]queryir.SearchOp{"addresses": {"city": queryir.Eq("%ity%")}},
			LatestOnly:     true,
			LatestRefsOnly: true,
		})
		assert.Equal(t, []string{idOf(want)}, got)
	})
}

func TestEngine_IntervalBounds(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		zero := idOf(save(t, e, "Customer", model.EntityMap{"customerNumber": 0}))
		five := idOf(save(t, e, "Customer", model.EntityMap{"customerNumber": 5}))
		ten := idOf(save(t, e, "Customer", model.EntityMap{"customerNumber": 10}))

		tests := []struct {
			name string
			op   queryir.SearchOp
			want []string
		}{
			{"left open", queryir.Between("0", "10", queryir.LeftOpen), []string{five, ten}},
			{"right open", queryir.Between("0", "10", queryir.RightOpen), []string{zero, five}},
			{"open", queryir.Between("0", "10", queryir.Open), []string{five}},
			{"bounded", queryir.Between("0", "10", queryir.Bounded), []string{zero, five, ten}},
			{"missing lower", queryir.Between("", "5", queryir.Bounded), []string{zero, five}},
			{"missing upper", queryir.Between("5", "", queryir.LeftOpen), []string{ten}},
			{"greater than", queryir.Gt("5"), []string{ten}},
			{"set", queryir.OneOf("0", "10", "11"), []string{zero, ten}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got := find(t, e, queryir.Find{
					Type:           "Customer",
					Attrs:          map[string]queryir.SearchOp{"customerNumber": tt.op},
					LatestOnly:     true,
					LatestRefsOnly: true,
				})
				assert.ElementsMatch(t, tt.want, got)
			})
		}
	})
}

func TestEngine_SaveUpdate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		created := save(t, e, "Customer", model.EntityMap{"name": "Ann", "customerNumber": 1, "notes": "first"})
		id := idOf(created)
		assert.Equal(t, int64(1), created[ir.FieldVersion])
		assert.Equal(t, "tester", created[ir.FieldOwner])

		updated := save(t, e, "Customer", model.EntityMap{
			ir.FieldID:       id,
			ir.FieldVersion:  created[ir.FieldVersion],
			"customerNumber": 2,
			"notes":          nil,
		})
		assert.Equal(t, int64(2), updated[ir.FieldVersion])
		assert.Equal(t, "Ann", updated["name"], "absent keys are unchanged")
		assert.Equal(t, int64(2), updated["customerNumber"])
		assert.NotContains(t, updated, "notes", "null clears the attribute")
		assert.Greater(t, updated[ir.FieldRevision].(int64), created[ir.FieldRevision].(int64))

		stored, err := e.GetElementMap(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, updated[ir.FieldVersion], stored[ir.FieldVersion])
		assert.Equal(t, int64(2), stored["customerNumber"])
	})
}

func TestEngine_OptimisticLock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		created := save(t, e, "Customer", model.EntityMap{"name": "Ann"})
		id := idOf(created)
		save(t, e, "Customer", model.EntityMap{ir.FieldID: id, ir.FieldVersion: int64(1), "name": "Bea"})

		_, err := e.Save(ctx, "Customer", model.EntityMap{ir.FieldID: id, ir.FieldVersion: int64(1), "name": "Cid"}, SaveOptions{})
		require.Error(t, err)
		assert.True(t, ir.IsConflict(err), "got %v", err)

		stored, err := e.GetElementMap(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Bea", stored["name"])
		assert.Equal(t, int64(2), stored[ir.FieldVersion])

		history, err := e.History(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, 2, "a rejected save writes nothing")
	})
}

func TestEngine_SaveErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		id := idOf(save(t, e, "Customer", model.EntityMap{"name": "Ann"}))

		tests := []struct {
			name     string
			typeName string
			data     model.EntityMap
			check    func(error) bool
		}{
			{"unknown type", "Vendor", model.EntityMap{"name": "x"}, ir.IsSchema},
			{"unknown attribute", "Customer", model.EntityMap{"shoeSize": 42}, ir.IsSchema},
			{"bad literal", "Customer", model.EntityMap{"customerNumber": "many"}, ir.IsValidation},
			{"missing version", "Customer", model.EntityMap{ir.FieldID: id, "name": "x"}, ir.IsValidation},
			{"unknown id", "Customer", model.EntityMap{ir.FieldID: "nope", ir.FieldVersion: int64(1)}, ir.IsNotFound},
			{"wrong type", "Address", model.EntityMap{ir.FieldID: id, ir.FieldVersion: int64(1)}, ir.IsValidation},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := e.Save(ctx, tt.typeName, tt.data, SaveOptions{})
				require.Error(t, err)
				assert.True(t, tt.check(err), "got %v", err)
			})
		}
	})
}

func TestEngine_SoftDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		created := save(t, e, "Customer", model.EntityMap{"name": "Ann"})
		id := idOf(created)
		before := created[ir.FieldRevision].(int64)

		require.NoError(t, e.DeleteByID(ctx, id, "Customer", "tester"))

		latest := queryir.Find{Type: "Customer", LatestOnly: true, LatestRefsOnly: true}
		assert.Empty(t, find(t, e, latest))

		withDeleted := latest
		withDeleted.IncludeDeleted = true
		assert.Equal(t, []string{id}, find(t, e, withDeleted))

		assert.Equal(t, []string{id}, find(t, e, queryir.Find{Type: "Customer", AsOfRevision: before}))

		past, err := e.GetElementMapAt(ctx, id, before)
		require.NoError(t, err)
		assert.Equal(t, "Ann", past["name"])
		assert.Equal(t, false, past[ir.FieldDeleted])

		head, err := e.GetElementMap(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, true, head[ir.FieldDeleted])

		err = e.DeleteByID(ctx, id, "Customer", "tester")
		assert.True(t, ir.IsNotFound(err), "got %v", err)

		_, err = e.Save(ctx, "Customer", model.EntityMap{ir.FieldID: id, ir.FieldVersion: head[ir.FieldVersion], "name": "x"}, SaveOptions{})
		assert.True(t, ir.IsNotFound(err), "got %v", err)
	})
}

func TestEngine_DeleteUnknown(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		id := idOf(save(t, e, "Address", model.EntityMap{"city": "Town"}))

		assert.True(t, ir.IsNotFound(e.DeleteByID(ctx, "missing", "Customer", "")))
		assert.True(t, ir.IsNotFound(e.DeleteByID(ctx, id, "Customer", "")), "type must match")
		assert.True(t, ir.IsSchema(e.DeleteByID(ctx, id, "Vendor", "")))
	})
}

func TestEngine_PointInTimeIdempotence(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		a := save(t, e, "Customer", model.EntityMap{"name": "Ann", "customerNumber": 1})
		b := save(t, e, "Customer", model.EntityMap{"name": "Bea", "customerNumber": 1})
		r := b[ir.FieldRevision].(int64)
		save(t, e, "Customer", model.EntityMap{ir.FieldID: idOf(a), ir.FieldVersion: int64(1), "customerNumber": 2})

		q := queryir.Find{
			Type:         "Customer",
			Attrs:        map[string]queryir.SearchOp{"customerNumber": queryir.Eq("1")},
			AsOfRevision: r,
		}
		first, err := e.FindMaps(ctx, q)
		require.NoError(t, err)
		second, err := e.FindMaps(ctx, q)
		require.NoError(t, err)

		require.Len(t, first, 2)
		assert.Equal(t, first, second)
	})
}

func TestEngine_CheckVersion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		id := idOf(save(t, e, "Customer", model.EntityMap{"name": "Ann"}))

		assert.NoError(t, e.CheckVersion(ctx, id, 1, "Customer"))
		assert.NoError(t, e.CheckVersion(ctx, "missing", 7, "Customer"))

		err := e.CheckVersion(ctx, id, 3, "Customer")
		require.Error(t, err)
		assert.True(t, ir.IsConflict(err), "got %v", err)
		var ierr *ir.Error
		require.True(t, errors.As(err, &ierr))
		assert.Equal(t, "1", ierr.Details["stored"])

		assert.True(t, ir.IsSchema(e.CheckVersion(ctx, id, 1, "Vendor")))
	})
}

func TestEngine_GetModifiedProperties(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		id := idOf(save(t, e, "Customer", model.EntityMap{"name": "Ann", "customerNumber": 1, "visits": 3}))

		names, err := e.GetModifiedProperties(ctx, "Customer", model.EntityMap{
			ir.FieldID:       id,
			ir.FieldVersion:  int64(99),
			"name":           "Ann",
			"customerNumber": 2,
			"visits":         nil,
			"rating":         nil,
			"friends":        []any{"x"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"customerNumber", "friends", "visits"}, names)

		_, err = e.GetModifiedProperties(ctx, "Customer", model.EntityMap{"name": "x"})
		assert.True(t, ir.IsValidation(err), "got %v", err)

		_, err = e.GetModifiedProperties(ctx, "Customer", model.EntityMap{ir.FieldID: "missing"})
		assert.True(t, ir.IsNotFound(err), "got %v", err)
	})
}

func TestEngine_History(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		created, err := e.Save(ctx, "Customer", model.EntityMap{"name": "Ann"}, SaveOptions{User: "alice", Comment: "import"})
		require.NoError(t, err)
		id := idOf(created)
		_, err = e.Save(ctx, "Customer", model.EntityMap{ir.FieldID: id, ir.FieldVersion: int64(1), "name": "Bea"}, SaveOptions{User: "bob"})
		require.NoError(t, err)

		history, err := e.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "alice", history[0].User)
		assert.Equal(t, "import", history[0].Comment)
		assert.Equal(t, "bob", history[1].User)
		assert.Less(t, history[0].Revision, history[1].Revision)
		assert.Equal(t, id, history[1].ElementID)

		_, err = e.History(ctx, "missing")
		assert.True(t, ir.IsNotFound(err), "got %v", err)
	})
}

func TestEngine_Paging(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		for _, name := range []string{"Dan", "Ann", "Cid", "Bea", "Eve"} {
			save(t, e, "Customer", model.EntityMap{"name": name})
		}
		names := func(page, size int) []any {
			els, err := e.FindMaps(context.Background(), queryir.Find{
				Type:           "Customer",
				Page:           page,
				PageSize:       size,
				Sort:           []queryir.Sort{{Field: "name"}},
				LatestRefsOnly: true,
			})
			require.NoError(t, err)
			out := make([]any, len(els))
			for i, el := range els {
				out[i] = el["name"]
			}
			return out
		}
		assert.Equal(t, []any{"Ann", "Bea"}, names(0, 2))
		assert.Equal(t, []any{"Cid", "Dan"}, names(1, 2))
		assert.Equal(t, []any{"Eve"}, names(2, 2))
		assert.Empty(t, names(3, 2))
		assert.Len(t, names(0, 0), 5)
	})
}

func TestEngine_FindErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		tests := []struct {
			name  string
			find  queryir.Find
			check func(error) bool
		}{
			{"unknown type", queryir.Find{Type: "Vendor"}, ir.IsSchema},
			{"unknown attribute", queryir.Find{Type: "Customer", Attrs: map[string]queryir.SearchOp{"shoeSize": queryir.Eq("1")}}, ir.IsSchema},
			{"unknown reference", queryir.Find{Type: "Customer", ChildAttrs: map[string]map[string]queryir.SearchOp{"pets": {"name": queryir.Eq("x")}}}, ir.IsSchema},
			{"bad literal", queryir.Find{Type: "Customer", Attrs: map[string]queryir.SearchOp{"customerNumber": queryir.Eq("abc")}}, ir.IsValidation},
			{"negative page", queryir.Find{Type: "Customer", Page: -1, PageSize: 10}, ir.IsValidation},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := e.Find(ctx, tt.find)
				require.Error(t, err)
				assert.True(t, tt.check(err), "got %v", err)
			})
		}
	})
}

func TestEngine_Owners(t *testing.T) {
	owners := StaticOwners{
		"bob": {DisplayName: "Bob Builder", Groups: []string{"sales", "ops"}},
	}
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		created, err := e.Save(ctx, "Customer", model.EntityMap{"name": "Ann"}, SaveOptions{User: "bob"})
		require.NoError(t, err)
		assert.Equal(t, "bob", created[ir.FieldOwner])
		assert.Equal(t, "Bob Builder", created[ir.FieldOwnerName])
		assert.Equal(t, "sales", created[ir.FieldGroup])

		moved := save(t, e, "Customer", model.EntityMap{
			ir.FieldID:      idOf(created),
			ir.FieldVersion: int64(1),
			ir.FieldGroup:   "ops",
		})
		assert.Equal(t, "bob", moved[ir.FieldOwner])
		assert.Equal(t, "ops", moved[ir.FieldGroup])

		save(t, e, "Customer", model.EntityMap{"name": "Bea"})
		got := find(t, e, queryir.Find{Type: "Customer", Owner: "bob", LatestRefsOnly: true})
		assert.Equal(t, []string{idOf(created)}, got)
	}, WithOwnerResolver(owners))
}

func TestEngine_DefineTypeEvolves(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		require.NoError(t, e.DefineType(ctx, ir.ElementType{
			Name:       "Customer",
			Properties: []ir.PropertyType{{Name: "segment", Kind: ir.KindString}},
		}))
		saved := save(t, e, "Customer", model.EntityMap{"segment": "retail", "name": "Ann"})
		assert.Equal(t, "retail", saved["segment"])

		err := e.DefineType(ctx, ir.ElementType{
			Name:       "Customer",
			Properties: []ir.PropertyType{{Name: "segment", Kind: ir.KindLong}},
		})
		assert.True(t, ir.IsSchema(err), "got %v", err)

		names, err := e.TypeNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Address", "Customer"}, names)
	})
}
