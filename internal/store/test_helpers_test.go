package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/queryir"
	"github.com/roach88/elementstore/internal/schema"
	"github.com/roach88/elementstore/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts := DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := OpenWithOptions(path, opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixture is a store with the customer schema and a deterministic clock.
type fixture struct {
	t     *testing.T
	store *Store
	reg   *schema.Registry
	clock *testutil.DeterministicClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := createTestStore(t)
	return &fixture{t: t, store: s, reg: testutil.NewRegistry(t, s), clock: testutil.NewDeterministicClock()}
}

func (f *fixture) create(id, typ string, props map[string]ir.Values, refs map[string][]string) *model.Record {
	f.t.Helper()
	rec, err := f.store.Apply(context.Background(), &model.ChangeSet{
		ElementID:  id,
		Type:       typ,
		Create:     true,
		Owner:      "alice",
		OwnerName:  "Alice",
		Timestamp:  f.clock.Now(),
		User:       "tester",
		Properties: props,
		Refs:       refs,
	})
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) update(id string, version int64, props map[string]ir.Values, refs map[string][]string) *model.Record {
	f.t.Helper()
	rec, err := f.store.Apply(context.Background(), &model.ChangeSet{
		ElementID:       id,
		ExpectedVersion: version,
		Timestamp:       f.clock.Now(),
		User:            "tester",
		Properties:      props,
		Refs:            refs,
	})
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) find(q queryir.Find) []string {
	f.t.Helper()
	p, err := queryir.Bind(context.Background(), f.reg, q)
	require.NoError(f.t, err)
	res, err := f.store.Find(context.Background(), p)
	require.NoError(f.t, err)
	require.True(f.t, res.Paginated)
	ids := make([]string, len(res.Elements))
	for i, el := range res.Elements {
		ids[i] = el.ID
	}
	return ids
}

func str(s string) ir.Values  { return ir.Single(ir.String(s)) }
func num(n int32) ir.Values   { return ir.Single(ir.Integer(n)) }
func cleared() ir.Values      { return ir.Values{} }
func text(s string) ir.Values { return ir.Single(ir.CDATA(s)) }

func mustBind(t *testing.T, f *fixture, q queryir.Find) *queryir.Plan {
	t.Helper()
	p, err := queryir.Bind(context.Background(), f.reg, q)
	require.NoError(t, err)
	return p
}
