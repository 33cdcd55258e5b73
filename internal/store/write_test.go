package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/revision"
)

func TestApply_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created := f.create("c1", "Customer", map[string]ir.Values{
		"customerNumber": num(1),
		"name":           str("Ann"),
	}, nil)
	assert.Equal(t, int64(1), created.Version)

	updated := f.update("c1", 1, map[string]ir.Values{"customerNumber": num(2)}, nil)
	assert.Equal(t, int64(2), updated.Version)
	assert.Greater(t, updated.Revision, created.Revision)

	rec, ok, err := f.store.Load(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, rec.Verify())

	numbers := rec.Properties["customerNumber"].Versions
	require.Len(t, numbers, 2)
	assert.Equal(t, updated.Revision, numbers[0].NextRevision, "previous head is relinked to the new revision")
	assert.Equal(t, ir.MaxRevision, numbers[1].NextRevision)
	assert.Len(t, rec.Properties["name"].Versions, 1, "untouched attributes carry forward")

	assert.Equal(t, "alice", rec.Owner)
	assert.Equal(t, "Alice", rec.OwnerName)
	assert.Equal(t, created.CreatedAt, rec.CreatedAt)
	assert.Equal(t, updated.ChangedAt, rec.ChangedAt)
}

func TestApply_StaleVersionIsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create("c1", "Customer", map[string]ir.Values{"name": str("Ann")}, nil)
	f.update("c1", 1, map[string]ir.Values{"name": str("Bea")}, nil)

	_, err := f.store.Apply(ctx, &model.ChangeSet{
		ElementID:       "c1",
		ExpectedVersion: 1,
		Timestamp:       f.clock.Now(),
		Properties:      map[string]ir.Values{"name": str("Cid")},
	})
	require.True(t, ir.IsConflict(err), "got %v", err)

	version, ok, err := f.store.StoredVersion(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), version)

	hist, err := f.store.History(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, hist, 2, "a rejected save leaves no modification behind")
}

func TestApply_CreateTwiceIsConflict(t *testing.T) {
	f := newFixture(t)
	f.create("c1", "Customer", nil, nil)

	_, err := f.store.Apply(context.Background(), &model.ChangeSet{ElementID: "c1", Type: "Customer", Create: true, Timestamp: f.clock.Now()})
	assert.True(t, ir.IsConflict(err), "got %v", err)
}

func TestApply_UnknownElementIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Apply(context.Background(), &model.ChangeSet{ElementID: "ghost", ExpectedVersion: 1, Timestamp: f.clock.Now()})
	assert.True(t, ir.IsNotFound(err), "got %v", err)

	_, ok, err := f.store.StoredVersion(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApply_ClearKeepsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.create("c1", "Customer", map[string]ir.Values{"name": str("Ann")}, map[string][]string{"addresses": {"a1"}})
	f.update("c1", 1, map[string]ir.Values{"name": cleared()}, map[string][]string{"addresses": nil})

	rec, _, err := f.store.Load(ctx, "c1")
	require.NoError(t, err)

	head, ok, err := model.Materialize(rec, revision.Head())
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, head.Properties, "name")
	assert.NotContains(t, head.Refs, "addresses")

	past, ok, err := model.Materialize(rec, revision.AsOf(first.Revision))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, past.Properties["name"].Equal(str("Ann")))
	assert.Equal(t, []string{"a1"}, past.Refs["addresses"])
}

func TestApply_SoftDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := f.create("c1", "Customer", map[string]ir.Values{"name": str("Ann")}, nil)

	deleted, err := f.store.Apply(ctx, &model.ChangeSet{ElementID: "c1", Delete: true, ExpectedVersion: rec.Version, Timestamp: f.clock.Now()})
	require.NoError(t, err)
	isDeleted, err := deleted.Deleted()
	require.NoError(t, err)
	assert.True(t, isDeleted)

	stored, _, err := f.store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.State.Len())
}

func TestHistory_OrderAndFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create("c1", "Customer", nil, nil)
	_, err := f.store.Apply(ctx, &model.ChangeSet{
		ElementID:       "c1",
		ExpectedVersion: 1,
		Timestamp:       f.clock.Now(),
		User:            "bob",
		Comment:         "fix name",
		Properties:      map[string]ir.Values{"name": str("Ann")},
	})
	require.NoError(t, err)

	hist, err := f.store.History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Less(t, hist[0].Revision, hist[1].Revision)
	assert.Equal(t, "tester", hist[0].User)
	assert.Equal(t, "bob", hist[1].User)
	assert.Equal(t, "fix name", hist[1].Comment)
	assert.True(t, hist[0].Timestamp.Before(hist[1].Timestamp))

	empty, err := f.store.History(ctx, "ghost")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestRelink_RequiresExactlyOneHead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create("c1", "Customer", nil, nil)

	err := relink(ctx, f.store.db, "element_states", "element_id = ?", revision.Transition{Previous: 999, Revision: 1000}, "c1")
	assert.True(t, ir.IsCorruption(err), "got %v", err)

	err = relink(ctx, f.store.db, "element_states", "element_id = ?", revision.Transition{Previous: 0, Revision: 1000}, "c1")
	assert.NoError(t, err, "empty chains have nothing to relink")
}
