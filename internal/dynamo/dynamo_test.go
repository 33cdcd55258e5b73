package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/elementstore/internal/docstore"
	"github.com/roach88/elementstore/internal/dynamo/dynamotest"
	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
	"github.com/roach88/elementstore/internal/querydoc"
	"github.com/roach88/elementstore/internal/queryir"
	"github.com/roach88/elementstore/internal/testutil"
)

func TestPushDown(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	where := querydoc.And{Criteria: []querydoc.Criteria{
		querydoc.Eq{Path: ir.FieldType, Value: ir.String("Customer")},
		querydoc.ElemMatch{Path: querydoc.FieldStates, Where: querydoc.Eq{Path: querydoc.FieldDeleted, Value: ir.Boolean(false)}},
		querydoc.Eq{Path: ir.FieldOwner, Value: ir.String("alice")},
		querydoc.Range{Path: ir.FieldChanged, Lower: ir.NewDate(since), LowerInclusive: true},
		querydoc.In{Path: ir.FieldID, Values: []ir.Value{ir.String("c1"), ir.String("c2")}},
		querydoc.Not{Criteria: querydoc.In{Path: ir.FieldID, Values: []ir.Value{ir.String("c3")}}},
	}}

	f := PushDown("Customer", where)
	assert.Equal(t, "#type = :v0 AND #owner = :v1 AND #changed >= :v2 AND #id IN (:v3, :v4)", f.Expression)
	assert.Equal(t, map[string]string{"#type": "type", "#owner": "owner", "#changed": "changed", "#id": "id"}, f.Names)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "Customer"}, f.Values[":v0"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1704067200000"}, f.Values[":v2"])
	assert.Len(t, f.Values, 5)
}

func TestPushDown_OnlyCollection(t *testing.T) {
	f := PushDown("Address", querydoc.ElemMatch{Path: "props.city", Where: querydoc.Like{Path: "values", Pattern: "%"}})
	assert.Equal(t, "#type = :v0", f.Expression)
}

func TestCollections_Commit(t *testing.T) {
	ctx := context.Background()
	cols := New(dynamotest.NewClient(), Config{})
	doc := &docstore.Document{ID: "c1", Type: "Customer", Version: 1, States: []docstore.StateVersion{{Revision: 1, Next: ir.MaxRevision}}}

	require.NoError(t, cols.Commit(ctx, doc, true, 0, ir.Modification{Revision: 1, ElementID: "c1", User: "ann"}))

	err := cols.Commit(ctx, doc, true, 0, ir.Modification{Revision: 2, ElementID: "c1"})
	assert.True(t, ir.IsConflict(err), "duplicate create: %v", err)

	doc.Version = 2
	err = cols.Commit(ctx, doc, false, 7, ir.Modification{Revision: 3, ElementID: "c1"})
	require.True(t, ir.IsConflict(err), "stale version: %v", err)
	var e *ir.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "1", e.Details["stored"])

	require.NoError(t, cols.Commit(ctx, doc, false, 1, ir.Modification{Revision: 4, ElementID: "c1"}))

	err = cols.Commit(ctx, &docstore.Document{ID: "ghost", Type: "Customer"}, false, 1, ir.Modification{Revision: 5, ElementID: "ghost"})
	assert.True(t, ir.IsNotFound(err), "missing document: %v", err)

	got, ok, err := cols.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Version)

	hist, err := cols.History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "ann", hist[0].User)
	assert.Equal(t, int64(4), hist[1].Revision)
}

func TestCollections_NextRevision(t *testing.T) {
	cols := New(dynamotest.NewClient(), DefaultConfig())
	for want := int64(1); want <= 3; want++ {
		got, err := cols.NextRevision(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestCollections_BackendFind(t *testing.T) {
	ctx := context.Background()
	client := dynamotest.NewClient()
	backend := docstore.New(New(client, DefaultConfig()))
	reg := testutil.NewRegistry(t, backend)
	clock := testutil.NewDeterministicClock()

	names, err := backend.TypeNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Address", "Customer"}, names)

	save := func(id, typ string, props map[string]ir.Values, refs map[string][]string) {
		_, err := backend.Apply(ctx, &model.ChangeSet{
			ElementID: id, Type: typ, Create: true, Owner: "alice", Timestamp: clock.Now(),
			Properties: props, Refs: refs,
		})
		require.NoError(t, err)
	}
	save("a1", "Address", map[string]ir.Values{"city": ir.Single(ir.String("Big City"))}, nil)
	save("c1", "Customer", map[string]ir.Values{"customerNumber": ir.Single(ir.Integer(123))}, map[string][]string{"addresses": {"a1"}})
	save("c2", "Customer", map[string]ir.Values{"customerNumber": ir.Single(ir.Integer(5))}, map[string][]string{"addresses": {"a1"}})

	p, err := queryir.Bind(ctx, reg, queryir.Find{
		Type:           "Customer",
		Owner:          "alice",
		Attrs:          map[string]queryir.SearchOp{"customerNumber": queryir.Eq("123")},
		ChildAttrs:     map[string]map[string]queryir.SearchOp{"addresses": {"city": queryir.Eq("%ity%")}},
		LatestOnly:     true,
		LatestRefsOnly: true,
		PageSize:       1,
		Page:           0,
	})
	require.NoError(t, err)

	res, err := backend.Find(ctx, p)
	require.NoError(t, err)
	assert.False(t, res.Paginated, "dynamodb results are paged by the caller")
	require.Len(t, res.Elements, 1)
	assert.Equal(t, "c1", res.Elements[0].ID)

	scans := client.Scans()
	last := scans[len(scans)-1]
	assert.Equal(t, "#type = :v0 AND #owner = :v1", aws.ToString(last.FilterExpression))
}

func TestConditionFailed(t *testing.T) {
	assert.True(t, conditionFailed(&types.ConditionalCheckFailedException{}))
	assert.True(t, conditionFailed(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")}},
	}))
	assert.False(t, conditionFailed(errors.New("throttled")))
}
