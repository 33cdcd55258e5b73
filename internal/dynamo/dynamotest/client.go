// Package dynamotest provides an in-memory DynamoDB client for tests.
package dynamotest

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// Client is an in-memory DynamoDB good enough for dynamo.Collections. It
// understands the condition expressions Commit writes, the begins_with
// filter of TypeNames and the type filter of Scan; other filters are
// ignored, which the docstore backend tolerates because it re-matches
// every scanned document.
type Client struct {
	mu     sync.Mutex
	tables map[string]map[string]item
	scans  []*dynamodb.ScanInput
}

// NewClient returns an empty client.
func NewClient() *Client {
	return &Client{tables: map[string]map[string]item{}}
}

// Scans returns the scan requests received so far.
func (f *Client) Scans() []*dynamodb.ScanInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*dynamodb.ScanInput(nil), f.scans...)
}

func str(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		return ""
	}
}

func keyOf(it item) string {
	if pk, ok := it["pk"]; ok {
		return str(pk)
	}
	if el, ok := it["elementId"]; ok {
		return str(el) + "/" + str(it["revision"])
	}
	return str(it["id"])
}

func (f *Client) table(name string) map[string]item {
	t, ok := f.tables[name]
	if !ok {
		t = map[string]item{}
		f.tables[name] = t
	}
	return t
}

func (f *Client) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.table(*in.TableName)[keyOf(in.Key)]}, nil
}

func (f *Client) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table(*in.TableName)[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *Client) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(*in.TableName)
	key := keyOf(in.Key)
	cur, ok := t[key]
	if !ok {
		cur = item{"pk": in.Key["pk"]}
	}
	n, _ := strconv.ParseInt(str(cur["n"]), 10, 64)
	n++
	next := item{"pk": cur["pk"], "n": &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}}
	t[key] = next
	return &dynamodb.UpdateItemOutput{Attributes: item{"n": next["n"]}}, nil
}

func (f *Client) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := str(in.ExpressionAttributeValues[":id"])
	var out []item
	for _, it := range f.table(*in.TableName) {
		if str(it["elementId"]) == id {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.ParseInt(str(out[i]["revision"]), 10, 64)
		b, _ := strconv.ParseInt(str(out[j]["revision"]), 10, 64)
		return a < b
	})
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *Client) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, in)

	expr := aws.ToString(in.FilterExpression)
	keys := make([]string, 0)
	for k := range f.table(*in.TableName) {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []item
	for _, k := range keys {
		it := f.tables[*in.TableName][k]
		switch {
		case strings.HasPrefix(expr, "begins_with("):
			if !strings.HasPrefix(str(it["pk"]), str(in.ExpressionAttributeValues[":prefix"])) {
				continue
			}
		case strings.HasPrefix(expr, "#type = :v0"):
			if str(it["type"]) != str(in.ExpressionAttributeValues[":v0"]) {
				continue
			}
		}
		out = append(out, it)
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func (f *Client) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tw := range in.TransactItems {
		put := tw.Put
		existing, exists := f.table(*put.TableName)[keyOf(put.Item)]
		cond := aws.ToString(put.ConditionExpression)
		failed := false
		switch {
		case strings.HasPrefix(cond, "attribute_not_exists("):
			failed = exists
		case cond == "#version = :expected":
			failed = !exists || str(existing["version"]) != str(put.ExpressionAttributeValues[":expected"])
		}
		if failed {
			return nil, &types.TransactionCanceledException{
				Message:             aws.String("Transaction cancelled"),
				CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}},
			}
		}
	}
	for _, tw := range in.TransactItems {
		f.table(*tw.Put.TableName)[keyOf(tw.Put.Item)] = tw.Put.Item
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}
