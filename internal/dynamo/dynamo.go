// Package dynamo stores element documents in DynamoDB.
//
// Collections implements docstore.Collections over three tables: documents
// (one item per element), history (one item per modification) and meta
// (element types and the revision counter). Scans push header criteria into
// a FilterExpression; the docstore backend re-matches every returned item
// and pages the results itself.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/roach88/elementstore/internal/docstore"
	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/querydoc"
)

const (
	typeKeyPrefix = "type#"
	revisionKey   = "revision"
)

// Client is the subset of *dynamodb.Client used here.
type Client interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Collections is a docstore.Collections backed by DynamoDB.
type Collections struct {
	client Client
	config Config
}

var _ docstore.Collections = (*Collections)(nil)

// New creates collections over an existing client.
func New(client Client, config Config) *Collections {
	config.validate()
	return &Collections{client: client, config: config}
}

// Open loads the default AWS configuration and creates a client.
func Open(ctx context.Context, config Config) (*Collections, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	})
	return New(client, config), nil
}

// historyItem is the stored form of ir.Modification.
type historyItem struct {
	ElementID string `dynamodbav:"elementId"`
	Revision  int64  `dynamodbav:"revision"`
	Timestamp int64  `dynamodbav:"timestamp"`
	User      string `dynamodbav:"user"`
	Comment   string `dynamodbav:"comment"`
}

// typeItem is the stored form of an element type.
type typeItem struct {
	PK         string          `dynamodbav:"pk"`
	Name       string          `dynamodbav:"name"`
	Definition *ir.ElementType `dynamodbav:"definition"`
}

// Name implements docstore.Collections.
func (c *Collections) Name() string { return "dynamodb" }

// Paginates implements docstore.Collections. Scans filter after reading,
// so server-side limits would cut pages short.
func (c *Collections) Paginates() bool { return false }

// Close implements docstore.Collections.
func (c *Collections) Close() error { return nil }

// LoadType implements docstore.Collections.
func (c *Collections) LoadType(ctx context.Context, name string) (*ir.ElementType, bool, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.config.MetaTable),
		Key:       metaKey(typeKeyPrefix + name),
	})
	if err != nil {
		return nil, false, fmt.Errorf("get element type %s: %w", name, err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	var item typeItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, ir.NewCorruptionError("element type %s is unreadable: %v", name, err)
	}
	if item.Definition == nil {
		return nil, false, ir.NewCorruptionError("element type %s has no definition", name)
	}
	return item.Definition, true, nil
}

// SaveType implements docstore.Collections.
func (c *Collections) SaveType(ctx context.Context, t *ir.ElementType) error {
	item, err := attributevalue.MarshalMap(typeItem{PK: typeKeyPrefix + t.Name, Name: t.Name, Definition: t})
	if err != nil {
		return fmt.Errorf("marshal element type %s: %w", t.Name, err)
	}
	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.config.MetaTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put element type %s: %w", t.Name, err)
	}
	return nil
}

// TypeNames implements docstore.Collections.
func (c *Collections) TypeNames(ctx context.Context) ([]string, error) {
	paginator := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{
		TableName:                aws.String(c.config.MetaTable),
		FilterExpression:         aws.String("begins_with(#pk, :prefix)"),
		ExpressionAttributeNames: map[string]string{"#pk": "pk"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: typeKeyPrefix},
		},
	})
	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan element types: %w", err)
		}
		for _, raw := range page.Items {
			var item typeItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, ir.NewCorruptionError("element type item is unreadable: %v", err)
			}
			names = append(names, item.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Get implements docstore.Collections.
func (c *Collections) Get(ctx context.Context, id string) (*docstore.Document, bool, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.config.DocumentTable),
		Key:            documentKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("get document %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	doc, err := unmarshalDocument(out.Item)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Scan implements docstore.Collections.
func (c *Collections) Scan(ctx context.Context, collection string, where querydoc.Criteria, visit func(*docstore.Document) error) error {
	f := PushDown(collection, where)
	paginator := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{
		TableName:                 aws.String(c.config.DocumentTable),
		FilterExpression:          aws.String(f.Expression),
		ExpressionAttributeNames:  f.Names,
		ExpressionAttributeValues: f.Values,
		ConsistentRead:            aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan collection %s: %w", collection, err)
		}
		for _, raw := range page.Items {
			doc, err := unmarshalDocument(raw)
			if err != nil {
				return err
			}
			if err := visit(doc); err != nil {
				return err
			}
		}
	}
	return nil
}

// NextRevision implements docstore.Collections with an atomic counter.
func (c *Collections) NextRevision(ctx context.Context) (int64, error) {
	out, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.config.MetaTable),
		Key:                      metaKey(revisionKey),
		UpdateExpression:         aws.String("ADD #n :one"),
		ExpressionAttributeNames: map[string]string{"#n": "n"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("allocate revision: %w", err)
	}
	n, ok := out.Attributes["n"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, ir.NewCorruptionError("revision counter has no numeric value")
	}
	rev, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, ir.NewCorruptionError("revision counter %q is not an integer", n.Value)
	}
	return rev, nil
}

// Commit implements docstore.Collections. The document put and the history
// append run in one transaction; the put is conditional on the version.
func (c *Collections) Commit(ctx context.Context, doc *docstore.Document, create bool, expected int64, mod ir.Modification) error {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", doc.ID, err)
	}
	hist, err := attributevalue.MarshalMap(historyItem{
		ElementID: mod.ElementID,
		Revision:  mod.Revision,
		Timestamp: mod.Timestamp.UnixMilli(),
		User:      mod.User,
		Comment:   mod.Comment,
	})
	if err != nil {
		return fmt.Errorf("marshal modification %d: %w", mod.Revision, err)
	}

	put := &types.Put{
		TableName: aws.String(c.config.DocumentTable),
		Item:      item,
	}
	if create {
		put.ConditionExpression = aws.String("attribute_not_exists(id)")
	} else {
		put.ConditionExpression = aws.String("#version = :expected")
		put.ExpressionAttributeNames = map[string]string{"#version": "version"}
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		}
	}

	_, err = c.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: put},
			{Put: &types.Put{
				TableName:           aws.String(c.config.HistoryTable),
				Item:                hist,
				ConditionExpression: aws.String("attribute_not_exists(revision)"),
			}},
		},
	})
	if err == nil {
		return nil
	}
	if !conditionFailed(err) {
		return fmt.Errorf("commit document %s: %w", doc.ID, err)
	}

	stored, ok, getErr := c.Get(ctx, doc.ID)
	switch {
	case getErr != nil:
		return fmt.Errorf("commit document %s: %w", doc.ID, getErr)
	case !ok:
		return ir.NewNotFoundError(doc.ID)
	case create:
		return ir.NewConflictError(doc.ID, 0, stored.Version)
	default:
		return ir.NewConflictError(doc.ID, expected, stored.Version)
	}
}

// History implements docstore.Collections.
func (c *Collections) History(ctx context.Context, id string) ([]ir.Modification, error) {
	paginator := dynamodb.NewQueryPaginator(c.client, &dynamodb.QueryInput{
		TableName:                aws.String(c.config.HistoryTable),
		KeyConditionExpression:   aws.String("#id = :id"),
		ExpressionAttributeNames: map[string]string{"#id": "elementId"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id},
		},
		ScanIndexForward: aws.Bool(true),
	})
	var out []ir.Modification
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query history %s: %w", id, err)
		}
		for _, raw := range page.Items {
			var h historyItem
			if err := attributevalue.UnmarshalMap(raw, &h); err != nil {
				return nil, ir.NewCorruptionError("modification of %s is unreadable: %v", id, err)
			}
			out = append(out, ir.Modification{
				Revision:  h.Revision,
				ElementID: h.ElementID,
				Timestamp: time.UnixMilli(h.Timestamp).UTC(),
				User:      h.User,
				Comment:   h.Comment,
			})
		}
	}
	return out, nil
}

func unmarshalDocument(item map[string]types.AttributeValue) (*docstore.Document, error) {
	doc := &docstore.Document{}
	if err := attributevalue.UnmarshalMap(item, doc); err != nil {
		return nil, ir.NewCorruptionError("document is unreadable: %v", err)
	}
	return doc, nil
}

func documentKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func metaKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: pk}}
}

// conditionFailed reports whether err is a failed write condition, either
// directly or as the cancellation reason of a transaction.
func conditionFailed(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return true
	}
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}
