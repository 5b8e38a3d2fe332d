// Copyright (c) Microsoft. All rights reserved.

// Package dynamodb implements storage.Storage on an Amazon DynamoDB table.
//
// The table needs a string partition key named "id". Documents are stored
// as JSON strings in the "document" attribute and versions in "etag".
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/microsoft/agents-sdk/go/storage"
)

const (
	attrID        = "id"
	attrDocument  = "document"
	attrETag      = "etag"
	attrUpdatedAt = "updatedAt"
	attrTTL       = "ttl"
)

// dynamodbAPI is the minimal DynamoDB interface required by Storage.
// *dynamodb.Client satisfies it.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Option configures a [Storage].
type Option func(*Storage)

// WithTTL sets an expiry on every written item. The table's TTL attribute
// must be configured as "ttl".
func WithTTL(d time.Duration) Option {
	return func(s *Storage) { s.ttl = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

// Storage is a storage.Storage backed by DynamoDB conditional writes.
type Storage struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

var _ storage.Storage = (*Storage)(nil)

// New creates a Storage over the given table.
func New(api dynamodbAPI, tableName string, opts ...Option) (*Storage, error) {
	if api == nil {
		return nil, errors.New("dynamodb storage: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamodb storage: table name must not be empty")
	}
	s := &Storage{api: api, tableName: tableName, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Read fetches each key with a consistent read.
func (s *Storage) Read(ctx context.Context, keys []string) (map[string]storage.Item, error) {
	if err := storage.ValidateKeys(keys...); err != nil {
		return nil, err
	}
	out := make(map[string]storage.Item, len(keys))
	for _, k := range keys {
		res, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.tableName),
			Key:            keyOf(k),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb storage: read %q: %w", k, err)
		}
		if res == nil || len(res.Item) == 0 {
			continue
		}
		it, err := itemFromAttributes(res.Item)
		if err != nil {
			return nil, fmt.Errorf("dynamodb storage: read %q: %w", k, err)
		}
		out[k] = it
	}
	return out, nil
}

// maxTransactItems is the DynamoDB limit on actions in one transaction.
const maxTransactItems = 100

// Write stores the changes. Non-wildcard writes are conditioned on the
// stored ETag. A single change is one conditional PutItem; several changes
// are one TransactWriteItems call, so a conflict on any key leaves every key
// unchanged.
func (s *Storage) Write(ctx context.Context, changes map[string]storage.Item) (map[string]string, error) {
	for k := range changes {
		if k == "" {
			return nil, storage.ErrInvalidKey
		}
	}
	switch {
	case len(changes) == 0:
		return map[string]string{}, nil
	case len(changes) > maxTransactItems:
		return nil, fmt.Errorf("dynamodb storage: %d changes exceed the %d item transaction limit", len(changes), maxTransactItems)
	case len(changes) > 1:
		return s.writeTransaction(ctx, changes)
	}

	var k string
	for k = range changes {
	}
	it := changes[k]
	tag := storage.NewETag()
	put := s.put(k, it, tag)
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                           put.TableName,
		Item:                                put.Item,
		ConditionExpression:                 put.ConditionExpression,
		ExpressionAttributeNames:            put.ExpressionAttributeNames,
		ExpressionAttributeValues:           put.ExpressionAttributeValues,
		ReturnValuesOnConditionCheckFailure: put.ReturnValuesOnConditionCheckFailure,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			current, _ := strAttr(ccf.Item, attrETag)
			return nil, &storage.ConflictError{Key: k, Expected: it.ETag, Current: current}
		}
		return nil, fmt.Errorf("dynamodb storage: write %q: %w", k, err)
	}
	return map[string]string{k: tag}, nil
}

func (s *Storage) writeTransaction(ctx context.Context, changes map[string]storage.Item) (map[string]string, error) {
	// Sorted so cancellation reasons map back to keys by index.
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	etags := make(map[string]string, len(keys))
	items := make([]types.TransactWriteItem, 0, len(keys))
	for _, k := range keys {
		tag := storage.NewETag()
		etags[k] = tag
		items = append(items, types.TransactWriteItem{Put: s.put(k, changes[k], tag)})
	}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			for i, r := range tce.CancellationReasons {
				if i < len(keys) && aws.ToString(r.Code) == "ConditionalCheckFailed" {
					current, _ := strAttr(r.Item, attrETag)
					return nil, &storage.ConflictError{Key: keys[i], Expected: changes[keys[i]].ETag, Current: current}
				}
			}
		}
		return nil, fmt.Errorf("dynamodb storage: write %d keys: %w", len(keys), err)
	}
	return etags, nil
}

// put builds the item write for key, conditioned on the expected ETag
// unless it is the wildcard.
func (s *Storage) put(key string, it storage.Item, etag string) *types.Put {
	put := &types.Put{
		TableName: aws.String(s.tableName),
		Item:      s.attributes(key, it, etag),
	}
	if !storage.IsWildcard(it.ETag) {
		put.ConditionExpression = aws.String("attribute_not_exists(#id) OR #etag = :etag")
		put.ExpressionAttributeNames = map[string]string{"#id": attrID, "#etag": attrETag}
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":etag": &types.AttributeValueMemberS{Value: it.ETag},
		}
		put.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	}
	return put
}

// Delete removes each key. Missing keys are ignored.
func (s *Storage) Delete(ctx context.Context, keys []string) error {
	if err := storage.ValidateKeys(keys...); err != nil {
		return err
	}
	for _, k := range keys {
		_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       keyOf(k),
		})
		if err != nil {
			return fmt.Errorf("dynamodb storage: delete %q: %w", k, err)
		}
	}
	return nil
}

func keyOf(k string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attrID: &types.AttributeValueMemberS{Value: k}}
}

func (s *Storage) attributes(key string, it storage.Item, etag string) map[string]types.AttributeValue {
	now := s.now().UTC()
	item := map[string]types.AttributeValue{
		attrID:        &types.AttributeValueMemberS{Value: key},
		attrDocument:  &types.AttributeValueMemberS{Value: string(it.Document)},
		attrETag:      &types.AttributeValueMemberS{Value: etag},
		attrUpdatedAt: &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
	}
	if s.ttl > 0 {
		item[attrTTL] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttl).Unix(), 10)}
	}
	return item
}

func itemFromAttributes(item map[string]types.AttributeValue) (storage.Item, error) {
	doc, err := strAttr(item, attrDocument)
	if err != nil {
		return storage.Item{}, err
	}
	etag, err := strAttr(item, attrETag)
	if err != nil {
		return storage.Item{}, err
	}
	return storage.Item{Document: []byte(doc), ETag: etag}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}
