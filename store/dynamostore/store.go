// Package dynamostore persists the snapshot archive in a single DynamoDB
// table, for deployments where the archive must outlive any one host.
// Layout: partition key "pk" is the entity key, sort key "sk" is either a
// snapshot stamp or the literal "latest" for the pointer item. Stamps
// sort lexicographically in chronological order and strictly before
// "latest", so the history is one ascending Query.
package dynamostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	valgarkiv "github.com/eklundh/valgarkiv"
	"github.com/eklundh/valgarkiv/entity"
	"github.com/eklundh/valgarkiv/snapshot"
	"github.com/eklundh/valgarkiv/store"
)

// pointerSK is the sort key of the latest-pointer item. Every stamp sorts
// before it ("2..." < "l").
const pointerSK = "latest"

// DynamoAPI is the slice of the DynamoDB client the store needs.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Store is a DynamoDB-backed snapshot store.
type Store struct {
	api   DynamoAPI
	table string
	det   snapshot.Detector
	locks *store.KeyedLocks
}

var _ store.SnapshotStore = (*Store)(nil)

// New wires an already-configured DynamoDB client.
func New(api DynamoAPI, table string, det snapshot.Detector) *Store {
	return &Store{
		api:   api,
		table: table,
		det:   det,
		locks: store.NewKeyedLocks(0),
	}
}

// Open builds the client from the default AWS config chain.
func Open(ctx context.Context, table string, det snapshot.Detector, optFns ...func(*config.LoadOptions) error) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), table, det), nil
}

// bodyItem is a snapshot body row. The document is stored as its JSON
// encoding rather than a nested attribute map so it round-trips exactly.
type bodyItem struct {
	PK  string `dynamodbav:"pk"`
	SK  string `dynamodbav:"sk"`
	Doc []byte `dynamodbav:"doc"`
}

// pointerItem is the per-entity latest-pointer row.
type pointerItem struct {
	PK    string `dynamodbav:"pk"`
	SK    string `dynamodbav:"sk"`
	Stamp string `dynamodbav:"stamp"`
}

func keyAttrs(entityKey, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: entityKey},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

// WriteIfChanged implements store.SnapshotStore. The body is put with an
// attribute_not_exists guard before the pointer item is replaced, so a
// failure between the two leaves the previous pointer valid.
func (s *Store) WriteIfChanged(ctx context.Context, e entity.Entity, doc snapshot.Document, stamp snapshot.Stamp) (store.WriteResult, error) {
	unlock := s.locks.Lock(e.Key())
	defer unlock()

	latest, err := s.readLatest(ctx, e.Key())
	if err != nil {
		return store.WriteResult{}, err
	}

	if latest != nil && !stamp.After(latest.Stamp) {
		return store.WriteResult{}, fmt.Errorf("entity %s: stamp %s not after latest %s: %w",
			e.Key(), stamp, latest.Stamp, valgarkiv.ErrOutOfOrderTimestamp)
	}

	if !s.det.HasChanged(latest, doc) {
		return store.WriteResult{Written: false, Snapshot: latest}, nil
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return store.WriteResult{}, fmt.Errorf("encode snapshot body: %w", err)
	}

	if err := s.putBody(ctx, e.Key(), stamp, body); err != nil {
		return store.WriteResult{}, fmt.Errorf("entity %s: persist body %s: %v: %w",
			e.Key(), stamp, err, valgarkiv.ErrStorageWrite)
	}

	if err := s.putPointer(ctx, e.Key(), stamp); err != nil {
		return store.WriteResult{}, fmt.Errorf("entity %s: advance latest pointer to %s: %v: %w",
			e.Key(), stamp, err, valgarkiv.ErrStorageWrite)
	}

	return store.WriteResult{
		Written:  true,
		Snapshot: &snapshot.Snapshot{EntityKey: e.Key(), Stamp: stamp, Doc: doc},
	}, nil
}

func (s *Store) putBody(ctx context.Context, entityKey string, stamp snapshot.Stamp, body []byte) error {
	item, err := attributevalue.MarshalMap(bodyItem{PK: entityKey, SK: string(stamp), Doc: body})
	if err != nil {
		return fmt.Errorf("marshal body item: %w", err)
	}

	// Stamps are write-once: a duplicate means two writers raced past the
	// ordering check, which the condition turns into a hard failure.
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("sk"))).
		Build()
	if err != nil {
		return fmt.Errorf("build condition: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 &s.table,
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return err
}

func (s *Store) putPointer(ctx context.Context, entityKey string, stamp snapshot.Stamp) error {
	item, err := attributevalue.MarshalMap(pointerItem{PK: entityKey, SK: pointerSK, Stamp: string(stamp)})
	if err != nil {
		return fmt.Errorf("marshal pointer item: %w", err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.table,
		Item:      item,
	})
	return err
}

// Latest implements store.SnapshotStore with strongly consistent reads:
// the pointer is the coordination point between ingest and sweep.
func (s *Store) Latest(ctx context.Context, e entity.Entity) (*snapshot.Snapshot, error) {
	return s.readLatest(ctx, e.Key())
}

func (s *Store) readLatest(ctx context.Context, entityKey string) (*snapshot.Snapshot, error) {
	consistent := true

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            keyAttrs(entityKey, pointerSK),
		ConsistentRead: &consistent,
	})
	if err != nil {
		return nil, fmt.Errorf("entity %s: read latest pointer: %w", entityKey, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var ptr pointerItem
	if err := attributevalue.UnmarshalMap(out.Item, &ptr); err != nil {
		return nil, fmt.Errorf("entity %s: unmarshal latest pointer: %w", entityKey, err)
	}

	snap, err := s.readBody(ctx, entityKey, snapshot.Stamp(ptr.Stamp))
	if err != nil {
		return nil, fmt.Errorf("entity %s: latest pointer %s dangling: %w", entityKey, ptr.Stamp, err)
	}
	return snap, nil
}

func (s *Store) readBody(ctx context.Context, entityKey string, stamp snapshot.Stamp) (*snapshot.Snapshot, error) {
	consistent := true

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            keyAttrs(entityKey, string(stamp)),
		ConsistentRead: &consistent,
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, errors.New("snapshot body not found")
	}
	return decodeBody(entityKey, out.Item)
}

func decodeBody(entityKey string, item map[string]types.AttributeValue) (*snapshot.Snapshot, error) {
	var row bodyItem
	if err := attributevalue.UnmarshalMap(item, &row); err != nil {
		return nil, fmt.Errorf("unmarshal body item: %w", err)
	}

	var doc snapshot.Document
	if err := json.Unmarshal(row.Doc, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot body %s: %w", row.SK, err)
	}
	return &snapshot.Snapshot{EntityKey: entityKey, Stamp: snapshot.Stamp(row.SK), Doc: doc}, nil
}

// History implements store.SnapshotStore as one ascending Query per page.
func (s *Store) History(ctx context.Context, e entity.Entity) (store.Cursor, error) {
	keyCond := expression.Key("pk").Equal(expression.Value(e.Key())).
		And(expression.Key("sk").LessThan(expression.Value(pointerSK)))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("entity %s: build history query: %w", e.Key(), err)
	}

	return &cursor{store: s, entityKey: e.Key(), expr: expr}, nil
}

type cursor struct {
	store     *Store
	entityKey string
	expr      expression.Expression

	page     []map[string]types.AttributeValue
	next     int
	lastKey  map[string]types.AttributeValue
	finished bool
}

func (c *cursor) Next(ctx context.Context) (*snapshot.Snapshot, bool, error) {
	for {
		if c.next < len(c.page) {
			item := c.page[c.next]
			c.next++
			snap, err := decodeBody(c.entityKey, item)
			if err != nil {
				return nil, false, fmt.Errorf("entity %s: read history: %w", c.entityKey, err)
			}
			return snap, true, nil
		}
		if c.finished {
			return nil, false, nil
		}

		out, err := c.store.api.Query(ctx, &dynamodb.QueryInput{
			TableName:                 &c.store.table,
			KeyConditionExpression:    c.expr.KeyCondition(),
			ExpressionAttributeNames:  c.expr.Names(),
			ExpressionAttributeValues: c.expr.Values(),
			ExclusiveStartKey:         c.lastKey,
		})
		if err != nil {
			return nil, false, fmt.Errorf("entity %s: query history: %w", c.entityKey, err)
		}

		c.page = out.Items
		c.next = 0
		c.lastKey = out.LastEvaluatedKey
		if c.lastKey == nil {
			c.finished = true
		}
		if len(c.page) == 0 && c.finished {
			return nil, false, nil
		}
	}
}

// Delete implements store.SnapshotStore. The entity lock keeps the
// pointer check and the delete from racing a concurrent WriteIfChanged.
func (s *Store) Delete(ctx context.Context, e entity.Entity, stamp snapshot.Stamp) error {
	unlock := s.locks.Lock(e.Key())
	defer unlock()

	consistent := true
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            keyAttrs(e.Key(), pointerSK),
		ConsistentRead: &consistent,
	})
	if err != nil {
		return fmt.Errorf("entity %s: delete %s: read pointer: %v: %w", e.Key(), stamp, err, valgarkiv.ErrStorageDelete)
	}
	if len(out.Item) != 0 {
		var ptr pointerItem
		if err := attributevalue.UnmarshalMap(out.Item, &ptr); err != nil {
			return fmt.Errorf("entity %s: delete %s: unmarshal pointer: %v: %w", e.Key(), stamp, err, valgarkiv.ErrStorageDelete)
		}
		if snapshot.Stamp(ptr.Stamp) == stamp {
			return fmt.Errorf("entity %s: delete %s: %w", e.Key(), stamp, valgarkiv.ErrLatestProtected)
		}
	}

	_, err = s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.table,
		Key:       keyAttrs(e.Key(), string(stamp)),
	})
	if err != nil {
		return fmt.Errorf("entity %s: delete %s: %v: %w", e.Key(), stamp, err, valgarkiv.ErrStorageDelete)
	}
	return nil
}
