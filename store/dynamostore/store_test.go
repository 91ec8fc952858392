package dynamostore

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	valgarkiv "github.com/eklundh/valgarkiv"
	"github.com/eklundh/valgarkiv/entity"
	"github.com/eklundh/valgarkiv/snapshot"
)

// fakeDynamo is an in-memory DynamoAPI good enough for the store's access
// patterns: keyed puts/gets/deletes and the ascending history query.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]map[string]types.AttributeValue // pk -> sk -> item
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue, attr string) string {
	return item[attr].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pk, sk := itemKey(params.Item, "pk"), itemKey(params.Item, "sk")
	if params.ConditionExpression != nil {
		// The store only ever uses attribute_not_exists(sk).
		if _, exists := f.items[pk][sk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if f.items[pk] == nil {
		f.items[pk] = make(map[string]map[string]types.AttributeValue)
	}
	f.items[pk][sk] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pk, sk := itemKey(params.Key, "pk"), itemKey(params.Key, "sk")
	item := f.items[pk][sk]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// The store's only query: pk = :v AND sk < "latest", ascending.
	var pk string
	for _, v := range params.ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); ok && f.items[s.Value] != nil {
			pk = s.Value
		}
	}

	var sks []string
	for sk := range f.items[pk] {
		if sk < pointerSK {
			sks = append(sks, sk)
		}
	}
	sort.Strings(sks)

	out := &dynamodb.QueryOutput{}
	for _, sk := range sks {
		out.Items = append(out.Items, f.items[pk][sk])
	}
	return out, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pk, sk := itemKey(params.Key, "pk"), itemKey(params.Key, "sk")
	delete(f.items[pk], sk)
	return &dynamodb.DeleteItemOutput{}, nil
}

func newTestStore(t *testing.T) (*Store, *fakeDynamo) {
	t.Helper()
	fake := newFakeDynamo()
	return New(fake, "valgarkiv-snapshots", snapshot.NewDetector(snapshot.DefaultDetectorConfig())), fake
}

func testMunicipality() entity.Entity {
	county := entity.NewCounty("03", "Oslo")
	return entity.NewMunicipality(county, "0301", "Oslo")
}

func stampAt(minute int) snapshot.Stamp {
	return snapshot.At(time.Date(2025, 9, 8, 20, minute, 0, 0, time.UTC))
}

func votes(total float64) snapshot.Document {
	return snapshot.Document{
		"tidspunkt":   "2025-09-08T20:00:00",
		"oppslutning": map[string]any{"stemmer": map[string]any{"total": total}},
	}
}

func TestWriteIfChangedRoundTrip(t *testing.T) {
	s, fake := newTestStore(t)
	e := testMunicipality()
	ctx := context.Background()

	res, err := s.WriteIfChanged(ctx, e, votes(100), stampAt(0))
	require.NoError(t, err)
	assert.True(t, res.Written)

	// Body and pointer rows both exist.
	assert.Len(t, fake.items[e.Key()], 2)

	latest, err := s.Latest(ctx, e)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, stampAt(0), latest.Stamp)
	total := latest.Doc["oppslutning"].(map[string]any)["stemmer"].(map[string]any)["total"]
	assert.Equal(t, float64(100), total)
}

func TestWriteIfChangedSkipsUnchanged(t *testing.T) {
	s, _ := newTestStore(t)
	e := testMunicipality()
	ctx := context.Background()

	_, err := s.WriteIfChanged(ctx, e, votes(100), stampAt(0))
	require.NoError(t, err)

	res, err := s.WriteIfChanged(ctx, e, votes(100), stampAt(5))
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Equal(t, stampAt(0), res.Snapshot.Stamp)
}

func TestWriteIfChangedRejectsOutOfOrder(t *testing.T) {
	s, _ := newTestStore(t)
	e := testMunicipality()
	ctx := context.Background()

	_, err := s.WriteIfChanged(ctx, e, votes(100), stampAt(5))
	require.NoError(t, err)

	_, err = s.WriteIfChanged(ctx, e, votes(200), stampAt(5))
	assert.ErrorIs(t, err, valgarkiv.ErrOutOfOrderTimestamp)

	_, err = s.WriteIfChanged(ctx, e, votes(200), stampAt(1))
	assert.ErrorIs(t, err, valgarkiv.ErrOutOfOrderTimestamp)
}

func TestHistoryAscending(t *testing.T) {
	s, _ := newTestStore(t)
	e := testMunicipality()
	ctx := context.Background()

	for i, total := range []float64{100, 200, 300} {
		_, err := s.WriteIfChanged(ctx, e, votes(total), stampAt(i*10))
		require.NoError(t, err)
	}

	cur, err := s.History(ctx, e)
	require.NoError(t, err)

	var stamps []snapshot.Stamp
	for {
		snap, ok, err := cur.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		stamps = append(stamps, snap.Stamp)
	}
	assert.Equal(t, []snapshot.Stamp{stampAt(0), stampAt(10), stampAt(20)}, stamps)
}

func TestDeleteRefusesLatest(t *testing.T) {
	s, _ := newTestStore(t)
	e := testMunicipality()
	ctx := context.Background()

	_, err := s.WriteIfChanged(ctx, e, votes(100), stampAt(0))
	require.NoError(t, err)
	_, err = s.WriteIfChanged(ctx, e, votes(200), stampAt(10))
	require.NoError(t, err)

	err = s.Delete(ctx, e, stampAt(10))
	assert.ErrorIs(t, err, valgarkiv.ErrLatestProtected)

	require.NoError(t, s.Delete(ctx, e, stampAt(0)))

	latest, err := s.Latest(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, stampAt(10), latest.Stamp)
}
