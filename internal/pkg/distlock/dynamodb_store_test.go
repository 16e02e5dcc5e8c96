package distlock

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo evaluates the handful of condition expressions the store uses.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]dynamoLock
}

func newFakeDynamo() *fakeDynamo { return &fakeDynamo{items: map[string]dynamoLock{}} }

func keyOf(k map[string]types.AttributeValue) string {
	return k["id"].(*types.AttributeValueMemberS).Value
}

func strVal(v types.AttributeValue) string { return v.(*types.AttributeValueMemberS).Value }

func numVal(v types.AttributeValue) int64 {
	n, _ := strconv.ParseInt(v.(*types.AttributeValueMemberN).Value, 10, 64)
	return n
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var item dynamoLock
	if err := attributevalue.UnmarshalMap(in.Item, &item); err != nil {
		return nil, err
	}
	if _, ok := f.items[item.ID]; ok && aws.ToString(in.ConditionExpression) == "attribute_not_exists(id)" {
		return nil, conditionFailed()
	}
	f.items[item.ID] = item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	av, err := attributevalue.MarshalMap(item)
	return &dynamodb.GetItemOutput{Item: av}, err
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := keyOf(in.Key)
	item, ok := f.items[id]
	if !ok || item.InstanceID != strVal(in.ExpressionAttributeValues[":owner"]) {
		return nil, conditionFailed()
	}
	item.ExpiresAt = numVal(in.ExpressionAttributeValues[":exp"])
	f.items[id] = item
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := keyOf(in.Key)
	item, ok := f.items[id]
	if !ok {
		return nil, conditionFailed()
	}
	if owner, has := in.ExpressionAttributeValues[":owner"]; has && item.InstanceID != strVal(owner) {
		return nil, conditionFailed()
	}
	if now, has := in.ExpressionAttributeValues[":now"]; has && item.ExpiresAt > numVal(now) {
		return nil, conditionFailed()
	}
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := numVal(in.ExpressionAttributeValues[":now"])
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		if item.ExpiresAt <= now {
			av, err := attributevalue.MarshalMap(item)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, av)
		}
	}
	return out, nil
}

func TestDynamoDBStore_ManagerRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewDynamoDBStore(newFakeDynamo(), "campaign_locks")
	a := newTestManager(store, "a", clock)
	b := newTestManager(store, "b", clock)

	res, err := a.Acquire(ctx, "c1")
	require.NoError(t, err)
	require.True(t, res.Acquired)

	resB, err := b.Acquire(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, resB.Acquired)

	ok, err := b.Release(ctx, res.LockID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.Refresh(ctx, res.LockID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Release(ctx, res.LockID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDynamoDBStore_StaleReclaimAndCleanup(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewDynamoDBStore(newFakeDynamo(), "campaign_locks")
	crashed := newTestManager(store, "crashed", clock)
	survivor := newTestManager(store, "survivor", clock)

	_, err := crashed.Acquire(ctx, "c1")
	require.NoError(t, err)
	_, err = crashed.Acquire(ctx, "c2")
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)

	res, err := survivor.Acquire(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, res.Acquired)

	n, err := survivor.CleanupStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only c2 is still stale")

	l, err := store.Get(ctx, "lock_c1")
	require.NoError(t, err)
	assert.Equal(t, "survivor", l.InstanceID)
}
