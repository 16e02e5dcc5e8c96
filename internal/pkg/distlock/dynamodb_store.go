package distlock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoDBStore.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// dynamoLock stores times as epoch milliseconds so condition expressions can
// compare them numerically.
type dynamoLock struct {
	ID         string `dynamodbav:"id"`
	CampaignID string `dynamodbav:"campaign_id"`
	InstanceID string `dynamodbav:"instance_id"`
	AcquiredAt int64  `dynamodbav:"acquired_at"`
	ExpiresAt  int64  `dynamodbav:"expires_at"`
}

func (d dynamoLock) toDomain() domain.Lock {
	return domain.Lock{
		ID:         d.ID,
		CampaignID: d.CampaignID,
		InstanceID: d.InstanceID,
		AcquiredAt: time.UnixMilli(d.AcquiredAt),
		ExpiresAt:  time.UnixMilli(d.ExpiresAt),
	}
}

// DynamoDBStore keeps lock records in a DynamoDB table keyed by "id".
// Conditional writes give the same create-or-fail guarantee as a unique key.
type DynamoDBStore struct {
	client DynamoDBAPI
	table  string
}

// NewDynamoDBStore creates a DynamoDB-backed lock store.
func NewDynamoDBStore(client DynamoDBAPI, table string) *DynamoDBStore {
	return &DynamoDBStore{client: client, table: table}
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func numAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (s *DynamoDBStore) Create(ctx context.Context, lock *domain.Lock) error {
	item, err := attributevalue.MarshalMap(dynamoLock{
		ID:         lock.ID,
		CampaignID: lock.CampaignID,
		InstanceID: lock.InstanceID,
		AcquiredAt: lock.AcquiredAt.UnixMilli(),
		ExpiresAt:  lock.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if isConditionFailed(err) {
		return ErrLockExists
	}
	if err != nil {
		return fmt.Errorf("put lock: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, id string) (*domain.Lock, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get lock: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrLockNotFound
	}
	var item dynamoLock
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal lock: %w", err)
	}
	l := item.toDomain()
	return &l, nil
}

func (s *DynamoDBStore) Extend(ctx context.Context, id, instanceID string, expiresAt time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 idKey(id),
		UpdateExpression:    aws.String("SET expires_at = :exp"),
		ConditionExpression: aws.String("instance_id = :owner"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":exp":   numAttr(expiresAt.UnixMilli()),
			":owner": &types.AttributeValueMemberS{Value: instanceID},
		},
	})
	if isConditionFailed(err) {
		return ErrLockNotHeld
	}
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) Delete(ctx context.Context, id, instanceID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 idKey(id),
		ConditionExpression: aws.String("instance_id = :owner"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: instanceID},
		},
	})
	if isConditionFailed(err) {
		return ErrLockNotHeld
	}
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) DeleteExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 idKey(id),
		ConditionExpression: aws.String("expires_at <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": numAttr(now.UnixMilli()),
		},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete expired lock: %w", err)
	}
	return true, nil
}

func (s *DynamoDBStore) ListExpired(ctx context.Context, now time.Time) ([]domain.Lock, error) {
	var (
		out      []domain.Lock
		startKey map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.table),
			FilterExpression: aws.String("expires_at <= :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": numAttr(now.UnixMilli()),
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan locks: %w", err)
		}
		var items []dynamoLock
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal locks: %w", err)
		}
		for _, it := range items {
			out = append(out, it.toDomain())
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = page.LastEvaluatedKey
	}
}
