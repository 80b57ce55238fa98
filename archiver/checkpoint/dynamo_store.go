package checkpoint

import (
	"context"
	"os"
	"strconv"

	"github.com/chanvault/chanvault/model"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/pkg/errors"
)

const (
	attrChannelId  = "channel_id"
	attrCheckpoint = "checkpoint"
	attrCounter    = "archived_count"
)

// DynamoStore keeps one item per channel in a DynamoDB table, keyed by
// channel id. Compare-and-set maps onto a conditional PutItem.
type DynamoStore struct {
	svc   *dynamodb.DynamoDB
	table string
}

func NewDynamoStore(svc *dynamodb.DynamoDB, table string) *DynamoStore {
	return &DynamoStore{svc: svc, table: table}
}

// NewDynamoStoreFromEnv builds a store against the table named by
// CHECKPOINT_TABLE in the region named by AWS_REGION.
func NewDynamoStoreFromEnv() (*DynamoStore, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(os.Getenv("AWS_REGION")),
	})
	if err != nil {
		return nil, err
	}
	table := os.Getenv("CHECKPOINT_TABLE")
	if table == "" {
		return nil, errors.New("CHECKPOINT_TABLE is not set")
	}
	return NewDynamoStore(dynamodb.New(sess), table), nil
}

func (s *DynamoStore) Get(ctx context.Context, channelId string) (model.SyncCheckpoint, error) {
	out, err := s.svc.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			attrChannelId: {S: aws.String(channelId)},
		},
	})
	if err != nil {
		return model.SyncCheckpoint{}, errors.Wrap(err, "fail to read checkpoint for "+channelId)
	}
	if out.Item == nil {
		return model.SyncCheckpoint{}, nil
	}

	cp := model.SyncCheckpoint{}
	if v, ok := out.Item[attrCheckpoint]; ok && v.S != nil {
		cp.Checkpoint = *v.S
	}
	if v, ok := out.Item[attrCounter]; ok && v.N != nil {
		counter, err := strconv.ParseInt(*v.N, 10, 64)
		if err != nil {
			return model.SyncCheckpoint{}, errors.Wrap(err, "malformed counter for "+channelId)
		}
		cp.Counter = counter
	}
	return cp, nil
}

func (s *DynamoStore) CompareAndSet(ctx context.Context, channelId string, expected, next model.SyncCheckpoint) error {
	if _, err := s.svc.PutItemWithContext(ctx, s.compareAndSetInput(channelId, expected, next)); err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return ErrCheckpointConflict
		}
		return errors.Wrap(err, "fail to advance checkpoint for "+channelId)
	}
	return nil
}

// compareAndSetInput builds the conditional PutItem request. "checkpoint" is
// on DynamoDB's reserved word list, so condition expressions must reference
// it through an ExpressionAttributeNames alias.
func (s *DynamoStore) compareAndSetInput(channelId string, expected, next model.SyncCheckpoint) *dynamodb.PutItemInput {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]*dynamodb.AttributeValue{
			attrChannelId:  {S: aws.String(channelId)},
			attrCheckpoint: {S: aws.String(next.Checkpoint)},
			attrCounter:    {N: aws.String(strconv.FormatInt(next.Counter, 10))},
		},
		ExpressionAttributeNames: map[string]*string{
			"#cp": aws.String(attrCheckpoint),
		},
	}

	if expected.Checkpoint == "" {
		// First sync for this channel: the item must not exist yet (or must
		// still carry an empty cursor).
		input.ConditionExpression = aws.String("attribute_not_exists(channel_id) OR #cp = :empty")
		input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{
			":empty": {S: aws.String("")},
		}
	} else {
		input.ConditionExpression = aws.String("#cp = :expected")
		input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{
			":expected": {S: aws.String(expected.Checkpoint)},
		}
	}
	return input
}
