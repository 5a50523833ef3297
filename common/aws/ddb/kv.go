package ddb

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gleanhub/go-claimsync"
	"github.com/gleanhub/go-claimsync/common"
	"github.com/gleanhub/go-claimsync/models"
)

// KvStore keeps viewer state in a single DynamoDB table, one item per record
// key, the whole record as a binary value. Used by fleet and relay deployments
// where device-local SQLite is not an option.
type KvStore struct {
	logger models.Logger
	client *dynamodb.Client
	table  string
}

var _ models.KeyValueRepository = &KvStore{}

type kvItem struct {
	Key   string `dynamodbav:"k"`
	Value []byte `dynamodbav:"v"`
}

func NewKvStore(ctx context.Context, logger models.Logger, client *dynamodb.Client) (*KvStore, error) {
	table := "claimsync-" + os.Getenv(claimsync.Env_Env) + "-viewer-state"
	store := KvStore{logger, client, table}
	if err := store.createKvTable(ctx); err != nil {
		return nil, err
	}
	return &store, nil
}

func (s *KvStore) createKvTable(ctx context.Context) error {
	createKvTableInput := dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("k"),
				AttributeType: "S",
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("k"),
				KeyType:       "HASH",
			},
		},
		TableName: aws.String(s.table),
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(1),
			WriteCapacityUnits: aws.Int64(1),
		},
	}
	return createTable(ctx, s.logger, s.client, &createKvTableInput)
}

func (s *KvStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	getItemIn := dynamodb.GetItemInput{
		Key: map[string]types.AttributeValue{
			"k": &types.AttributeValueMemberS{Value: key},
		},
		TableName: aws.String(s.table),
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	getItemOut, err := s.client.GetItem(httpCtx, &getItemIn)
	if err != nil {
		return nil, false, err
	}
	if getItemOut.Item == nil {
		return nil, false, nil
	}
	item := kvItem{}
	if err = attributevalue.UnmarshalMap(getItemOut.Item, &item); err != nil {
		return nil, false, err
	}
	return item.Value, true, nil
}

func (s *KvStore) Put(ctx context.Context, key string, value []byte) error {
	attributeValues, err := attributevalue.MarshalMap(kvItem{Key: key, Value: value})
	if err != nil {
		return err
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	_, err = s.client.PutItem(httpCtx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      attributeValues,
	})
	return err
}

func (s *KvStore) Delete(ctx context.Context, key string) error {
	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	_, err := s.client.DeleteItem(httpCtx, &dynamodb.DeleteItemInput{
		Key: map[string]types.AttributeValue{
			"k": &types.AttributeValueMemberS{Value: key},
		},
		TableName: aws.String(s.table),
	})
	return err
}
