package credentials

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamodbInterface interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(options *dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

type senderItemRow struct {
	Email       string `dynamodbav:"Email"`
	AppPassword string `dynamodbav:"AppPassword"`
}

type DynamoStore struct {
	db        dynamodbInterface
	tableName string
}

func NewDynamoStore(db *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		db:        db,
		tableName: tableName,
	}
}

func (s *DynamoStore) Resolve(ctx context.Context, senderId string) (Credentials, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"Email": senderId})
	if err != nil {
		return Credentials{}, err
	}

	proj, err := expression.NewBuilder().
		WithProjection(expression.NamesList(expression.Name("Email"), expression.Name("AppPassword"))).
		Build()
	if err != nil {
		return Credentials{}, err
	}

	res, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      key,
		ProjectionExpression:     proj.Projection(),
		ExpressionAttributeNames: proj.Names(),
		ConsistentRead:           aws.Bool(false),
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to get sender item: %w", err)
	}

	if len(res.Item) == 0 {
		return Credentials{}, ErrSenderNotFound
	}

	return unmarshalSender(res.Item)
}

func unmarshalSender(item map[string]types.AttributeValue) (Credentials, error) {
	var row senderItemRow
	if err := attributevalue.UnmarshalMap(item, &row); err != nil {
		return Credentials{}, fmt.Errorf("failed to unmarshal sender item: %w", err)
	}

	return Credentials{LoginIdentity: row.Email, Secret: row.AppPassword}, nil
}
