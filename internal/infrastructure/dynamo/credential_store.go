// Package dynamo stores provider credentials as DynamoDB items keyed by "<provider>_<user_id>".
package dynamo

import (
	"context"
	"fmt"
	"time"

	"healthsync/internal/domain/credential"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type api interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type Config struct {
	Region   string
	Endpoint string
	Table    string
}

// item is the stored shape: the token plus its key and bookkeeping attributes.
type item struct {
	ID        string `dynamodbav:"id"`
	Provider  string `dynamodbav:"provider"`
	UserID    string `dynamodbav:"user_id"`
	UpdatedAt int64  `dynamodbav:"updated_at"`
	credential.Token
}

type CredentialStore struct {
	db    api
	table string
	now   func() time.Time
}

func NewCredentialStore(ctx context.Context, cfg Config) (*CredentialStore, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamodb: table name is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newCredentialStore(client, cfg.Table), nil
}

func newCredentialStore(db api, table string) *CredentialStore {
	return &CredentialStore{db: db, table: table, now: time.Now}
}

func (s *CredentialStore) Get(ctx context.Context, provider, userID string) (*credential.Token, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: credential.DocumentID(provider, userID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get token: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("dynamodb decode token: %w", err)
	}
	t := it.Token
	return &t, nil
}

func (s *CredentialStore) Put(ctx context.Context, provider, userID string, t credential.Token) error {
	av, err := attributevalue.MarshalMap(item{
		ID:        credential.DocumentID(provider, userID),
		Provider:  provider,
		UserID:    userID,
		UpdatedAt: s.now().Unix(),
		Token:     t,
	})
	if err != nil {
		return fmt.Errorf("dynamodb encode token: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put token: %w", err)
	}
	return nil
}
