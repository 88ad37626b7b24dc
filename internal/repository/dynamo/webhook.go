// Package dynamo holds the DynamoDB-backed webhook definition store.
// Webhook definitions are small, read-mostly records looked up by id on
// every webhook trigger, which suits a key-value table better than the
// relational run store.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aws-educate-tw/tpet-pipeline/internal/domain"
)

// ErrWebhookNotFound is returned when no definition exists for an id.
var ErrWebhookNotFound = errors.New("webhook definition not found")

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// WebhookStore reads and writes webhook definitions in one table keyed by
// webhook_id.
type WebhookStore struct {
	client    DynamoAPI
	tableName string
}

// NewWebhookStore wraps a DynamoDB client and table name.
func NewWebhookStore(client DynamoAPI, tableName string) *WebhookStore {
	return &WebhookStore{client: client, tableName: tableName}
}

// Get returns the definition for a webhook id.
func (s *WebhookStore) Get(ctx context.Context, webhookID string) (*domain.WebhookDefinition, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"webhook_id": &types.AttributeValueMemberS{Value: webhookID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get webhook %s: %w", webhookID, err)
	}
	if out.Item == nil {
		return nil, ErrWebhookNotFound
	}

	var def domain.WebhookDefinition
	if err := attributevalue.UnmarshalMap(out.Item, &def); err != nil {
		return nil, fmt.Errorf("unmarshal webhook %s: %w", webhookID, err)
	}
	return &def, nil
}

// List returns every stored definition. The table holds at most a few
// dozen webhooks, so a paged scan is not worth its complexity yet.
func (s *WebhookStore) List(ctx context.Context) ([]domain.WebhookDefinition, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return nil, fmt.Errorf("scan webhooks: %w", err)
	}

	defs := make([]domain.WebhookDefinition, 0, len(out.Items))
	for _, item := range out.Items {
		var def domain.WebhookDefinition
		if err := attributevalue.UnmarshalMap(item, &def); err != nil {
			return nil, fmt.Errorf("unmarshal webhook item: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Put stores a definition, replacing any existing record for the id.
func (s *WebhookStore) Put(ctx context.Context, def *domain.WebhookDefinition) error {
	item, err := attributevalue.MarshalMap(def)
	if err != nil {
		return fmt.Errorf("marshal webhook %s: %w", def.WebhookID, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put webhook %s: %w", def.WebhookID, err)
	}
	return nil
}
