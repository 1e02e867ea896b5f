package pricing

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cartware/go-idempotent-checkout/internal/awsx"
)

// Store encapsulates operations on the variants table, which carries each
// variant's money amounts for price selection.
type Store struct {
	client    awsx.DynamoDBAPI
	tableName string
}

// NewStore creates a new variants Store.
func NewStore(client awsx.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
	}
}

// Get fetches a variant by variant_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, variantID string) (*Variant, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"variant_id": &types.AttributeValueMemberS{Value: variantID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get variant: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var v Variant
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, fmt.Errorf("unmarshal variant: %w", err)
	}
	return &v, nil
}

// Put writes a full variant record with its price list.
func (s *Store) Put(ctx context.Context, v *Variant) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal variant: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put variant: %w", err)
	}
	return nil
}
