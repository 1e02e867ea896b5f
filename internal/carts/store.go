package carts

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cartware/go-idempotent-checkout/internal/awsx"
	"github.com/cartware/go-idempotent-checkout/internal/dynamotx"
)

// Store encapsulates operations on the carts table.
type Store struct {
	client    awsx.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new carts Store.
func NewStore(client awsx.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Get fetches a cart by cart_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, cartID string) (*Cart, error) {
	key := map[string]types.AttributeValue{
		"cart_id": &types.AttributeValueMemberS{Value: cartID},
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Cart
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &c, nil
}

// Put writes a full cart record (used for seeding and tests).
func (s *Store) Put(ctx context.Context, c *Cart) error {
	now := s.nowFunc()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put cart: %w", err)
	}
	return nil
}

// StageTaxLines appends the cart's computed tax lines, totals and (possibly
// re-priced) items to tx.
func (s *Store) StageTaxLines(tx *dynamotx.Tx, c *Cart) error {
	lines, err := attributevalue.Marshal(c.TaxLines)
	if err != nil {
		return fmt.Errorf("marshal tax lines: %w", err)
	}
	items, err := attributevalue.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	now := s.nowFunc()
	tx.StageUpdate(s.tableName, map[string]types.AttributeValue{
		"cart_id": &types.AttributeValueMemberS{Value: c.CartID},
	}, types.Update{
		UpdateExpression: awsString("SET tax_lines = :tl, #it = :it, subtotal = :st, tax_total = :tt, #tot = :tot, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#tot": "total",
			"#it":  "items",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tl":  lines,
			":it":  items,
			":st":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", c.Subtotal)},
			":tt":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", c.TaxTotal)},
			":tot": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", c.Total)},
			":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	return nil
}

// StagePaymentSession appends the cart's updated payment session to tx.
func (s *Store) StagePaymentSession(tx *dynamotx.Tx, c *Cart) error {
	session, err := attributevalue.Marshal(c.PaymentSession)
	if err != nil {
		return fmt.Errorf("marshal payment session: %w", err)
	}
	now := s.nowFunc()
	tx.StageUpdate(s.tableName, map[string]types.AttributeValue{
		"cart_id": &types.AttributeValueMemberS{Value: c.CartID},
	}, types.Update{
		UpdateExpression: awsString("SET payment_session = :ps, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ps": session,
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	return nil
}

// StageCompleted appends the cart's completed_at marker to tx, conditioned on
// the cart not being completed already. Order creation and this marker commit
// in the same transaction or not at all.
func (s *Store) StageCompleted(tx *dynamotx.Tx, c *Cart) {
	now := s.nowFunc()
	tx.StageUpdate(s.tableName, map[string]types.AttributeValue{
		"cart_id": &types.AttributeValueMemberS{Value: c.CartID},
	}, types.Update{
		UpdateExpression:    awsString("SET completed_at = :ca, updated_at = :ua"),
		ConditionExpression: awsString("attribute_not_exists(completed_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ca": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
}

func awsString(s string) *string { return &s }
