package dynamotx

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cartware/go-idempotent-checkout/internal/dynamofake"
)

func item(pk, val string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: pk},
		"status":   &types.AttributeValueMemberS{Value: val},
	}
}

func TestCommitAppliesAllWrites(t *testing.T) {
	fake := dynamofake.New()
	tx := Begin(fake)
	tx.StagePut("orders", item("o1", "a"), "")
	tx.StagePut("orders", item("o2", "b"), "attribute_not_exists(order_id)")

	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := len(fake.Table("orders")); got != 2 {
		t.Fatalf("expected 2 items, got %d", got)
	}
}

func TestCommitConditionFailureIsClassified(t *testing.T) {
	fake := dynamofake.New()
	fake.Table("orders")["o1"] = item("o1", "a")

	tx := Begin(fake)
	tx.StagePut("orders", item("o1", "b"), "attribute_not_exists(order_id)")
	tx.StagePut("orders", item("o2", "c"), "")

	err := tx.Commit(context.Background())
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
	// atomic: the second put must not have been applied
	if _, ok := fake.Table("orders")["o2"]; ok {
		t.Fatalf("partial write leaked out of a cancelled transaction")
	}
}

func TestCommitGuards(t *testing.T) {
	fake := dynamofake.New()

	tx := Begin(fake)
	if err := tx.Commit(context.Background()); err == nil {
		t.Fatalf("expected error committing an empty transaction")
	}

	tx2 := Begin(fake)
	tx2.StagePut("orders", item("o1", "a"), "")
	if err := tx2.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := tx2.Commit(context.Background()); err == nil {
		t.Fatalf("expected error on double commit")
	}
}
