package dynamotx

import (
	"context"
	"errors"
	"fmt"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cartware/go-idempotent-checkout/internal/awsx"
)

// ErrConditionFailed indicates the transaction was cancelled because one of its
// condition expressions did not hold (e.g. another writer already advanced the
// record). Callers should re-read the contended record and resume, not retry
// the same write blindly.
var ErrConditionFailed = errors.New("transact condition failed")

// Tx accumulates write items and commits them in a single TransactWriteItems
// call. Nothing is written before Commit, so any error path before Commit is a
// rollback. A Tx is single-use and not safe for concurrent staging.
type Tx struct {
	client    awsx.DynamoDBAPI
	items     []types.TransactWriteItem
	committed bool
}

// Begin returns an empty transaction bound to a DynamoDB client.
func Begin(client awsx.DynamoDBAPI) *Tx {
	return &Tx{client: client}
}

// StagePut appends a Put to the transaction. condition may be empty.
func (t *Tx) StagePut(table string, item map[string]types.AttributeValue, condition string) {
	put := &types.Put{
		TableName: &table,
		Item:      item,
	}
	if condition != "" {
		put.ConditionExpression = &condition
	}
	t.items = append(t.items, types.TransactWriteItem{Put: put})
}

// StageUpdate appends an Update to the transaction.
func (t *Tx) StageUpdate(table string, key map[string]types.AttributeValue, update types.Update) {
	update.TableName = &table
	update.Key = key
	t.items = append(t.items, types.TransactWriteItem{Update: &update})
}

// Len reports the number of staged items.
func (t *Tx) Len() int { return len(t.items) }

// Commit issues the TransactWriteItems call. A cancellation caused by a failed
// condition expression is returned as ErrConditionFailed; other cancellation
// reasons and transport errors are returned wrapped.
func (t *Tx) Commit(ctx context.Context) error {
	if t.committed {
		return errors.New("transaction already committed")
	}
	if len(t.items) == 0 {
		return errors.New("empty transaction")
	}
	t.committed = true

	_, err := t.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: t.items,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			for _, reason := range tce.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return fmt.Errorf("%w: %v", ErrConditionFailed, err)
				}
			}
			// No per-item reasons reported; treat the whole cancellation as
			// a condition failure so callers re-read rather than re-write.
			if len(tce.CancellationReasons) == 0 {
				return fmt.Errorf("%w: %v", ErrConditionFailed, err)
			}
			return fmt.Errorf("transaction canceled: %w", err)
		}
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %v", ErrConditionFailed, err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}
