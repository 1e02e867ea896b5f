package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/cartware/go-idempotent-checkout/internal/awsx"
	"github.com/cartware/go-idempotent-checkout/internal/orders"
)

// Processor handles completion events and performs the post-completion side
// effects (customer notification) exactly once per order.
type Processor struct {
	orderStore *orders.Store
}

// NewProcessor creates a worker processor with AWS clients injected.
func NewProcessor(client awsx.DynamoDBAPI, ordersTable string) *Processor {
	return &Processor{
		orderStore: orders.NewStore(client, ordersTable),
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.Printf("worker error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg workerMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	log.Printf("[worker] received order=%s kind=%s idempotency_key=%s",
		msg.OrderID, msg.Kind, msg.IdempotencyKey)

	o, err := p.orderStore.Get(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("failed to fetch order: %w", err)
	}
	if o == nil {
		// Should never happen: events are published only after the order
		// committed. DLQ if it does.
		return fmt.Errorf("order not found: %s", msg.OrderID)
	}

	if err := p.orderStore.IncrementAttempts(ctx, msg.OrderID); err != nil {
		return fmt.Errorf("failed to bump attempts: %w", err)
	}

	// Claim the notification: PENDING -> SENT via conditional update, so a
	// duplicate delivery cannot notify twice.
	err = p.orderStore.UpdateNotificationStatus(ctx, msg.OrderID, orders.NotifyPending, orders.NotifySent)
	if err == orders.ErrStatusMismatch {
		o2, gerr := p.orderStore.Get(ctx, msg.OrderID)
		if gerr != nil {
			return fmt.Errorf("failed to re-fetch order: %w", gerr)
		}
		switch o2.NotificationStatus {
		case orders.NotifySent:
			log.Printf("[worker] duplicate event for order=%s, already notified", msg.OrderID)
			return nil
		case orders.NotifyFailed:
			return fmt.Errorf("order=%s notification already marked FAILED", msg.OrderID)
		default:
			return fmt.Errorf("unexpected notification status for order=%s: %s", msg.OrderID, o2.NotificationStatus)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to claim notification: %w", err)
	}

	notify(o)
	log.Printf("[worker] notified for order=%s", msg.OrderID)
	return nil
}

// notify sends the order confirmation. Stands in for the real notification
// dispatch, which is an external collaborator.
func notify(o *orders.Order) {
	log.Printf("[worker] order confirmation: order=%s kind=%s email=%s total=%d %s",
		o.OrderID, o.Kind, o.Email, o.Total, o.CurrencyCode)
}
