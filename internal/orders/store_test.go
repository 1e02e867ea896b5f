package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cartware/go-idempotent-checkout/internal/carts"
	"github.com/cartware/go-idempotent-checkout/internal/dynamofake"
	"github.com/cartware/go-idempotent-checkout/internal/dynamotx"
)

func seedOrder(t *testing.T, fake *dynamofake.Fake, s *Store, orderID string) Order {
	t.Helper()
	cart := &carts.Cart{
		CartID:       "cart-1",
		Type:         carts.TypeDefault,
		CustomerID:   "cus-1",
		RegionID:     "reg-eu",
		CurrencyCode: "eur",
		Items:        []carts.LineItem{{VariantID: "var-1", Quantity: 1, UnitPrice: 2500}},
		Subtotal:     2500,
		TaxTotal:     475,
		Total:        2975,
	}
	o := FromCart(orderID, cart, time.Now())
	tx := dynamotx.Begin(fake)
	if err := s.StageCreate(tx, o); err != nil {
		t.Fatalf("stage create: %v", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return o
}

func TestFromCartSnapshotsTotals(t *testing.T) {
	cart := &carts.Cart{
		CartID:   "cart-1",
		Type:     carts.TypeSwap,
		Items:    []carts.LineItem{{VariantID: "var-1", Quantity: 2, UnitPrice: 1000}},
		Subtotal: 2000,
		TaxTotal: 380,
		Total:    2380,
	}
	o := FromCart("ord-1", cart, time.Now())
	if o.Kind != KindSwap {
		t.Fatalf("kind = %s, want %s", o.Kind, KindSwap)
	}
	if o.Total != 2380 || o.Subtotal != 2000 || o.TaxTotal != 380 {
		t.Fatalf("totals not snapshotted: %+v", o)
	}
	if o.NotificationStatus != NotifyPending {
		t.Fatalf("new order not pending notification: %s", o.NotificationStatus)
	}
}

func TestStageCreateRejectsDuplicateID(t *testing.T) {
	fake := dynamofake.New()
	s := NewStore(fake, "orders")
	seedOrder(t, fake, s, "ord-1")

	cart := &carts.Cart{CartID: "cart-1", Items: []carts.LineItem{{VariantID: "v", Quantity: 1, UnitPrice: 1}}}
	dup := FromCart("ord-1", cart, time.Now())
	tx := dynamotx.Begin(fake)
	if err := s.StageCreate(tx, dup); err != nil {
		t.Fatalf("stage create: %v", err)
	}
	if err := tx.Commit(context.Background()); !errors.Is(err, dynamotx.ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
}

func TestUpdateNotificationStatus(t *testing.T) {
	fake := dynamofake.New()
	s := NewStore(fake, "orders")
	seedOrder(t, fake, s, "ord-1")
	ctx := context.Background()

	if err := s.UpdateNotificationStatus(ctx, "ord-1", NotifyPending, NotifySent); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// the claim is a compare-and-set: a second claimer loses
	err := s.UpdateNotificationStatus(ctx, "ord-1", NotifyPending, NotifySent)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	o, err := s.Get(ctx, "ord-1")
	if err != nil || o == nil {
		t.Fatalf("get: %v", err)
	}
	if o.NotificationStatus != NotifySent {
		t.Fatalf("status = %s, want %s", o.NotificationStatus, NotifySent)
	}
}

func TestIncrementAttempts(t *testing.T) {
	fake := dynamofake.New()
	s := NewStore(fake, "orders")
	seedOrder(t, fake, s, "ord-1")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.IncrementAttempts(ctx, "ord-1"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	o, err := s.Get(ctx, "ord-1")
	if err != nil || o == nil {
		t.Fatalf("get: %v", err)
	}
	if o.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", o.Attempts)
	}
}
