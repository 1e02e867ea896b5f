package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cartware/go-idempotent-checkout/internal/dynamofake"
	"github.com/cartware/go-idempotent-checkout/internal/dynamotx"
)

const table = "idempotency-keys"

func newTestStore() (*Store, *dynamofake.Fake) {
	fake := dynamofake.New()
	return NewStore(fake, table, 48*time.Hour), fake
}

func cartParams(cartID string) map[string]interface{} {
	return map[string]interface{}{"cart_id": cartID}
}

func TestInitializeRequest_GeneratesToken(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	key, created, err := s.InitializeRequest(ctx, "", "POST", "/carts/c1/complete", cartParams("c1"))
	if err != nil {
		t.Fatalf("InitializeRequest error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}
	if key.IdempotencyKey == "" {
		t.Fatalf("expected a generated token")
	}
	if key.RecoveryPoint != RecoveryPointStarted {
		t.Fatalf("expected started, got %s", key.RecoveryPoint)
	}
	if key.ExpiresAt <= time.Now().Unix() {
		t.Fatalf("expected a future TTL, got %d", key.ExpiresAt)
	}
}

func TestInitializeRequest_ReturnsExistingRecord(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	first, created, err := s.InitializeRequest(ctx, "tok-1", "POST", "/carts/c1/complete", cartParams("c1"))
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	second, created, err := s.InitializeRequest(ctx, "tok-1", "POST", "/carts/c1/complete", cartParams("c1"))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatalf("expected created=false on duplicate token")
	}
	if second.IdempotencyKey != first.IdempotencyKey || second.RequestHash != first.RequestHash {
		t.Fatalf("expected the existing record back")
	}
}

func TestInitializeRequest_DifferentCartIsConflict(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if _, _, err := s.InitializeRequest(ctx, "tok-1", "POST", "/carts/c1/complete", cartParams("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _, err := s.InitializeRequest(ctx, "tok-1", "POST", "/carts/c2/complete", cartParams("c2"))
	if !errors.Is(err, ErrKeyConflict) {
		t.Fatalf("expected ErrKeyConflict, got %v", err)
	}
}

func TestLockContention(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	key, _, err := s.InitializeRequest(ctx, "tok-1", "POST", "/carts/c1/complete", cartParams("c1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Lock(ctx, key); err != nil {
		t.Fatalf("first lock: %v", err)
	}

	// a second caller working from its own read of the record
	other, err := s.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := s.Lock(ctx, other); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if err := s.Unlock(ctx, key); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := s.Lock(ctx, other); err != nil {
		t.Fatalf("lock after unlock: %v", err)
	}
}

func TestLockStealsStaleLock(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()

	key, _, err := s.InitializeRequest(ctx, "tok-1", "POST", "/carts/c1/complete", cartParams("c1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// simulate a holder that crashed long ago
	stale := time.Now().Add(-10 * time.Minute).Format(time.RFC3339Nano)
	fake.Table(table)["tok-1"]["locked_at"] = &types.AttributeValueMemberS{Value: stale}

	if err := s.Lock(ctx, key); err != nil {
		t.Fatalf("expected stale lock to be stolen, got %v", err)
	}
}

func TestUnlockOnlyReleasesOwnLock(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()

	key, _, err := s.InitializeRequest(ctx, "tok-1", "POST", "/carts/c1/complete", cartParams("c1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Lock(ctx, key); err != nil {
		t.Fatalf("lock: %v", err)
	}

	// another caller's view, holding a different lock timestamp
	strangerTime := time.Now().Add(-time.Minute)
	stranger := &Key{IdempotencyKey: "tok-1", LockedAt: &strangerTime}
	if err := s.Unlock(ctx, stranger); err != nil {
		t.Fatalf("stranger unlock: %v", err)
	}
	if _, ok := fake.Table(table)["tok-1"]["locked_at"]; !ok {
		t.Fatalf("stranger unlock released a lock it did not own")
	}

	if err := s.Unlock(ctx, key); err != nil {
		t.Fatalf("owner unlock: %v", err)
	}
	if _, ok := fake.Table(table)["tok-1"]["locked_at"]; ok {
		t.Fatalf("owner unlock did not release the lock")
	}
}

func TestStageAdvance_ForwardOnly(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()

	key, _, err := s.InitializeRequest(ctx, "tok-1", "POST", "/carts/c1/complete", cartParams("c1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tx := dynamotx.Begin(fake)
	s.StageAdvance(tx, key, Patch{RecoveryPoint: RecoveryPoint("payment_authorized")})
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}

	got, err := s.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RecoveryPoint != RecoveryPoint("payment_authorized") {
		t.Fatalf("recovery point not advanced, got %s", got.RecoveryPoint)
	}

	// a writer still holding the old read must lose
	tx2 := dynamotx.Begin(fake)
	s.StageAdvance(tx2, key, Patch{RecoveryPoint: RecoveryPoint("order_created")})
	if err := tx2.Commit(ctx); !errors.Is(err, dynamotx.ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed for stale advance, got %v", err)
	}
}

func TestStageAdvance_TerminalPersistsResponseAndUnlocks(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()

	key, _, err := s.InitializeRequest(ctx, "tok-1", "POST", "/carts/c1/complete", cartParams("c1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Lock(ctx, key); err != nil {
		t.Fatalf("lock: %v", err)
	}

	tx := dynamotx.Begin(fake)
	s.StageAdvance(tx, key, Patch{
		RecoveryPoint: RecoveryPointFinished,
		ResponseCode:  200,
		ResponseBody:  `{"ok":true}`,
	})
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}

	got, err := s.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.RecoveryPoint.Terminal() {
		t.Fatalf("expected terminal point, got %s", got.RecoveryPoint)
	}
	if got.ResponseCode != 200 || got.ResponseBody != `{"ok":true}` {
		t.Fatalf("response not persisted: code=%d body=%s", got.ResponseCode, got.ResponseBody)
	}
	if got.LockedAt != nil {
		t.Fatalf("advance did not release the lock")
	}
}

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint("POST", "/carts/c1/complete", map[string]interface{}{"cart_id": "c1"})
	b := Fingerprint("POST", "/carts/c1/complete", map[string]interface{}{"cart_id": "c1"})
	if a != b {
		t.Fatalf("fingerprint not deterministic: %s != %s", a, b)
	}
	c := Fingerprint("POST", "/carts/c2/complete", map[string]interface{}{"cart_id": "c2"})
	if a == c {
		t.Fatalf("different requests should fingerprint differently")
	}
}
