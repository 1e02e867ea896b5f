package idempotency

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/cartware/go-idempotent-checkout/internal/dynamotx"
)

// ErrKeyConflict indicates the idempotency key could not be acquired: either a
// create raced into an un-fetchable state, or the token is already bound to a
// different request fingerprint. Callers must surface this immediately (409)
// rather than proceed without a key.
var ErrKeyConflict = errors.New("idempotency key conflict")

// ErrLocked indicates another caller currently holds the key's advisory lock.
var ErrLocked = errors.New("idempotency key locked")

// lockStaleAfter bounds how long a crashed holder can pin a key. A lock older
// than this is treated as abandoned and stolen by the next caller.
const lockStaleAfter = 90 * time.Second

// Store encapsulates idempotency key operations against DynamoDB.
type Store struct {
	client    awsDynamo
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	nowFunc   func() time.Time
}

// awsDynamo matches awsx.DynamoDBAPI without importing it, keeping the store
// mockable with the same narrow surface.
type awsDynamo interface {
	PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error)
	GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error)
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency keys.
// ttlWindow: default TTL window (e.g., 48*time.Hour)
func NewStore(client awsDynamo, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// TableName exposes the backing table so callers can stage writes against it
// inside a shared transaction.
func (s *Store) TableName() string { return s.tableName }

// Fingerprint hashes (method, path, params) into a stable request identity.
// encoding/json sorts map keys, so equal params always hash equal.
func Fingerprint(method, path string, params map[string]interface{}) string {
	payload, err := json.Marshal(params)
	if err != nil {
		payload = nil
	}
	h := md5.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// InitializeRequest resolves or creates the key record for a request.
// An empty providedKey gets a fresh server-generated token. A non-empty token
// that already exists is fetched and returned (idempotent creation) after its
// fingerprint is checked against the incoming request; a mismatch means the
// client reused a token for a different request and is a conflict.
// Returns (key, created, err).
func (s *Store) InitializeRequest(ctx context.Context, providedKey, method, path string, params map[string]interface{}) (*Key, bool, error) {
	token := providedKey
	if token == "" {
		token = uuid.NewString()
	}

	now := s.nowFunc()
	rec := Key{
		IdempotencyKey: token,
		RequestMethod:  method,
		RequestPath:    path,
		RequestParams:  params,
		RequestHash:    Fingerprint(method, path, params),
		RecoveryPoint:  RecoveryPointStarted,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal key record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
		// Only create when attribute_not_exists(idempotency_key)
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	}

	_, err = s.client.PutItem(ctx, input)
	if err == nil {
		return &rec, true, nil
	}

	// detect conditional check failure -> token already exists
	var sc smithy.APIError
	if !errors.As(err, &sc) || sc.ErrorCode() != "ConditionalCheckFailedException" {
		return nil, false, fmt.Errorf("put key record: %w", err)
	}

	existing, err := s.Get(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// Created-then-gone race: we can neither create nor read the record,
		// so the key cannot be safely acquired.
		return nil, false, ErrKeyConflict
	}
	if existing.RequestHash != "" && existing.RequestHash != rec.RequestHash {
		return nil, false, fmt.Errorf("%w: token already bound to a different request", ErrKeyConflict)
	}
	return existing, false, nil
}

// Get retrieves a key record by token. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, token string) (*Key, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: token},
		},
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get key record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Key
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal key record: %w", err)
	}
	return &rec, nil
}

// Lock takes the key's advisory lock. It fails with ErrLocked when another
// caller holds a live lock; a lock older than lockStaleAfter is stolen.
//
// On success the key is refreshed in place from the lock write, so the caller
// always resumes from the record's current recovery point rather than a copy
// read before the lock was won.
func (s *Store) Lock(ctx context.Context, key *Key) error {
	now := s.nowFunc()
	stale := now.Add(-lockStaleAfter)
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key.IdempotencyKey},
		},
		UpdateExpression:    awsString("SET locked_at = :now"),
		ConditionExpression: awsString("attribute_not_exists(locked_at) OR locked_at < :stale"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":stale": &types.AttributeValueMemberS{Value: stale.Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueAllNew,
	}
	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrLocked
		}
		return fmt.Errorf("lock key: %w", err)
	}
	if len(out.Attributes) > 0 {
		var fresh Key
		if err := attributevalue.UnmarshalMap(out.Attributes, &fresh); err != nil {
			return fmt.Errorf("unmarshal locked key: %w", err)
		}
		*key = fresh
	}
	key.LockedAt = &now
	return nil
}

// Unlock releases the advisory lock, but only if this caller still owns it: a
// lock taken (or stolen) by someone else is left alone. Safe to call on an
// unlocked key.
func (s *Store) Unlock(ctx context.Context, key *Key) error {
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key.IdempotencyKey},
		},
		UpdateExpression: awsString("REMOVE locked_at"),
	}
	if key.LockedAt != nil {
		input.ConditionExpression = awsString("locked_at = :ours")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":ours": &types.AttributeValueMemberS{Value: key.LockedAt.Format(time.RFC3339Nano)},
		}
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// Not ours anymore; nothing to release.
			key.LockedAt = nil
			return nil
		}
		return fmt.Errorf("unlock key: %w", err)
	}
	key.LockedAt = nil
	return nil
}

// StageAdvance appends the recovery-point advancement to the caller's
// transaction, conditioned on the record still holding the point the caller
// read. The loser of a concurrent race gets the whole transaction cancelled and
// must re-read the now-advanced record instead of repeating work. The lock
// marker is removed in the same write, so the lock window is exactly the
// transaction's lifetime.
func (s *Store) StageAdvance(tx *dynamotx.Tx, key *Key, patch Patch) {
	now := s.nowFunc()
	expr := "SET recovery_point = :rp, updated_at = :ua REMOVE locked_at"
	values := map[string]types.AttributeValue{
		":rp":       &types.AttributeValueMemberS{Value: string(patch.RecoveryPoint)},
		":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		":expected": &types.AttributeValueMemberS{Value: string(key.RecoveryPoint)},
	}
	if patch.RecoveryPoint.Terminal() {
		expr = "SET recovery_point = :rp, updated_at = :ua, response_code = :rc, response_body = :rb REMOVE locked_at"
		values[":rc"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", patch.ResponseCode)}
		values[":rb"] = &types.AttributeValueMemberS{Value: patch.ResponseBody}
	}

	tx.StageUpdate(s.tableName, map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key.IdempotencyKey},
	}, types.Update{
		UpdateExpression:          awsString(expr),
		ConditionExpression:       awsString("recovery_point = :expected"),
		ExpressionAttributeValues: values,
	})
}

func awsString(s string) *string { return &s }
