package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/cartware/go-idempotent-checkout/internal/awsx"
	"github.com/cartware/go-idempotent-checkout/internal/dynamotx"
	"github.com/cartware/go-idempotent-checkout/internal/idempotency"
	"github.com/cartware/go-idempotent-checkout/internal/orders"
)

// maxPasses bounds how many times one Execute call may go around the step
// loop, including re-reads after losing a concurrent advancement race.
const maxPasses = 10

// Request identifies one completion attempt.
type Request struct {
	Token  string // client-supplied Idempotency-Key; empty means server-generated
	Method string
	Path   string
	CartID string
}

// CompletionEvent is the message published after an order or swap is created.
type CompletionEvent struct {
	OrderID        string `json:"order_id"`
	CartID         string `json:"cart_id"`
	Kind           string `json:"kind"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Executor drives a Strategy through the completion state machine behind a
// persisted idempotency key. All collaborators are injected at construction.
type Executor struct {
	Keys      *idempotency.Store
	Strategy  Strategy
	Client    awsx.DynamoDBAPI
	Metrics   *awsx.Metrics   // optional
	Publisher *awsx.Publisher // optional
}

// NewExecutor wires an executor from its collaborators.
func NewExecutor(keys *idempotency.Store, strategy Strategy, client awsx.DynamoDBAPI, metrics *awsx.Metrics, publisher *awsx.Publisher) *Executor {
	return &Executor{
		Keys:      keys,
		Strategy:  strategy,
		Client:    client,
		Metrics:   metrics,
		Publisher: publisher,
	}
}

// Execute resolves the request's idempotency key and advances the workflow
// until it produces a response: a cached replay, a terminal result, or a
// step's intermediate response (requires-action). The returned key carries the
// token to echo back to the client.
//
// Error returns: idempotency.ErrKeyConflict and idempotency.ErrLocked map to
// 409; *RecoverableError to a retryable 5xx; anything else is an internal
// failure — notably a failure to persist step progress, which must surface
// rather than leave the key in an ambiguous state.
func (e *Executor) Execute(ctx context.Context, req Request) (*idempotency.Key, Response, error) {
	params := map[string]interface{}{"cart_id": req.CartID}
	key, created, err := e.Keys.InitializeRequest(ctx, req.Token, req.Method, req.Path, params)
	if err != nil {
		return nil, Response{}, err
	}
	if !created {
		log.Printf("[completion] resuming key=%s at %s", key.IdempotencyKey, key.RecoveryPoint)
	}

	stepReq := StepRequest{CartID: req.CartID, KeyToken: key.IdempotencyKey}

	for pass := 0; pass < maxPasses; pass++ {
		// Terminal key: replay the persisted response unchanged, regardless of
		// retry count or any external state drift.
		if key.RecoveryPoint.Terminal() {
			e.Metrics.CountCompletion(ctx, "replay")
			return key, Response{Code: key.ResponseCode, Raw: key.ResponseBody}, nil
		}

		// Lock refreshes the key in place, so a step only ever runs against
		// the record's true current recovery point.
		if err := e.Keys.Lock(ctx, key); err != nil {
			return key, Response{}, err
		}
		if key.RecoveryPoint.Terminal() {
			// Another writer finished while we waited for the lock.
			e.unlock(ctx, key)
			continue
		}

		tx := dynamotx.Begin(e.Client)
		result, stepErr := e.step(ctx, tx, key.RecoveryPoint, stepReq)
		if stepErr != nil {
			var term *TerminalError
			if errors.As(stepErr, &term) {
				resp, err := e.persistTerminal(ctx, key, term)
				if err != nil {
					if errors.Is(err, dynamotx.ErrConditionFailed) {
						// Another writer advanced the key first; replay theirs.
						e.unlock(ctx, key)
						if key, err = e.reload(ctx, key); err != nil {
							return key, Response{}, err
						}
						continue
					}
					e.unlock(ctx, key)
					return key, Response{}, err
				}
				e.Metrics.CountCompletion(ctx, "failed")
				return key, resp, nil
			}
			e.unlock(ctx, key)
			return key, Response{}, stepErr
		}

		// No advancement: the step produced a response the client must act on
		// (e.g. a payment challenge). Commit any staged domain writes, but the
		// response is not cached as final: a retry re-enters this step.
		if result.RecoveryPoint == key.RecoveryPoint {
			if tx.Len() > 0 {
				if err := tx.Commit(ctx); err != nil {
					e.unlock(ctx, key)
					return key, Response{}, fmt.Errorf("persist step writes: %w", err)
				}
			}
			e.unlock(ctx, key)
			e.Metrics.CountCompletion(ctx, "pending_action")
			return key, *result.Response, nil
		}

		patch := idempotency.Patch{RecoveryPoint: result.RecoveryPoint}
		if result.Role == RoleUpdate {
			body, err := json.Marshal(result.Response.Body)
			if err != nil {
				e.unlock(ctx, key)
				return key, Response{}, fmt.Errorf("marshal response body: %w", err)
			}
			patch.ResponseCode = result.Response.Code
			patch.ResponseBody = string(body)
		}
		e.Keys.StageAdvance(tx, key, patch)

		if err := tx.Commit(ctx); err != nil {
			if errors.Is(err, dynamotx.ErrConditionFailed) {
				// Lost the advancement race: re-read and resume from wherever
				// the winner left the key instead of repeating the step.
				e.unlock(ctx, key)
				if key, err = e.reload(ctx, key); err != nil {
					return key, Response{}, err
				}
				continue
			}
			// The domain step may or may not have mattered, but progress was
			// not recorded; the idempotency invariant cannot be guaranteed, so
			// fail loudly.
			e.unlock(ctx, key)
			return key, Response{}, fmt.Errorf("persist step progress: %w", err)
		}

		key.RecoveryPoint = result.RecoveryPoint
		key.LockedAt = nil

		if result.Role == RoleUpdate {
			key.ResponseCode = patch.ResponseCode
			key.ResponseBody = patch.ResponseBody
			e.finish(ctx, key, result)
			return key, *result.Response, nil
		}
	}

	return key, Response{}, fmt.Errorf("completion made no progress for key %s", key.IdempotencyKey)
}

// step dispatches to the strategy handler registered for the recovery point.
func (e *Executor) step(ctx context.Context, tx *dynamotx.Tx, point idempotency.RecoveryPoint, req StepRequest) (StepResult, error) {
	switch point {
	case idempotency.RecoveryPointStarted:
		return e.Strategy.ComputeTaxLines(ctx, tx, req)
	case PointTaxLinesComputed:
		return e.Strategy.AuthorizePayment(ctx, tx, req)
	case PointPaymentAuthorized:
		return e.Strategy.CreateOrder(ctx, tx, req)
	case PointOrderCreated:
		return e.Strategy.Finalize(ctx, tx, req)
	default:
		return StepResult{}, fmt.Errorf("unknown recovery point %q", point)
	}
}

// persistTerminal caches a terminal failure on the key so replays return the
// identical error without re-attempting side effects.
func (e *Executor) persistTerminal(ctx context.Context, key *idempotency.Key, term *TerminalError) (Response, error) {
	body := map[string]interface{}{
		"error":   term.Kind,
		"message": term.Message,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal error body: %w", err)
	}

	tx := dynamotx.Begin(e.Client)
	e.Keys.StageAdvance(tx, key, idempotency.Patch{
		RecoveryPoint: idempotency.RecoveryPointFailed,
		ResponseCode:  term.Code,
		ResponseBody:  string(raw),
	})
	if err := tx.Commit(ctx); err != nil {
		return Response{}, err
	}

	key.RecoveryPoint = idempotency.RecoveryPointFailed
	key.ResponseCode = term.Code
	key.ResponseBody = string(raw)
	key.LockedAt = nil
	return Response{Code: term.Code, Body: body}, nil
}

// finish emits the completion metric and publishes the order event. Both are
// post-commit side effects: failures are logged, never surfaced, because the
// response is already persisted and the worker path is at-least-once anyway.
func (e *Executor) finish(ctx context.Context, key *idempotency.Key, result StepResult) {
	outcome, ok := result.Response.Body.(Outcome)
	if !ok {
		return
	}
	e.Metrics.CountCompletion(ctx, outcome.Type)

	if e.Publisher == nil || outcome.Type == OutcomeCart {
		return
	}
	order, ok := outcome.Data.(orders.Order)
	if !ok {
		return
	}
	event := CompletionEvent{
		OrderID:        order.OrderID,
		CartID:         order.CartID,
		Kind:           outcome.Type,
		IdempotencyKey: key.IdempotencyKey,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[completion] marshal event: %v", err)
		return
	}
	attrs := map[string]string{
		"idempotency_key": key.IdempotencyKey,
		"order_id":        order.OrderID,
	}
	if err := e.Publisher.SendCompletionEvent(ctx, string(payload), attrs); err != nil {
		log.Printf("[completion] publish event for order=%s: %v", order.OrderID, err)
	}
}

func (e *Executor) reload(ctx context.Context, key *idempotency.Key) (*idempotency.Key, error) {
	fresh, err := e.Keys.Get(ctx, key.IdempotencyKey)
	if err != nil {
		return key, err
	}
	if fresh == nil {
		return key, fmt.Errorf("key %s disappeared mid-flight", key.IdempotencyKey)
	}
	return fresh, nil
}

func (e *Executor) unlock(ctx context.Context, key *idempotency.Key) {
	if err := e.Keys.Unlock(ctx, key); err != nil {
		log.Printf("[completion] unlock key=%s: %v", key.IdempotencyKey, err)
	}
}

// StatusForError maps executor errors onto HTTP-shaped status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, idempotency.ErrKeyConflict), errors.Is(err, idempotency.ErrLocked):
		return http.StatusConflict
	default:
		var rec *RecoverableError
		if errors.As(err, &rec) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}
