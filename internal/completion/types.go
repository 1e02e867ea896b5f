package completion

import (
	"context"

	"github.com/cartware/go-idempotent-checkout/internal/dynamotx"
	"github.com/cartware/go-idempotent-checkout/internal/idempotency"
)

// Workflow recovery points, in execution order. The endpoints (started,
// finished, failed) come from the key store.
const (
	PointTaxLinesComputed  idempotency.RecoveryPoint = "tax_lines_computed"
	PointPaymentAuthorized idempotency.RecoveryPoint = "payment_authorized"
	PointOrderCreated      idempotency.RecoveryPoint = "order_created"
)

// Step result roles.
const (
	// RoleNormal persists in-progress progress; the workflow continues.
	RoleNormal = "normal"
	// RoleUpdate persists the result as the key's final response.
	RoleUpdate = "update"
)

// Outcome tag values for the response body.
const (
	OutcomeOrder = "order"
	OutcomeCart  = "cart"
	OutcomeSwap  = "swap"
)

// Outcome is the tagged completion result returned to the client.
type Outcome struct {
	Type string      `json:"type"` // order | cart | swap
	Data interface{} `json:"data"`
}

// Response is an HTTP-shaped step response. Raw carries a pre-marshaled body
// when replaying a cached response; Body is used otherwise.
type Response struct {
	Code int
	Body interface{}
	Raw  string
}

// StepResult is what a strategy step hands back to the executor.
// A RecoveryPoint equal to the one the step ran at means "no advance": the
// executor returns Response to the client without persisting it, so a retry
// with the same token re-enters this step (the requires-action path).
type StepResult struct {
	RecoveryPoint idempotency.RecoveryPoint
	Role          string // RoleNormal | RoleUpdate
	Response      *Response
}

// StepRequest identifies the work a step operates on.
type StepRequest struct {
	CartID   string
	KeyToken string
}

// Strategy is the domain logic the executor drives, one method per recovery
// point. Each method stages its domain writes on tx; the executor commits
// them atomically with the recovery-point advancement.
type Strategy interface {
	ComputeTaxLines(ctx context.Context, tx *dynamotx.Tx, req StepRequest) (StepResult, error)
	AuthorizePayment(ctx context.Context, tx *dynamotx.Tx, req StepRequest) (StepResult, error)
	CreateOrder(ctx context.Context, tx *dynamotx.Tx, req StepRequest) (StepResult, error)
	Finalize(ctx context.Context, tx *dynamotx.Tx, req StepRequest) (StepResult, error)
}
