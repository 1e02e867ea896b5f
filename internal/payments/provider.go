package payments

import (
	"context"
	"errors"

	"github.com/cartware/go-idempotent-checkout/internal/carts"
)

// Authorization statuses returned by a provider.
type Status string

const (
	StatusAuthorized     Status = "authorized"
	StatusRequiresAction Status = "requires_action" // e.g. 3-D-Secure challenge
	StatusDeclined       Status = "declined"
)

// ErrProviderUnavailable marks a transient provider failure (timeout, 5xx).
// Callers may safely retry the same authorization.
var ErrProviderUnavailable = errors.New("payment provider unavailable")

// AuthResult is the outcome of one authorization attempt. Session carries the
// provider's updated session state (e.g. a redirect URL for a pending action).
type AuthResult struct {
	Status  Status
	Session *carts.PaymentSession
}

// Provider abstracts the payment gateway. Implementations must be safe to call
// repeatedly for the same session: the completion workflow retries
// authorization after transient failures.
type Provider interface {
	Authorize(ctx context.Context, session *carts.PaymentSession, amount int64) (AuthResult, error)
}
