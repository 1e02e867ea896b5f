package payments

import (
	"context"
	"sync"

	"github.com/cartware/go-idempotent-checkout/internal/carts"
)

// StubProvider is a programmable in-memory provider for local runs and tests.
// With no AuthorizeFunc set it authorizes everything.
type StubProvider struct {
	mu            sync.Mutex
	calls         int
	AuthorizeFunc func(ctx context.Context, session *carts.PaymentSession, amount int64) (AuthResult, error)
}

func (p *StubProvider) Authorize(ctx context.Context, session *carts.PaymentSession, amount int64) (AuthResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.AuthorizeFunc != nil {
		return p.AuthorizeFunc(ctx, session, amount)
	}
	authorized := *session
	authorized.Status = carts.SessionAuthorized
	return AuthResult{Status: StatusAuthorized, Session: &authorized}, nil
}

// Calls reports how many times Authorize ran.
func (p *StubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
