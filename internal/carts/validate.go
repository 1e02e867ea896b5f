package carts

import "errors"

// Completability failures. All of these are terminal for a completion attempt:
// retrying the same cart without changing it cannot succeed.
var (
	ErrAlreadyCompleted  = errors.New("cart is already completed")
	ErrEmptyCart         = errors.New("cart has no items")
	ErrNoShippingAddress = errors.New("cart has no shipping address")
	ErrNoBillingAddress  = errors.New("cart has no billing address")
	ErrNoPaymentSession  = errors.New("cart has no payment session")
)

// CompletableError reports why a cart cannot be completed, or nil when it can.
func CompletableError(c *Cart) error {
	if c.CompletedAt != nil {
		return ErrAlreadyCompleted
	}
	if len(c.Items) == 0 {
		return ErrEmptyCart
	}
	if c.ShippingAddress == nil {
		return ErrNoShippingAddress
	}
	if c.BillingAddress == nil {
		return ErrNoBillingAddress
	}
	if c.PaymentSession == nil {
		return ErrNoPaymentSession
	}
	return nil
}
