package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cartware/go-idempotent-checkout/internal/carts"
	"github.com/cartware/go-idempotent-checkout/internal/dynamotx"
	"github.com/cartware/go-idempotent-checkout/internal/idempotency"
	"github.com/cartware/go-idempotent-checkout/internal/orders"
	"github.com/cartware/go-idempotent-checkout/internal/payments"
	"github.com/cartware/go-idempotent-checkout/internal/pricing"
)

// DefaultStrategy is the stock completion flow: re-price and validate the
// cart, authorize its payment session, create the order (or swap) atomically
// with marking the cart completed.
type DefaultStrategy struct {
	Carts    *carts.Store
	Orders   *orders.Store
	Payments payments.Provider
	Variants *pricing.Store   // optional: nil skips re-pricing
	Pricing  pricing.Strategy // optional: nil skips re-pricing
	nowFunc  func() time.Time
}

// NewDefaultStrategy wires the stock strategy. variantStore may be nil when no
// variant catalog exists; line items then keep their captured unit prices.
func NewDefaultStrategy(cartStore *carts.Store, orderStore *orders.Store, provider payments.Provider, variantStore *pricing.Store) *DefaultStrategy {
	return &DefaultStrategy{
		Carts:    cartStore,
		Orders:   orderStore,
		Payments: provider,
		Variants: variantStore,
		Pricing:  pricing.NewDefaultStrategy(),
		nowFunc:  time.Now,
	}
}

// orderIDForKey derives the order id from the idempotency token, so a resumed
// request regenerates the same id and the conditional Put keeps it unique.
func orderIDForKey(token string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("order/"+token)).String()
}

func (s *DefaultStrategy) loadCart(ctx context.Context, cartID string) (*carts.Cart, error) {
	cart, err := s.Carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, NotFound("cart_not_found", fmt.Sprintf("cart %s does not exist", cartID))
	}
	return cart, nil
}

// ComputeTaxLines guards the cart's completable state and persists its tax
// lines and totals. Every failure here is terminal: retrying the identical
// cart cannot succeed.
func (s *DefaultStrategy) ComputeTaxLines(ctx context.Context, tx *dynamotx.Tx, req StepRequest) (StepResult, error) {
	cart, err := s.loadCart(ctx, req.CartID)
	if err != nil {
		return StepResult{}, err
	}

	if verr := carts.CompletableError(cart); verr != nil {
		code := http.StatusBadRequest
		if errors.Is(verr, carts.ErrAlreadyCompleted) {
			code = http.StatusConflict
		}
		return StepResult{}, Terminal(code, "cart_not_completable", verr.Error())
	}

	if err := s.repriceItems(ctx, cart); err != nil {
		return StepResult{}, err
	}
	if err := carts.ComputeTaxLines(cart); err != nil {
		return StepResult{}, Terminal(http.StatusBadRequest, "invalid_tax_rate", err.Error())
	}
	if err := s.Carts.StageTaxLines(tx, cart); err != nil {
		return StepResult{}, err
	}

	return StepResult{RecoveryPoint: PointTaxLinesComputed, Role: RoleNormal}, nil
}

// repriceItems refreshes each line item's unit price from the variant catalog.
// A variant without a catalog record, or without an applicable price for the
// cart's region and currency, keeps the price captured at add time.
func (s *DefaultStrategy) repriceItems(ctx context.Context, cart *carts.Cart) error {
	if s.Variants == nil || s.Pricing == nil {
		return nil
	}
	for i := range cart.Items {
		it := &cart.Items[i]
		v, err := s.Variants.Get(ctx, it.VariantID)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		res, err := s.Pricing.CalculateVariantPrice(ctx, *v, pricing.Context{
			RegionID:              cart.RegionID,
			CurrencyCode:          cart.CurrencyCode,
			CustomerID:            cart.CustomerID,
			Quantity:              it.Quantity,
			IncludeDiscountPrices: true,
		})
		if err != nil {
			return err
		}
		if res.CalculatedPrice != nil {
			it.UnitPrice = *res.CalculatedPrice
		}
	}
	return nil
}

// AuthorizePayment runs the provider call. Three outcomes: authorized (the
// workflow advances), requires action (the cart goes back to the client and
// the recovery point stays put, so a retry re-enters here), declined
// (terminal). Transient provider failures are recoverable.
func (s *DefaultStrategy) AuthorizePayment(ctx context.Context, tx *dynamotx.Tx, req StepRequest) (StepResult, error) {
	cart, err := s.loadCart(ctx, req.CartID)
	if err != nil {
		return StepResult{}, err
	}
	if cart.PaymentSession == nil {
		return StepResult{}, Terminal(http.StatusBadRequest, "cart_not_completable", carts.ErrNoPaymentSession.Error())
	}

	res, err := s.Payments.Authorize(ctx, cart.PaymentSession, cart.Total)
	if err != nil {
		if errors.Is(err, payments.ErrProviderUnavailable) {
			return StepResult{}, Recoverable(err)
		}
		return StepResult{}, fmt.Errorf("authorize payment: %w", err)
	}

	if res.Session != nil {
		cart.PaymentSession = res.Session
	}

	switch res.Status {
	case payments.StatusAuthorized:
		cart.PaymentSession.Status = carts.SessionAuthorized
		if err := s.Carts.StagePaymentSession(tx, cart); err != nil {
			return StepResult{}, err
		}
		return StepResult{RecoveryPoint: PointPaymentAuthorized, Role: RoleNormal}, nil

	case payments.StatusRequiresAction:
		cart.PaymentSession.Status = carts.SessionRequiresAction
		if err := s.Carts.StagePaymentSession(tx, cart); err != nil {
			return StepResult{}, err
		}
		return StepResult{
			RecoveryPoint: PointTaxLinesComputed, // unchanged: no advance
			Role:          RoleNormal,
			Response: &Response{
				Code: http.StatusOK,
				Body: Outcome{Type: OutcomeCart, Data: *cart},
			},
		}, nil

	case payments.StatusDeclined:
		return StepResult{}, Terminal(http.StatusUnprocessableEntity, "payment_declined", "payment authorization was declined")

	default:
		return StepResult{}, fmt.Errorf("unknown authorization status %q", res.Status)
	}
}

// CreateOrder builds the order (or swap, for a swap cart) from the cart
// snapshot and stages it together with the cart's completed_at marker, so a
// crash can never leave an order without a completed cart or vice versa.
func (s *DefaultStrategy) CreateOrder(ctx context.Context, tx *dynamotx.Tx, req StepRequest) (StepResult, error) {
	cart, err := s.loadCart(ctx, req.CartID)
	if err != nil {
		return StepResult{}, err
	}

	o := orders.FromCart(orderIDForKey(req.KeyToken), cart, s.nowFunc())
	if err := s.Orders.StageCreate(tx, o); err != nil {
		return StepResult{}, err
	}
	s.Carts.StageCompleted(tx, cart)

	return StepResult{RecoveryPoint: PointOrderCreated, Role: RoleNormal}, nil
}

// Finalize reads back the created order and shapes the final tagged response.
func (s *DefaultStrategy) Finalize(ctx context.Context, tx *dynamotx.Tx, req StepRequest) (StepResult, error) {
	o, err := s.Orders.Get(ctx, orderIDForKey(req.KeyToken))
	if err != nil {
		return StepResult{}, err
	}
	if o == nil {
		return StepResult{}, fmt.Errorf("order for key %s missing after creation", req.KeyToken)
	}

	outcomeType := OutcomeOrder
	if o.Kind == orders.KindSwap {
		outcomeType = OutcomeSwap
	}

	return StepResult{
		RecoveryPoint: idempotency.RecoveryPointFinished,
		Role:          RoleUpdate,
		Response: &Response{
			Code: http.StatusOK,
			Body: Outcome{Type: outcomeType, Data: *o},
		},
	}, nil
}
