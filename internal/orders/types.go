package orders

import (
	"time"

	"github.com/cartware/go-idempotent-checkout/internal/carts"
)

// Order kinds. A swap is created instead of an order when the completed cart
// is a swap cart.
const (
	KindOrder = "order"
	KindSwap  = "swap"
)

// Notification statuses (post-completion side effects, advanced by the worker)
const (
	NotifyPending = "PENDING"
	NotifySent    = "SENT"
	NotifyFailed  = "FAILED"
)

// Order represents the item stored in the orders DynamoDB table. The same
// table holds swaps, distinguished by Kind.
type Order struct {
	OrderID            string           `dynamodbav:"order_id" json:"order_id"` // PK
	Kind               string           `dynamodbav:"kind" json:"kind"`         // order | swap
	CartID             string           `dynamodbav:"cart_id" json:"cart_id"`
	CustomerID         string           `dynamodbav:"customer_id,omitempty" json:"customer_id,omitempty"`
	Email              string           `dynamodbav:"email,omitempty" json:"email,omitempty"`
	RegionID           string           `dynamodbav:"region_id" json:"region_id"`
	CurrencyCode       string           `dynamodbav:"currency_code" json:"currency_code"`
	Items              []carts.LineItem `dynamodbav:"items" json:"items"`
	TaxLines           []carts.TaxLine  `dynamodbav:"tax_lines,omitempty" json:"tax_lines,omitempty"`
	Subtotal           int64            `dynamodbav:"subtotal" json:"subtotal"`
	TaxTotal           int64            `dynamodbav:"tax_total" json:"tax_total"`
	Total              int64            `dynamodbav:"total" json:"total"`
	NotificationStatus string           `dynamodbav:"notification_status" json:"notification_status"`
	CreatedAt          time.Time        `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `dynamodbav:"updated_at" json:"updated_at"`
	Attempts           int              `dynamodbav:"attempts,omitempty" json:"attempts,omitempty"`
}

// FromCart builds the order (or swap) snapshot for a completed cart.
func FromCart(orderID string, c *carts.Cart, now time.Time) Order {
	kind := KindOrder
	if c.Type == carts.TypeSwap {
		kind = KindSwap
	}
	return Order{
		OrderID:            orderID,
		Kind:               kind,
		CartID:             c.CartID,
		CustomerID:         c.CustomerID,
		Email:              c.Email,
		RegionID:           c.RegionID,
		CurrencyCode:       c.CurrencyCode,
		Items:              c.Items,
		TaxLines:           c.TaxLines,
		Subtotal:           c.Subtotal,
		TaxTotal:           c.TaxTotal,
		Total:              c.Total,
		NotificationStatus: NotifyPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
