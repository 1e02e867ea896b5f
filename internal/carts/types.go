package carts

import "time"

// Cart types
const (
	TypeDefault = "default"
	TypeSwap    = "swap"
)

// Payment session statuses
const (
	SessionPending        = "pending"
	SessionAuthorized     = "authorized"
	SessionRequiresAction = "requires_more"
	SessionDeclined       = "declined"
)

// LineItem is a purchasable line on a cart. Amounts are integer minor units.
type LineItem struct {
	VariantID string `dynamodbav:"variant_id" json:"variant_id"`
	Title     string `dynamodbav:"title" json:"title"`
	Quantity  int    `dynamodbav:"quantity" json:"quantity"`
	UnitPrice int64  `dynamodbav:"unit_price" json:"unit_price"`
}

// Address holds the minimum the completion flow validates.
type Address struct {
	FirstName   string `dynamodbav:"first_name,omitempty" json:"first_name,omitempty"`
	LastName    string `dynamodbav:"last_name,omitempty" json:"last_name,omitempty"`
	Address1    string `dynamodbav:"address_1" json:"address_1"`
	City        string `dynamodbav:"city" json:"city"`
	CountryCode string `dynamodbav:"country_code" json:"country_code"`
	PostalCode  string `dynamodbav:"postal_code,omitempty" json:"postal_code,omitempty"`
}

// PaymentSession is the cart's live payment state with its provider.
type PaymentSession struct {
	Provider string                 `dynamodbav:"provider" json:"provider"`
	Status   string                 `dynamodbav:"status" json:"status"`
	Data     map[string]interface{} `dynamodbav:"data,omitempty" json:"data,omitempty"`
}

// TaxLine is one computed tax charge on the cart.
type TaxLine struct {
	Name   string `dynamodbav:"name" json:"name"`
	Rate   string `dynamodbav:"rate" json:"rate"` // decimal percentage, e.g. "19"
	Amount int64  `dynamodbav:"amount" json:"amount"`
}

// Cart represents the item stored in the carts DynamoDB table.
type Cart struct {
	CartID          string          `dynamodbav:"cart_id" json:"cart_id"` // PK
	Type            string          `dynamodbav:"type" json:"type"`       // default | swap
	CustomerID      string          `dynamodbav:"customer_id,omitempty" json:"customer_id,omitempty"`
	Email           string          `dynamodbav:"email,omitempty" json:"email,omitempty"`
	RegionID        string          `dynamodbav:"region_id" json:"region_id"`
	CurrencyCode    string          `dynamodbav:"currency_code" json:"currency_code"`
	TaxRate         string          `dynamodbav:"tax_rate,omitempty" json:"tax_rate,omitempty"` // region tax percentage
	Items           []LineItem      `dynamodbav:"items" json:"items"`
	ShippingAddress *Address        `dynamodbav:"shipping_address,omitempty" json:"shipping_address,omitempty"`
	BillingAddress  *Address        `dynamodbav:"billing_address,omitempty" json:"billing_address,omitempty"`
	PaymentSession  *PaymentSession `dynamodbav:"payment_session,omitempty" json:"payment_session,omitempty"`
	TaxLines        []TaxLine       `dynamodbav:"tax_lines,omitempty" json:"tax_lines,omitempty"`
	Subtotal        int64           `dynamodbav:"subtotal" json:"subtotal"`
	TaxTotal        int64           `dynamodbav:"tax_total" json:"tax_total"`
	Total           int64           `dynamodbav:"total" json:"total"`
	CompletedAt     *time.Time      `dynamodbav:"completed_at,omitempty" json:"completed_at,omitempty"`
	CreatedAt       time.Time       `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `dynamodbav:"updated_at" json:"updated_at"`
}

// ItemSubtotal sums quantity * unit price across the cart's lines.
func (c *Cart) ItemSubtotal() int64 {
	var sum int64
	for _, it := range c.Items {
		sum += int64(it.Quantity) * it.UnitPrice
	}
	return sum
}
