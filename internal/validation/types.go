package validation

// CartItemPayload is a single line item on a cart being created.
type CartItemPayload struct {
	VariantID string `json:"variant_id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"` // must be >= 1
	UnitPrice int64  `json:"unit_price" validate:"required,gt=0"` // integer minor units
}

// AddressPayload carries the fields the completion flow later validates.
type AddressPayload struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Address1    string `json:"address_1" validate:"required"`
	City        string `json:"city" validate:"required"`
	CountryCode string `json:"country_code" validate:"required,len=2"`
	PostalCode  string `json:"postal_code,omitempty"`
}

// CreateCartRequest is the payload for POST /carts.
type CreateCartRequest struct {
	Type            string            `json:"type,omitempty" validate:"omitempty,oneof=default swap"`
	CustomerID      string            `json:"customer_id,omitempty"`
	Email           string            `json:"email,omitempty" validate:"omitempty,email"`
	RegionID        string            `json:"region_id" validate:"required"`
	CurrencyCode    string            `json:"currency_code" validate:"required,len=3"`
	TaxRate         string            `json:"tax_rate,omitempty"`
	Items           []CartItemPayload `json:"items" validate:"required,min=1,dive"` // at least one item
	ShippingAddress *AddressPayload   `json:"shipping_address,omitempty"`
	BillingAddress  *AddressPayload   `json:"billing_address,omitempty"`
	PaymentProvider string            `json:"payment_provider,omitempty"`
}

// VariantPricePayload is one money amount on a variant being registered.
type VariantPricePayload struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	CurrencyCode  string `json:"currency_code" validate:"required,len=3"`
	RegionID      string `json:"region_id,omitempty"`
	MinQuantity   *int   `json:"min_quantity,omitempty" validate:"omitempty,min=1"`
	MaxQuantity   *int   `json:"max_quantity,omitempty" validate:"omitempty,min=1"`
	PriceListID   string `json:"price_list_id,omitempty"`
	PriceListType string `json:"price_list_type,omitempty" validate:"omitempty,oneof=sale override"`
}

// CreateVariantRequest is the payload for POST /variants.
type CreateVariantRequest struct {
	VariantID string                `json:"variant_id" validate:"required"`
	Prices    []VariantPricePayload `json:"prices" validate:"required,min=1,dive"`
}

// CompleteCartRequest is the optional payload for POST /carts/:id/complete.
type CompleteCartRequest struct {
	CustomerID string                 `json:"customer_id,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}
