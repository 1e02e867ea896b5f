package pricing

// Price list types
const (
	PriceListSale     = "sale"
	PriceListOverride = "override"
)

// MoneyAmount is one price record attached to a variant. RegionID empty means
// the record applies to any region with a matching currency. Quantity bounds
// are inclusive; nil means unbounded.
type MoneyAmount struct {
	Amount        int64  `dynamodbav:"amount" json:"amount"` // integer minor units
	CurrencyCode  string `dynamodbav:"currency_code" json:"currency_code"`
	RegionID      string `dynamodbav:"region_id,omitempty" json:"region_id,omitempty"`
	MinQuantity   *int   `dynamodbav:"min_quantity,omitempty" json:"min_quantity,omitempty"`
	MaxQuantity   *int   `dynamodbav:"max_quantity,omitempty" json:"max_quantity,omitempty"`
	PriceListID   string `dynamodbav:"price_list_id,omitempty" json:"price_list_id,omitempty"`
	PriceListType string `dynamodbav:"price_list_type,omitempty" json:"price_list_type,omitempty"`
}

// Variant is the slice of a product variant the pricing strategy needs.
type Variant struct {
	VariantID string        `dynamodbav:"variant_id" json:"variant_id"`
	Prices    []MoneyAmount `dynamodbav:"prices" json:"prices"`
}

// Context carries the pricing inputs. Zero values mean "not constrained".
type Context struct {
	RegionID              string
	CurrencyCode          string
	CustomerID            string
	Quantity              int
	IncludeDiscountPrices bool
}

// VariantPrice is the strategy result. Both price fields are nil when no
// applicable price record exists; that is a valid outcome, not an error.
type VariantPrice struct {
	OriginalPrice   *int64        `json:"original_price"`
	CalculatedPrice *int64        `json:"calculated_price"`
	Prices          []MoneyAmount `json:"prices"`
}
