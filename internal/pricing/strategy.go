package pricing

import "context"

// Strategy computes a variant's effective price for a given context.
// Implementations must be deterministic: equal inputs yield equal results.
type Strategy interface {
	CalculateVariantPrice(ctx context.Context, variant Variant, pctx Context) (VariantPrice, error)
}

// DefaultStrategy selects among a variant's money amounts:
//   - only records matching the context currency are considered; a record bound
//     to a region must match the context region
//   - the original price is the default (non-price-list) record, preferring a
//     region-bound record over a bare currency match
//   - the calculated price is the lowest applicable amount; sale price-list
//     records participate only when IncludeDiscountPrices is set
//   - quantity-bounded records apply only when the context quantity falls
//     inside their bounds
type DefaultStrategy struct{}

func NewDefaultStrategy() *DefaultStrategy { return &DefaultStrategy{} }

func (s *DefaultStrategy) CalculateVariantPrice(_ context.Context, variant Variant, pctx Context) (VariantPrice, error) {
	var result VariantPrice
	originalIsRegionBound := false

	for _, ma := range variant.Prices {
		if !matches(ma, pctx) {
			continue
		}
		result.Prices = append(result.Prices, ma)

		if ma.PriceListID == "" {
			// Default price: a region-bound record beats a bare currency match.
			if result.OriginalPrice == nil || (ma.RegionID != "" && !originalIsRegionBound) {
				amount := ma.Amount
				result.OriginalPrice = &amount
				originalIsRegionBound = ma.RegionID != ""
			}
		} else if ma.PriceListType == PriceListSale && !pctx.IncludeDiscountPrices {
			continue
		}

		if result.CalculatedPrice == nil || ma.Amount < *result.CalculatedPrice {
			amount := ma.Amount
			result.CalculatedPrice = &amount
		}
	}

	// A variant with only price-list records still needs a calculated price but
	// has no original; a variant with no applicable records has neither.
	return result, nil
}

func matches(ma MoneyAmount, pctx Context) bool {
	if pctx.CurrencyCode != "" && ma.CurrencyCode != pctx.CurrencyCode {
		return false
	}
	if ma.RegionID != "" && ma.RegionID != pctx.RegionID {
		return false
	}
	if ma.MinQuantity != nil && pctx.Quantity < *ma.MinQuantity {
		return false
	}
	if ma.MaxQuantity != nil && pctx.Quantity > *ma.MaxQuantity {
		return false
	}
	return true
}
