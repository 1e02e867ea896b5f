package validation

import (
	"testing"
)

func validCreateCart() CreateCartRequest {
	return CreateCartRequest{
		Type:         "default",
		RegionID:     "reg-eu",
		CurrencyCode: "eur",
		Items: []CartItemPayload{
			{VariantID: "var-1", Title: "Widget", Quantity: 1, UnitPrice: 1500},
		},
	}
}

func TestCreateCartValidation(t *testing.T) {
	v := New()

	if err := v.Struct(validCreateCart()); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	noItems := validCreateCart()
	noItems.Items = nil
	if err := v.Struct(noItems); err == nil {
		t.Fatalf("cart without items accepted")
	}

	badCurrency := validCreateCart()
	badCurrency.CurrencyCode = "euro"
	if err := v.Struct(badCurrency); err == nil {
		t.Fatalf("4-letter currency accepted")
	}

	badType := validCreateCart()
	badType.Type = "exchange"
	if err := v.Struct(badType); err == nil {
		t.Fatalf("unknown cart type accepted")
	}

	zeroQty := validCreateCart()
	zeroQty.Items[0].Quantity = 0
	if err := v.Struct(zeroQty); err == nil {
		t.Fatalf("zero-quantity item accepted")
	}
}

func TestSwapCartRequiresCustomer(t *testing.T) {
	v := New()

	swap := validCreateCart()
	swap.Type = "swap"
	if err := v.Struct(swap); err == nil {
		t.Fatalf("swap cart without customer accepted")
	}

	swap.CustomerID = "cus-1"
	if err := v.Struct(swap); err != nil {
		t.Fatalf("swap cart with customer rejected: %v", err)
	}
}

func TestAddressValidation(t *testing.T) {
	v := New()

	addr := AddressPayload{Address1: "1 Main St", City: "Berlin", CountryCode: "de"}
	if err := v.Struct(addr); err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}

	addr.CountryCode = "deu"
	if err := v.Struct(addr); err == nil {
		t.Fatalf("3-letter country code accepted")
	}
}
