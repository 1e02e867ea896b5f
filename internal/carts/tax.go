package carts

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeTaxLines derives the cart's tax lines and totals from its region tax
// rate. Amounts stay in integer minor units; the rate math runs in decimal so
// fractional percentages (e.g. "8.875") don't lose cents. An empty rate means
// a tax-free region, not an error.
func ComputeTaxLines(c *Cart) error {
	subtotal := c.ItemSubtotal()
	c.Subtotal = subtotal
	c.TaxLines = nil
	c.TaxTotal = 0

	if c.TaxRate != "" {
		rate, err := decimal.NewFromString(c.TaxRate)
		if err != nil {
			return fmt.Errorf("parse tax rate %q: %w", c.TaxRate, err)
		}
		taxTotal := decimal.NewFromInt(subtotal).
			Mul(rate).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
		c.TaxLines = []TaxLine{
			{Name: "default", Rate: c.TaxRate, Amount: taxTotal},
		}
		c.TaxTotal = taxTotal
	}

	c.Total = c.Subtotal + c.TaxTotal
	return nil
}
