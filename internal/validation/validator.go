package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// register struct-level validation for CreateCartRequest: a swap cart must
	// reference the customer whose order it swaps.
	v.RegisterStructValidation(createCartStructValidation, CreateCartRequest{})

	return v
}

func createCartStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateCartRequest)

	if req.Type == "swap" && req.CustomerID == "" {
		sl.ReportError(req.CustomerID, "CustomerID", "customer_id", "required_for_swap", "")
	}
}
