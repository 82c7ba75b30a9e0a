package enums

import "fmt"

// PaymentMethod describes how a shopper settles an order.
type PaymentMethod string

const (
	PaymentMethodCredit PaymentMethod = "credit"
	PaymentMethodDebit  PaymentMethod = "debit"
	PaymentMethodPix    PaymentMethod = "pix"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCredit,
	PaymentMethodDebit,
	PaymentMethodPix,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsCard reports whether the method requires card data.
func (p PaymentMethod) IsCard() bool {
	return p == PaymentMethodCredit || p == PaymentMethodDebit
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
