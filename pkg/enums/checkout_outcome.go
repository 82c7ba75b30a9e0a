package enums

// CheckoutOutcome is the final state of one submission attempt.
type CheckoutOutcome string

const (
	CheckoutOutcomeSucceeded CheckoutOutcome = "succeeded"
	CheckoutOutcomeFailed    CheckoutOutcome = "failed"
)

// String implements fmt.Stringer.
func (o CheckoutOutcome) String() string {
	return string(o)
}
