package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront-core/pkg/commerce"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

// AvailabilityAPI asks the backend whether an identity value is still free.
type AvailabilityAPI interface {
	CheckAvailability(ctx context.Context, field commerce.AvailabilityField, value string) (bool, error)
}

// Availability is the answer of one asynchronous uniqueness check. Stale is set when a newer
// check of the same field started before this one returned.
type Availability struct {
	Field     commerce.AvailabilityField `json:"field"`
	Available bool                       `json:"available"`
	Stale     bool                       `json:"stale"`
}

// AvailabilityChecker runs the asynchronous validators. Values that fail the format checks
// never reach the network.
type AvailabilityChecker struct {
	api       AvailabilityAPI
	validator *Validator

	mu  sync.Mutex
	seq map[commerce.AvailabilityField]uint64
}

// NewAvailabilityChecker builds a checker.
func NewAvailabilityChecker(api AvailabilityAPI, v *Validator) (*AvailabilityChecker, error) {
	if api == nil {
		return nil, fmt.Errorf("availability api required")
	}
	if v == nil {
		return nil, fmt.Errorf("validator required")
	}
	return &AvailabilityChecker{api: api, validator: v, seq: map[commerce.AvailabilityField]uint64{}}, nil
}

// Check validates the format and then asks the backend.
func (c *AvailabilityChecker) Check(ctx context.Context, field commerce.AvailabilityField, value string) (Availability, error) {
	out := Availability{Field: field}
	normalized, err := c.normalize(field, value)
	if err != nil {
		return out, err
	}

	c.mu.Lock()
	c.seq[field]++
	seq := c.seq[field]
	c.mu.Unlock()

	available, err := c.api.CheckAvailability(ctx, field, normalized)

	c.mu.Lock()
	out.Stale = seq != c.seq[field]
	c.mu.Unlock()
	if err != nil {
		return out, pkgerrors.Classify(err, "check availability")
	}
	out.Available = available
	return out, nil
}

func (c *AvailabilityChecker) normalize(field commerce.AvailabilityField, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch field {
	case commerce.AvailabilityEmail:
		if err := c.validator.v.Var(value, "required,email,max=254"); err != nil {
			return "", fieldError(string(field), "must be a valid email")
		}
		return strings.ToLower(value), nil
	case commerce.AvailabilityDocument:
		digits := onlyDigits(value)
		if !ValidCPF(digits) && !ValidCNPJ(digits) {
			return "", fieldError(string(field), "must be a valid CPF or CNPJ")
		}
		return digits, nil
	}
	return "", fieldError("field", "must be email or document")
}

func fieldError(field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]string{field: message})
}
