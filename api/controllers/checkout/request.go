package checkout

import (
	"github.com/angelmondragon/storefront-core/pkg/commerce"
)

type selectShippingRequest struct {
	ServiceName string `json:"service_name" validate:"required"`
}

type stepRequest struct {
	Step int `json:"step" validate:"min=1,max=3"`
}

type availabilityRequest struct {
	Field commerce.AvailabilityField `json:"field" validate:"required,oneof=email document"`
	Value string                     `json:"value" validate:"required"`
}

type submitRequest struct {
	CardNumber string `json:"card_number,omitempty"`
	CVV        string `json:"cvv,omitempty"`
}
