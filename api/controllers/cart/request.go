package cart

type addItemRequest struct {
	SkuID     int  `json:"sku_id" validate:"required,gt=0"`
	ProductID *int `json:"product_id,omitempty" validate:"omitempty,gt=0"`
}

type setQuantityRequest struct {
	Quantity       int  `json:"quantity" validate:"gte=0,lte=999"`
	ConfirmRemoval bool `json:"confirm_removal"`
}
