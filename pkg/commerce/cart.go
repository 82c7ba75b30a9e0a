package commerce

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// ProductSnapshot is the display data the backend attaches to a cart line.
type ProductSnapshot struct {
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	PartnerCode string          `json:"partner_code,omitempty"`
}

// CartLine is one SKU in a remote or previewed cart.
type CartLine struct {
	ID        *int64           `json:"id,omitempty"`
	SkuID     int              `json:"sku_id"`
	ProductID *int             `json:"product_id,omitempty"`
	Quantity  int              `json:"quantity"`
	Available *bool            `json:"available,omitempty"`
	Product   *ProductSnapshot `json:"product,omitempty"`
}

// RemoteCart is the full cart snapshot returned by every cart endpoint.
type RemoteCart struct {
	ID       int64           `json:"id"`
	Items    []CartLine      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// PreviewLine is a guest line submitted for enrichment.
type PreviewLine struct {
	SkuID    int `json:"sku_id"`
	Quantity int `json:"quantity"`
}

// Preview is the enrichment result for a guest cart.
type Preview struct {
	Items    []CartLine      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type addItemRequest struct {
	SkuID     int  `json:"sku_id"`
	ProductID *int `json:"product_id,omitempty"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// GetCart fetches the authenticated customer's cart.
func (c *Client) GetCart(ctx context.Context, token string) (*RemoteCart, error) {
	var out RemoteCart
	if err := c.do(ctx, http.MethodGet, "cart", token, nil, &out, "get cart"); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddCartItem adds one unit of the SKU to the remote cart.
func (c *Client) AddCartItem(ctx context.Context, token string, skuID int, productID *int) (*RemoteCart, error) {
	var out RemoteCart
	req := addItemRequest{SkuID: skuID, ProductID: productID}
	if err := c.do(ctx, http.MethodPost, "cart/items", token, req, &out, "add cart item"); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetCartItemQuantity replaces the quantity of an existing line.
func (c *Client) SetCartItemQuantity(ctx context.Context, token string, skuID, quantity int) (*RemoteCart, error) {
	var out RemoteCart
	path := fmt.Sprintf("cart/items/%d", skuID)
	if err := c.do(ctx, http.MethodPatch, path, token, setQuantityRequest{Quantity: quantity}, &out, "set cart item quantity"); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveCartItem deletes the line for the SKU.
func (c *Client) RemoveCartItem(ctx context.Context, token string, skuID int) (*RemoteCart, error) {
	var out RemoteCart
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("cart/items/%d", skuID), token, nil, &out, "remove cart item"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearCart empties the remote cart.
func (c *Client) ClearCart(ctx context.Context, token string) (*RemoteCart, error) {
	var out RemoteCart
	if err := c.do(ctx, http.MethodDelete, "cart", token, nil, &out, "clear cart"); err != nil {
		return nil, err
	}
	return &out, nil
}

// PreviewCart enriches a guest item list without persisting anything.
func (c *Client) PreviewCart(ctx context.Context, lines []PreviewLine) (*Preview, error) {
	var out Preview
	req := struct {
		Items []PreviewLine `json:"items"`
	}{Items: lines}
	if err := c.do(ctx, http.MethodPost, "cart/preview", "", req, &out, "preview cart"); err != nil {
		return nil, err
	}
	return &out, nil
}
