package cart

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-core/pkg/commerce"
)

// ServerRepository calls the authenticated cart resource directly; the server owns pricing
// and availability.
type ServerRepository struct {
	remote RemoteCartAPI
	token  string
}

// NewServerRepository builds the authenticated strategy.
func NewServerRepository(remote RemoteCartAPI, token string) (*ServerRepository, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote cart api required")
	}
	if err := requireToken(token); err != nil {
		return nil, err
	}
	return &ServerRepository{remote: remote, token: token}, nil
}

func (r *ServerRepository) Get(ctx context.Context) (Cart, error) {
	return r.wrap(r.remote.GetCart(ctx, r.token))
}

func (r *ServerRepository) AddItem(ctx context.Context, skuID int, productID *int) (Cart, error) {
	if err := validateSku(skuID); err != nil {
		return Cart{}, err
	}
	return r.wrap(r.remote.AddCartItem(ctx, r.token, skuID, productID))
}

// SetItemQuantity replaces the quantity; zero or less removes the line.
func (r *ServerRepository) SetItemQuantity(ctx context.Context, skuID, quantity int) (Cart, error) {
	if err := validateSku(skuID); err != nil {
		return Cart{}, err
	}
	if quantity <= 0 {
		return r.RemoveItem(ctx, skuID)
	}
	return r.wrap(r.remote.SetCartItemQuantity(ctx, r.token, skuID, quantity))
}

func (r *ServerRepository) RemoveItem(ctx context.Context, skuID int) (Cart, error) {
	if err := validateSku(skuID); err != nil {
		return Cart{}, err
	}
	return r.wrap(r.remote.RemoveCartItem(ctx, r.token, skuID))
}

func (r *ServerRepository) Clear(ctx context.Context) (Cart, error) {
	return r.wrap(r.remote.ClearCart(ctx, r.token))
}

func (r *ServerRepository) wrap(remote *commerce.RemoteCart, err error) (Cart, error) {
	if err != nil {
		return Cart{}, err
	}
	return fromRemote(remote), nil
}
