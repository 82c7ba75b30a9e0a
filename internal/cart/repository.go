package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-core/pkg/commerce"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
)

// Repository is the cart contract shared by the guest and server strategies.
// Every call returns the full resulting cart, never a delta.
type Repository interface {
	Get(ctx context.Context) (Cart, error)
	AddItem(ctx context.Context, skuID int, productID *int) (Cart, error)
	SetItemQuantity(ctx context.Context, skuID, quantity int) (Cart, error)
	RemoveItem(ctx context.Context, skuID int) (Cart, error)
	Clear(ctx context.Context) (Cart, error)
}

// RemoteCartAPI is the authenticated cart resource of the commerce backend.
type RemoteCartAPI interface {
	GetCart(ctx context.Context, token string) (*commerce.RemoteCart, error)
	AddCartItem(ctx context.Context, token string, skuID int, productID *int) (*commerce.RemoteCart, error)
	SetCartItemQuantity(ctx context.Context, token string, skuID, quantity int) (*commerce.RemoteCart, error)
	RemoveCartItem(ctx context.Context, token string, skuID int) (*commerce.RemoteCart, error)
	ClearCart(ctx context.Context, token string) (*commerce.RemoteCart, error)
}

// PreviewAPI enriches guest lines without persisting anything.
type PreviewAPI interface {
	PreviewCart(ctx context.Context, lines []commerce.PreviewLine) (*commerce.Preview, error)
}

// Deps carries the collaborators both strategies may need.
type Deps struct {
	Guest   GuestStore
	Preview PreviewAPI
	Remote  RemoteCartAPI
	Token   string
	Logger  *logger.Logger
	Metrics *metrics.CartMetrics
}

// NewRepository picks the strategy for the authentication state. It is the only place
// that branches on that flag.
func NewRepository(authenticated bool, deps Deps) (Repository, error) {
	if authenticated {
		return NewServerRepository(deps.Remote, deps.Token)
	}
	return NewGuestRepository(deps.Guest, deps.Preview, deps.Logger, deps.Metrics)
}

func validateSku(skuID int) error {
	if skuID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku_id must be positive").
			WithDetails(map[string]any{"sku_id": skuID})
	}
	return nil
}

func requireToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("session token required")
	}
	return nil
}
