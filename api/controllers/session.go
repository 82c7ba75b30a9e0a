package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/api/responses"
	cartsvc "github.com/angelmondragon/storefront-core/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

type sessionTokenRevoker interface {
	Revoke(ctx context.Context, sessionID string) error
}

type sessionLogout interface {
	Logout(ctx context.Context, sessionID string) (cartsvc.State, error)
}

type logoutResponse struct {
	LoggedOut bool   `json:"logged_out"`
	CartID    string `json:"cart_id"`
	ItemCount int    `json:"item_count"`
}

// SessionLogout forgets the token persisted for the storefront session and sends the
// session back to the guest cart. The browser keeps its session id.
func SessionLogout(tokens sessionTokenRevoker, registry sessionLogout, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if tokens == nil || registry == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session manager unavailable"))
			return
		}
		sessionID := middleware.SessionIDFromContext(ctx)

		if err := tokens.Revoke(ctx, sessionID); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session token"))
			return
		}
		state, err := registry.Logout(ctx, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := logoutResponse{LoggedOut: true, CartID: state.Cart.ID}
		for _, item := range state.Cart.Items {
			resp.ItemCount += item.Quantity
		}
		if logg != nil {
			logg.Info(ctx, "session.logout")
		}
		responses.WriteSuccess(w, resp)
	}
}
