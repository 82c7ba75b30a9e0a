package cart

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/api/responses"
	"github.com/angelmondragon/storefront-core/api/validators"
	cartsvc "github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/checkout"
	"github.com/angelmondragon/storefront-core/internal/sessions"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

// SessionSource resolves the storefront session of a request with its cart synced to the
// caller's authentication.
type SessionSource interface {
	Attach(ctx context.Context, sessionID string, auth checkout.Auth) (*sessions.Session, cartsvc.State, error)
}

type cartCall func(r *http.Request, orchestrator *cartsvc.Orchestrator) (cartsvc.State, error)

// CartFetch reloads the session's cart through the current strategy.
func CartFetch(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, o *cartsvc.Orchestrator) (cartsvc.State, error) {
		return o.Refresh(r.Context())
	})
}

// CartAddItem adds one unit of a SKU.
func CartAddItem(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, o *cartsvc.Orchestrator) (cartsvc.State, error) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return cartsvc.State{}, err
		}
		return o.AddItem(r.Context(), payload.SkuID, payload.ProductID)
	})
}

// CartSetQuantity replaces a line's quantity. Dropping a line to zero needs the caller's
// explicit confirmation.
func CartSetQuantity(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, o *cartsvc.Orchestrator) (cartsvc.State, error) {
		skuID, err := skuIDParam(r)
		if err != nil {
			return cartsvc.State{}, err
		}
		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return cartsvc.State{}, err
		}
		if payload.Quantity <= 0 && !payload.ConfirmRemoval {
			return cartsvc.State{}, pkgerrors.New(pkgerrors.CodeConflict, "removing the item requires confirmation").
				WithDetails(map[string]any{"sku_id": skuID})
		}
		return o.SetItemQuantity(r.Context(), skuID, payload.Quantity)
	})
}

// CartRemoveItem deletes a line.
func CartRemoveItem(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, o *cartsvc.Orchestrator) (cartsvc.State, error) {
		skuID, err := skuIDParam(r)
		if err != nil {
			return cartsvc.State{}, err
		}
		return o.RemoveItem(r.Context(), skuID)
	})
}

// CartClear empties the cart.
func CartClear(src SessionSource, logg *logger.Logger) http.HandlerFunc {
	return handle(src, logg, func(r *http.Request, o *cartsvc.Orchestrator) (cartsvc.State, error) {
		return o.Clear(r.Context())
	})
}

func handle(src SessionSource, logg *logger.Logger, call cartCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session registry unavailable"))
			return
		}
		ctx := r.Context()
		sess, _, err := src.Attach(ctx, middleware.SessionIDFromContext(ctx), middleware.AuthFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		state, err := call(r, sess.Cart)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(state))
	}
}

func skuIDParam(r *http.Request) (int, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "skuId"))
	skuID, err := strconv.Atoi(raw)
	if err != nil || skuID <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid sku id").WithDetails(map[string]any{"sku_id": raw})
	}
	return skuID, nil
}
