package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-core/api/middleware"
	cartsvc "github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/checkout"
	"github.com/angelmondragon/storefront-core/internal/sessions/sessionstest"
)

const testSession = "sess-cart-1"

func serve(t *testing.T, handler http.HandlerFunc, method, target, body string, params map[string]string, auth checkout.Auth) (*httptest.ResponseRecorder, cartResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	routeCtx := chi.NewRouteContext()
	for key, value := range params {
		routeCtx.URLParams.Add(key, value)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	ctx = middleware.WithSessionID(ctx, testSession)
	ctx = middleware.WithAuth(ctx, auth)
	req = req.WithContext(ctx)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	var envelope struct {
		Data cartResponse `json:"data"`
	}
	if resp.Code == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, envelope.Data
}

func TestGuestCartLifecycle(t *testing.T) {
	registry, _ := sessionstest.NewRegistry(t)
	guest := checkout.Auth{}

	resp, got := serve(t, CartFetch(registry, nil), http.MethodGet, "/api/v1/cart", "", nil, guest)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.Cart.ID != cartsvc.GuestCartID || got.ItemCount != 0 || got.Authenticated {
		t.Fatalf("unexpected empty cart %+v", got)
	}

	serve(t, CartAddItem(registry, nil), http.MethodPost, "/api/v1/cart/items", `{"sku_id":3}`, nil, guest)
	_, got = serve(t, CartAddItem(registry, nil), http.MethodPost, "/api/v1/cart/items", `{"sku_id":3}`, nil, guest)
	if got.ItemCount != 2 || got.Cart.Subtotal.String() != "100" {
		t.Fatalf("unexpected cart after adds %+v", got)
	}

	_, got = serve(t, CartSetQuantity(registry, nil), http.MethodPatch, "/api/v1/cart/items/3", `{"quantity":5}`, map[string]string{"skuId": "3"}, guest)
	if got.ItemCount != 5 {
		t.Fatalf("expected quantity 5, got %+v", got)
	}

	_, got = serve(t, CartRemoveItem(registry, nil), http.MethodDelete, "/api/v1/cart/items/3", "", map[string]string{"skuId": "3"}, guest)
	if got.ItemCount != 0 {
		t.Fatalf("expected empty cart, got %+v", got)
	}
}

func TestSetQuantityZeroRequiresConfirmation(t *testing.T) {
	registry, _ := sessionstest.NewRegistry(t)
	params := map[string]string{"skuId": "3"}
	serve(t, CartAddItem(registry, nil), http.MethodPost, "/api/v1/cart/items", `{"sku_id":3}`, nil, checkout.Auth{})

	resp, _ := serve(t, CartSetQuantity(registry, nil), http.MethodPatch, "/api/v1/cart/items/3", `{"quantity":0}`, params, checkout.Auth{})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}

	resp, got := serve(t, CartSetQuantity(registry, nil), http.MethodPatch, "/api/v1/cart/items/3", `{"quantity":0,"confirm_removal":true}`, params, checkout.Auth{})
	if resp.Code != http.StatusOK || got.ItemCount != 0 {
		t.Fatalf("expected confirmed removal, got %d %+v", resp.Code, got)
	}
}

func TestCartRejectsBadInput(t *testing.T) {
	registry, _ := sessionstest.NewRegistry(t)

	resp, _ := serve(t, CartAddItem(registry, nil), http.MethodPost, "/api/v1/cart/items", `{"sku_id":0}`, nil, checkout.Auth{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing sku got %d", resp.Code)
	}

	resp, _ = serve(t, CartRemoveItem(registry, nil), http.MethodDelete, "/api/v1/cart/items/abc", "", map[string]string{"skuId": "abc"}, checkout.Auth{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad sku param got %d", resp.Code)
	}
}

func TestLoginMigratesGuestCart(t *testing.T) {
	registry, _ := sessionstest.NewRegistry(t)
	serve(t, CartAddItem(registry, nil), http.MethodPost, "/api/v1/cart/items", `{"sku_id":7}`, nil, checkout.Auth{})
	serve(t, CartAddItem(registry, nil), http.MethodPost, "/api/v1/cart/items", `{"sku_id":8}`, nil, checkout.Auth{})

	auth := checkout.Auth{Authenticated: true, Token: "tok-1", CustomerID: "c-1"}
	resp, got := serve(t, CartFetch(registry, nil), http.MethodGet, "/api/v1/cart", "", nil, auth)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !got.Authenticated || !got.HasMigrated {
		t.Fatalf("expected migrated authenticated cart %+v", got)
	}
	if got.ItemCount != 2 || got.Cart.ID != "1" {
		t.Fatalf("expected both guest lines on the server cart, got %+v", got)
	}
	if got.LastMigration == nil || len(got.LastMigration.Succeeded) != 2 || got.LastMigration.Partial {
		t.Fatalf("unexpected migration report %+v", got.LastMigration)
	}

	_, got = serve(t, CartClear(registry, nil), http.MethodDelete, "/api/v1/cart", "", nil, auth)
	if got.ItemCount != 0 {
		t.Fatalf("expected cleared cart %+v", got)
	}
}

func TestNilSessionSource(t *testing.T) {
	resp, _ := serve(t, CartFetch(nil, nil), http.MethodGet, "/api/v1/cart", "", nil, checkout.Auth{})
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
