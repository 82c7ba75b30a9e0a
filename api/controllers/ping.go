package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/api/responses"
)

// SessionPing echoes the resolved session and authentication, for storefront debugging.
func SessionPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := middleware.AuthFromContext(r.Context())
		payload := map[string]any{
			"status":        "ok",
			"session_id":    middleware.SessionIDFromContext(r.Context()),
			"authenticated": auth.Authenticated,
		}
		if auth.Authenticated {
			payload["customer_id"] = auth.CustomerID
		}
		responses.WriteSuccess(w, payload)
	}
}
