package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{"http://localhost:3000"}

// CORS lets the storefront origins call the API with credentials. Browsers may read the
// issued session id, the request id and the idempotent replay marker.
func CORS(origins []string, maxAge time.Duration) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
			SessionHeader,
			idempotencyHeader,
			requestIDHeader,
		},
		ExposedHeaders:   []string{SessionHeader, requestIDHeader, replayHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           int(maxAge.Seconds()),
	})
}
