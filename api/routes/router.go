package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-core/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-core/api/controllers/cart"
	checkoutcontrollers "github.com/angelmondragon/storefront-core/api/controllers/checkout"
	"github.com/angelmondragon/storefront-core/api/middleware"
	cartsvc "github.com/angelmondragon/storefront-core/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-core/internal/checkout"
	"github.com/angelmondragon/storefront-core/internal/sessions"
	"github.com/angelmondragon/storefront-core/pkg/auth/session"
	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-core/pkg/redis"
)

// SessionRegistry is the live per-session state the handlers work on.
type SessionRegistry interface {
	Attach(ctx context.Context, sessionID string, auth checkoutsvc.Auth) (*sessions.Session, cartsvc.State, error)
	Logout(ctx context.Context, sessionID string) (cartsvc.State, error)
}

// TokenStore holds the token persisted for each storefront session.
type TokenStore interface {
	session.TokenLookup
	Revoke(ctx context.Context, sessionID string) error
}

// RedisStore backs idempotency records and rate limit counters.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pingers  map[string]controllers.Pinger
	Redis    RedisStore
	Tokens   TokenStore
	Sessions SessionRegistry
	Attempts checkoutcontrollers.AttemptLister
	Metrics  http.Handler
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins, cfg.App.CORSMaxAge),
	)

	availabilityPolicy := middleware.NewRateLimitPolicy(
		"availability",
		cfg.RateLimit.Window,
		cfg.RateLimit.AvailabilityIP,
		cfg.RateLimit.AvailabilitySession,
	)
	submitPolicy := middleware.NewRateLimitPolicy(
		"submit",
		cfg.RateLimit.Window,
		cfg.RateLimit.SubmitIP,
		cfg.RateLimit.SubmitSession,
	)
	idempotent := middleware.Idempotency(deps.Redis, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Pingers, logg))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.StorefrontSession(logg),
			middleware.Auth(cfg.JWT, deps.Tokens, logg),
		)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", controllers.SessionPing())
			r.Post("/logout", controllers.SessionLogout(deps.Tokens, deps.Sessions, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(deps.Sessions, logg))
			r.Delete("/", cartcontrollers.CartClear(deps.Sessions, logg))
			r.With(idempotent).Post("/items", cartcontrollers.CartAddItem(deps.Sessions, logg))
			r.Patch("/items/{skuId}", cartcontrollers.CartSetQuantity(deps.Sessions, logg))
			r.Delete("/items/{skuId}", cartcontrollers.CartRemoveItem(deps.Sessions, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkoutcontrollers.CheckoutStart(deps.Sessions, logg))
			r.Get("/", checkoutcontrollers.CheckoutView(deps.Sessions, logg))
			r.Delete("/", checkoutcontrollers.CheckoutCancel(deps.Sessions, logg))
			r.Patch("/fields", checkoutcontrollers.CheckoutApplyFields(deps.Sessions, logg))
			r.Put("/shipping", checkoutcontrollers.CheckoutSelectShipping(deps.Sessions, logg))
			r.Post("/shipping/refresh", checkoutcontrollers.CheckoutRefreshShipping(deps.Sessions, logg))
			r.Post("/step", checkoutcontrollers.CheckoutRequestStep(deps.Sessions, logg))
			r.With(middleware.RateLimit(availabilityPolicy, deps.Redis, logg)).
				Post("/availability", checkoutcontrollers.CheckoutAvailability(deps.Sessions, logg))
			r.With(middleware.RateLimit(submitPolicy, deps.Redis, logg), idempotent).
				Post("/submit", checkoutcontrollers.CheckoutSubmit(deps.Sessions, logg))
			r.Get("/attempts", checkoutcontrollers.CheckoutAttempts(deps.Attempts, logg))
		})
	})

	return r
}
