package middleware

import (
	"errors"
	"net/http"

	"github.com/angelmondragon/storefront-core/api/responses"
	"github.com/angelmondragon/storefront-core/internal/checkout"
	pkgAuth "github.com/angelmondragon/storefront-core/pkg/auth"
	"github.com/angelmondragon/storefront-core/pkg/auth/session"
	"github.com/angelmondragon/storefront-core/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

// Auth resolves the caller's authentication without requiring it. An explicit bearer
// token must be valid; otherwise the token persisted for the storefront session is used,
// and a missing or expired stored token leaves the caller a guest.
func Auth(cfg config.JWTConfig, tokens session.TokenLookup, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			auth := checkout.Auth{}

			if token, ok := pkgAuth.BearerToken(r.Header.Get("Authorization")); ok {
				if token == "" {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
					return
				}
				claims, err := pkgAuth.ParseAccessToken(cfg, token)
				if err != nil {
					msg := "invalid token"
					if errors.Is(err, pkgAuth.ErrTokenExpired) {
						msg = "token expired"
					}
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
					return
				}
				auth = checkout.Auth{Authenticated: true, Token: token, CustomerID: claims.CustomerID}
			} else if tokens != nil {
				stored, ok, err := tokens.Lookup(ctx, SessionIDFromContext(ctx))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session token"))
					return
				}
				if ok {
					if claims, err := pkgAuth.ParseAccessToken(cfg, stored); err == nil {
						auth = checkout.Auth{Authenticated: true, Token: stored, CustomerID: claims.CustomerID}
					} else if logg != nil {
						logg.Warn(logg.WithField(ctx, "error", err.Error()), "auth.stored_token_rejected")
					}
				}
			}

			ctx = WithAuth(ctx, auth)
			if logg != nil && auth.Authenticated {
				ctx = logg.WithCustomerID(ctx, auth.CustomerID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
