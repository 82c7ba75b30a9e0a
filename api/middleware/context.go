package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-core/internal/checkout"
)

type contextKey string

const (
	ctxSessionID contextKey = "storefront_session_id"
	ctxAuth      contextKey = "storefront_auth"
)

func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSessionID).(string); ok {
		return v
	}
	return ""
}

// AuthFromContext returns the caller's authentication; the zero value is a guest.
func AuthFromContext(ctx context.Context) checkout.Auth {
	if ctx == nil {
		return checkout.Auth{}
	}
	if v, ok := ctx.Value(ctxAuth).(checkout.Auth); ok {
		return v
	}
	return checkout.Auth{}
}

// WithSessionID injects the storefront session identifier into the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSessionID, sessionID)
}

// WithAuth injects the resolved authentication into the context.
func WithAuth(ctx context.Context, auth checkout.Auth) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAuth, auth)
}
