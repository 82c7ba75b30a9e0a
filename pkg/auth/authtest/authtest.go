// Package authtest mints shopper tokens the way the commerce backend does, for tests.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-core/pkg/auth"
	"github.com/angelmondragon/storefront-core/pkg/config"
)

// Mint signs a token for customerID valid from now for ttl.
func Mint(t testing.TB, cfg config.JWTConfig, now time.Time, ttl time.Duration, customerID string) string {
	t.Helper()
	claims := auth.AccessTokenClaims{
		CustomerID: customerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   customerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(auth.SigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
