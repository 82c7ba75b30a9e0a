package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod is the only algorithm accepted on shopper tokens.
var SigningMethod = jwt.SigningMethodHS256

// ErrTokenExpired marks a well-formed token whose lifetime has passed.
var ErrTokenExpired = errors.New("token expired")

// BearerToken extracts the token from an Authorization header value. ok is false when
// the header is empty; a "Bearer" prefix is optional and case-insensitive.
func BearerToken(header string) (token string, ok bool) {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return "", false
	}
	if scheme := strings.Fields(raw)[0]; strings.EqualFold(scheme, "bearer") {
		raw = strings.TrimSpace(raw[len(scheme):])
	}
	return raw, true
}

// ParseAccessToken verifies a token minted by the commerce backend and returns its claims.
// Expiry is checked with the configured leeway; an expired token wraps ErrTokenExpired.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token is empty")
	}

	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{SigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, err
	}
	if strings.TrimSpace(claims.CustomerID) == "" {
		return nil, fmt.Errorf("token carries no customer id")
	}
	return claims, nil
}
