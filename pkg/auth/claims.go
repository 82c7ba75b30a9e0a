package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims is the JWT the commerce backend issues to shoppers at registration or
// login. The storefront only verifies it.
type AccessTokenClaims struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
