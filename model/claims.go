package model

import "github.com/golang-jwt/jwt/v5"

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// AccessClaims is the payload of a short-lived access token. The subject id
// travels in the registered "sub" claim.
type AccessClaims struct {
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. The per-issuance token id
// travels in the registered "jti" claim.
type RefreshClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenID returns the unique identifier of this refresh token issuance.
func (c *RefreshClaims) TokenID() string {
	return c.ID
}
