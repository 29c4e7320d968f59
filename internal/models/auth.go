package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess            = "access"
	TokenTypeEmailVerification = "email_verification"
)

// TokenClaims are the claims of every token the service signs.
// The account id travels in the standard "sub" claim.
type TokenClaims struct {
	Type  string `json:"type"`
	Role  Role   `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AccountID returns the subject of the token.
func (c *TokenClaims) AccountID() string {
	return c.Subject
}

// AccessToken is the product of a successful login.
type AccessToken struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
}
