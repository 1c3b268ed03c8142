package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// RepID identifies the sales rep; every dialer resource is scoped to it.
type Claims struct {
	jwt.RegisteredClaims

	RepID     string    `json:"rep_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
