package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenKind tags a token as access or refresh; the two are never interchangeable
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Valid reports whether k is one of the known kinds
func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// TokenClaims is the signed payload of both token kinds.
// Subject and ID (jti) come from the registered claims.
type TokenClaims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenPair is returned by login and refresh
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ResourceKind is the closed set of resource kinds protected by ownership checks
type ResourceKind string

const (
	ResourceTask ResourceKind = "task"
	ResourceTag  ResourceKind = "tag"
	ResourceUser ResourceKind = "user"
)

// Valid reports whether k is one of the known resource kinds
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceTask, ResourceTag, ResourceUser:
		return true
	}
	return false
}
