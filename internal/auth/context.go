package auth

import (
	"context"
	"net/http"

	"github.com/BradenHooton/tasktrack/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing the resolved identity in context
	UserContextKey contextKey = "user"
	// ClaimsContextKey is the key for storing validated token claims in context
	ClaimsContextKey contextKey = "claims"
	publicContextKey contextKey = "public"
)

// WithIdentity attaches an authenticated identity and its token claims
func WithIdentity(ctx context.Context, user *models.User, claims *models.TokenClaims) context.Context {
	ctx = context.WithValue(ctx, UserContextKey, user)
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// UserFromContext returns the authenticated identity, or nil
func UserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// ClaimsFromContext returns the validated token claims, or nil
func ClaimsFromContext(ctx context.Context) *models.TokenClaims {
	claims, ok := ctx.Value(ClaimsContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetUserFromContext extracts the authenticated identity from the request context
func GetUserFromContext(r *http.Request) *models.User {
	return UserFromContext(r.Context())
}

// Public marks every route below it as not requiring authentication.
// Guards check the mark before looking at any token.
func Public(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), publicContextKey, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IsPublic reports whether the request was marked by Public
func IsPublic(ctx context.Context) bool {
	public, _ := ctx.Value(publicContextKey).(bool)
	return public
}
