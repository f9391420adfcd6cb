package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/tasktrack/internal/models"
	pkghttp "github.com/BradenHooton/tasktrack/pkg/http"
	"github.com/BradenHooton/tasktrack/pkg/logger"
)

// maxRefreshBody caps how much of a request body the refresh guard will read
const maxRefreshBody = 64 << 10

// IdentityFinder resolves the subject of a validated token
type IdentityFinder interface {
	FindByID(ctx context.Context, id string, activeOnly bool) (*models.User, error)
}

// TokenValidator is the subset of TokenManager the guards depend on
type TokenValidator interface {
	ValidateToken(raw string) (*models.TokenClaims, error)
}

// SessionGuard turns a bearer token into an authenticated identity
type SessionGuard struct {
	tokens TokenValidator
	users  IdentityFinder
	logger *slog.Logger
	audit  *logger.AuditLogger
	ipCfg  *pkghttp.IPConfig
}

// NewSessionGuard creates a guard backed by the given validator and identity store
func NewSessionGuard(tokens TokenValidator, users IdentityFinder, log *slog.Logger, ipCfg *pkghttp.IPConfig) *SessionGuard {
	return &SessionGuard{
		tokens: tokens,
		users:  users,
		logger: log,
		audit:  logger.NewAuditLogger(log),
		ipCfg:  ipCfg,
	}
}

// Authenticate validates raw, asserts its kind and resolves an active identity.
// Missing or malformed tokens and kind mismatches are ErrTokenInvalid, expiry is
// ErrTokenExpired, an unknown or inactive subject is ErrAccountInactive and any
// other failure collapses to ErrUnauthorized.
func (g *SessionGuard) Authenticate(ctx context.Context, raw string, expected models.TokenKind) (*models.User, *models.TokenClaims, error) {
	if raw == "" {
		return nil, nil, models.ErrTokenInvalid
	}

	claims, err := g.tokens.ValidateToken(raw)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenExpired):
			return nil, nil, models.ErrTokenExpired
		case errors.Is(err, models.ErrTokenInvalid):
			return nil, nil, models.ErrTokenInvalid
		default:
			g.logger.Debug("token rejected", "reason", err.Error())
			return nil, nil, models.ErrUnauthorized
		}
	}

	if claims.Kind != expected {
		g.logger.Debug("token kind mismatch",
			"expected", string(expected),
			"got", string(claims.Kind),
			"user_id", logger.MaskID(claims.Subject))
		return nil, nil, models.ErrTokenInvalid
	}

	user, err := g.users.FindByID(ctx, claims.Subject, false)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			g.logger.Warn("token subject not found", "user_id", logger.MaskID(claims.Subject))
			return nil, nil, models.ErrAccountInactive
		}
		g.logger.Error("failed to resolve token subject", "user_id", logger.MaskID(claims.Subject), "error", err)
		return nil, nil, models.ErrUnauthorized
	}
	if !user.IsActive {
		g.logger.Warn("token subject inactive", "user_id", logger.MaskID(claims.Subject))
		return nil, nil, models.ErrAccountInactive
	}

	return user, claims, nil
}

// RequireAccess authenticates requests with an access token from the
// Authorization header. Routes marked Public pass through untouched.
func (g *SessionGuard) RequireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsPublic(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}

		user, claims, err := g.Authenticate(r.Context(), bearerToken(r), models.TokenKindAccess)
		if err != nil {
			g.reject(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user, claims)))
	})
}

// RequireRefresh authenticates requests with a refresh token carried in the
// JSON body as refresh_token. The body is restored for the next handler.
func (g *SessionGuard) RequireRefresh(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsPublic(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := refreshTokenFromBody(r)
		if err != nil {
			g.reject(w, r, models.ErrTokenInvalid)
			return
		}

		user, claims, err := g.Authenticate(r.Context(), raw, models.TokenKindRefresh)
		if err != nil {
			g.reject(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user, claims)))
	})
}

func (g *SessionGuard) reject(w http.ResponseWriter, r *http.Request, err error) {
	failure := models.DescribeError(err)
	g.audit.LogAccessRejected(r.Context(), logger.AuditEvent{
		EventType:     logger.EventTokenRejected,
		IPAddress:     pkghttp.ExtractClientIP(r, g.ipCfg),
		FailureReason: failure.Code,
		Metadata:      map[string]string{"path": r.URL.Path},
	})
	if failure.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	pkghttp.WriteError(w, failure.Status, failure.Code, failure.Message)
}

// bearerToken returns the token from "Authorization: Bearer <token>" or ""
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func refreshTokenFromBody(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", errors.New("missing body")
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRefreshBody))
	_ = r.Body.Close()
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	return payload.RefreshToken, nil
}
