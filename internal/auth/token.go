package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/tasktrack/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType is the scheme reported alongside every issued pair
const TokenType = "Bearer"

var signingMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// TokenConfig holds the signing material and lifetimes. The secret is read once
// at startup and never mutated.
type TokenConfig struct {
	Secret     string
	Algorithm  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret     []byte
	method     *jwt.SigningMethodHMAC
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager creates a new TokenManager for one of HS256, HS384 or HS512
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	method, ok := signingMethods[cfg.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	if cfg.Secret == "" {
		return nil, errors.New("signing secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	return &TokenManager{
		secret:     []byte(cfg.Secret),
		method:     method,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// AccessTTL returns the configured access-token lifetime
func (tm *TokenManager) AccessTTL() time.Duration {
	return tm.accessTTL
}

// Issue signs a token of the given kind for subject. Every call draws a fresh jti.
func (tm *TokenManager) Issue(subject string, kind models.TokenKind, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	if !kind.Valid() {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	now := tm.now()
	claims := &models.TokenClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(tm.method, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// IssuePair mints an access and a refresh token with independent ids
func (tm *TokenManager) IssuePair(subject string) (*models.TokenPair, error) {
	access, err := tm.Issue(subject, models.TokenKindAccess, tm.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := tm.Issue(subject, models.TokenKindRefresh, tm.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenType,
		ExpiresIn:    int64(tm.accessTTL.Seconds()),
	}, nil
}

// ValidateToken verifies signature, then time claims, then payload structure.
// The kind is returned, not asserted; callers decide which kind they accept.
func (tm *TokenManager) ValidateToken(raw string) (*models.TokenClaims, error) {
	if raw == "" {
		return nil, models.ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{tm.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(tm.now),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}

	claims := &models.TokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenMalformed),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, models.ErrTokenInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, models.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
			return nil, models.ErrTokenNotYetValid
		default:
			return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
		}
	}

	if claims.Subject == "" || claims.ID == "" || !claims.Kind.Valid() {
		return nil, models.ErrTokenPayloadInvalid
	}

	return claims, nil
}
