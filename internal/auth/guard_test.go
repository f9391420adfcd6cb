package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/tasktrack/internal/models"
	pkghttp "github.com/BradenHooton/tasktrack/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockIdentityFinder is a mock implementation of IdentityFinder
type MockIdentityFinder struct {
	FindByIDFunc func(ctx context.Context, id string, activeOnly bool) (*models.User, error)
}

func (m *MockIdentityFinder) FindByID(ctx context.Context, id string, activeOnly bool) (*models.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id, activeOnly)
	}
	return nil, models.ErrNotFound
}

func usersWith(users ...*models.User) *MockIdentityFinder {
	return &MockIdentityFinder{
		FindByIDFunc: func(ctx context.Context, id string, activeOnly bool) (*models.User, error) {
			for _, u := range users {
				if u.ID == id {
					return u, nil
				}
			}
			return nil, models.ErrNotFound
		},
	}
}

func newTestGuard(t *testing.T, users IdentityFinder) (*SessionGuard, *TokenManager) {
	t.Helper()
	tm := newTestTokenManager(t)
	return NewSessionGuard(tm, users, slog.Default(), &pkghttp.IPConfig{}), tm
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) pkghttp.ErrorResponse {
	t.Helper()
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if user := GetUserFromContext(r); user != nil {
		w.Header().Set("X-User", user.ID)
	}
	w.WriteHeader(http.StatusOK)
})

func TestAuthenticate_Success(t *testing.T) {
	user := &models.User{ID: "user-1", IsActive: true}
	guard, tm := newTestGuard(t, usersWith(user))

	token, err := tm.Issue("user-1", models.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	got, claims, err := guard.Authenticate(context.Background(), token, models.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)
	assert.Equal(t, models.TokenKindAccess, claims.Kind)
}

func TestAuthenticate_FailureMapping(t *testing.T) {
	active := &models.User{ID: "active", IsActive: true}
	inactive := &models.User{ID: "inactive", IsActive: false}
	guard, tm := newTestGuard(t, usersWith(active, inactive))

	issue := func(sub string, kind models.TokenKind) string {
		tok, err := tm.Issue(sub, kind, time.Minute)
		require.NoError(t, err)
		return tok
	}

	tm.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired := issue("active", models.TokenKindAccess)
	tm.now = func() time.Time { return time.Now().Add(time.Hour) }
	future := issue("active", models.TokenKindAccess)
	tm.now = time.Now

	tests := []struct {
		name     string
		raw      string
		expected models.TokenKind
		wantErr  error
	}{
		{"missing token", "", models.TokenKindAccess, models.ErrTokenInvalid},
		{"malformed token", "not.a.jwt", models.TokenKindAccess, models.ErrTokenInvalid},
		{"expired token", expired, models.TokenKindAccess, models.ErrTokenExpired},
		{"not yet valid collapses", future, models.TokenKindAccess, models.ErrUnauthorized},
		{"refresh where access expected", issue("active", models.TokenKindRefresh), models.TokenKindAccess, models.ErrTokenInvalid},
		{"access where refresh expected", issue("active", models.TokenKindAccess), models.TokenKindRefresh, models.ErrTokenInvalid},
		{"unknown subject", issue("ghost", models.TokenKindAccess), models.TokenKindAccess, models.ErrAccountInactive},
		{"inactive subject", issue("inactive", models.TokenKindAccess), models.TokenKindAccess, models.ErrAccountInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, claims, err := guard.Authenticate(context.Background(), tt.raw, tt.expected)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, user)
			assert.Nil(t, claims)
		})
	}
}

func TestAuthenticate_StoreErrorIsUnauthorized(t *testing.T) {
	guard, tm := newTestGuard(t, &MockIdentityFinder{
		FindByIDFunc: func(ctx context.Context, id string, activeOnly bool) (*models.User, error) {
			return nil, errors.New("connection refused")
		},
	})
	token, err := tm.Issue("user-1", models.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	_, _, err = guard.Authenticate(context.Background(), token, models.TokenKindAccess)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestRequireAccess(t *testing.T) {
	user := &models.User{ID: "user-1", IsActive: true}
	guard, tm := newTestGuard(t, usersWith(user))
	access, err := tm.Issue("user-1", models.TokenKindAccess, time.Minute)
	require.NoError(t, err)
	refresh, err := tm.Issue("user-1", models.TokenKindRefresh, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"valid bearer", "Bearer " + access, http.StatusOK, ""},
		{"lowercase scheme", "bearer " + access, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "token_invalid"},
		{"wrong scheme", "Basic " + access, http.StatusUnauthorized, "token_invalid"},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized, "token_invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			guard.RequireAccess(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "user-1", rec.Header().Get("X-User"))
				return
			}
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestRequireAccess_InactiveAccount(t *testing.T) {
	guard, tm := newTestGuard(t, usersWith(&models.User{ID: "user-1", IsActive: false}))
	access, err := tm.Issue("user-1", models.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()

	guard.RequireAccess(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "account_inactive", decodeError(t, rec).Error)
}

func TestRequireAccess_PublicSkipsTokenInspection(t *testing.T) {
	called := false
	guard, _ := newTestGuard(t, &MockIdentityFinder{
		FindByIDFunc: func(ctx context.Context, id string, activeOnly bool) (*models.User, error) {
			called = true
			return nil, models.ErrNotFound
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()

	Public(guard.RequireAccess(okHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-User"))
	assert.False(t, called)
}

func TestRequireRefresh(t *testing.T) {
	user := &models.User{ID: "user-1", IsActive: true}
	guard, tm := newTestGuard(t, usersWith(user))
	access, err := tm.Issue("user-1", models.TokenKindAccess, time.Minute)
	require.NoError(t, err)
	refresh, err := tm.Issue("user-1", models.TokenKindRefresh, time.Minute)
	require.NoError(t, err)

	t.Run("valid refresh token in body", func(t *testing.T) {
		body := `{"refresh_token":"` + refresh + `"}`
		var seenBody string
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			seenBody = string(b)
			okHandler.ServeHTTP(w, r)
		})

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		guard.RequireRefresh(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-1", rec.Header().Get("X-User"))
		assert.Equal(t, body, seenBody)
	})

	t.Run("access token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString(`{"refresh_token":"`+access+`"}`))
		rec := httptest.NewRecorder()
		guard.RequireRefresh(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "token_invalid", decodeError(t, rec).Error)
	})

	t.Run("header token is ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString(`{}`))
		req.Header.Set("Authorization", "Bearer "+refresh)
		rec := httptest.NewRecorder()
		guard.RequireRefresh(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString(`not json`))
		rec := httptest.NewRecorder()
		guard.RequireRefresh(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "token_invalid", decodeError(t, rec).Error)
	})
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", bearerToken(req))

	req.Header.Set("Authorization", "Bearer")
	assert.Equal(t, "", bearerToken(req))

	req.Header.Set("Authorization", "Bearer   abc ")
	assert.Equal(t, "abc", bearerToken(req))
}
