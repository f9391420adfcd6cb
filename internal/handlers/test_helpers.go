package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/tasktrack/internal/auth"
	"github.com/BradenHooton/tasktrack/internal/models"
	"github.com/BradenHooton/tasktrack/internal/services"
	pkghttp "github.com/BradenHooton/tasktrack/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRawRequest creates a request with a literal body
func NewRawRequest(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext attaches an authenticated identity, as the access guard would
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	user := &models.User{ID: userID, Email: email, DisplayName: "Test User", IsActive: true}
	claims := &models.TokenClaims{Kind: models.TokenKindAccess}
	claims.Subject = userID
	return req.WithContext(auth.WithIdentity(req.Context(), user, claims))
}

// WithChiRouteContext sets chi route parameters on the request
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// WithChiIDFromURL sets the {id} route parameter from the second path segment,
// e.g. /users/user123/password -> "user123"
func WithChiIDFromURL(r *http.Request) *http.Request {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) >= 2 {
		return WithChiRouteContext(r, map[string]string{"id": parts[1]})
	}
	return r
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// NewTestPublicUser builds a public projection for handler responses
func NewTestPublicUser(id, email, displayName string) *models.PublicUser {
	now := time.Now().UTC()
	return &models.PublicUser{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc        func(ctx context.Context, in services.RegisterInput) (*models.PublicUser, error)
	LoginFunc           func(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error)
	RefreshIdentityFunc func(ctx context.Context, user *models.User) (*models.TokenPair, error)
	GetIdentityByIDFunc func(ctx context.Context, id string) (*models.PublicUser, error)
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*models.PublicUser, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrEmailAlreadyExists
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password, ipAddress)
}

func (m *MockAuthService) RefreshIdentity(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	if m.RefreshIdentityFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshIdentityFunc(ctx, user)
}

func (m *MockAuthService) GetIdentityByID(ctx context.Context, id string) (*models.PublicUser, error) {
	if m.GetIdentityByIDFunc == nil {
		return nil, models.ErrResourceNotFound
	}
	return m.GetIdentityByIDFunc(ctx, id)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	GetUserByIDFunc    func(ctx context.Context, id string) (*models.PublicUser, error)
	UpdateProfileFunc  func(ctx context.Context, id string, update services.ProfileUpdate) (*models.PublicUser, error)
	ChangePasswordFunc func(ctx context.Context, id, currentPassword, newPassword string) error
	DeactivateFunc     func(ctx context.Context, id string) error
}

func (m *MockUserService) GetUserByID(ctx context.Context, id string) (*models.PublicUser, error) {
	if m.GetUserByIDFunc == nil {
		return nil, models.ErrResourceNotFound
	}
	return m.GetUserByIDFunc(ctx, id)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, id string, update services.ProfileUpdate) (*models.PublicUser, error) {
	if m.UpdateProfileFunc == nil {
		return nil, models.ErrResourceNotFound
	}
	return m.UpdateProfileFunc(ctx, id, update)
}

func (m *MockUserService) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, id, currentPassword, newPassword)
}

func (m *MockUserService) Deactivate(ctx context.Context, id string) error {
	if m.DeactivateFunc == nil {
		return nil
	}
	return m.DeactivateFunc(ctx, id)
}
