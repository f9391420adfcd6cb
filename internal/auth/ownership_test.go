package auth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/tasktrack/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ownerCall struct {
	id    string
	field string
}

func fakeOwners(owners map[string]string, calls *[]ownerCall) OwnerLookup {
	return func(ctx context.Context, resourceID, ownerField string) (string, error) {
		if calls != nil {
			*calls = append(*calls, ownerCall{resourceID, ownerField})
		}
		owner, ok := owners[resourceID]
		if !ok {
			return "", models.ErrNotFound
		}
		return owner, nil
	}
}

func withUser(r *http.Request, id string) *http.Request {
	user := &models.User{ID: id, IsActive: true}
	return r.WithContext(WithIdentity(r.Context(), user, &models.TokenClaims{Kind: models.TokenKindAccess}))
}

func withRouteParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

var taskRule = OwnershipRule{Kind: models.ResourceTask, Param: "taskID", OwnerField: "user_id"}

func newTestAuthorizer(calls *[]ownerCall) *OwnershipAuthorizer {
	return NewOwnershipAuthorizer(map[models.ResourceKind]OwnerLookup{
		models.ResourceTask: fakeOwners(map[string]string{"task-a": "user-a"}, calls),
		models.ResourceTag:  fakeOwners(map[string]string{"tag-b": "user-b"}, calls),
		models.ResourceUser: fakeOwners(map[string]string{"user-a": "user-a", "user-b": "user-b"}, calls),
	}, slog.Default())
}

func TestOwnershipCheck_OwnerAllowed(t *testing.T) {
	var calls []ownerCall
	a := newTestAuthorizer(&calls)

	req := httptest.NewRequest(http.MethodGet, "/tasks/task-a", nil)
	req = withRouteParam(withUser(req, "user-a"), "taskID", "task-a")

	require.NoError(t, a.Check(req, &taskRule))
	require.Len(t, calls, 1)
	assert.Equal(t, ownerCall{"task-a", "user_id"}, calls[0])
}

func TestOwnershipCheck_NonOwnerDenied(t *testing.T) {
	a := newTestAuthorizer(nil)

	req := httptest.NewRequest(http.MethodGet, "/tasks/task-a", nil)
	req = withRouteParam(withUser(req, "user-b"), "taskID", "task-a")

	assert.ErrorIs(t, a.Check(req, &taskRule), models.ErrAccessDenied)
}

func TestOwnershipCheck_MissingResourceIsNotFound(t *testing.T) {
	a := newTestAuthorizer(nil)

	for _, caller := range []string{"user-a", "user-b"} {
		req := httptest.NewRequest(http.MethodGet, "/tasks/missing", nil)
		req = withRouteParam(withUser(req, caller), "taskID", "missing")

		assert.ErrorIs(t, a.Check(req, &taskRule), models.ErrResourceNotFound, caller)
	}
}

func TestOwnershipCheck_NilRuleAllows(t *testing.T) {
	a := newTestAuthorizer(nil)
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)

	assert.NoError(t, a.Check(req, nil))
}

func TestOwnershipCheck_RequiresIdentity(t *testing.T) {
	a := newTestAuthorizer(nil)
	req := withRouteParam(httptest.NewRequest(http.MethodGet, "/tasks/task-a", nil), "taskID", "task-a")

	assert.ErrorIs(t, a.Check(req, &taskRule), models.ErrUnauthorized)
}

func TestOwnershipCheck_MissingResourceID(t *testing.T) {
	a := newTestAuthorizer(nil)
	req := withUser(httptest.NewRequest(http.MethodGet, "/tasks", nil), "user-a")

	assert.ErrorIs(t, a.Check(req, &taskRule), models.ErrMissingResourceID)
}

func TestOwnershipCheck_ExtractionPriority(t *testing.T) {
	var calls []ownerCall
	a := newTestAuthorizer(&calls)

	// route param wins over query and body
	req := httptest.NewRequest(http.MethodPost, "/tasks/task-a?taskID=query-id", bytes.NewBufferString(`{"taskID":"body-id"}`))
	req.Header.Set("Content-Type", "application/json")
	req = withRouteParam(withUser(req, "user-a"), "taskID", "task-a")
	require.NoError(t, a.Check(req, &taskRule))

	// query wins over body
	req = httptest.NewRequest(http.MethodPost, "/tasks?taskID=task-a", bytes.NewBufferString(`{"taskID":"body-id"}`))
	req.Header.Set("Content-Type", "application/json")
	require.NoError(t, a.Check(withUser(req, "user-a"), &taskRule))

	// body used last, and restored for the handler
	body := `{"taskID":"task-a","title":"x"}`
	req = httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req = withUser(req, "user-a")
	require.NoError(t, a.Check(req, &taskRule))
	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(rest))

	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, "task-a", c.id)
	}
}

func TestOwnershipCheck_SelfShortcut(t *testing.T) {
	var calls []ownerCall
	a := newTestAuthorizer(&calls)
	rule := OwnershipRule{Kind: models.ResourceUser, Param: "id", OwnerField: "id", AllowSelf: true}

	req := withRouteParam(withUser(httptest.NewRequest(http.MethodGet, "/users/user-a", nil), "user-a"), "id", "user-a")
	require.NoError(t, a.Check(req, &rule))
	assert.Empty(t, calls)

	req = withRouteParam(withUser(httptest.NewRequest(http.MethodGet, "/users/user-b", nil), "user-a"), "id", "user-b")
	assert.ErrorIs(t, a.Check(req, &rule), models.ErrAccessDenied)
	assert.Len(t, calls, 1)
}

func TestOwnershipCheck_SelfShortcutOnlyForUserKind(t *testing.T) {
	var calls []ownerCall
	a := newTestAuthorizer(&calls)
	rule := OwnershipRule{Kind: models.ResourceTag, Param: "tagID", OwnerField: "user_id", AllowSelf: true}

	req := withRouteParam(withUser(httptest.NewRequest(http.MethodGet, "/tags/user-a", nil), "user-a"), "tagID", "user-a")

	assert.ErrorIs(t, a.Check(req, &rule), models.ErrResourceNotFound)
	assert.Len(t, calls, 1)
}

func TestOwnershipCheck_LookupFailureIsOperationFailed(t *testing.T) {
	a := NewOwnershipAuthorizer(map[models.ResourceKind]OwnerLookup{
		models.ResourceTask: func(ctx context.Context, resourceID, ownerField string) (string, error) {
			return "", errors.New("connection reset")
		},
	}, slog.Default())

	req := withRouteParam(withUser(httptest.NewRequest(http.MethodGet, "/tasks/task-a", nil), "user-a"), "taskID", "task-a")
	err := a.Check(req, &taskRule)

	assert.ErrorIs(t, err, models.ErrOperationFailed)
	assert.False(t, models.IsExpected(err))
}

func TestOwnershipCheck_UnregisteredKind(t *testing.T) {
	a := NewOwnershipAuthorizer(map[models.ResourceKind]OwnerLookup{}, slog.Default())
	req := withRouteParam(withUser(httptest.NewRequest(http.MethodGet, "/tasks/task-a", nil), "user-a"), "taskID", "task-a")

	assert.ErrorIs(t, a.Check(req, &taskRule), models.ErrOperationFailed)
}

func TestOwnershipRequire_Middleware(t *testing.T) {
	a := newTestAuthorizer(nil)
	handler := a.Require(taskRule)(okHandler)

	tests := []struct {
		name       string
		caller     string
		taskID     string
		wantStatus int
		wantCode   string
	}{
		{"owner", "user-a", "task-a", http.StatusOK, ""},
		{"other user", "user-b", "task-a", http.StatusForbidden, "access_denied"},
		{"unknown task", "user-a", "task-z", http.StatusNotFound, "resource_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tasks/"+tt.taskID, nil)
			req = withRouteParam(withUser(req, tt.caller), "taskID", tt.taskID)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
			}
		})
	}
}

func TestOwnershipRequire_ThroughChiRouter(t *testing.T) {
	a := newTestAuthorizer(nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, withUser(req, req.Header.Get("X-Test-User")))
		})
	})
	r.With(a.Require(taskRule)).Get("/tasks/{taskID}", okHandler)

	req := httptest.NewRequest(http.MethodGet, "/tasks/task-a", nil)
	req.Header.Set("X-Test-User", "user-a")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/tasks/task-a", nil)
	req.Header.Set("X-Test-User", "user-b")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
