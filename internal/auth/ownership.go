package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BradenHooton/tasktrack/internal/models"
	pkghttp "github.com/BradenHooton/tasktrack/pkg/http"
	"github.com/BradenHooton/tasktrack/pkg/logger"
	"github.com/go-chi/chi/v5"
)

const maxOwnershipBody = 1 << 20

// OwnershipRule declares which resource an operation acts on and how to find
// its owner. AllowSelf lets an identity act on its own user record without a lookup.
type OwnershipRule struct {
	Kind       models.ResourceKind
	Param      string
	OwnerField string
	AllowSelf  bool
}

// OwnerLookup returns the value of ownerField for the resource with the given id,
// or models.ErrNotFound.
type OwnerLookup func(ctx context.Context, resourceID, ownerField string) (string, error)

// OwnershipAuthorizer checks that the authenticated identity owns the resource
// named in the request. One lookup is registered per resource kind.
type OwnershipAuthorizer struct {
	lookups map[models.ResourceKind]OwnerLookup
	logger  *slog.Logger
	audit   *logger.AuditLogger
}

// NewOwnershipAuthorizer creates an authorizer over the given lookup table
func NewOwnershipAuthorizer(lookups map[models.ResourceKind]OwnerLookup, log *slog.Logger) *OwnershipAuthorizer {
	return &OwnershipAuthorizer{
		lookups: lookups,
		logger:  log,
		audit:   logger.NewAuditLogger(log),
	}
}

// Check applies rule to the request. A nil rule always allows.
func (a *OwnershipAuthorizer) Check(r *http.Request, rule *OwnershipRule) error {
	if rule == nil {
		return nil
	}

	user := GetUserFromContext(r)
	if user == nil {
		return models.ErrUnauthorized
	}

	resourceID, err := extractResourceID(r, rule.Param)
	if err != nil {
		return err
	}

	if rule.AllowSelf && rule.Kind == models.ResourceUser && resourceID == user.ID {
		return nil
	}

	lookup, ok := a.lookups[rule.Kind]
	if !ok {
		return fmt.Errorf("%w: no owner lookup for resource kind %q", models.ErrOperationFailed, rule.Kind)
	}

	owner, err := lookup(r.Context(), resourceID, rule.OwnerField)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrResourceNotFound
		}
		return fmt.Errorf("%w: owner lookup: %v", models.ErrOperationFailed, err)
	}

	if owner != user.ID {
		a.audit.LogAccessRejected(r.Context(), logger.AuditEvent{
			EventType:     logger.EventOwnershipDenied,
			UserID:        user.ID,
			FailureReason: string(rule.Kind),
			Metadata:      map[string]string{"resource_id": logger.MaskID(resourceID)},
		})
		return models.ErrAccessDenied
	}

	return nil
}

// Require wraps a handler with the ownership check for rule
func (a *OwnershipAuthorizer) Require(rule OwnershipRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := a.Check(r, &rule); err != nil {
				failure := models.DescribeError(err)
				if !models.IsExpected(err) {
					a.logger.Error("ownership check failed", "kind", string(rule.Kind), "error", err)
				}
				pkghttp.WriteError(w, failure.Status, failure.Code, failure.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractResourceID looks for param in the route, then the query string, then
// a top-level field of a JSON body.
func extractResourceID(r *http.Request, param string) (string, error) {
	if id := strings.TrimSpace(chi.URLParam(r, param)); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(r.URL.Query().Get(param)); id != "" {
		return id, nil
	}
	if id := bodyField(r, param); id != "" {
		return id, nil
	}
	return "", models.ErrMissingResourceID
}

func bodyField(r *http.Request, field string) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxOwnershipBody))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return ""
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	switch v := payload[field].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
