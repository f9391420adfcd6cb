package models

import (
	"errors"
	"net/http"
)

// Sentinel errors for store-level failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Typed outcomes surfaced to the request boundary
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrEmailAlreadyExists = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password does not meet policy")
	ErrInvalidDisplayName = errors.New("invalid display name")

	ErrTokenExpired        = errors.New("token expired")
	ErrTokenInvalid        = errors.New("invalid token")
	ErrTokenNotYetValid    = errors.New("token not yet valid")
	ErrTokenPayloadInvalid = errors.New("token payload incomplete")

	ErrUnauthorized      = errors.New("unauthorized")
	ErrAccessDenied      = errors.New("access denied")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrMissingResourceID = errors.New("missing resource id")
	ErrValidationFailed  = errors.New("validation failed")

	// ErrOperationFailed wraps store or hasher failures; details stay server-side.
	ErrOperationFailed = errors.New("operation failed")
)

// Failure is the boundary description of an error: HTTP status, stable machine
// code and a message that is safe to return to callers.
type Failure struct {
	Status  int
	Code    string
	Message string
}

var failures = []struct {
	err     error
	failure Failure
}{
	{ErrInvalidCredentials, Failure{http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"}},
	{ErrAccountLocked, Failure{http.StatusLocked, "account_locked", "Account is temporarily locked. Please try again later."}},
	{ErrAccountInactive, Failure{http.StatusUnauthorized, "account_inactive", "Account is inactive"}},
	{ErrEmailAlreadyExists, Failure{http.StatusConflict, "email_already_exists", "Email is already registered"}},
	{ErrWeakPassword, Failure{http.StatusBadRequest, "weak_password", "Password does not meet requirements"}},
	{ErrInvalidDisplayName, Failure{http.StatusBadRequest, "invalid_display_name", "Display name is invalid"}},
	{ErrTokenExpired, Failure{http.StatusUnauthorized, "token_expired", "Token has expired"}},
	{ErrTokenInvalid, Failure{http.StatusUnauthorized, "token_invalid", "Invalid token"}},
	{ErrTokenNotYetValid, Failure{http.StatusUnauthorized, "token_not_yet_valid", "Token is not yet valid"}},
	{ErrUnauthorized, Failure{http.StatusUnauthorized, "unauthorized", "Authentication required"}},
	{ErrAccessDenied, Failure{http.StatusForbidden, "access_denied", "You do not have access to this resource"}},
	{ErrResourceNotFound, Failure{http.StatusNotFound, "resource_not_found", "Resource not found"}},
	{ErrMissingResourceID, Failure{http.StatusBadRequest, "missing_resource_id", "Resource id is required"}},
	{ErrValidationFailed, Failure{http.StatusBadRequest, "validation_failed", "Request validation failed"}},
}

var operationFailed = Failure{http.StatusInternalServerError, "operation_failed", "Internal server error"}

// DescribeError maps an error to its boundary Failure. Anything that is not one
// of the typed outcomes is reported as operation_failed without detail.
func DescribeError(err error) Failure {
	for _, f := range failures {
		if errors.Is(err, f.err) {
			return f.failure
		}
	}
	return operationFailed
}

// IsExpected reports whether err is a typed outcome rather than an unexpected failure.
func IsExpected(err error) bool {
	for _, f := range failures {
		if errors.Is(err, f.err) {
			return true
		}
	}
	return false
}
