package models

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}

func TestNextFailureState_IncrementsBelowThreshold(t *testing.T) {
	now := time.Now()
	user := &User{FailedAttempts: 2}

	next := user.NextFailureState(now, testPolicy)

	assert.Equal(t, 3, next.FailedAttempts)
	assert.Nil(t, next.LockedUntil)
}

func TestNextFailureState_LocksAtThreshold(t *testing.T) {
	now := time.Now()
	user := &User{FailedAttempts: 4}

	next := user.NextFailureState(now, testPolicy)

	assert.Equal(t, 5, next.FailedAttempts)
	require.NotNil(t, next.LockedUntil)
	assert.Equal(t, now.Add(30*time.Minute), *next.LockedUntil)
}

func TestNextFailureState_ExpiredLockRestartsCount(t *testing.T) {
	now := time.Now()
	expired := now.Add(-time.Minute)
	user := &User{FailedAttempts: 5, LockedUntil: &expired}

	next := user.NextFailureState(now, testPolicy)

	assert.Equal(t, 1, next.FailedAttempts)
	assert.Nil(t, next.LockedUntil)
}

func TestNextFailureState_NegativeCounterClamped(t *testing.T) {
	user := &User{FailedAttempts: -3}

	next := user.NextFailureState(time.Now(), testPolicy)

	assert.Equal(t, 1, next.FailedAttempts)
}

func TestUser_IsLocked(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	assert.False(t, (&User{}).IsLocked(now))
	assert.True(t, (&User{LockedUntil: &future}).IsLocked(now))
	assert.False(t, (&User{LockedUntil: &past}).IsLocked(now))
}

func TestUser_CanSettle(t *testing.T) {
	now := time.Now()
	ownLock := now.Add(30 * time.Minute)
	otherLock := now.Add(31 * time.Minute)
	past := now.Add(-time.Minute)

	tests := []struct {
		name    string
		user    *User
		attempt FailureState
		want    bool
	}{
		{"unlocked", &User{FailedAttempts: 3}, FailureState{FailedAttempts: 2}, true},
		{"elapsed lock", &User{FailedAttempts: 5, LockedUntil: &past}, FailureState{FailedAttempts: 1}, true},
		{"lock set by this attempt", &User{FailedAttempts: 5, LockedUntil: &ownLock}, FailureState{FailedAttempts: 5, LockedUntil: &ownLock}, true},
		{"lock set by a later attempt", &User{FailedAttempts: 5, LockedUntil: &otherLock}, FailureState{FailedAttempts: 2}, false},
		{"relocked after this attempt", &User{FailedAttempts: 5, LockedUntil: &otherLock}, FailureState{FailedAttempts: 5, LockedUntil: &ownLock}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.CanSettle(now, tt.attempt))
		})
	}
}

func TestUser_PublicOmitsSecrets(t *testing.T) {
	user := &User{
		ID:             "user-1",
		Email:          "a@x.com",
		PasswordHash:   "$argon2id$secret",
		DisplayName:    "Al",
		IsActive:       true,
		FailedAttempts: 3,
	}

	pub := user.Public()

	assert.Equal(t, "user-1", pub.ID)
	assert.Equal(t, "a@x.com", pub.Email)
	assert.Equal(t, "Al", pub.DisplayName)
	assert.True(t, pub.IsActive)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
}

func TestValidateDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"two letters", "Al", true},
		{"with space and dash", "Mary-Jane Smith", true},
		{"unicode letters", "Zoë", true},
		{"single char", "A", false},
		{"empty", "", false},
		{"too long", "abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijk", false},
		{"markup", "<script>", false},
		{"leading space", " Al", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDisplayName(tt.input)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidDisplayName)
			}
		})
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{ErrAccountLocked, http.StatusLocked, "account_locked"},
		{ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
		{ErrAccessDenied, http.StatusForbidden, "access_denied"},
		{ErrResourceNotFound, http.StatusNotFound, "resource_not_found"},
		{ErrMissingResourceID, http.StatusBadRequest, "missing_resource_id"},
		{ErrEmailAlreadyExists, http.StatusConflict, "email_already_exists"},
		{errors.New("dial tcp: connection refused"), http.StatusInternalServerError, "operation_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f := DescribeError(tt.err)
			assert.Equal(t, tt.status, f.Status)
			assert.Equal(t, tt.code, f.Code)
			assert.NotEmpty(t, f.Message)
		})
	}
}

func TestDescribeError_UnknownErrorHidesDetail(t *testing.T) {
	f := DescribeError(errors.New("pq: password authentication failed for user postgres"))

	assert.NotContains(t, f.Message, "postgres")
	assert.False(t, IsExpected(errors.New("boom")))
	assert.True(t, IsExpected(ErrWeakPassword))
}
