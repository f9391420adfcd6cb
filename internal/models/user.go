package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// User is the identity record. PasswordHash and the failure counters never leave
// the service; use PublicUser for anything returned to callers.
type User struct {
	ID             string     `db:"id"`
	Email          string     `db:"email"`
	PasswordHash   string     `db:"password_hash"`
	DisplayName    string     `db:"display_name"`
	AvatarURL      *string    `db:"avatar_url"`
	IsActive       bool       `db:"is_active"`
	IsVerified     bool       `db:"is_verified"`
	LastLoginAt    *time.Time `db:"last_login_at"`
	FailedAttempts int        `db:"failed_attempts"`
	LockedUntil    *time.Time `db:"locked_until"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// PublicUser is the outward projection of an identity
type PublicUser struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsVerified  bool       `json:"is_verified"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Public returns the outward projection of the identity
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		IsActive:    u.IsActive,
		IsVerified:  u.IsVerified,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// IsLocked reports whether authentication is refused at the given instant
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// FailureState is the lockout-relevant part of an identity
type FailureState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// LockoutPolicy controls when repeated failures turn into a lockout
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// NextFailureState computes the state after one more failed authentication.
// An elapsed lock starts a fresh count so a single typo after the lock expires
// does not immediately re-lock the account.
func (u *User) NextFailureState(now time.Time, policy LockoutPolicy) FailureState {
	attempts := u.FailedAttempts
	if attempts < 0 {
		attempts = 0
	}
	if u.LockedUntil != nil && !now.Before(*u.LockedUntil) {
		attempts = 0
	}
	attempts++

	next := FailureState{FailedAttempts: attempts}
	if policy.Threshold > 0 && attempts >= policy.Threshold {
		lockedUntil := now.Add(policy.Duration)
		next.LockedUntil = &lockedUntil
	}
	return next
}

// CanSettle reports whether a successful attempt, charged earlier as attempt,
// may clear the failure state. Any lock in force must be the one that attempt
// set; a lock added by a concurrent failure stands.
func (u *User) CanSettle(now time.Time, attempt FailureState) bool {
	if !u.IsLocked(now) {
		return true
	}
	return attempt.LockedUntil != nil &&
		u.FailedAttempts == attempt.FailedAttempts &&
		u.LockedUntil.Equal(*attempt.LockedUntil)
}

// NormalizeEmail lower-cases and trims an email for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var displayNamePattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} ._'-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = RegisterDisplayNameValidation(v)
	return v
}

// ValidateDisplayName checks length bounds and the allowed character set
func ValidateDisplayName(name string) error {
	if err := validate.Var(name, "required,min=2,max=50,displayname"); err != nil {
		return ErrInvalidDisplayName
	}
	return nil
}

// RegisterDisplayNameValidation adds the displayname tag to another validator instance
func RegisterDisplayNameValidation(v *validator.Validate) error {
	return v.RegisterValidation("displayname", func(fl validator.FieldLevel) bool {
		return displayNamePattern.MatchString(fl.Field().String())
	})
}
