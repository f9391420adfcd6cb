package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/tasktrack/internal/models"
	"github.com/google/uuid"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	FindByEmailFunc         func(ctx context.Context, email string, activeOnly bool) (*models.User, error)
	FindByIDFunc            func(ctx context.Context, id string, activeOnly bool) (*models.User, error)
	CreateFunc              func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateCredentialFunc    func(ctx context.Context, id, passwordHash string) error
	UpdateFailureStateFunc  func(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error
	UpdateSuccessStateFunc  func(ctx context.Context, id string, lastLoginAt time.Time, attempt models.FailureState) error
	ClearFailureStateFunc   func(ctx context.Context, id string, now time.Time, attempt models.FailureState) error
	RecordFailedAttemptFunc func(ctx context.Context, id string, now time.Time, policy models.LockoutPolicy) (models.FailureState, error)
	UpdateProfileFunc       func(ctx context.Context, id, displayName string, avatarURL *string) (*models.User, error)
	DeactivateFunc          func(ctx context.Context, id string) error
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string, activeOnly bool) (*models.User, error) {
	if m.FindByEmailFunc != nil {
		return m.FindByEmailFunc(ctx, email, activeOnly)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string, activeOnly bool) (*models.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id, activeOnly)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdateCredential(ctx context.Context, id, passwordHash string) error {
	if m.UpdateCredentialFunc != nil {
		return m.UpdateCredentialFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) UpdateFailureState(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	if m.UpdateFailureStateFunc != nil {
		return m.UpdateFailureStateFunc(ctx, id, failedAttempts, lockedUntil)
	}
	return nil
}

func (m *MockUserRepository) UpdateSuccessState(ctx context.Context, id string, lastLoginAt time.Time, attempt models.FailureState) error {
	if m.UpdateSuccessStateFunc != nil {
		return m.UpdateSuccessStateFunc(ctx, id, lastLoginAt, attempt)
	}
	return nil
}

func (m *MockUserRepository) ClearFailureState(ctx context.Context, id string, now time.Time, attempt models.FailureState) error {
	if m.ClearFailureStateFunc != nil {
		return m.ClearFailureStateFunc(ctx, id, now, attempt)
	}
	return nil
}

func (m *MockUserRepository) RecordFailedAttempt(ctx context.Context, id string, now time.Time, policy models.LockoutPolicy) (models.FailureState, error) {
	if m.RecordFailedAttemptFunc != nil {
		return m.RecordFailedAttemptFunc(ctx, id, now, policy)
	}
	return models.FailureState{FailedAttempts: 1}, nil
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id, displayName string, avatarURL *string) (*models.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, id, displayName, avatarURL)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Deactivate(ctx context.Context, id string) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, id)
	}
	return nil
}

// memoryUserStore is an in-memory UserRepository with the same uniqueness and
// serialization guarantees as the pgx repository.
type memoryUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[string]*models.User)}
}

func (s *memoryUserStore) get(id string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (s *memoryUserStore) FindByEmail(ctx context.Context, email string, activeOnly bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == models.NormalizeEmail(email) && (!activeOnly || u.IsActive) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memoryUserStore) FindByID(ctx context.Context, id string, activeOnly bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || (activeOnly && !u.IsActive) {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memoryUserStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := models.NormalizeEmail(user.Email)
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return nil, models.ErrConflict
		}
	}
	cp := *user
	cp.ID = uuid.New().String()
	cp.Email = email
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *memoryUserStore) update(id string, fn func(u *models.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.ErrNotFound
	}
	return fn(u)
}

func (s *memoryUserStore) UpdateCredential(ctx context.Context, id, passwordHash string) error {
	return s.update(id, func(u *models.User) error {
		u.PasswordHash = passwordHash
		return nil
	})
}

func (s *memoryUserStore) UpdateFailureState(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	return s.update(id, func(u *models.User) error {
		u.FailedAttempts = failedAttempts
		u.LockedUntil = lockedUntil
		return nil
	})
}

func (s *memoryUserStore) UpdateSuccessState(ctx context.Context, id string, lastLoginAt time.Time, attempt models.FailureState) error {
	return s.update(id, func(u *models.User) error {
		if !u.CanSettle(lastLoginAt, attempt) {
			return models.ErrAccountLocked
		}
		u.LastLoginAt = &lastLoginAt
		u.FailedAttempts = 0
		u.LockedUntil = nil
		return nil
	})
}

func (s *memoryUserStore) ClearFailureState(ctx context.Context, id string, now time.Time, attempt models.FailureState) error {
	return s.update(id, func(u *models.User) error {
		if !u.CanSettle(now, attempt) {
			return models.ErrAccountLocked
		}
		u.FailedAttempts = 0
		u.LockedUntil = nil
		return nil
	})
}

func (s *memoryUserStore) RecordFailedAttempt(ctx context.Context, id string, now time.Time, policy models.LockoutPolicy) (models.FailureState, error) {
	var next models.FailureState
	err := s.update(id, func(u *models.User) error {
		if u.IsLocked(now) {
			return models.ErrAccountLocked
		}
		next = u.NextFailureState(now, policy)
		u.FailedAttempts = next.FailedAttempts
		u.LockedUntil = next.LockedUntil
		return nil
	})
	if err != nil {
		return models.FailureState{}, err
	}
	return next, nil
}

func (s *memoryUserStore) UpdateProfile(ctx context.Context, id, displayName string, avatarURL *string) (*models.User, error) {
	var out models.User
	err := s.update(id, func(u *models.User) error {
		u.DisplayName = displayName
		u.AvatarURL = avatarURL
		out = *u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *memoryUserStore) Deactivate(ctx context.Context, id string) error {
	return s.update(id, func(u *models.User) error {
		u.IsActive = false
		return nil
	})
}

// fakeHasher stores "hashed:<plaintext>" and counts calls; it keeps service
// tests independent of the argon2 cost.
type fakeHasher struct {
	mu          sync.Mutex
	hashCalls   int
	verifyCalls int
	rehash      bool
	hashErr     error
}

func (h *fakeHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hashCalls++
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "hashed:" + plaintext, nil
}

func (h *fakeHasher) Verify(ctx context.Context, plaintext, encoded string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.verifyCalls++
	return plaintext != "" && encoded == "hashed:"+plaintext
}

func (h *fakeHasher) NeedsRehash(encoded string) bool {
	return h.rehash
}

func (h *fakeHasher) verifies() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifyCalls
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	IssuePairFunc func(subject string) (*models.TokenPair, error)
}

func (m *MockTokenIssuer) IssuePair(subject string) (*models.TokenPair, error) {
	if m.IssuePairFunc != nil {
		return m.IssuePairFunc(subject)
	}
	return &models.TokenPair{
		AccessToken:  "access_token_" + subject,
		RefreshToken: "refresh_token_" + subject,
		TokenType:    "Bearer",
		ExpiresIn:    900,
	}, nil
}

// MockSessionAuthenticator implements SessionAuthenticator for testing
type MockSessionAuthenticator struct {
	AuthenticateFunc func(ctx context.Context, raw string, expected models.TokenKind) (*models.User, *models.TokenClaims, error)
}

func (m *MockSessionAuthenticator) Authenticate(ctx context.Context, raw string, expected models.TokenKind) (*models.User, *models.TokenClaims, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, raw, expected)
	}
	return nil, nil, models.ErrTokenInvalid
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	SendRegistrationNoticeFunc func(ctx context.Context, email, displayName string) error
}

func (m *MockNotifier) SendRegistrationNotice(ctx context.Context, email, displayName string) error {
	if m.SendRegistrationNoticeFunc != nil {
		return m.SendRegistrationNoticeFunc(ctx, email, displayName)
	}
	return nil
}

var errStoreDown = errors.New("connection refused")

// NewTestUser builds an active identity whose password is "Abc12345" under fakeHasher
func NewTestUser(id, email, displayName string) *models.User {
	now := time.Now()
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: "hashed:Abc12345",
		DisplayName:  displayName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestUserLocked creates a user locked for the next 30 minutes
func NewTestUserLocked(id, email, displayName string) *models.User {
	user := NewTestUser(id, email, displayName)
	lockedUntil := time.Now().Add(30 * time.Minute)
	user.LockedUntil = &lockedUntil
	user.FailedAttempts = 5
	return user
}
