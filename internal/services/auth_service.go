package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/tasktrack/internal/auth"
	"github.com/BradenHooton/tasktrack/internal/models"
	pkgauth "github.com/BradenHooton/tasktrack/pkg/auth"
	pkglogger "github.com/BradenHooton/tasktrack/pkg/logger"
)

// UserRepository is the identity store the services depend on
type UserRepository interface {
	FindByEmail(ctx context.Context, email string, activeOnly bool) (*models.User, error)
	FindByID(ctx context.Context, id string, activeOnly bool) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateCredential(ctx context.Context, id, passwordHash string) error
	UpdateFailureState(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error
	UpdateSuccessState(ctx context.Context, id string, lastLoginAt time.Time, attempt models.FailureState) error
	ClearFailureState(ctx context.Context, id string, now time.Time, attempt models.FailureState) error
	RecordFailedAttempt(ctx context.Context, id string, now time.Time, policy models.LockoutPolicy) (models.FailureState, error)
	UpdateProfile(ctx context.Context, id, displayName string, avatarURL *string) (*models.User, error)
	Deactivate(ctx context.Context, id string) error
}

// PasswordHasher derives and checks credentials
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, encoded string) bool
	NeedsRehash(encoded string) bool
}

// TokenIssuer mints access/refresh pairs
type TokenIssuer interface {
	IssuePair(subject string) (*models.TokenPair, error)
}

// SessionAuthenticator validates a raw token of an expected kind and resolves its identity
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, raw string, expected models.TokenKind) (*models.User, *models.TokenClaims, error)
}

// AuthDeps groups the collaborators of AuthService
type AuthDeps struct {
	Users    UserRepository
	Hasher   PasswordHasher
	Tokens   TokenIssuer
	Sessions SessionAuthenticator
	Timing   *auth.TimingDelay
	Notifier Notifier
	Lockout  models.LockoutPolicy
	Logger   *slog.Logger
}

// AuthService handles registration, login, refresh and introspection
type AuthService struct {
	repo        UserRepository
	hasher      PasswordHasher
	tokens      TokenIssuer
	sessions    SessionAuthenticator
	timing      *auth.TimingDelay
	notifier    Notifier
	lockout     models.LockoutPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthDeps) *AuthService {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		repo:        deps.Users,
		hasher:      deps.Hasher,
		tokens:      deps.Tokens,
		sessions:    deps.Sessions,
		timing:      deps.Timing,
		notifier:    notifier,
		lockout:     deps.Lockout,
		logger:      logger,
		auditLogger: pkglogger.NewAuditLogger(logger),
		now:         time.Now,
	}
}

// RegisterInput carries the fields accepted at registration
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	IPAddress   string
}

// LoginResult is returned by a successful login
type LoginResult struct {
	Tokens *models.TokenPair
	User   *models.PublicUser
}

// Register creates an active, unverified identity
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.PublicUser, error) {
	email := models.NormalizeEmail(in.Email)
	if email == "" {
		return nil, models.ErrValidationFailed
	}

	if err := models.ValidateDisplayName(in.DisplayName); err != nil {
		return nil, err
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		s.logger.Info("registration rejected: weak password")
		return nil, models.ErrWeakPassword
	}

	_, err := s.repo.FindByEmail(ctx, email, false)
	switch {
	case err == nil:
		s.auditRegister(ctx, "", email, in.IPAddress, false, "email_exists")
		return nil, models.ErrEmailAlreadyExists
	case !errors.Is(err, models.ErrNotFound):
		return nil, s.operationFailed("failed to check existing email", err)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, s.operationFailed("failed to hash password", err)
	}

	created, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  in.DisplayName,
		IsActive:     true,
		IsVerified:   false,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.auditRegister(ctx, "", email, in.IPAddress, false, "email_exists")
			return nil, models.ErrEmailAlreadyExists
		}
		return nil, s.operationFailed("failed to create user", err)
	}

	s.logger.Info("user registered", slog.String("user_id", pkglogger.MaskID(created.ID)))
	s.auditRegister(ctx, created.ID, email, in.IPAddress, true, "")

	if err := s.notifier.SendRegistrationNotice(ctx, created.Email, created.DisplayName); err != nil {
		s.logger.Warn("registration notice not delivered",
			slog.String("user_id", pkglogger.MaskID(created.ID)),
			slog.Any("error", err))
	}

	return created.Public(), nil
}

// Login verifies credentials and returns a fresh token pair. Unknown email,
// wrong password and inactive account all surface as ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress string) (*LoginResult, error) {
	start := time.Now()
	email = models.NormalizeEmail(email)

	user, err := s.repo.FindByEmail(ctx, email, true)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// burn the same hashing cost as a real verification
			s.hasher.Verify(ctx, password, s.dummyCredential(ctx))
			s.auditLogin(ctx, "", email, ipAddress, false, "unknown_email")
			s.timing.WaitFrom(ctx, start, false)
			return nil, models.ErrInvalidCredentials
		}
		return nil, s.operationFailed("failed to get user by email", err)
	}

	if user.IsLocked(s.now()) {
		return nil, s.refuseLocked(ctx, user.ID, email, ipAddress, start)
	}

	// charge the attempt before the slow verification so concurrent guesses
	// cannot outrun the threshold
	attempt, err := s.RecordFailure(ctx, user.ID)
	if err != nil {
		if errors.Is(err, models.ErrAccountLocked) {
			return nil, s.refuseLocked(ctx, user.ID, email, ipAddress, start)
		}
		return nil, s.operationFailed("failed to record login attempt", err)
	}

	if !s.hasher.Verify(ctx, password, user.PasswordHash) {
		if attempt.LockedUntil != nil {
			s.auditLogger.LogLockout(ctx, user.ID, attempt.FailedAttempts, *attempt.LockedUntil)
		}
		s.auditLogin(ctx, user.ID, email, ipAddress, false, "invalid_password")
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrInvalidCredentials
	}

	if err := s.RecordSuccess(ctx, user.ID, attempt); err != nil {
		if errors.Is(err, models.ErrAccountLocked) {
			return nil, s.refuseLocked(ctx, user.ID, email, ipAddress, start)
		}
		return nil, s.operationFailed("failed to record successful login", err)
	}

	s.upgradeCredential(ctx, user, password)

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, s.operationFailed("failed to issue tokens", err)
	}

	now := s.now()
	user.LastLoginAt = &now
	user.FailedAttempts = 0
	user.LockedUntil = nil

	s.logger.Info("user logged in", slog.String("user_id", pkglogger.MaskID(user.ID)))
	s.auditLogin(ctx, user.ID, email, ipAddress, true, "")

	return &LoginResult{Tokens: pair, User: user.Public()}, nil
}

// RecordFailure counts one authentication attempt against userID and applies
// the lockout policy. Login charges every attempt before the password is
// checked and settles it with RecordSuccess. A locked identity is not counted
// and yields models.ErrAccountLocked.
func (s *AuthService) RecordFailure(ctx context.Context, userID string) (models.FailureState, error) {
	return s.repo.RecordFailedAttempt(ctx, userID, s.now(), s.lockout)
}

// RecordSuccess stamps last login and clears the failure counter and lock.
// attempt is the state RecordFailure returned for this login; a lock set by
// any other attempt is kept and models.ErrAccountLocked returned.
func (s *AuthService) RecordSuccess(ctx context.Context, userID string, attempt models.FailureState) error {
	return s.repo.UpdateSuccessState(ctx, userID, s.now().UTC(), attempt)
}

// Refresh validates a refresh token and rotates to a new pair. The presented
// token stays valid until it expires.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken string) (*models.TokenPair, error) {
	user, _, err := s.sessions.Authenticate(ctx, rawRefreshToken, models.TokenKindRefresh)
	if err != nil {
		return nil, err
	}
	return s.RefreshIdentity(ctx, user)
}

// RefreshIdentity mints a new pair for an identity already resolved by the
// refresh guard, re-checking that it is still active.
func (s *AuthService) RefreshIdentity(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	if user == nil {
		return nil, models.ErrUnauthorized
	}

	current, err := s.repo.FindByID(ctx, user.ID, true)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrAccountInactive
		}
		return nil, s.operationFailed("failed to reload user for refresh", err)
	}

	pair, err := s.tokens.IssuePair(current.ID)
	if err != nil {
		return nil, s.operationFailed("failed to issue tokens", err)
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventRefresh,
		UserID:    current.ID,
		Success:   true,
	})
	return pair, nil
}

// GetIdentityByID returns the public projection of an active identity
func (s *AuthService) GetIdentityByID(ctx context.Context, id string) (*models.PublicUser, error) {
	user, err := s.repo.FindByID(ctx, id, true)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrResourceNotFound
		}
		return nil, s.operationFailed("failed to get user", err)
	}
	return user.Public(), nil
}

// upgradeCredential rehashes under the current policy after a successful login
func (s *AuthService) upgradeCredential(ctx context.Context, user *models.User, password string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(ctx, password)
	if err == nil {
		err = s.repo.UpdateCredential(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.Warn("credential rehash skipped",
			slog.String("user_id", pkglogger.MaskID(user.ID)),
			slog.Any("error", err))
	}
}

// dummyCredential is a hash of a random-looking constant, used to equalize
// the cost of logins for unknown emails.
func (s *AuthService) dummyCredential(ctx context.Context) string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(ctx, "tasktrack-timing-equalizer-7f3c")
		if err != nil {
			s.logger.Warn("failed to prepare timing credential", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *AuthService) refuseLocked(ctx context.Context, userID, email, ip string, start time.Time) error {
	s.auditLogin(ctx, userID, email, ip, false, "account_locked")
	s.timing.WaitFrom(ctx, start, false)
	return models.ErrAccountLocked
}

func (s *AuthService) operationFailed(msg string, err error) error {
	s.logger.Error(msg, slog.Any("error", err))
	return fmt.Errorf("%w: %s", models.ErrOperationFailed, msg)
}

func (s *AuthService) auditRegister(ctx context.Context, userID, email, ip string, success bool, reason string) {
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventRegister,
		UserID:        userID,
		Email:         pkglogger.SanitizedEmail(email),
		IPAddress:     ip,
		Success:       success,
		FailureReason: reason,
	})
}

func (s *AuthService) auditLogin(ctx context.Context, userID, email, ip string, success bool, reason string) {
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLogin,
		UserID:        userID,
		Email:         pkglogger.SanitizedEmail(email),
		IPAddress:     ip,
		Success:       success,
		FailureReason: reason,
	})
}
