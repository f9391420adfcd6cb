package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/tasktrack/internal/models"
	pkgauth "github.com/BradenHooton/tasktrack/pkg/auth"
	pkglogger "github.com/BradenHooton/tasktrack/pkg/logger"
)

// UserService handles profile and credential changes on an existing identity
type UserService struct {
	repo        UserRepository
	hasher      PasswordHasher
	lockout     models.LockoutPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewUserService creates a new UserService. Wrong current passwords given to
// ChangePassword count toward the same lockout as failed logins.
func NewUserService(repo UserRepository, hasher PasswordHasher, lockout models.LockoutPolicy, logger *slog.Logger) *UserService {
	return &UserService{
		repo:        repo,
		hasher:      hasher,
		lockout:     lockout,
		logger:      logger,
		auditLogger: pkglogger.NewAuditLogger(logger),
		now:         time.Now,
	}
}

// ProfileUpdate carries optional profile changes; nil fields are left as is.
// An empty AvatarURL clears the avatar.
type ProfileUpdate struct {
	DisplayName *string
	AvatarURL   *string
}

// GetUserByID returns the public projection of an active identity
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.PublicUser, error) {
	user, err := s.loadActive(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// UpdateProfile applies display name and avatar changes
func (s *UserService) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*models.PublicUser, error) {
	user, err := s.loadActive(ctx, id)
	if err != nil {
		return nil, err
	}

	displayName := user.DisplayName
	if update.DisplayName != nil {
		if err := models.ValidateDisplayName(*update.DisplayName); err != nil {
			return nil, err
		}
		displayName = *update.DisplayName
	}

	avatarURL := user.AvatarURL
	if update.AvatarURL != nil {
		// shape is checked at the request boundary
		if trimmed := strings.TrimSpace(*update.AvatarURL); trimmed == "" {
			avatarURL = nil
		} else {
			avatarURL = &trimmed
		}
	}

	updated, err := s.repo.UpdateProfile(ctx, id, displayName, avatarURL)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrResourceNotFound
		}
		return nil, s.operationFailed("failed to update profile", id, err)
	}

	s.logger.Info("profile updated", slog.String("user_id", pkglogger.MaskID(id)))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventProfileUpdate, id, "", nil)
	return updated.Public(), nil
}

// ChangePassword replaces the credential after checking the current one. The
// check is charged against the lockout before the hash is verified, exactly
// like a login.
func (s *UserService) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	user, err := s.loadActive(ctx, id)
	if err != nil {
		return err
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.ErrWeakPassword
	}

	if user.IsLocked(s.now()) {
		s.auditPasswordChange(ctx, id, false, "account_locked")
		return models.ErrAccountLocked
	}

	attempt, err := s.repo.RecordFailedAttempt(ctx, id, s.now(), s.lockout)
	if err != nil {
		return s.attemptFailed(ctx, id, err)
	}

	if !s.hasher.Verify(ctx, currentPassword, user.PasswordHash) {
		if attempt.LockedUntil != nil {
			s.auditLogger.LogLockout(ctx, id, attempt.FailedAttempts, *attempt.LockedUntil)
		}
		s.auditPasswordChange(ctx, id, false, "invalid_current_password")
		return models.ErrInvalidCredentials
	}

	if err := s.repo.ClearFailureState(ctx, id, s.now(), attempt); err != nil {
		return s.attemptFailed(ctx, id, err)
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return s.operationFailed("failed to hash password", id, err)
	}

	if err := s.repo.UpdateCredential(ctx, id, hash); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrResourceNotFound
		}
		return s.operationFailed("failed to update credential", id, err)
	}

	s.logger.Info("password changed", slog.String("user_id", pkglogger.MaskID(id)))
	s.auditPasswordChange(ctx, id, true, "")
	return nil
}

// Deactivate soft-deletes the identity. Outstanding tokens stop working at the
// next guard check because the guard requires an active subject.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrResourceNotFound
		}
		return s.operationFailed("failed to deactivate user", id, err)
	}

	s.logger.Info("user deactivated", slog.String("user_id", pkglogger.MaskID(id)))
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventDeactivate, id, "", nil)
	return nil
}

func (s *UserService) loadActive(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id, true)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", pkglogger.MaskID(id)))
			return nil, models.ErrResourceNotFound
		}
		return nil, s.operationFailed("failed to get user", id, err)
	}
	return user, nil
}

func (s *UserService) operationFailed(msg, id string, err error) error {
	s.logger.Error(msg, slog.String("user_id", pkglogger.MaskID(id)), slog.Any("error", err))
	return fmt.Errorf("%w: %s", models.ErrOperationFailed, msg)
}

// attemptFailed maps an error from charging or settling a credential check
func (s *UserService) attemptFailed(ctx context.Context, id string, err error) error {
	switch {
	case errors.Is(err, models.ErrAccountLocked):
		s.auditPasswordChange(ctx, id, false, "account_locked")
		return models.ErrAccountLocked
	case errors.Is(err, models.ErrNotFound):
		return models.ErrResourceNotFound
	default:
		return s.operationFailed("failed to record credential check", id, err)
	}
}

func (s *UserService) auditPasswordChange(ctx context.Context, id string, success bool, reason string) {
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventPasswordChange,
		UserID:        id,
		Success:       success,
		FailureReason: reason,
	})
}
