package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/tasktrack/internal/database"
	"github.com/BradenHooton/tasktrack/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, password_hash, display_name, avatar_url, is_active, is_verified,
	last_login_at, failed_attempts, locked_until, created_at, updated_at`

type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.AvatarURL,
		&user.IsActive, &user.IsVerified, &user.LastLoginAt,
		&user.FailedAttempts, &user.LockedUntil,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

// FindByEmail looks an identity up by its normalized email
func (r *UserRepository) FindByEmail(ctx context.Context, email string, activeOnly bool) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1`
	if activeOnly {
		query += ` AND is_active`
	}

	return scanUserRow(r.pool.QueryRow(ctx, query, models.NormalizeEmail(email)))
}

// FindByID looks an identity up by id. A malformed id is reported as not found.
func (r *UserRepository) FindByID(ctx context.Context, id string, activeOnly bool) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if activeOnly {
		query += ` AND is_active`
	}

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// Create inserts a new identity. A duplicate email surfaces as models.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	user.Email = models.NormalizeEmail(user.Email)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, password_hash, display_name, avatar_url, is_active, is_verified,
			failed_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.DisplayName, user.AvatarURL,
		user.IsActive, user.IsVerified, user.CreatedAt, user.UpdatedAt,
	))
}

// UpdateCredential replaces the password hash
func (r *UserRepository) UpdateCredential(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, passwordHash)
}

// UpdateFailureState writes the failure counter and lock expiry
func (r *UserRepository) UpdateFailureState(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	query := `UPDATE users SET failed_attempts = $2, locked_until = $3, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, failedAttempts, lockedUntil)
}

// settleCondition mirrors models.User.CanSettle: $2 is now, $3 and $4 the
// counter and lock expiry the settling attempt was charged with.
const settleCondition = `(locked_until IS NULL OR locked_until <= $2 OR (failed_attempts = $3 AND locked_until = $4))`

// UpdateSuccessState records a successful authentication and clears the
// lockout. It returns models.ErrAccountLocked when a concurrent failure has
// locked the row since the attempt was charged.
func (r *UserRepository) UpdateSuccessState(ctx context.Context, id string, lastLoginAt time.Time, attempt models.FailureState) error {
	query := `
		UPDATE users
		SET last_login_at = $2, failed_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND ` + settleCondition
	return r.execSettle(ctx, query, id, lastLoginAt, attempt)
}

// ClearFailureState resets the counter after a successful re-authentication
// without touching last_login_at. Same lock rule as UpdateSuccessState.
func (r *UserRepository) ClearFailureState(ctx context.Context, id string, now time.Time, attempt models.FailureState) error {
	query := `
		UPDATE users
		SET failed_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND ` + settleCondition
	return r.execSettle(ctx, query, id, now, attempt)
}

// RecordFailedAttempt locks the row, computes the next failure state and writes
// it back in one transaction so concurrent failures cannot lose increments.
// A row that is already locked is left untouched and models.ErrAccountLocked
// is returned.
func (r *UserRepository) RecordFailedAttempt(ctx context.Context, id string, now time.Time, policy models.LockoutPolicy) (models.FailureState, error) {
	// match the column precision so the returned lock compares equal later
	now = now.Truncate(time.Microsecond)
	var next models.FailureState

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		user, err := scanUserRow(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if user.IsLocked(now) {
			return models.ErrAccountLocked
		}

		next = user.NextFailureState(now, policy)

		_, err = tx.Exec(ctx,
			`UPDATE users SET failed_attempts = $2, locked_until = $3, updated_at = NOW() WHERE id = $1`,
			id, next.FailedAttempts, next.LockedUntil,
		)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return models.FailureState{}, err
	}

	return next, nil
}

// UpdateProfile sets display name and avatar and returns the updated identity
func (r *UserRepository) UpdateProfile(ctx context.Context, id, displayName string, avatarURL *string) (*models.User, error) {
	query := `
		UPDATE users SET display_name = $2, avatar_url = $3, updated_at = NOW()
		WHERE id = $1 AND is_active
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, id, displayName, avatarURL))
}

// Deactivate soft-deletes an identity; rows are never removed
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`
	return r.execOne(ctx, query, id)
}

func (r *UserRepository) execSettle(ctx context.Context, query, id string, now time.Time, attempt models.FailureState) error {
	tag, err := r.pool.Exec(ctx, query, id, now, attempt.FailedAttempts, attempt.LockedUntil)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAccountLocked
	}
	return nil
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
