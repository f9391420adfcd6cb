//go:build integration

package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/tasktrack/internal/models"
	"github.com/BradenHooton/tasktrack/internal/repositories"
)

func TestUserRepository_CreateNormalizesEmail(t *testing.T) {
	testDB.CleanupTables(t)
	repo := repositories.NewUserRepository(testDB.DB)

	user := SeedUser(t, repo, "  Alice@Example.COM ")

	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.Zero(t, user.FailedAttempts)

	found, err := repo.FindByEmail(context.Background(), "ALICE@example.com", true)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
}

func TestUserRepository_DuplicateEmailIsConflict(t *testing.T) {
	testDB.CleanupTables(t)
	repo := repositories.NewUserRepository(testDB.DB)
	SeedUser(t, repo, "bob@example.com")

	_, err := repo.Create(context.Background(), &models.User{
		Email:        "BOB@example.com",
		PasswordHash: "x",
		DisplayName:  "Bob Two",
		IsActive:     true,
	})

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestUserRepository_FindByID(t *testing.T) {
	testDB.CleanupTables(t)
	repo := repositories.NewUserRepository(testDB.DB)
	user := SeedUser(t, repo, "carol@example.com")
	ctx := context.Background()

	found, err := repo.FindByID(ctx, user.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", found.Email)

	_, err = repo.FindByID(ctx, "not-a-uuid", false)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.FindByID(ctx, "00000000-0000-0000-0000-000000000000", false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserRepository_DeactivateHidesFromActiveLookups(t *testing.T) {
	testDB.CleanupTables(t)
	repo := repositories.NewUserRepository(testDB.DB)
	user := SeedUser(t, repo, "dave@example.com")
	ctx := context.Background()

	require.NoError(t, repo.Deactivate(ctx, user.ID))

	_, err := repo.FindByID(ctx, user.ID, true)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// the row is kept
	found, err := repo.FindByID(ctx, user.ID, false)
	require.NoError(t, err)
	assert.False(t, found.IsActive)

	assert.ErrorIs(t, repo.Deactivate(ctx, user.ID), models.ErrNotFound)
}

func TestUserRepository_RecordFailedAttemptLocksAtThreshold(t *testing.T) {
	testDB.CleanupTables(t)
	repo := repositories.NewUserRepository(testDB.DB)
	user := SeedUser(t, repo, "erin@example.com")
	ctx := context.Background()
	policy := models.LockoutPolicy{Threshold: 3, Duration: 30 * time.Minute}
	now := time.Now().UTC()

	var state models.FailureState
	var err error
	for i := 0; i < 3; i++ {
		state, err = repo.RecordFailedAttempt(ctx, user.ID, now, policy)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, state.FailedAttempts)
	require.NotNil(t, state.LockedUntil)
	assert.WithinDuration(t, now.Add(30*time.Minute), *state.LockedUntil, time.Second)

	found, err := repo.FindByID(ctx, user.ID, true)
	require.NoError(t, err)
	assert.True(t, found.IsLocked(now))

	_, err = repo.RecordFailedAttempt(ctx, user.ID, now, policy)
	assert.ErrorIs(t, err, models.ErrAccountLocked)

	require.NoError(t, repo.UpdateSuccessState(ctx, user.ID, now, state))
	found, err = repo.FindByID(ctx, user.ID, true)
	require.NoError(t, err)
	assert.Zero(t, found.FailedAttempts)
	assert.Nil(t, found.LockedUntil)
	assert.NotNil(t, found.LastLoginAt)
}

func TestUserRepository_SettleKeepsLockSetByOthers(t *testing.T) {
	testDB.CleanupTables(t)
	repo := repositories.NewUserRepository(testDB.DB)
	user := SeedUser(t, repo, "hank@example.com")
	ctx := context.Background()
	policy := models.LockoutPolicy{Threshold: 3, Duration: 30 * time.Minute}
	now := time.Now().UTC()

	first, err := repo.RecordFailedAttempt(ctx, user.ID, now, policy)
	require.NoError(t, err)
	for i := 1; i < policy.Threshold; i++ {
		_, err = repo.RecordFailedAttempt(ctx, user.ID, now, policy)
		require.NoError(t, err)
	}

	assert.ErrorIs(t, repo.UpdateSuccessState(ctx, user.ID, now, first), models.ErrAccountLocked)
	assert.ErrorIs(t, repo.ClearFailureState(ctx, user.ID, now, first), models.ErrAccountLocked)

	found, err := repo.FindByID(ctx, user.ID, true)
	require.NoError(t, err)
	assert.Equal(t, policy.Threshold, found.FailedAttempts)
	assert.True(t, found.IsLocked(now))
	assert.Nil(t, found.LastLoginAt)
}

func TestUserRepository_ClearFailureStateKeepsLastLogin(t *testing.T) {
	testDB.CleanupTables(t)
	repo := repositories.NewUserRepository(testDB.DB)
	user := SeedUser(t, repo, "iris@example.com")
	ctx := context.Background()
	policy := models.LockoutPolicy{Threshold: 5, Duration: time.Minute}
	now := time.Now().UTC()

	attempt, err := repo.RecordFailedAttempt(ctx, user.ID, now, policy)
	require.NoError(t, err)
	require.NoError(t, repo.ClearFailureState(ctx, user.ID, now, attempt))

	found, err := repo.FindByID(ctx, user.ID, true)
	require.NoError(t, err)
	assert.Zero(t, found.FailedAttempts)
	assert.Nil(t, found.LastLoginAt)
}

func TestUserRepository_RecordFailedAttemptConcurrent(t *testing.T) {
	testDB.CleanupTables(t)
	repo := repositories.NewUserRepository(testDB.DB)
	user := SeedUser(t, repo, "frank@example.com")
	policy := models.LockoutPolicy{Threshold: 100, Duration: time.Minute}

	const attempts = 20
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RecordFailedAttempt(context.Background(), user.ID, time.Now().UTC(), policy)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	found, err := repo.FindByID(context.Background(), user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, attempts, found.FailedAttempts)
}

func TestUserRepository_UpdateProfileAndCredential(t *testing.T) {
	testDB.CleanupTables(t)
	repo := repositories.NewUserRepository(testDB.DB)
	user := SeedUser(t, repo, "gina@example.com")
	ctx := context.Background()
	avatar := "https://cdn.example.com/gina.png"

	updated, err := repo.UpdateProfile(ctx, user.ID, "Gina G", &avatar)
	require.NoError(t, err)
	assert.Equal(t, "Gina G", updated.DisplayName)
	require.NotNil(t, updated.AvatarURL)
	assert.Equal(t, avatar, *updated.AvatarURL)

	require.NoError(t, repo.UpdateCredential(ctx, user.ID, "new-hash"))
	found, err := repo.FindByID(ctx, user.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", found.PasswordHash)
}
