// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/internal/auth/postgres"
)

// createTestUser inserts a user with a unique email and removes it after the test.
func createTestUser(ctx context.Context, t *testing.T, repo *postgres.UserRepository) *auth.User {
	t.Helper()
	email := fmt.Sprintf("user-%s@example.com", ulid.Make().String())
	user, err := auth.NewUser("Test User", email, "hash")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, user))

	t.Cleanup(func() {
		_, _ = testPool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, user.ID.String())
	})
	return user
}

func TestUserRepository_Integration_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	user := createTestUser(ctx, t, repo)

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byID.ID)
	assert.Equal(t, user.Name, byID.Name)
	assert.Equal(t, user.Email, byID.Email)
	assert.Equal(t, "hash", byID.PasswordHash)
	assert.WithinDuration(t, user.CreatedAt, byID.CreatedAt, time.Millisecond)

	byEmail, err := repo.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
}

func TestUserRepository_Integration_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	_, err := repo.GetByID(ctx, ulid.Make())
	assert.ErrorIs(t, err, auth.ErrNotFound)

	_, err = repo.GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, ulid.Make()), auth.ErrNotFound)
}

func TestUserRepository_Integration_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	existing := createTestUser(ctx, t, repo)

	dup, err := auth.NewUser("Other User", existing.Email, "hash")
	require.NoError(t, err)
	err = repo.Create(ctx, dup)
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestUserRepository_Integration_ConcurrentCreateSameEmail(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	email := fmt.Sprintf("race-%s@example.com", ulid.Make().String())
	t.Cleanup(func() {
		_, _ = testPool.Exec(context.Background(), `DELETE FROM users WHERE email = $1`, email)
	})

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dups      int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := auth.NewUser("Racer", email, "hash")
			if err != nil {
				return
			}
			err = repo.Create(ctx, user)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, auth.ErrDuplicateEmail):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, dups)
}

func TestUserRepository_Integration_Update(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	user := createTestUser(ctx, t, repo)

	name := "Renamed User"
	updated, err := repo.Update(ctx, user.ID, auth.UserUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, user.Email, updated.Email, "unset fields keep their value")
	assert.Equal(t, user.PasswordHash, updated.PasswordHash)
	assert.False(t, updated.UpdatedAt.Before(user.UpdatedAt))

	other := createTestUser(ctx, t, repo)
	_, err = repo.Update(ctx, user.ID, auth.UserUpdate{Email: &other.Email})
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)

	_, err = repo.Update(ctx, ulid.Make(), auth.UserUpdate{Name: &name})
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepository_Integration_Delete(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	user := createTestUser(ctx, t, repo)

	require.NoError(t, repo.Delete(ctx, user.ID))

	_, err := repo.GetByID(ctx, user.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
