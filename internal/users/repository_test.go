package users

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T) Repository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client)
}

func newMemoryRepo(t *testing.T) Repository {
	t.Helper()
	return NewMemoryRepository()
}

var backends = map[string]func(t *testing.T) Repository{
	"memory": newMemoryRepo,
	"redis":  newRedisRepo,
}

func TestRepositoryInsertAndFind(t *testing.T) {
	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			created, err := repo.Insert(ctx, Candidate{Name: "Ann", Email: "ann@x.com", PasswordHash: "h1"})
			require.NoError(t, err)
			require.NotEmpty(t, created.ID)

			byEmail, err := repo.FindByEmail(ctx, "ann@x.com")
			require.NoError(t, err)
			assert.Equal(t, created.ID, byEmail.ID)
			assert.Equal(t, "h1", byEmail.PasswordHash)

			byID, err := repo.FindByID(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, "Ann", byID.Name)
			assert.True(t, created.CreatedAt.Equal(byID.CreatedAt))

			_, err = repo.FindByEmail(ctx, "ANN@x.com")
			assert.ErrorIs(t, err, ErrNotFound, "emails are case-sensitive")
			_, err = repo.FindByID(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRepositoryInsertRejectsDuplicateEmail(t *testing.T) {
	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			_, err := repo.Insert(ctx, Candidate{Name: "Ann", Email: "ann@x.com", PasswordHash: "h1"})
			require.NoError(t, err)

			_, err = repo.Insert(ctx, Candidate{Name: "Other", Email: "ann@x.com", PasswordHash: "h2"})
			assert.ErrorIs(t, err, ErrAlreadyExists)

			accounts, err := repo.List(ctx, true)
			require.NoError(t, err)
			require.Len(t, accounts, 1)
			assert.Equal(t, "h1", accounts[0].PasswordHash)
		})
	}
}

func TestRepositoryConcurrentInsertSingleWinner(t *testing.T) {
	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			const attempts = 50
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				wins      int
				conflicts int
			)
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := repo.Insert(ctx, Candidate{Name: "Racer", Email: "race@x.com", PasswordHash: "h"})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case errors.Is(err, ErrAlreadyExists):
						conflicts++
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, wins)
			assert.Equal(t, attempts-1, conflicts)
			accounts, err := repo.List(ctx, false)
			require.NoError(t, err)
			assert.Len(t, accounts, 1)
		})
	}
}

func TestRepositoryUpdate(t *testing.T) {
	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			ann, err := repo.Insert(ctx, Candidate{Name: "Ann", Email: "ann@x.com", PasswordHash: "h1"})
			require.NoError(t, err)
			_, err = repo.Insert(ctx, Candidate{Name: "Bob", Email: "bob@x.com", PasswordHash: "h2"})
			require.NoError(t, err)

			updated, err := repo.Update(ctx, ann.ID, Patch{Name: "Annie"})
			require.NoError(t, err)
			assert.Equal(t, "Annie", updated.Name)
			assert.Equal(t, "ann@x.com", updated.Email)
			assert.Equal(t, "h1", updated.PasswordHash)

			_, err = repo.Update(ctx, ann.ID, Patch{Email: "bob@x.com"})
			assert.ErrorIs(t, err, ErrAlreadyExists)

			moved, err := repo.Update(ctx, ann.ID, Patch{Email: "annie@x.com", PasswordHash: "h3"})
			require.NoError(t, err)
			assert.Equal(t, "annie@x.com", moved.Email)
			assert.Equal(t, "h3", moved.PasswordHash)

			_, err = repo.FindByEmail(ctx, "ann@x.com")
			assert.ErrorIs(t, err, ErrNotFound, "old email is released")
			_, err = repo.Insert(ctx, Candidate{Name: "New", Email: "ann@x.com", PasswordHash: "h4"})
			assert.NoError(t, err)

			_, err = repo.Update(ctx, "missing", Patch{Name: "x"})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRepositoryDelete(t *testing.T) {
	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			ann, err := repo.Insert(ctx, Candidate{Name: "Ann", Email: "ann@x.com", PasswordHash: "h1"})
			require.NoError(t, err)

			require.NoError(t, repo.Delete(ctx, ann.ID))
			assert.ErrorIs(t, repo.Delete(ctx, ann.ID), ErrNotFound)

			_, err = repo.FindByID(ctx, ann.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = repo.FindByEmail(ctx, "ann@x.com")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = repo.Insert(ctx, Candidate{Name: "Ann", Email: "ann@x.com", PasswordHash: "h2"})
			assert.NoError(t, err, "email is free again after delete")
		})
	}
}

func TestRepositoryListOrderAndSecrets(t *testing.T) {
	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			empty, err := repo.List(ctx, false)
			require.NoError(t, err)
			assert.Empty(t, empty)

			for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
				_, err := repo.Insert(ctx, Candidate{Name: "N", Email: email, PasswordHash: "secret"})
				require.NoError(t, err)
			}

			public, err := repo.List(ctx, false)
			require.NoError(t, err)
			require.Len(t, public, 3)
			for i, a := range public {
				assert.Empty(t, a.PasswordHash)
				if i > 0 {
					assert.False(t, a.CreatedAt.Before(public[i-1].CreatedAt))
				}
			}

			withSecrets, err := repo.List(ctx, true)
			require.NoError(t, err)
			assert.Equal(t, "secret", withSecrets[0].PasswordHash)
		})
	}
}

func TestRedisRepositoryReleasesEmailKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := NewRedisRepository(client)
	ctx := context.Background()

	ann, err := repo.Insert(ctx, Candidate{Name: "Ann", Email: "ann@x.com", PasswordHash: "h1"})
	require.NoError(t, err)
	assert.True(t, mr.Exists(emailKey("ann@x.com")))

	_, err = repo.Update(ctx, ann.ID, Patch{Email: "annie@x.com"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(emailKey("ann@x.com")))
	got, err := mr.Get(emailKey("annie@x.com"))
	require.NoError(t, err)
	assert.Equal(t, ann.ID, got)

	require.NoError(t, repo.Delete(ctx, ann.ID))
	assert.False(t, mr.Exists(emailKey("annie@x.com")))
	assert.False(t, mr.Exists(idKey(ann.ID)))
}
