package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkauth/darkauth/internal/db/models"
)

func newAuthCode(clientID, userSub string) *models.AuthCode {
	now := time.Now()
	return &models.AuthCode{
		Code:        uuid.NewString(),
		ClientID:    clientID,
		UserSub:     userSub,
		RedirectURI: "https://app.example.com/cb",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Minute),
	}
}

func TestBunAuthCodeRepository_Consume(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunAuthCodeRepository(db)
	ctx := context.Background()

	sub := createTestUser(t, db, "consume@example.com")
	createTestClient(t, db, "app")

	t.Run("consumes exactly once", func(t *testing.T) {
		code := newAuthCode("app", sub)
		require.NoError(t, repo.Create(ctx, code))

		got, err := repo.Consume(ctx, code.Code)
		require.NoError(t, err)
		assert.True(t, got.Consumed)
		assert.Equal(t, sub, got.UserSub)

		_, err = repo.Consume(ctx, code.Code)
		assert.ErrorIs(t, err, ErrAlreadyConsumed)
	})

	t.Run("unknown code is not found", func(t *testing.T) {
		_, err := repo.Consume(ctx, "no-such-code")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("one winner under concurrent redemption", func(t *testing.T) {
		code := newAuthCode("app", sub)
		require.NoError(t, repo.Create(ctx, code))

		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = repo.Consume(ctx, code.Code)
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, ErrAlreadyConsumed)
			}
		}
		assert.Equal(t, 1, winners)
	})
}

func TestBunAuthCodeRepository_DeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunAuthCodeRepository(db)
	ctx := context.Background()

	sub := createTestUser(t, db, "sweep@example.com")
	createTestClient(t, db, "app")

	fresh := newAuthCode("app", sub)
	require.NoError(t, repo.Create(ctx, fresh))

	stale := newAuthCode("app", sub)
	stale.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, stale))

	consumed := newAuthCode("app", sub)
	require.NoError(t, repo.Create(ctx, consumed))
	_, err := repo.Consume(ctx, consumed.Code)
	require.NoError(t, err)

	n, err := repo.DeleteExpired(ctx, time.Now(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.GetByCode(ctx, fresh.Code)
	assert.NoError(t, err)
}

func TestBunPendingAuthRepository_BindUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunPendingAuthRepository(db)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	createTestClient(t, db, "app")

	newPending := func() *models.PendingAuth {
		now := time.Now()
		pa := &models.PendingAuth{
			RequestID:   uuid.Must(uuid.NewV7()).String(),
			ClientID:    "app",
			RedirectURI: "https://app.example.com/cb",
			CreatedAt:   now,
			ExpiresAt:   now.Add(10 * time.Minute),
		}
		require.NoError(t, repo.Create(ctx, pa))
		return pa
	}

	t.Run("binds once and is idempotent for the same subject", func(t *testing.T) {
		pa := newPending()
		require.NoError(t, repo.BindUser(ctx, pa.RequestID, alice))
		require.NoError(t, repo.BindUser(ctx, pa.RequestID, alice))

		got, err := repo.GetByID(ctx, pa.RequestID)
		require.NoError(t, err)
		require.NotNil(t, got.UserSub)
		assert.Equal(t, alice, *got.UserSub)
	})

	t.Run("rejects a different subject", func(t *testing.T) {
		pa := newPending()
		require.NoError(t, repo.BindUser(ctx, pa.RequestID, alice))
		assert.ErrorIs(t, repo.BindUser(ctx, pa.RequestID, bob), ErrAlreadyConsumed)
	})

	t.Run("missing pending auth is not found", func(t *testing.T) {
		assert.ErrorIs(t, repo.BindUser(ctx, uuid.NewString(), alice), ErrNotFound)
	})
}

func TestBunJWKSRepository_Rotate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunJWKSRepository(db)
	ctx := context.Background()

	first := &models.JWKSKey{
		Kid:           "kid-1",
		Alg:           "EdDSA",
		PublicJWK:     `{"kty":"OKP"}`,
		PrivateJWKEnc: []byte{1},
		Active:        true,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, repo.Create(ctx, first))

	second := &models.JWKSKey{
		Kid:           "kid-2",
		Alg:           "EdDSA",
		PublicJWK:     `{"kty":"OKP"}`,
		PrivateJWKEnc: []byte{2},
		CreatedAt:     time.Now().Add(time.Second),
	}
	require.NoError(t, repo.Rotate(ctx, second))

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kid-2", active.Kid)

	keys, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, key := range keys {
		if key.Kid == "kid-1" {
			assert.False(t, key.Active)
			assert.NotNil(t, key.RotatedAt)
		}
	}
}
