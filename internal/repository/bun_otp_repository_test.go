package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkauth/darkauth/internal/db/models"
)

func TestBunOTPRepository_Credential(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunOTPRepository(db)
	ctx := context.Background()

	actorRef := models.OTPActorRef(models.ActorKindUser, "user-1")

	cred := &models.OTPCredential{
		ActorRef:  actorRef,
		SecretEnc: []byte{1, 2, 3},
		Algorithm: "SHA1",
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Upsert(ctx, cred))

	t.Run("setup re-run replaces the pending secret", func(t *testing.T) {
		cred.SecretEnc = []byte{4, 5, 6}
		require.NoError(t, repo.Upsert(ctx, cred))

		got, err := repo.Get(ctx, actorRef)
		require.NoError(t, err)
		assert.Equal(t, []byte{4, 5, 6}, got.SecretEnc)
		assert.False(t, got.Enabled)
	})

	t.Run("update persists counters", func(t *testing.T) {
		got, err := repo.Get(ctx, actorRef)
		require.NoError(t, err)
		got.Enabled = true
		got.Verified = true
		got.FailureCount = 3
		got.LastStep = 42
		require.NoError(t, repo.Update(ctx, got))

		got, err = repo.Get(ctx, actorRef)
		require.NoError(t, err)
		assert.True(t, got.Enabled)
		assert.Equal(t, 3, got.FailureCount)
		assert.Equal(t, int64(42), got.LastStep)
	})

	t.Run("delete removes the credential", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, actorRef))
		_, err := repo.Get(ctx, actorRef)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, actorRef), ErrNotFound)
	})
}

func TestBunOTPRepository_EmailTokens(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunOTPRepository(db)
	ctx := context.Background()

	sub := createTestUser(t, db, "tokens@example.com")

	newToken := func(ttl time.Duration) *models.EmailVerificationToken {
		now := time.Now()
		return &models.EmailVerificationToken{
			TokenHash:   uuid.NewString(),
			UserSub:     sub,
			Purpose:     models.EmailPurposeSignupVerify,
			TargetEmail: "tokens@example.com",
			CreatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
	}

	t.Run("consume is single use", func(t *testing.T) {
		token := newToken(time.Hour)
		require.NoError(t, repo.CreateEmailToken(ctx, token))

		got, err := repo.ConsumeEmailToken(ctx, token.TokenHash, time.Now())
		require.NoError(t, err)
		assert.Equal(t, sub, got.UserSub)

		_, err = repo.ConsumeEmailToken(ctx, token.TokenHash, time.Now())
		assert.ErrorIs(t, err, ErrAlreadyConsumed)
	})

	t.Run("expired tokens cannot be consumed", func(t *testing.T) {
		token := newToken(-time.Minute)
		require.NoError(t, repo.CreateEmailToken(ctx, token))

		_, err := repo.ConsumeEmailToken(ctx, token.TokenHash, time.Now())
		assert.ErrorIs(t, err, ErrAlreadyConsumed)
	})

	t.Run("get peeks without consuming", func(t *testing.T) {
		token := newToken(time.Hour)
		require.NoError(t, repo.CreateEmailToken(ctx, token))

		got, err := repo.GetEmailToken(ctx, token.TokenHash, time.Now())
		require.NoError(t, err)
		assert.Equal(t, sub, got.UserSub)
		assert.Nil(t, got.ConsumedAt)

		// Still consumable afterwards.
		_, err = repo.ConsumeEmailToken(ctx, token.TokenHash, time.Now())
		require.NoError(t, err)

		_, err = repo.GetEmailToken(ctx, token.TokenHash, time.Now())
		assert.ErrorIs(t, err, ErrAlreadyConsumed)
	})

	t.Run("get rejects expired and unknown tokens", func(t *testing.T) {
		token := newToken(-time.Minute)
		require.NoError(t, repo.CreateEmailToken(ctx, token))

		_, err := repo.GetEmailToken(ctx, token.TokenHash, time.Now())
		assert.ErrorIs(t, err, ErrAlreadyConsumed)

		_, err = repo.GetEmailToken(ctx, "missing", time.Now())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("issuing a new token invalidates the previous one", func(t *testing.T) {
		first := newToken(time.Hour)
		require.NoError(t, repo.CreateEmailToken(ctx, first))
		second := newToken(time.Hour)
		require.NoError(t, repo.CreateEmailToken(ctx, second))

		_, err := repo.ConsumeEmailToken(ctx, first.TokenHash, time.Now())
		assert.ErrorIs(t, err, ErrAlreadyConsumed)

		_, err = repo.ConsumeEmailToken(ctx, second.TokenHash, time.Now())
		assert.NoError(t, err)
	})
}
