package otp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
)

// memOTPRepo keeps credentials in a map, enough to drive the service.
type memOTPRepo struct {
	creds map[string]models.OTPCredential
}

func newMemOTPRepo() *memOTPRepo {
	return &memOTPRepo{creds: make(map[string]models.OTPCredential)}
}

func (m *memOTPRepo) Upsert(_ context.Context, cred *models.OTPCredential) error {
	m.creds[cred.ActorRef] = *cred
	return nil
}

func (m *memOTPRepo) Get(_ context.Context, actorRef string) (*models.OTPCredential, error) {
	cred, ok := m.creds[actorRef]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := cred
	return &copied, nil
}

func (m *memOTPRepo) Update(_ context.Context, cred *models.OTPCredential) error {
	if _, ok := m.creds[cred.ActorRef]; !ok {
		return repository.ErrNotFound
	}
	m.creds[cred.ActorRef] = *cred
	return nil
}

func (m *memOTPRepo) Delete(_ context.Context, actorRef string) error {
	if _, ok := m.creds[actorRef]; !ok {
		return repository.ErrNotFound
	}
	delete(m.creds, actorRef)
	return nil
}

func (m *memOTPRepo) CreateEmailToken(context.Context, *models.EmailVerificationToken) error {
	return nil
}

func (m *memOTPRepo) GetEmailToken(context.Context, string, time.Time) (*models.EmailVerificationToken, error) {
	return nil, repository.ErrNotFound
}

func (m *memOTPRepo) ConsumeEmailToken(context.Context, string, time.Time) (*models.EmailVerificationToken, error) {
	return nil, repository.ErrNotFound
}

func (m *memOTPRepo) InvalidateEmailTokens(context.Context, string, string) error {
	return nil
}

func newTestService(t *testing.T) (*Service, *memOTPRepo) {
	t.Helper()

	kek, err := crypto.NewKEK("test-passphrase-0123456789", "https://auth.example.com")
	require.NoError(t, err)

	repo := newMemOTPRepo()
	return NewService(repo, kek, "https://auth.example.com"), repo
}

// enroll runs SetupInit and SetupVerify and returns the plaintext secret.
func enroll(t *testing.T, svc *Service, actorRef string) string {
	t.Helper()

	setup, err := svc.SetupInit(context.Background(), actorRef, "user@example.com")
	require.NoError(t, err)

	code, err := crypto.TOTPCodeAt(setup.Secret, crypto.TOTPAlgorithmSHA1, crypto.TOTPStep(svc.now()))
	require.NoError(t, err)
	require.NoError(t, svc.SetupVerify(context.Background(), actorRef, code))

	return setup.Secret
}

func TestServiceSetup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	actorRef := models.OTPActorRef(models.ActorKindUser, "u1")

	t.Run("init yields a provisioning uri", func(t *testing.T) {
		setup, err := svc.SetupInit(ctx, actorRef, "user@example.com")
		require.NoError(t, err)
		assert.NotEmpty(t, setup.Secret)
		assert.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
		assert.Contains(t, setup.ProvisioningURI, "secret="+setup.Secret)
	})

	t.Run("re-running setup replaces the pending secret", func(t *testing.T) {
		first, err := svc.SetupInit(ctx, actorRef, "user@example.com")
		require.NoError(t, err)
		second, err := svc.SetupInit(ctx, actorRef, "user@example.com")
		require.NoError(t, err)
		assert.NotEqual(t, first.Secret, second.Secret)

		// The replaced secret no longer verifies.
		code, err := crypto.TOTPCodeAt(first.Secret, crypto.TOTPAlgorithmSHA1, crypto.TOTPStep(time.Now()))
		require.NoError(t, err)
		assert.ErrorIs(t, svc.SetupVerify(ctx, actorRef, code), ErrInvalidCode)
	})

	t.Run("verify enables the credential", func(t *testing.T) {
		enroll(t, svc, actorRef)

		status, err := svc.Status(ctx, actorRef)
		require.NoError(t, err)
		assert.True(t, status.Enabled)
		assert.True(t, status.Verified)
	})

	t.Run("init refuses while enabled", func(t *testing.T) {
		_, err := svc.SetupInit(ctx, actorRef, "user@example.com")
		assert.ErrorIs(t, err, ErrAlreadyEnabled)
	})
}

func TestServiceVerify(t *testing.T) {
	ctx := context.Background()
	actorRef := models.OTPActorRef(models.ActorKindUser, "u1")

	t.Run("accepts the adjacent step and rejects replay", func(t *testing.T) {
		svc, _ := newTestService(t)
		base := time.Now()
		svc.now = func() time.Time { return base }
		secret := enroll(t, svc, actorRef)

		// Next step succeeds.
		svc.now = func() time.Time { return base.Add(crypto.TOTPPeriod * time.Second) }
		code, err := crypto.TOTPCodeAt(secret, crypto.TOTPAlgorithmSHA1, crypto.TOTPStep(svc.now()))
		require.NoError(t, err)
		require.NoError(t, svc.Verify(ctx, actorRef, code))

		// The same code again is a replay.
		assert.ErrorIs(t, svc.Verify(ctx, actorRef, code), ErrInvalidCode)

		// So is the code for any earlier step.
		stale, err := crypto.TOTPCodeAt(secret, crypto.TOTPAlgorithmSHA1, crypto.TOTPStep(base))
		require.NoError(t, err)
		assert.ErrorIs(t, svc.Verify(ctx, actorRef, stale), ErrInvalidCode)
	})

	t.Run("locks after five consecutive failures", func(t *testing.T) {
		svc, _ := newTestService(t)
		base := time.Now()
		svc.now = func() time.Time { return base }
		secret := enroll(t, svc, actorRef)

		for i := 0; i < maxFailures-1; i++ {
			assert.ErrorIs(t, svc.Verify(ctx, actorRef, "000000"), ErrInvalidCode)
		}
		assert.ErrorIs(t, svc.Verify(ctx, actorRef, "000000"), ErrLocked)

		// Valid codes are refused while locked.
		svc.now = func() time.Time { return base.Add(crypto.TOTPPeriod * time.Second) }
		code, err := crypto.TOTPCodeAt(secret, crypto.TOTPAlgorithmSHA1, crypto.TOTPStep(svc.now()))
		require.NoError(t, err)
		assert.ErrorIs(t, svc.Verify(ctx, actorRef, code), ErrLocked)

		status, err := svc.Status(ctx, actorRef)
		require.NoError(t, err)
		require.NotNil(t, status.LockedUntil)

		t.Run("lockout expires", func(t *testing.T) {
			svc.now = func() time.Time { return base.Add(lockoutDuration + time.Minute) }
			code, err := crypto.TOTPCodeAt(secret, crypto.TOTPAlgorithmSHA1, crypto.TOTPStep(svc.now()))
			require.NoError(t, err)
			assert.NoError(t, svc.Verify(ctx, actorRef, code))
		})

		t.Run("unlock clears the lockout early", func(t *testing.T) {
			for i := 0; i < maxFailures; i++ {
				_ = svc.Verify(ctx, actorRef, "000000")
			}
			assert.ErrorIs(t, svc.Verify(ctx, actorRef, "000000"), ErrLocked)

			require.NoError(t, svc.Unlock(ctx, actorRef))
			assert.ErrorIs(t, svc.Verify(ctx, actorRef, "000000"), ErrInvalidCode)
		})
	})

	t.Run("unknown credential is not enabled", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.ErrorIs(t, svc.Verify(ctx, "user:missing", "000000"), ErrNotEnabled)
	})

	t.Run("disable is idempotent and resets enrollment", func(t *testing.T) {
		svc, repo := newTestService(t)
		enroll(t, svc, actorRef)

		require.NoError(t, svc.Disable(ctx, actorRef))
		require.NoError(t, svc.Disable(ctx, actorRef))
		assert.Empty(t, repo.creds)

		status, err := svc.Status(ctx, actorRef)
		require.NoError(t, err)
		assert.False(t, status.Enabled)
	})
}
