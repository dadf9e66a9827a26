package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
)

// memTokenRepo stores email tokens in a map keyed by hash. The OTP credential
// methods are stubs; this package never touches them.
type memTokenRepo struct {
	tokens map[string]*models.EmailVerificationToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[string]*models.EmailVerificationToken)}
}

func (m *memTokenRepo) Upsert(context.Context, *models.OTPCredential) error { return nil }
func (m *memTokenRepo) Get(context.Context, string) (*models.OTPCredential, error) {
	return nil, repository.ErrNotFound
}
func (m *memTokenRepo) Update(context.Context, *models.OTPCredential) error { return nil }
func (m *memTokenRepo) Delete(context.Context, string) error                { return nil }

func (m *memTokenRepo) CreateEmailToken(_ context.Context, token *models.EmailVerificationToken) error {
	now := time.Now()
	for _, existing := range m.tokens {
		if existing.UserSub == token.UserSub && existing.Purpose == token.Purpose && existing.ConsumedAt == nil {
			existing.ConsumedAt = &now
		}
	}
	copied := *token
	m.tokens[token.TokenHash] = &copied
	return nil
}

func (m *memTokenRepo) GetEmailToken(_ context.Context, tokenHash string, now time.Time) (*models.EmailVerificationToken, error) {
	token, ok := m.tokens[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if token.ConsumedAt != nil || !token.ExpiresAt.After(now) {
		return nil, repository.ErrAlreadyConsumed
	}
	copied := *token
	return &copied, nil
}

func (m *memTokenRepo) ConsumeEmailToken(_ context.Context, tokenHash string, now time.Time) (*models.EmailVerificationToken, error) {
	token, ok := m.tokens[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if token.ConsumedAt != nil || !token.ExpiresAt.After(now) {
		return nil, repository.ErrAlreadyConsumed
	}
	token.ConsumedAt = &now
	copied := *token
	return &copied, nil
}

func (m *memTokenRepo) InvalidateEmailTokens(_ context.Context, userSub, purpose string) error {
	now := time.Now()
	for _, token := range m.tokens {
		if token.UserSub == userSub && token.Purpose == purpose && token.ConsumedAt == nil {
			token.ConsumedAt = &now
		}
	}
	return nil
}

// captureSender records delivered mail instead of sending it.
type captureSender struct {
	to      []string
	subject []string
	body    []string
}

func (c *captureSender) Send(to, subject, body string) error {
	c.to = append(c.to, to)
	c.subject = append(c.subject, subject)
	c.body = append(c.body, body)
	return nil
}

func newTestService() (*Service, *memTokenRepo, *captureSender) {
	repo := newMemTokenRepo()
	sender := &captureSender{}
	svc := &Service{repo: repo, sender: sender, uiOrigin: "https://auth.example.com", now: time.Now}
	return svc, repo, sender
}

// tokenFromMail pulls the plaintext token out of a mailed link.
func tokenFromMail(t *testing.T, body string) string {
	t.Helper()
	_, after, ok := strings.Cut(body, "token=")
	require.True(t, ok, "mail body carries no token link")
	token, _, _ := strings.Cut(after, "\r\n")
	return token
}

func TestVerificationFlow(t *testing.T) {
	svc, _, sender := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SendVerification(ctx, "user-1", "alice@example.com"))
	require.Len(t, sender.to, 1)
	assert.Equal(t, "alice@example.com", sender.to[0])
	assert.Contains(t, sender.body[0], "/verify-email?token=")

	token := tokenFromMail(t, sender.body[0])
	sub, address, err := svc.ConfirmVerification(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
	assert.Equal(t, "alice@example.com", address)

	t.Run("token is single use", func(t *testing.T) {
		_, _, err := svc.ConfirmVerification(ctx, token)
		assert.ErrorIs(t, err, repository.ErrAlreadyConsumed)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, _, err := svc.ConfirmVerification(ctx, "nope")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestRecoveryFlow(t *testing.T) {
	svc, _, sender := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SendRecovery(ctx, "user-1", "alice@example.com"))
	require.Len(t, sender.body, 1)
	assert.Contains(t, sender.body[0], "/recover?token=")
	token := tokenFromMail(t, sender.body[0])

	t.Run("peek resolves the subject without spending the token", func(t *testing.T) {
		sub, err := svc.PeekRecovery(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", sub)

		// A second peek still works.
		sub, err = svc.PeekRecovery(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", sub)
	})

	t.Run("consume spends it exactly once", func(t *testing.T) {
		sub, err := svc.ConsumeRecovery(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", sub)

		_, err = svc.ConsumeRecovery(ctx, token)
		assert.ErrorIs(t, err, repository.ErrAlreadyConsumed)

		_, err = svc.PeekRecovery(ctx, token)
		assert.ErrorIs(t, err, repository.ErrAlreadyConsumed)
	})

	t.Run("tokens of another purpose never satisfy recovery", func(t *testing.T) {
		require.NoError(t, svc.SendVerification(ctx, "user-1", "alice@example.com"))
		verifyToken := tokenFromMail(t, sender.body[len(sender.body)-1])

		_, err := svc.PeekRecovery(ctx, verifyToken)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("a new recovery mail invalidates the previous token", func(t *testing.T) {
		require.NoError(t, svc.SendRecovery(ctx, "user-2", "bob@example.com"))
		first := tokenFromMail(t, sender.body[len(sender.body)-1])
		require.NoError(t, svc.SendRecovery(ctx, "user-2", "bob@example.com"))
		second := tokenFromMail(t, sender.body[len(sender.body)-1])

		_, err := svc.PeekRecovery(ctx, first)
		assert.ErrorIs(t, err, repository.ErrAlreadyConsumed)
		_, err = svc.PeekRecovery(ctx, second)
		assert.NoError(t, err)
	})
}

func TestEmailChangeFlow(t *testing.T) {
	svc, _, sender := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SendEmailChange(ctx, "user-1", "new@example.com"))
	require.Len(t, sender.to, 1)

	// The link goes to the new mailbox, proving control of it.
	assert.Equal(t, "new@example.com", sender.to[0])
	assert.Contains(t, sender.body[0], "/confirm-email-change?token=")

	token := tokenFromMail(t, sender.body[0])
	sub, address, err := svc.ConfirmEmailChange(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
	assert.Equal(t, "new@example.com", address)

	_, _, err = svc.ConfirmEmailChange(ctx, token)
	assert.ErrorIs(t, err, repository.ErrAlreadyConsumed)
}

func TestTokenExpiry(t *testing.T) {
	svc, _, sender := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SendRecovery(ctx, "user-1", "alice@example.com"))
	token := tokenFromMail(t, sender.body[0])

	svc.now = func() time.Time { return time.Now().Add(tokenTTL + time.Minute) }
	defer func() { svc.now = time.Now }()

	_, err := svc.PeekRecovery(ctx, token)
	assert.ErrorIs(t, err, repository.ErrAlreadyConsumed)
	_, err = svc.ConsumeRecovery(ctx, token)
	assert.ErrorIs(t, err, repository.ErrAlreadyConsumed)
}
