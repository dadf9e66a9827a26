package install

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/darkauth/darkauth/internal/repository"
)

// gateAdmins stubs the only method checkGate needs.
type gateAdmins struct {
	repository.AdminRepository
	count int
}

func (g *gateAdmins) Count(context.Context) (int, error) {
	return g.count, nil
}

func newGateService(token string, adminCount int) *Service {
	return &Service{
		admins:    &gateAdmins{count: adminCount},
		token:     token,
		createdAt: time.Now(),
		pending:   make(map[string]pendingInstall),
		now:       time.Now,
	}
}

func TestCheckGate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token passes", func(t *testing.T) {
		svc := newGateService("install-token", 0)
		assert.NoError(t, svc.checkGate(ctx, "install-token"))
	})

	t.Run("wrong token is forbidden", func(t *testing.T) {
		svc := newGateService("install-token", 0)
		assert.ErrorIs(t, svc.checkGate(ctx, "guess"), ErrTokenForbidden)
	})

	t.Run("unarmed gate is forbidden", func(t *testing.T) {
		svc := newGateService("", 0)
		assert.ErrorIs(t, svc.checkGate(ctx, ""), ErrTokenForbidden)
	})

	t.Run("existing admin closes the gate", func(t *testing.T) {
		svc := newGateService("install-token", 1)
		assert.ErrorIs(t, svc.checkGate(ctx, "install-token"), ErrAlreadyInitialized)
	})

	t.Run("token expires after ten minutes", func(t *testing.T) {
		svc := newGateService("install-token", 0)
		svc.now = func() time.Time { return svc.createdAt.Add(tokenMaxAge + time.Second) }
		assert.ErrorIs(t, svc.checkGate(ctx, "install-token"), ErrTokenExpired)
	})

	t.Run("consumed token is forbidden", func(t *testing.T) {
		svc := newGateService("install-token", 0)
		svc.consumed = true
		assert.ErrorIs(t, svc.checkGate(ctx, "install-token"), ErrTokenForbidden)
	})
}

func TestInstalled(t *testing.T) {
	ctx := context.Background()

	svc := newGateService("t", 0)
	installed, err := svc.Installed(ctx)
	assert.NoError(t, err)
	assert.False(t, installed)

	svc = newGateService("t", 2)
	installed, err = svc.Installed(ctx)
	assert.NoError(t, err)
	assert.True(t, installed)
}
