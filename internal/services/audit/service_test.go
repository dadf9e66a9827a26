package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkauth/darkauth/internal/db/models"
)

type memAuditRepo struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (m *memAuditRepo) Insert(_ context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memAuditRepo) List(_ context.Context, page, limit int) ([]models.AuditLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditLog, len(m.entries))
	copy(out, m.entries)
	return out, len(m.entries), nil
}

func TestServiceEmit(t *testing.T) {
	repo := &memAuditRepo{}
	svc := NewService(repo)

	svc.Emit(&models.AuditLog{EventType: EventUserLogin, ActorID: "alice", Success: true})
	svc.Emit(&models.AuditLog{EventType: EventUserLoginFailed, ActorID: "mallory"})
	svc.Close()

	require.Len(t, repo.entries, 2)
	assert.Equal(t, EventUserLogin, repo.entries[0].EventType)
	assert.False(t, repo.entries[0].CreatedAt.IsZero())
	assert.Zero(t, svc.Dropped())
}

func TestServiceListFilter(t *testing.T) {
	repo := &memAuditRepo{}
	svc := NewService(repo)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	now := time.Now()
	seed := []models.AuditLog{
		{EventType: EventUserLogin, ActorKind: "user", ActorID: "alice", Success: true, CreatedAt: now},
		{EventType: EventUserLoginFailed, ActorKind: "user", ActorID: "mallory", Success: false, CreatedAt: now},
		{EventType: EventAdminAction, ActorKind: "admin", ActorID: "root", ResourceType: "clients", Success: true, CreatedAt: now},
	}
	for i := range seed {
		require.NoError(t, repo.Insert(ctx, &seed[i]))
	}

	t.Run("no filter returns everything", func(t *testing.T) {
		entries, total, err := svc.List(ctx, 1, 20, "")
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, entries, 3)
	})

	t.Run("filters by event type", func(t *testing.T) {
		entries, _, err := svc.List(ctx, 1, 20, `EventType == "admin.action"`)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "root", entries[0].ActorID)
	})

	t.Run("filters compose", func(t *testing.T) {
		entries, _, err := svc.List(ctx, 1, 20, `ActorKind == "user" and Success == false`)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "mallory", entries[0].ActorID)
	})

	t.Run("bad expression is an error", func(t *testing.T) {
		_, _, err := svc.List(ctx, 1, 20, `EventType ==`)
		assert.Error(t, err)
	})
}

func TestFilterMatch(t *testing.T) {
	filter, err := NewFilter(`EventType == "user.login"`)
	require.NoError(t, err)

	assert.True(t, filter.Match(&models.AuditLog{EventType: EventUserLogin}))
	assert.False(t, filter.Match(&models.AuditLog{EventType: EventUserLogout}))

	// The compiled evaluator is cached per expression.
	again, err := NewFilter(`EventType == "user.login"`)
	require.NoError(t, err)
	assert.Same(t, filter.evaluator, again.evaluator)
}
