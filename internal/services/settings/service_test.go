package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
)

type memSettingsRepo struct {
	values map[string]models.JSONMap
	gets   int
}

func newMemSettingsRepo() *memSettingsRepo {
	return &memSettingsRepo{values: make(map[string]models.JSONMap)}
}

func (m *memSettingsRepo) Get(_ context.Context, key string) (*models.Setting, error) {
	m.gets++
	value, ok := m.values[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &models.Setting{Key: key, Value: value, UpdatedAt: time.Now()}, nil
}

func (m *memSettingsRepo) Put(_ context.Context, setting *models.Setting) error {
	m.values[setting.Key] = setting.Value
	return nil
}

func (m *memSettingsRepo) List(_ context.Context) ([]models.Setting, error) {
	out := make([]models.Setting, 0, len(m.values))
	for key, value := range m.values {
		out = append(out, models.Setting{Key: key, Value: value})
	}
	return out, nil
}

func TestServiceSet(t *testing.T) {
	repo := newMemSettingsRepo()
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("valid value is persisted", func(t *testing.T) {
		err := svc.Set(ctx, KeyOTPPolicy, models.JSONMap{
			"require_for_users":  true,
			"require_for_admins": false,
		})
		require.NoError(t, err)

		var policy OTPPolicy
		require.NoError(t, svc.GetInto(ctx, KeyOTPPolicy, &policy))
		assert.True(t, policy.RequireForUsers)
		assert.False(t, policy.RequireForAdmins)
	})

	t.Run("wrong type is rejected", func(t *testing.T) {
		err := svc.Set(ctx, KeyOTPPolicy, models.JSONMap{"require_for_users": "yes"})
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("unknown properties are rejected", func(t *testing.T) {
		err := svc.Set(ctx, KeyOTPPolicy, models.JSONMap{"require_everyone": true})
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("unregistered key is rejected", func(t *testing.T) {
		err := svc.Set(ctx, "no.such.key", models.JSONMap{"x": true})
		assert.ErrorIs(t, err, ErrUnknownKey)
	})

	t.Run("internal keys bypass the registry", func(t *testing.T) {
		require.NoError(t, svc.PutInternal(ctx, KeyInstall, models.JSONMap{"completed": true}))

		value, err := svc.Get(ctx, KeyInstall)
		require.NoError(t, err)
		assert.Equal(t, true, value["completed"])
	})
}

func TestServiceCache(t *testing.T) {
	repo := newMemSettingsRepo()
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, KeyUISettings, models.JSONMap{"product_name": "DarkAuth"}))

	_, err = svc.Get(ctx, KeyUISettings)
	require.NoError(t, err)
	_, err = svc.Get(ctx, KeyUISettings)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.gets)

	// A write invalidates the cached entry.
	require.NoError(t, svc.Set(ctx, KeyUISettings, models.JSONMap{"product_name": "Renamed"}))
	value, err := svc.Get(ctx, KeyUISettings)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", value["product_name"])
	assert.Equal(t, 2, repo.gets)
}

func TestServiceEditable(t *testing.T) {
	svc, err := NewService(newMemSettingsRepo())
	require.NoError(t, err)

	assert.True(t, svc.Editable(KeyOTPPolicy))
	assert.True(t, svc.Editable(KeyUISettings))
	assert.True(t, svc.Editable(KeyTokenLifetime))
	assert.False(t, svc.Editable(KeyInstall))
	assert.False(t, svc.Editable(KeyIssuer))
}

func TestServiceGetMissing(t *testing.T) {
	svc, err := NewService(newMemSettingsRepo())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), KeyUISettings)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
