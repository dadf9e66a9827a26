package jwks

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/bunx"
	"github.com/darkauth/darkauth/internal/migrations"
	"github.com/darkauth/darkauth/internal/repository"
)

func newTestManager(t *testing.T, alg string) *Manager {
	t.Helper()

	db, err := bunx.NewDB("file::memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	ctx := context.Background()
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	kek, err := crypto.NewKEK("test-passphrase-0123456789", "https://auth.example.com")
	require.NoError(t, err)

	m, err := NewManager(repository.NewBunJWKSRepository(db), kek, alg)
	require.NoError(t, err)
	return m
}

// keyfuncFor resolves tokens against the manager's published JWKS by kid.
func keyfuncFor(t *testing.T, m *Manager) jwt.Keyfunc {
	t.Helper()
	return func(token *jwt.Token) (any, error) {
		set, err := m.PublicJWKS(context.Background())
		if err != nil {
			return nil, err
		}
		kid, _ := token.Header["kid"].(string)
		for _, key := range set.Keys {
			if key.KeyID == kid {
				return key.Key, nil
			}
		}
		return nil, jwt.ErrTokenUnverifiable
	}
}

func TestManagerSignAndVerify(t *testing.T) {
	m := newTestManager(t, AlgEdDSA)
	ctx := context.Background()

	require.NoError(t, m.EnsureKey(ctx))
	require.NotEmpty(t, m.ActiveKid())

	now := time.Now()
	token, err := m.SignClaims(map[string]any{
		"iss": "https://auth.example.com",
		"sub": "user-1",
		"exp": now.Add(5 * time.Minute).Unix(),
		"iat": now.Unix(),
	})
	require.NoError(t, err)

	parsed, err := jwt.Parse(token, keyfuncFor(t, m), jwt.WithValidMethods([]string{"EdDSA"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, m.ActiveKid(), parsed.Header["kid"])
	assert.Equal(t, "JWT", parsed.Header["typ"])
}

func TestManagerEnsureKeyIsIdempotent(t *testing.T) {
	m := newTestManager(t, AlgEdDSA)
	ctx := context.Background()

	require.NoError(t, m.EnsureKey(ctx))
	kid := m.ActiveKid()
	require.NoError(t, m.EnsureKey(ctx))
	assert.Equal(t, kid, m.ActiveKid())

	set, err := m.PublicJWKS(ctx)
	require.NoError(t, err)
	assert.Len(t, set.Keys, 1)
}

func TestManagerRotate(t *testing.T) {
	m := newTestManager(t, AlgEdDSA)
	ctx := context.Background()

	require.NoError(t, m.EnsureKey(ctx))
	oldKid := m.ActiveKid()

	now := time.Now()
	oldToken, err := m.SignClaims(map[string]any{
		"sub": "user-1",
		"exp": now.Add(5 * time.Minute).Unix(),
	})
	require.NoError(t, err)

	require.NoError(t, m.Rotate(ctx))
	assert.NotEqual(t, oldKid, m.ActiveKid())

	// New tokens sign with the new kid.
	newToken, err := m.SignClaims(map[string]any{
		"sub": "user-1",
		"exp": now.Add(5 * time.Minute).Unix(),
	})
	require.NoError(t, err)

	// Both generations verify: the retired public key stays published.
	for _, token := range []string{oldToken, newToken} {
		parsed, err := jwt.Parse(token, keyfuncFor(t, m), jwt.WithValidMethods([]string{"EdDSA"}))
		require.NoError(t, err)
		assert.True(t, parsed.Valid)
	}

	set, err := m.PublicJWKS(ctx)
	require.NoError(t, err)
	assert.Len(t, set.Keys, 2)
}

func TestManagerES256(t *testing.T) {
	m := newTestManager(t, AlgES256)
	ctx := context.Background()

	require.NoError(t, m.EnsureKey(ctx))
	token, err := m.SignClaims(map[string]any{
		"sub": "user-1",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	require.NoError(t, err)

	parsed, err := jwt.Parse(token, keyfuncFor(t, m), jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
}

func TestManagerUnsupportedAlgorithm(t *testing.T) {
	_, err := NewManager(nil, nil, "RS256")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}
