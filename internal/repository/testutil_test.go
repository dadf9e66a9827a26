package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/darkauth/darkauth/internal/db/bunx"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/migrations"
)

// setupTestDB opens an in-memory SQLite database and applies the full schema.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := bunx.NewDB("file::memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	ctx := context.Background()
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	return db
}

// createTestUser inserts a user row and returns its sub.
func createTestUser(t *testing.T, db *bun.DB, email string) string {
	t.Helper()

	now := time.Now()
	user := &models.User{
		Sub:       uuid.Must(uuid.NewV7()).String(),
		Email:     email,
		Name:      "Test User",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, NewBunUserRepository(db).Create(context.Background(), user))
	return user.Sub
}

// createTestClient inserts a public client row.
func createTestClient(t *testing.T, db *bun.DB, clientID string) {
	t.Helper()

	now := time.Now()
	client := &models.Client{
		ClientID:                clientID,
		Name:                    "Test Client",
		Type:                    models.ClientTypePublic,
		TokenEndpointAuthMethod: models.AuthMethodNone,
		RequirePKCE:             true,
		RedirectURIs:            []string{"https://app.example.com/cb"},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		Scopes:                  []string{"openid", "profile"},
		ZKDelivery:              models.ZKDeliveryNone,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	require.NoError(t, NewBunClientRepository(db).Create(context.Background(), client))
}
