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

func createPermissions(t *testing.T, repo *BunRBACRepository, keys ...string) {
	t.Helper()
	for _, key := range keys {
		require.NoError(t, repo.CreatePermission(context.Background(), &models.Permission{
			Key:       key,
			CreatedAt: time.Now(),
		}))
	}
}

func createTestOrg(t *testing.T, repo *BunRBACRepository, slug string) string {
	t.Helper()
	org := &models.Organization{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Slug:      slug,
		Name:      slug,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateOrganization(context.Background(), org))
	return org.ID
}

func createTestRole(t *testing.T, repo *BunRBACRepository, key string, system bool) string {
	t.Helper()
	role := &models.Role{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Key:       key,
		Name:      key,
		System:    system,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateRole(context.Background(), role))
	return role.ID
}

func addTestMember(t *testing.T, repo *BunRBACRepository, orgID, sub, status string) string {
	t.Helper()
	m := &models.OrganizationMember{
		ID:             uuid.Must(uuid.NewV7()).String(),
		OrganizationID: orgID,
		UserSub:        sub,
		Status:         status,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, repo.AddMember(context.Background(), m))
	return m.ID
}

func TestBunRBACRepository_DirectPermissions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunRBACRepository(db)
	ctx := context.Background()

	sub := createTestUser(t, db, "direct@example.com")
	createPermissions(t, repo, "notes:read", "notes:write", "files:read")

	require.NoError(t, repo.SetUserPermissions(ctx, sub, []string{"notes:read", "notes:write"}))

	keys, err := repo.DirectPermissions(ctx, sub)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"notes:read", "notes:write"}, keys)

	t.Run("set replaces the previous assignment", func(t *testing.T) {
		require.NoError(t, repo.SetUserPermissions(ctx, sub, []string{"files:read"}))

		keys, err := repo.DirectPermissions(ctx, sub)
		require.NoError(t, err)
		assert.Equal(t, []string{"files:read"}, keys)
	})

	t.Run("empty set clears everything", func(t *testing.T) {
		require.NoError(t, repo.SetUserPermissions(ctx, sub, nil))

		keys, err := repo.DirectPermissions(ctx, sub)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestBunRBACRepository_Groups(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunRBACRepository(db)
	ctx := context.Background()

	sub := createTestUser(t, db, "groups@example.com")
	createPermissions(t, repo, "notes:read", "notes:write")

	group := &models.Group{Key: "writers", Name: "Writers", EnableLogin: true, CreatedAt: time.Now()}
	require.NoError(t, repo.CreateGroup(ctx, group))
	require.NoError(t, repo.SetGroupPermissions(ctx, "writers", []string{"notes:read", "notes:write"}))
	require.NoError(t, repo.AddUserToGroup(ctx, sub, "writers"))

	t.Run("membership grants the group's permissions", func(t *testing.T) {
		keys, err := repo.GroupPermissionsForUser(ctx, sub)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"notes:read", "notes:write"}, keys)

		groupKeys, err := repo.GroupKeysForUser(ctx, sub)
		require.NoError(t, err)
		assert.Equal(t, []string{"writers"}, groupKeys)
	})

	t.Run("adding a member twice is idempotent", func(t *testing.T) {
		require.NoError(t, repo.AddUserToGroup(ctx, sub, "writers"))

		groupKeys, err := repo.GroupKeysForUser(ctx, sub)
		require.NoError(t, err)
		assert.Len(t, groupKeys, 1)
	})

	t.Run("removal revokes", func(t *testing.T) {
		require.NoError(t, repo.RemoveUserFromGroup(ctx, sub, "writers"))

		keys, err := repo.GroupPermissionsForUser(ctx, sub)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("duplicate group key conflicts", func(t *testing.T) {
		err := repo.CreateGroup(ctx, &models.Group{Key: "writers", Name: "Again", CreatedAt: time.Now()})
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestBunRBACRepository_RolesThroughMembership(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunRBACRepository(db)
	ctx := context.Background()

	sub := createTestUser(t, db, "roles@example.com")
	createPermissions(t, repo, "proj:read", "proj:admin")

	orgA := createTestOrg(t, repo, "acme")
	orgB := createTestOrg(t, repo, "globex")

	viewerRole := createTestRole(t, repo, "viewer", true)
	adminRole := createTestRole(t, repo, "auditor", true)
	require.NoError(t, repo.SetRolePermissions(ctx, viewerRole, []string{"proj:read"}))
	require.NoError(t, repo.SetRolePermissions(ctx, adminRole, []string{"proj:read", "proj:admin"}))

	memberA := addTestMember(t, repo, orgA, sub, models.MemberStatusActive)
	memberB := addTestMember(t, repo, orgB, sub, models.MemberStatusActive)
	require.NoError(t, repo.SetMemberRoles(ctx, memberA, []string{viewerRole}))
	require.NoError(t, repo.SetMemberRoles(ctx, memberB, []string{adminRole}))

	t.Run("permissions aggregate across organizations", func(t *testing.T) {
		keys, err := repo.RolePermissionsForUser(ctx, sub, nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"proj:read", "proj:admin"}, keys)
	})

	t.Run("organization scope narrows the grant", func(t *testing.T) {
		keys, err := repo.RolePermissionsForUser(ctx, sub, &orgA)
		require.NoError(t, err)
		assert.Equal(t, []string{"proj:read"}, keys)

		roleKeys, err := repo.RoleKeysForUser(ctx, sub, &orgA)
		require.NoError(t, err)
		assert.Equal(t, []string{"viewer"}, roleKeys)
	})

	t.Run("suspended membership contributes nothing", func(t *testing.T) {
		require.NoError(t, repo.UpdateMemberStatus(ctx, memberB, models.MemberStatusSuspended))

		keys, err := repo.RolePermissionsForUser(ctx, sub, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"proj:read"}, keys)

		orgs, err := repo.ActiveOrganizationsForUser(ctx, sub)
		require.NoError(t, err)
		require.Len(t, orgs, 1)
		assert.Equal(t, "acme", orgs[0].Slug)
	})

	t.Run("removing the member drops the roles", func(t *testing.T) {
		require.NoError(t, repo.RemoveMember(ctx, memberA))

		keys, err := repo.RolePermissionsForUser(ctx, sub, nil)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestBunRBACRepository_Organizations(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunRBACRepository(db)
	ctx := context.Background()

	id := createTestOrg(t, repo, "acme")

	t.Run("slug survives updates", func(t *testing.T) {
		org, err := repo.GetOrganization(ctx, id)
		require.NoError(t, err)
		org.Slug = "renamed"
		org.Name = "Acme Corp"
		org.ForceOtp = true
		require.NoError(t, repo.UpdateOrganization(ctx, org))

		got, err := repo.GetOrganizationBySlug(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Acme Corp", got.Name)
		assert.True(t, got.ForceOtp)
	})

	t.Run("duplicate slug conflicts", func(t *testing.T) {
		err := repo.CreateOrganization(ctx, &models.Organization{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Slug:      "acme",
			Name:      "Other",
			CreatedAt: time.Now(),
		})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("delete cascades memberships", func(t *testing.T) {
		sub := createTestUser(t, db, "orgdel@example.com")
		addTestMember(t, repo, id, sub, models.MemberStatusActive)

		require.NoError(t, repo.DeleteOrganization(ctx, id))
		assert.ErrorIs(t, repo.DeleteOrganization(ctx, id), ErrNotFound)

		count, err := db.NewSelect().
			Model((*models.OrganizationMember)(nil)).
			Where("organization_id = ?", id).
			Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}
