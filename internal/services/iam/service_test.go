package iam

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/darkauth/darkauth/internal/db/bunx"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/migrations"
	"github.com/darkauth/darkauth/internal/repository"
)

type fixture struct {
	svc  Service
	rbac repository.RBACRepository
	db   *bun.DB
	sub  string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	db, err := bunx.NewDB("file::memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	ctx := context.Background()
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	now := time.Now()
	user := &models.User{Sub: "u1", Email: "u1@example.com", Name: "U1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repository.NewBunUserRepository(db).Create(ctx, user))

	rbac := repository.NewBunRBACRepository(db)
	return &fixture{svc: NewService(Deps{RBAC: rbac}, cfg), rbac: rbac, db: db, sub: user.Sub}
}

func (f *fixture) permission(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, f.rbac.CreatePermission(context.Background(), &models.Permission{Key: key, CreatedAt: time.Now()}))
}

func (f *fixture) org(t *testing.T, slug string, forceOtp bool) string {
	t.Helper()
	org := &models.Organization{ID: uuid.Must(uuid.NewV7()).String(), Slug: slug, Name: slug, ForceOtp: forceOtp, CreatedAt: time.Now()}
	require.NoError(t, f.rbac.CreateOrganization(context.Background(), org))
	return org.ID
}

// role returns the role's id, creating it unless a seeded role already
// carries the key.
func (f *fixture) role(t *testing.T, key string) string {
	t.Helper()
	if existing, err := f.rbac.GetRoleByKey(context.Background(), key); err == nil {
		return existing.ID
	}
	role := &models.Role{ID: uuid.Must(uuid.NewV7()).String(), Key: key, Name: key, System: true, CreatedAt: time.Now()}
	require.NoError(t, f.rbac.CreateRole(context.Background(), role))
	return role.ID
}

func (f *fixture) member(t *testing.T, orgID string, roleIDs ...string) string {
	t.Helper()
	ctx := context.Background()
	m := &models.OrganizationMember{
		ID:             uuid.Must(uuid.NewV7()).String(),
		OrganizationID: orgID,
		UserSub:        f.sub,
		Status:         models.MemberStatusActive,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, f.rbac.AddMember(ctx, m))
	if len(roleIDs) > 0 {
		require.NoError(t, f.rbac.SetMemberRoles(ctx, m.ID, roleIDs))
	}
	return m.ID
}

func TestEffectivePermissions(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	for _, key := range []string{"a:read", "b:read", "c:read"} {
		f.permission(t, key)
	}

	// Direct path.
	require.NoError(t, f.rbac.SetUserPermissions(ctx, f.sub, []string{"c:read"}))

	// Role path via an active membership.
	orgID := f.org(t, "acme", false)
	roleID := f.role(t, "analyst")
	require.NoError(t, f.rbac.SetRolePermissions(ctx, roleID, []string{"a:read", "b:read"}))
	f.member(t, orgID, roleID)

	// Group path, overlapping with the role grant.
	require.NoError(t, f.rbac.CreateGroup(ctx, &models.Group{Key: "readers", Name: "Readers", EnableLogin: true, CreatedAt: time.Now()}))
	require.NoError(t, f.rbac.SetGroupPermissions(ctx, "readers", []string{"b:read"}))
	require.NoError(t, f.rbac.AddUserToGroup(ctx, f.sub, "readers"))

	perms, err := f.svc.EffectivePermissions(ctx, f.sub, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:read", "b:read", "c:read"}, perms)

	groups, err := f.svc.EffectiveGroups(ctx, f.sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"readers"}, groups)

	t.Run("unknown user resolves empty", func(t *testing.T) {
		perms, err := f.svc.EffectivePermissions(ctx, "nobody", nil)
		require.NoError(t, err)
		assert.Empty(t, perms)
	})
}

func TestCanLogin(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	t.Run("no groups means no login", func(t *testing.T) {
		ok, err := f.svc.CanLogin(ctx, f.sub)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("a login-enabled group admits", func(t *testing.T) {
		require.NoError(t, f.rbac.CreateGroup(ctx, &models.Group{Key: "staff", Name: "Staff", EnableLogin: true, CreatedAt: time.Now()}))
		require.NoError(t, f.rbac.AddUserToGroup(ctx, f.sub, "staff"))

		ok, err := f.svc.CanLogin(ctx, f.sub)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("login-disabled groups do not", func(t *testing.T) {
		require.NoError(t, f.rbac.RemoveUserFromGroup(ctx, f.sub, "staff"))
		require.NoError(t, f.rbac.CreateGroup(ctx, &models.Group{Key: "suspended", Name: "Suspended", EnableLogin: false, CreatedAt: time.Now()}))
		require.NoError(t, f.rbac.AddUserToGroup(ctx, f.sub, "suspended"))

		ok, err := f.svc.CanLogin(ctx, f.sub)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestOTPRequired(t *testing.T) {
	ctx := context.Background()

	t.Run("global flag", func(t *testing.T) {
		f := newFixture(t, Config{OTPRequireForUsers: true})
		required, err := f.svc.OTPRequired(ctx, f.sub)
		require.NoError(t, err)
		assert.True(t, required)
	})

	t.Run("group require_otp", func(t *testing.T) {
		f := newFixture(t, Config{})
		require.NoError(t, f.rbac.CreateGroup(ctx, &models.Group{Key: "secure", Name: "Secure", EnableLogin: true, RequireOtp: true, CreatedAt: time.Now()}))
		require.NoError(t, f.rbac.AddUserToGroup(ctx, f.sub, "secure"))

		required, err := f.svc.OTPRequired(ctx, f.sub)
		require.NoError(t, err)
		assert.True(t, required)
	})

	t.Run("organization force_otp", func(t *testing.T) {
		f := newFixture(t, Config{})
		orgID := f.org(t, "strict", true)
		f.member(t, orgID)

		required, err := f.svc.OTPRequired(ctx, f.sub)
		require.NoError(t, err)
		assert.True(t, required)
	})

	t.Run("otp_required role", func(t *testing.T) {
		f := newFixture(t, Config{})
		orgID := f.org(t, "acme", false)
		roleID := f.role(t, models.RoleKeyOtpRequired)
		f.member(t, orgID, roleID)

		required, err := f.svc.OTPRequired(ctx, f.sub)
		require.NoError(t, err)
		assert.True(t, required)
	})

	t.Run("no policy means no obligation", func(t *testing.T) {
		f := newFixture(t, Config{})
		required, err := f.svc.OTPRequired(ctx, f.sub)
		require.NoError(t, err)
		assert.False(t, required)
	})
}
