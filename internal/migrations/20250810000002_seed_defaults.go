package migrations

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	casbinbunadapter "github.com/darkauth/darkauth/internal/authz/bunadapter"
	"github.com/darkauth/darkauth/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20250810000002, down_20250810000002)
}

// up_20250810000002 seeds the built-in roles, the default group, the baseline
// permission set, and the admin-realm Casbin policies.
func up_20250810000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding built-in roles...")

	systemRoles := []models.Role{
		{Key: models.RoleKeyMember, Name: "Member", System: true},
		{Key: models.RoleKeyOrgAdmin, Name: "Organization Admin", System: true},
		{Key: models.RoleKeyOtpRequired, Name: "OTP Required", System: true},
	}
	for _, role := range systemRoles {
		role.ID = uuid.Must(uuid.NewV7()).String()
		if _, err := db.NewInsert().Model(&role).On("CONFLICT (key) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed role %s: %w", role.Key, err)
		}
	}
	fmt.Println(" OK")

	fmt.Print(" [up] seeding default group...")
	defaultGroup := models.Group{
		Key:         models.DefaultGroupKey,
		Name:        "Default",
		EnableLogin: true,
	}
	if _, err := db.NewInsert().Model(&defaultGroup).On("CONFLICT (key) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed default group: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] seeding baseline permissions...")
	basePermissions := []models.Permission{
		{Key: "org:read", Description: "Read organization details and membership"},
		{Key: "org:manage_members", Description: "Invite, suspend, and remove organization members"},
		{Key: "org:manage_roles", Description: "Assign roles to organization members"},
	}
	for _, perm := range basePermissions {
		if _, err := db.NewInsert().Model(&perm).On("CONFLICT (key) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed permission %s: %w", perm.Key, err)
		}
	}

	// Attach the org management bundle to the org_admin role, read to member.
	var orgAdmin, member models.Role
	if err := db.NewSelect().Model(&orgAdmin).Where("key = ?", models.RoleKeyOrgAdmin).Scan(ctx); err != nil {
		return fmt.Errorf("load org_admin role: %w", err)
	}
	if err := db.NewSelect().Model(&member).Where("key = ?", models.RoleKeyMember).Scan(ctx); err != nil {
		return fmt.Errorf("load member role: %w", err)
	}
	rolePerms := []models.RolePermission{
		{RoleID: orgAdmin.ID, PermissionKey: "org:read"},
		{RoleID: orgAdmin.ID, PermissionKey: "org:manage_members"},
		{RoleID: orgAdmin.ID, PermissionKey: "org:manage_roles"},
		{RoleID: member.ID, PermissionKey: "org:read"},
	}
	if _, err := db.NewInsert().Model(&rolePerms).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed role permissions: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] seeding admin Casbin policies...")

	// Admin realm model: p = role, resource, action, eft. The read role can
	// list and read everything; the write role additionally mutates.
	defaultPolicies := []casbinbunadapter.CasbinRule{
		{Ptype: "p", V0: "role:read", V1: "*", V2: "read", V3: "allow"},
		{Ptype: "p", V0: "role:read", V1: "*", V2: "list", V3: "allow"},
		{Ptype: "p", V0: "role:write", V1: "*", V2: "*", V3: "allow"},
	}
	if _, err := db.NewInsert().
		Model(&defaultPolicies).
		On("CONFLICT (ptype, v0, v1, v2, v3, v4, v5) DO NOTHING").
		Exec(ctx); err != nil {
		return fmt.Errorf("seed casbin policies: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20250810000002 removes seeded data
func down_20250810000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing seeded Casbin policies...")
	_, err := db.NewDelete().
		Model((*casbinbunadapter.CasbinRule)(nil)).
		Where("v0 IN (?)", bun.In([]string{"role:read", "role:write"})).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove seeded policies: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [down] removing seeded permissions...")
	_, err = db.NewDelete().
		Model((*models.Permission)(nil)).
		Where("key IN (?)", bun.In([]string{"org:read", "org:manage_members", "org:manage_roles"})).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove seeded permissions: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [down] removing default group...")
	_, err = db.NewDelete().
		Model((*models.Group)(nil)).
		Where("key = ?", models.DefaultGroupKey).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove default group: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [down] removing built-in roles...")
	_, err = db.NewDelete().
		Model((*models.Role)(nil)).
		Where("key IN (?)", bun.In([]string{models.RoleKeyMember, models.RoleKeyOrgAdmin, models.RoleKeyOtpRequired})).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove built-in roles: %w", err)
	}
	fmt.Println(" OK")

	return nil
}
