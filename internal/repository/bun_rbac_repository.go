package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/darkauth/darkauth/internal/db/models"
)

// BunRBACRepository implements RBACRepository using Bun ORM
type BunRBACRepository struct {
	db *bun.DB
}

// NewBunRBACRepository creates a new Bun-based RBAC repository
func NewBunRBACRepository(db *bun.DB) *BunRBACRepository {
	return &BunRBACRepository{db: db}
}

// DirectPermissions returns permissions assigned straight to the user.
func (r *BunRBACRepository) DirectPermissions(ctx context.Context, userSub string) ([]string, error) {
	var keys []string
	err := r.db.NewSelect().
		Model((*models.UserPermission)(nil)).
		Column("permission_key").
		Where("user_sub = ?", userSub).
		Scan(ctx, &keys)
	if err != nil {
		return nil, fmt.Errorf("direct permissions: %w", err)
	}
	return keys, nil
}

// RolePermissionsForUser returns permissions granted through roles on the
// user's active organization memberships. With orgID set, only that
// organization's memberships contribute.
func (r *BunRBACRepository) RolePermissionsForUser(ctx context.Context, userSub string, orgID *string) ([]string, error) {
	var keys []string
	q := r.db.NewSelect().
		Model((*models.RolePermission)(nil)).
		ColumnExpr("DISTINCT rp.permission_key").
		Join("JOIN organization_member_roles AS omr ON omr.role_id = rp.role_id").
		Join("JOIN organization_members AS om ON om.id = omr.member_id").
		Where("om.user_sub = ?", userSub).
		Where("om.status = ?", models.MemberStatusActive)
	if orgID != nil {
		q = q.Where("om.organization_id = ?", *orgID)
	}
	if err := q.Scan(ctx, &keys); err != nil {
		return nil, fmt.Errorf("role permissions: %w", err)
	}
	return keys, nil
}

// GroupPermissionsForUser returns permissions granted through group
// membership.
func (r *BunRBACRepository) GroupPermissionsForUser(ctx context.Context, userSub string) ([]string, error) {
	var keys []string
	err := r.db.NewSelect().
		Model((*models.GroupPermission)(nil)).
		ColumnExpr("DISTINCT gp.permission_key").
		Join("JOIN user_groups AS ug ON ug.group_key = gp.group_key").
		Where("ug.user_sub = ?", userSub).
		Scan(ctx, &keys)
	if err != nil {
		return nil, fmt.Errorf("group permissions: %w", err)
	}
	return keys, nil
}

// GroupKeysForUser returns the keys of the groups the user belongs to.
func (r *BunRBACRepository) GroupKeysForUser(ctx context.Context, userSub string) ([]string, error) {
	var keys []string
	err := r.db.NewSelect().
		Model((*models.UserGroup)(nil)).
		Column("group_key").
		Where("user_sub = ?", userSub).
		Scan(ctx, &keys)
	if err != nil {
		return nil, fmt.Errorf("group keys: %w", err)
	}
	return keys, nil
}

// RoleKeysForUser returns the keys of roles held through active memberships.
func (r *BunRBACRepository) RoleKeysForUser(ctx context.Context, userSub string, orgID *string) ([]string, error) {
	var keys []string
	q := r.db.NewSelect().
		Model((*models.Role)(nil)).
		ColumnExpr("DISTINCT r.key").
		Join("JOIN organization_member_roles AS omr ON omr.role_id = r.id").
		Join("JOIN organization_members AS om ON om.id = omr.member_id").
		Where("om.user_sub = ?", userSub).
		Where("om.status = ?", models.MemberStatusActive)
	if orgID != nil {
		q = q.Where("om.organization_id = ?", *orgID)
	}
	if err := q.Scan(ctx, &keys); err != nil {
		return nil, fmt.Errorf("role keys: %w", err)
	}
	return keys, nil
}

// ActiveOrganizationsForUser returns organizations where the user's
// membership is active.
func (r *BunRBACRepository) ActiveOrganizationsForUser(ctx context.Context, userSub string) ([]models.Organization, error) {
	var orgs []models.Organization
	err := r.db.NewSelect().
		Model(&orgs).
		Join("JOIN organization_members AS om ON om.organization_id = o.id").
		Where("om.user_sub = ?", userSub).
		Where("om.status = ?", models.MemberStatusActive).
		Order("o.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("active organizations: %w", err)
	}
	return orgs, nil
}

// GroupsForUser returns the full group rows the user belongs to, needed by
// the login-eligibility and OTP-policy checks.
func (r *BunRBACRepository) GroupsForUser(ctx context.Context, userSub string) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.NewSelect().
		Model(&groups).
		Join("JOIN user_groups AS ug ON ug.group_key = g.key").
		Where("ug.user_sub = ?", userSub).
		Order("g.key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("groups for user: %w", err)
	}
	return groups, nil
}

// CreatePermission inserts a permission
func (r *BunRBACRepository) CreatePermission(ctx context.Context, p *models.Permission) error {
	_, err := r.db.NewInsert().
		Model(p).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("permission %s: %w", p.Key, ErrConflict)
		}
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

// GetPermission retrieves a permission by key
func (r *BunRBACRepository) GetPermission(ctx context.Context, key string) (*models.Permission, error) {
	p := new(models.Permission)
	err := r.db.NewSelect().
		Model(p).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("permission %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return p, nil
}

// DeletePermission removes a permission; assignments cascade.
func (r *BunRBACRepository) DeletePermission(ctx context.Context, key string) error {
	res, err := r.db.NewDelete().
		Model((*models.Permission)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("permission %s: %w", key, ErrNotFound)
	}
	return nil
}

// ListPermissions retrieves a page of permissions
func (r *BunRBACRepository) ListPermissions(ctx context.Context, page, limit int) ([]models.Permission, int, error) {
	var perms []models.Permission
	total, err := r.db.NewSelect().
		Model(&perms).
		Order("key ASC").
		Limit(limit).
		Offset(pageOffset(page, limit)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list permissions: %w", err)
	}
	return perms, total, nil
}

// SetUserPermissions replaces the user's direct permission set.
func (r *BunRBACRepository) SetUserPermissions(ctx context.Context, userSub string, keys []string) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.UserPermission)(nil)).
			Where("user_sub = ?", userSub).
			Exec(ctx); err != nil {
			return fmt.Errorf("clear user permissions: %w", err)
		}
		if len(keys) == 0 {
			return nil
		}
		rows := make([]models.UserPermission, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, models.UserPermission{UserSub: userSub, PermissionKey: key})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("set user permissions: %w", err)
		}
		return nil
	})
}

// CreateGroup inserts a group
func (r *BunRBACRepository) CreateGroup(ctx context.Context, g *models.Group) error {
	_, err := r.db.NewInsert().
		Model(g).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("group %s: %w", g.Key, ErrConflict)
		}
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by key
func (r *BunRBACRepository) GetGroup(ctx context.Context, key string) (*models.Group, error) {
	g := new(models.Group)
	err := r.db.NewSelect().
		Model(g).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("group %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

// UpdateGroup persists changes to a group
func (r *BunRBACRepository) UpdateGroup(ctx context.Context, g *models.Group) error {
	res, err := r.db.NewUpdate().
		Model(g).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("group %s: %w", g.Key, ErrNotFound)
	}
	return nil
}

// DeleteGroup removes a group; the caller guards the default group.
func (r *BunRBACRepository) DeleteGroup(ctx context.Context, key string) error {
	res, err := r.db.NewDelete().
		Model((*models.Group)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("group %s: %w", key, ErrNotFound)
	}
	return nil
}

// ListGroups retrieves a page of groups
func (r *BunRBACRepository) ListGroups(ctx context.Context, page, limit int) ([]models.Group, int, error) {
	var groups []models.Group
	total, err := r.db.NewSelect().
		Model(&groups).
		Order("key ASC").
		Limit(limit).
		Offset(pageOffset(page, limit)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list groups: %w", err)
	}
	return groups, total, nil
}

// SetGroupPermissions replaces the group's permission set.
func (r *BunRBACRepository) SetGroupPermissions(ctx context.Context, groupKey string, keys []string) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.GroupPermission)(nil)).
			Where("group_key = ?", groupKey).
			Exec(ctx); err != nil {
			return fmt.Errorf("clear group permissions: %w", err)
		}
		if len(keys) == 0 {
			return nil
		}
		rows := make([]models.GroupPermission, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, models.GroupPermission{GroupKey: groupKey, PermissionKey: key})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("set group permissions: %w", err)
		}
		return nil
	})
}

// AddUserToGroup places the user in the group, idempotently.
func (r *BunRBACRepository) AddUserToGroup(ctx context.Context, userSub, groupKey string) error {
	ug := &models.UserGroup{UserSub: userSub, GroupKey: groupKey}
	_, err := r.db.NewInsert().
		Model(ug).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("add user to group: %w", err)
	}
	return nil
}

// RemoveUserFromGroup removes the membership
func (r *BunRBACRepository) RemoveUserFromGroup(ctx context.Context, userSub, groupKey string) error {
	_, err := r.db.NewDelete().
		Model((*models.UserGroup)(nil)).
		Where("user_sub = ?", userSub).
		Where("group_key = ?", groupKey).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("remove user from group: %w", err)
	}
	return nil
}

// CreateOrganization inserts an organization
func (r *BunRBACRepository) CreateOrganization(ctx context.Context, o *models.Organization) error {
	_, err := r.db.NewInsert().
		Model(o).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("organization slug %s: %w", o.Slug, ErrConflict)
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// GetOrganization retrieves an organization by id
func (r *BunRBACRepository) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	o := new(models.Organization)
	err := r.db.NewSelect().
		Model(o).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}

// GetOrganizationBySlug retrieves an organization by its slug
func (r *BunRBACRepository) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	o := new(models.Organization)
	err := r.db.NewSelect().
		Model(o).
		Where("slug = ?", slug).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("organization %s: %w", slug, ErrNotFound)
		}
		return nil, fmt.Errorf("get organization by slug: %w", err)
	}
	return o, nil
}

// UpdateOrganization persists name and OTP policy changes. Slug is immutable
// and never included in the update.
func (r *BunRBACRepository) UpdateOrganization(ctx context.Context, o *models.Organization) error {
	res, err := r.db.NewUpdate().
		Model(o).
		Column("name", "force_otp").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("organization %s: %w", o.ID, ErrNotFound)
	}
	return nil
}

// DeleteOrganization removes an organization; memberships cascade.
func (r *BunRBACRepository) DeleteOrganization(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*models.Organization)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListOrganizations retrieves a page of organizations
func (r *BunRBACRepository) ListOrganizations(ctx context.Context, page, limit int) ([]models.Organization, int, error) {
	var orgs []models.Organization
	total, err := r.db.NewSelect().
		Model(&orgs).
		Order("created_at ASC").
		Limit(limit).
		Offset(pageOffset(page, limit)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list organizations: %w", err)
	}
	return orgs, total, nil
}

// AddMember creates an organization membership
func (r *BunRBACRepository) AddMember(ctx context.Context, m *models.OrganizationMember) error {
	_, err := r.db.NewInsert().
		Model(m).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("member %s in organization %s: %w", m.UserSub, m.OrganizationID, ErrConflict)
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// GetMember retrieves a membership by organization and user
func (r *BunRBACRepository) GetMember(ctx context.Context, orgID, userSub string) (*models.OrganizationMember, error) {
	m := new(models.OrganizationMember)
	err := r.db.NewSelect().
		Model(m).
		Where("organization_id = ?", orgID).
		Where("user_sub = ?", userSub).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// UpdateMemberStatus transitions a membership between active, invited, and
// suspended.
func (r *BunRBACRepository) UpdateMemberStatus(ctx context.Context, memberID, status string) error {
	res, err := r.db.NewUpdate().
		Model((*models.OrganizationMember)(nil)).
		Set("status = ?", status).
		Where("id = ?", memberID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update member status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("member %s: %w", memberID, ErrNotFound)
	}
	return nil
}

// RemoveMember deletes a membership; role assignments cascade.
func (r *BunRBACRepository) RemoveMember(ctx context.Context, memberID string) error {
	res, err := r.db.NewDelete().
		Model((*models.OrganizationMember)(nil)).
		Where("id = ?", memberID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("member %s: %w", memberID, ErrNotFound)
	}
	return nil
}

// ListMembers retrieves a page of an organization's members
func (r *BunRBACRepository) ListMembers(ctx context.Context, orgID string, page, limit int) ([]models.OrganizationMember, int, error) {
	var members []models.OrganizationMember
	total, err := r.db.NewSelect().
		Model(&members).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Limit(limit).
		Offset(pageOffset(page, limit)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}
	return members, total, nil
}

// SetMemberRoles replaces the membership's role set.
func (r *BunRBACRepository) SetMemberRoles(ctx context.Context, memberID string, roleIDs []string) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.OrganizationMemberRole)(nil)).
			Where("member_id = ?", memberID).
			Exec(ctx); err != nil {
			return fmt.Errorf("clear member roles: %w", err)
		}
		if len(roleIDs) == 0 {
			return nil
		}
		rows := make([]models.OrganizationMemberRole, 0, len(roleIDs))
		for _, roleID := range roleIDs {
			rows = append(rows, models.OrganizationMemberRole{MemberID: memberID, RoleID: roleID})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("set member roles: %w", err)
		}
		return nil
	})
}

// CreateRole inserts a role
func (r *BunRBACRepository) CreateRole(ctx context.Context, role *models.Role) error {
	_, err := r.db.NewInsert().
		Model(role).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role %s: %w", role.Key, ErrConflict)
		}
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// GetRole retrieves a role by id
func (r *BunRBACRepository) GetRole(ctx context.Context, id string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// GetRoleByKey retrieves a role by its key
func (r *BunRBACRepository) GetRoleByKey(ctx context.Context, key string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get role by key: %w", err)
	}
	return role, nil
}

// UpdateRole persists changes to a role; system roles are guarded by the
// caller.
func (r *BunRBACRepository) UpdateRole(ctx context.Context, role *models.Role) error {
	res, err := r.db.NewUpdate().
		Model(role).
		Column("key", "name").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role %s: %w", role.Key, ErrConflict)
		}
		return fmt.Errorf("update role: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("role %s: %w", role.ID, ErrNotFound)
	}
	return nil
}

// DeleteRole removes a role; assignments cascade.
func (r *BunRBACRepository) DeleteRole(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*models.Role)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("role %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRoles retrieves a page of roles
func (r *BunRBACRepository) ListRoles(ctx context.Context, page, limit int) ([]models.Role, int, error) {
	var roles []models.Role
	total, err := r.db.NewSelect().
		Model(&roles).
		Order("key ASC").
		Limit(limit).
		Offset(pageOffset(page, limit)).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list roles: %w", err)
	}
	return roles, total, nil
}

// SetRolePermissions replaces the role's permission set.
func (r *BunRBACRepository) SetRolePermissions(ctx context.Context, roleID string, keys []string) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.RolePermission)(nil)).
			Where("role_id = ?", roleID).
			Exec(ctx); err != nil {
			return fmt.Errorf("clear role permissions: %w", err)
		}
		if len(keys) == 0 {
			return nil
		}
		rows := make([]models.RolePermission, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, models.RolePermission{RoleID: roleID, PermissionKey: key})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("set role permissions: %w", err)
		}
		return nil
	})
}
