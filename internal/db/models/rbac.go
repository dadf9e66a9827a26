package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Permission is the unit of authorization, keyed "resource:action".
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	Key         string    `bun:"key,pk"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// UserPermission assigns a permission directly to a user.
type UserPermission struct {
	bun.BaseModel `bun:"table:user_permissions,alias:up"`

	UserSub       string `bun:"user_sub,pk"`       // FK to users(sub) ON DELETE CASCADE
	PermissionKey string `bun:"permission_key,pk"` // FK to permissions(key) ON DELETE CASCADE
}

// Group is the legacy permission path. Key "default" is undeletable.
type Group struct {
	bun.BaseModel `bun:"table:groups,alias:g"`

	Key         string    `bun:"key,pk"`
	Name        string    `bun:"name,notnull"`
	EnableLogin bool      `bun:"enable_login,notnull,default:true"`
	RequireOtp  bool      `bun:"require_otp,notnull,default:false"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// DefaultGroupKey is the built-in group every self-signup user joins.
const DefaultGroupKey = "default"

// GroupPermission attaches a permission to a group.
type GroupPermission struct {
	bun.BaseModel `bun:"table:group_permissions,alias:gp"`

	GroupKey      string `bun:"group_key,pk"`      // FK to groups(key) ON DELETE CASCADE
	PermissionKey string `bun:"permission_key,pk"` // FK to permissions(key) ON DELETE CASCADE
}

// UserGroup places a user in a group.
type UserGroup struct {
	bun.BaseModel `bun:"table:user_groups,alias:ug"`

	UserSub  string `bun:"user_sub,pk"`  // FK to users(sub) ON DELETE CASCADE
	GroupKey string `bun:"group_key,pk"` // FK to groups(key) ON DELETE CASCADE
}

// Organization is a tenant grouping of users. Slug is immutable once set.
type Organization struct {
	bun.BaseModel `bun:"table:organizations,alias:o"`

	ID               string    `bun:"id,pk,type:uuid"`
	Slug             string    `bun:"slug,notnull,unique"`
	Name             string    `bun:"name,notnull"`
	ForceOtp         bool      `bun:"force_otp,notnull,default:false"`
	CreatedByUserSub *string   `bun:"created_by_user_sub"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// DefaultOrganizationSlug identifies the organization created at install.
const DefaultOrganizationSlug = "default"

// Organization member statuses.
const (
	MemberStatusActive    = "active"
	MemberStatusInvited   = "invited"
	MemberStatusSuspended = "suspended"
)

// OrganizationMember links a user to an organization. Unique per (org, user).
type OrganizationMember struct {
	bun.BaseModel `bun:"table:organization_members,alias:om"`

	ID             string    `bun:"id,pk,type:uuid"`
	OrganizationID string    `bun:"organization_id,notnull,type:uuid"` // FK ON DELETE CASCADE
	UserSub        string    `bun:"user_sub,notnull"`                  // FK to users(sub) ON DELETE CASCADE
	Status         string    `bun:"status,notnull,default:'active'"`   // active | invited | suspended
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Role carries a permission bundle. Only system roles are assignable to
// organization members; member, org_admin, and otp_required are built in.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID        string    `bun:"id,pk,type:uuid"`
	Key       string    `bun:"key,notnull,unique"`
	Name      string    `bun:"name,notnull"`
	System    bool      `bun:"system,notnull,default:false"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Built-in role keys.
const (
	RoleKeyMember      = "member"
	RoleKeyOrgAdmin    = "org_admin"
	RoleKeyOtpRequired = "otp_required"
)

// RolePermission attaches a permission to a role.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`

	RoleID        string `bun:"role_id,pk,type:uuid"`  // FK to roles(id) ON DELETE CASCADE
	PermissionKey string `bun:"permission_key,pk"`     // FK to permissions(key) ON DELETE CASCADE
}

// OrganizationMemberRole assigns a role to an org membership.
type OrganizationMemberRole struct {
	bun.BaseModel `bun:"table:organization_member_roles,alias:omr"`

	MemberID string `bun:"member_id,pk,type:uuid"` // FK to organization_members(id) ON DELETE CASCADE
	RoleID   string `bun:"role_id,pk,type:uuid"`   // FK to roles(id) ON DELETE CASCADE
}
