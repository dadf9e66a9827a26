package authz

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/uptrace/bun"

	casbinbunadapter "github.com/darkauth/darkauth/internal/authz/bunadapter"
	"github.com/darkauth/darkauth/internal/db/models"
)

//go:embed model.conf
var casbinModelContent string

// Admin realm actions checked by the enforcer.
const (
	ActionRead   = "read"
	ActionList   = "list"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// InitEnforcer creates a Casbin enforcer backed by the shared bun connection.
// Policies live in the casbin_rules table seeded at migration time.
func InitEnforcer(db *bun.DB) (casbin.IEnforcer, error) {
	adapter, err := casbinbunadapter.NewAdapter(db)
	if err != nil {
		return nil, fmt.Errorf("create casbin adapter: %w", err)
	}

	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load casbin policies: %w", err)
	}

	return enforcer, nil
}

// RoleSubject maps an admin role to its policy subject.
func RoleSubject(role string) string {
	return "role:" + role
}

// Authorize checks whether the admin may perform act on resource. Enforcement
// runs against the admin's stored role directly, so role changes take effect
// on the next request without a policy reload.
func Authorize(enforcer casbin.IEnforcer, admin *models.Admin, resource, act string) (bool, error) {
	ok, err := enforcer.Enforce(RoleSubject(admin.Role), resource, act)
	if err != nil {
		return false, fmt.Errorf("enforce admin policy: %w", err)
	}
	return ok, nil
}
