// Package iam resolves what a user may do: effective permissions across the
// direct, role, and group paths, login eligibility, and the OTP policy.
package iam

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/telemetry"
)

const tracerName = "darkauth/services/iam"

// Service answers authorization questions for the user realm.
type Service interface {
	// EffectivePermissions returns the deduplicated, sorted union of the
	// user's direct permissions, permissions through roles on active
	// organization memberships, and permissions through groups. With orgID
	// set, only that organization's memberships contribute role permissions.
	EffectivePermissions(ctx context.Context, userSub string, orgID *string) ([]string, error)

	// EffectiveGroups returns the keys of the groups the user belongs to.
	EffectiveGroups(ctx context.Context, userSub string) ([]string, error)

	// EffectiveRoles returns the keys of roles held through active
	// memberships, optionally scoped to one organization.
	EffectiveRoles(ctx context.Context, userSub string, orgID *string) ([]string, error)

	// Organizations returns the organizations where the user is active.
	Organizations(ctx context.Context, userSub string) ([]models.Organization, error)

	// CanLogin reports whether at least one of the user's groups enables
	// login. A user in no groups cannot log in.
	CanLogin(ctx context.Context, userSub string) (bool, error)

	// OTPRequired evaluates the second-factor policy: the global flag, any
	// group with require_otp, any active organization with force_otp, or
	// the otp_required role.
	OTPRequired(ctx context.Context, userSub string) (bool, error)
}

// Deps carries the repositories the service reads from.
type Deps struct {
	RBAC repository.RBACRepository
}

// Config carries the policy knobs evaluated at resolution time.
type Config struct {
	// OTPRequireForUsers forces the second factor for every user.
	OTPRequireForUsers bool
}

type service struct {
	rbac repository.RBACRepository
	cfg  Config
}

// NewService creates the IAM resolver.
func NewService(deps Deps, cfg Config) Service {
	return &service{rbac: deps.RBAC, cfg: cfg}
}

func (s *service) EffectivePermissions(ctx context.Context, userSub string, orgID *string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.EffectivePermissions",
		attribute.String(telemetry.AttrUserSub, userSub),
	)
	defer span.End()

	direct, err := s.rbac.DirectPermissions(ctx, userSub)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("resolve direct permissions: %w", err)
	}
	viaRoles, err := s.rbac.RolePermissionsForUser(ctx, userSub, orgID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("resolve role permissions: %w", err)
	}
	viaGroups, err := s.rbac.GroupPermissionsForUser(ctx, userSub)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("resolve group permissions: %w", err)
	}

	seen := make(map[string]struct{}, len(direct)+len(viaRoles)+len(viaGroups))
	union := make([]string, 0, len(seen))
	for _, set := range [][]string{direct, viaRoles, viaGroups} {
		for _, key := range set {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			union = append(union, key)
		}
	}
	sort.Strings(union)
	return union, nil
}

func (s *service) EffectiveGroups(ctx context.Context, userSub string) ([]string, error) {
	keys, err := s.rbac.GroupKeysForUser(ctx, userSub)
	if err != nil {
		return nil, fmt.Errorf("resolve groups: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *service) EffectiveRoles(ctx context.Context, userSub string, orgID *string) ([]string, error) {
	keys, err := s.rbac.RoleKeysForUser(ctx, userSub, orgID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *service) Organizations(ctx context.Context, userSub string) ([]models.Organization, error) {
	orgs, err := s.rbac.ActiveOrganizationsForUser(ctx, userSub)
	if err != nil {
		return nil, fmt.Errorf("resolve organizations: %w", err)
	}
	return orgs, nil
}

func (s *service) CanLogin(ctx context.Context, userSub string) (bool, error) {
	groups, err := s.rbac.GroupsForUser(ctx, userSub)
	if err != nil {
		return false, fmt.Errorf("resolve login eligibility: %w", err)
	}
	for _, g := range groups {
		if g.EnableLogin {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) OTPRequired(ctx context.Context, userSub string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.OTPRequired",
		attribute.String(telemetry.AttrUserSub, userSub),
	)
	defer span.End()

	if s.cfg.OTPRequireForUsers {
		return true, nil
	}

	groups, err := s.rbac.GroupsForUser(ctx, userSub)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, fmt.Errorf("resolve otp policy groups: %w", err)
	}
	for _, g := range groups {
		if g.RequireOtp {
			return true, nil
		}
	}

	orgs, err := s.rbac.ActiveOrganizationsForUser(ctx, userSub)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, fmt.Errorf("resolve otp policy organizations: %w", err)
	}
	for _, o := range orgs {
		if o.ForceOtp {
			return true, nil
		}
	}

	roles, err := s.rbac.RoleKeysForUser(ctx, userSub, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, fmt.Errorf("resolve otp policy roles: %w", err)
	}
	for _, key := range roles {
		if key == models.RoleKeyOtpRequired {
			return true, nil
		}
	}
	return false, nil
}
