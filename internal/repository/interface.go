package repository

import (
	"context"
	"errors"
	"time"

	"github.com/darkauth/darkauth/internal/db/models"
)

// Sentinel errors shared by all repositories. Callers branch with errors.Is.
var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on unique-constraint style failures surfaced
	// at the application layer (duplicate email, duplicate membership).
	ErrConflict = errors.New("conflict")

	// ErrAlreadyConsumed is returned when a single-use row lost the
	// compare-and-set race: auth code redemption, refresh rotation,
	// pending-auth binding, email-token consumption.
	ErrAlreadyConsumed = errors.New("already consumed")
)

// UserRepository exposes persistence operations for users and their PAKE
// records.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetBySub(ctx context.Context, sub string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, sub string) error
	List(ctx context.Context, page, limit int) ([]models.User, int, error)
	SetLastLogin(ctx context.Context, sub string, at time.Time) error

	UpsertPakeRecord(ctx context.Context, rec *models.PakeRecord) error
	GetPakeRecord(ctx context.Context, sub string) (*models.PakeRecord, error)
	// RotatePakeRecord replaces the record and appends the previous export
	// key hash to history in one transaction.
	RotatePakeRecord(ctx context.Context, rec *models.PakeRecord) error
	ExportKeyHashSeen(ctx context.Context, sub, exportKeyHash string) (bool, error)

	GetWrappedDRK(ctx context.Context, sub string) (*models.WrappedDRK, error)
	PutWrappedDRK(ctx context.Context, sub string, blob []byte) error
}

// AdminRepository exposes persistence operations for admin accounts.
type AdminRepository interface {
	Create(ctx context.Context, admin *models.Admin) error
	GetByID(ctx context.Context, id string) (*models.Admin, error)
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
	Update(ctx context.Context, admin *models.Admin) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, page, limit int) ([]models.Admin, int, error)
	Count(ctx context.Context) (int, error)

	UpsertPakeRecord(ctx context.Context, rec *models.AdminPakeRecord) error
	GetPakeRecord(ctx context.Context, adminID string) (*models.AdminPakeRecord, error)
}

// ClientRepository exposes persistence operations for OAuth clients.
type ClientRepository interface {
	Create(ctx context.Context, client *models.Client) error
	GetByID(ctx context.Context, clientID string) (*models.Client, error)
	Update(ctx context.Context, client *models.Client) error
	Delete(ctx context.Context, clientID string) error
	List(ctx context.Context, page, limit int) ([]models.Client, int, error)
}

// PendingAuthRepository manages in-progress authorization requests.
type PendingAuthRepository interface {
	Create(ctx context.Context, pa *models.PendingAuth) error
	GetByID(ctx context.Context, requestID string) (*models.PendingAuth, error)
	// BindUser sets user_sub exactly once. Returns ErrAlreadyConsumed when
	// the pending auth is already bound to a different subject.
	BindUser(ctx context.Context, requestID, userSub string) error
	Delete(ctx context.Context, requestID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// AuthCodeRepository manages single-use authorization codes.
type AuthCodeRepository interface {
	Create(ctx context.Context, code *models.AuthCode) error
	GetByCode(ctx context.Context, code string) (*models.AuthCode, error)
	// Consume flips consumed false→true atomically. Exactly one concurrent
	// caller succeeds; the rest get ErrAlreadyConsumed.
	Consume(ctx context.Context, code string) (*models.AuthCode, error)
	Delete(ctx context.Context, code string) error
	// DeleteExpired removes consumed codes and codes past expiry+grace.
	DeleteExpired(ctx context.Context, now time.Time, grace time.Duration) (int, error)
}

// SessionRepository manages sessions and their refresh-token chains.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	List(ctx context.Context, page, limit int) ([]models.Session, int, error)
	ListByUser(ctx context.Context, sub string) ([]models.Session, error)
	DeleteByUser(ctx context.Context, sub string) error

	CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	// RotateRefreshToken atomically consumes oldHash and inserts next.
	// Exactly one of N concurrent rotations succeeds.
	RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error
	DeleteRefreshTokensBySession(ctx context.Context, sessionID string) error
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int, error)
}

// RBACRepository exposes the tables behind the permission resolver and the
// admin CRUD surface for permissions, groups, organizations, and roles.
type RBACRepository interface {
	// Resolver queries.
	DirectPermissions(ctx context.Context, userSub string) ([]string, error)
	RolePermissionsForUser(ctx context.Context, userSub string, orgID *string) ([]string, error)
	GroupPermissionsForUser(ctx context.Context, userSub string) ([]string, error)
	GroupKeysForUser(ctx context.Context, userSub string) ([]string, error)
	RoleKeysForUser(ctx context.Context, userSub string, orgID *string) ([]string, error)
	ActiveOrganizationsForUser(ctx context.Context, userSub string) ([]models.Organization, error)
	GroupsForUser(ctx context.Context, userSub string) ([]models.Group, error)

	// Permissions.
	CreatePermission(ctx context.Context, p *models.Permission) error
	GetPermission(ctx context.Context, key string) (*models.Permission, error)
	DeletePermission(ctx context.Context, key string) error
	ListPermissions(ctx context.Context, page, limit int) ([]models.Permission, int, error)
	SetUserPermissions(ctx context.Context, userSub string, keys []string) error

	// Groups.
	CreateGroup(ctx context.Context, g *models.Group) error
	GetGroup(ctx context.Context, key string) (*models.Group, error)
	UpdateGroup(ctx context.Context, g *models.Group) error
	DeleteGroup(ctx context.Context, key string) error
	ListGroups(ctx context.Context, page, limit int) ([]models.Group, int, error)
	SetGroupPermissions(ctx context.Context, groupKey string, keys []string) error
	AddUserToGroup(ctx context.Context, userSub, groupKey string) error
	RemoveUserFromGroup(ctx context.Context, userSub, groupKey string) error

	// Organizations and memberships.
	CreateOrganization(ctx context.Context, o *models.Organization) error
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error)
	UpdateOrganization(ctx context.Context, o *models.Organization) error
	DeleteOrganization(ctx context.Context, id string) error
	ListOrganizations(ctx context.Context, page, limit int) ([]models.Organization, int, error)
	AddMember(ctx context.Context, m *models.OrganizationMember) error
	GetMember(ctx context.Context, orgID, userSub string) (*models.OrganizationMember, error)
	UpdateMemberStatus(ctx context.Context, memberID, status string) error
	RemoveMember(ctx context.Context, memberID string) error
	ListMembers(ctx context.Context, orgID string, page, limit int) ([]models.OrganizationMember, int, error)
	SetMemberRoles(ctx context.Context, memberID string, roleIDs []string) error

	// Roles.
	CreateRole(ctx context.Context, r *models.Role) error
	GetRole(ctx context.Context, id string) (*models.Role, error)
	GetRoleByKey(ctx context.Context, key string) (*models.Role, error)
	UpdateRole(ctx context.Context, r *models.Role) error
	DeleteRole(ctx context.Context, id string) error
	ListRoles(ctx context.Context, page, limit int) ([]models.Role, int, error)
	SetRolePermissions(ctx context.Context, roleID string, keys []string) error
}

// OTPRepository manages OTP credentials and email verification tokens.
type OTPRepository interface {
	Upsert(ctx context.Context, cred *models.OTPCredential) error
	Get(ctx context.Context, actorRef string) (*models.OTPCredential, error)
	Update(ctx context.Context, cred *models.OTPCredential) error
	Delete(ctx context.Context, actorRef string) error

	CreateEmailToken(ctx context.Context, token *models.EmailVerificationToken) error
	// GetEmailToken returns an active token without consuming it. Consumed
	// or expired tokens fail with ErrAlreadyConsumed.
	GetEmailToken(ctx context.Context, tokenHash string, now time.Time) (*models.EmailVerificationToken, error)
	// ConsumeEmailToken marks the token consumed exactly once.
	ConsumeEmailToken(ctx context.Context, tokenHash string, now time.Time) (*models.EmailVerificationToken, error)
	InvalidateEmailTokens(ctx context.Context, userSub, purpose string) error
}

// JWKSRepository persists signing key pairs.
type JWKSRepository interface {
	Create(ctx context.Context, key *models.JWKSKey) error
	GetActive(ctx context.Context) (*models.JWKSKey, error)
	List(ctx context.Context) ([]models.JWKSKey, error)
	// Rotate marks all keys inactive and inserts the new active key in one
	// transaction.
	Rotate(ctx context.Context, next *models.JWKSKey) error
}

// SettingsRepository persists configuration values.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	Put(ctx context.Context, setting *models.Setting) error
	List(ctx context.Context) ([]models.Setting, error)
}

// AuditRepository is the append-only audit sink's storage.
type AuditRepository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, page, limit int) ([]models.AuditLog, int, error)
}
