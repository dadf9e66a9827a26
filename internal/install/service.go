// Package install implements the one-shot bootstrap: a runtime-injected token
// gates the only path that accepts PAKE registration before an admin exists.
// The token is single-use and expires ten minutes after process start.
package install

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/jwks"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/accounts"
	"github.com/darkauth/darkauth/internal/services/audit"
	"github.com/darkauth/darkauth/internal/services/settings"
)

const tokenMaxAge = 10 * time.Minute

var (
	// ErrAlreadyInitialized is returned once an admin exists.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrTokenExpired is returned when the install token is older than its
	// ten-minute window.
	ErrTokenExpired = errors.New("install token expired")

	// ErrTokenForbidden is returned on token mismatch or reuse.
	ErrTokenForbidden = errors.New("install token invalid")

	// ErrIdentityMismatch is returned when finish presents an email or name
	// different from the one given to start.
	ErrIdentityMismatch = errors.New("install identity mismatch")
)

// pendingInstall binds a PAKE registration session to the identity supplied
// at start.
type pendingInstall struct {
	email string
	name  string
}

// Service holds the process-singleton install state.
type Service struct {
	accounts *accounts.Service
	admins   repository.AdminRepository
	rbac     repository.RBACRepository
	keys     *jwks.Manager
	settings *settings.Service
	audit    *audit.Service

	mu        sync.Mutex
	token     string
	createdAt time.Time
	consumed  bool
	pending   map[string]pendingInstall
	now       func() time.Time
}

// Deps bundles the collaborators.
type Deps struct {
	Accounts *accounts.Service
	Admins   repository.AdminRepository
	RBAC     repository.RBACRepository
	Keys     *jwks.Manager
	Settings *settings.Service
	Audit    *audit.Service
}

// NewService arms the install gate with the operator-injected token. An empty
// token disables install entirely.
func NewService(deps Deps, token string) *Service {
	return &Service{
		accounts:  deps.Accounts,
		admins:    deps.Admins,
		rbac:      deps.RBAC,
		keys:      deps.Keys,
		settings:  deps.Settings,
		audit:     deps.Audit,
		token:     token,
		createdAt: time.Now(),
		pending:   make(map[string]pendingInstall),
		now:       time.Now,
	}
}

// Installed reports whether bootstrap already ran.
func (s *Service) Installed(ctx context.Context) (bool, error) {
	n, err := s.admins.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return n > 0, nil
}

// Start verifies the gate and begins the bootstrap admin's PAKE registration.
func (s *Service) Start(ctx context.Context, token, email, name string, request []byte) (*accounts.StartResult, error) {
	if err := s.checkGate(ctx, token); err != nil {
		return nil, err
	}

	result, err := s.accounts.AdminRegisterStart(ctx, email, request)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pending[result.SessionID] = pendingInstall{email: accounts.NormalizeEmail(email), name: name}
	s.mu.Unlock()
	return result, nil
}

// Finish completes bootstrap: creates the first admin with the write role,
// the default organization, the initial signing key, and the seed settings,
// then clears the token. Exactly one finish can succeed.
func (s *Service) Finish(ctx context.Context, token, sessionID, email, name string, record []byte) (*models.Admin, error) {
	if err := s.checkGate(ctx, token); err != nil {
		return nil, err
	}

	email = accounts.NormalizeEmail(email)
	s.mu.Lock()
	bound, ok := s.pending[sessionID]
	delete(s.pending, sessionID)
	s.mu.Unlock()
	if !ok || bound.email != email || bound.name != name {
		return nil, ErrIdentityMismatch
	}

	// Consume the token before any writes; a concurrent finish must lose
	// here, not after a second admin row appears.
	s.mu.Lock()
	if s.consumed {
		s.mu.Unlock()
		return nil, ErrTokenForbidden
	}
	s.consumed = true
	s.token = ""
	s.mu.Unlock()

	admin := &models.Admin{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Email:     email,
		Name:      name,
		Role:      models.AdminRoleWrite,
		CreatedAt: s.now(),
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("create bootstrap admin: %w", err)
	}
	if err := s.accounts.AdminRegisterFinish(ctx, sessionID, admin.ID, email, record); err != nil {
		return nil, err
	}

	if err := s.ensureDefaultOrganization(ctx, admin); err != nil {
		return nil, err
	}
	if err := s.keys.EnsureKey(ctx); err != nil {
		return nil, err
	}
	if err := s.seedSettings(ctx); err != nil {
		return nil, err
	}

	s.audit.Emit(&models.AuditLog{
		EventType: audit.EventInstall,
		ActorKind: models.ActorKindAdmin,
		ActorID:   admin.ID,
		Success:   true,
	})
	return admin, nil
}

// checkGate enforces the install preconditions: not yet installed, token
// armed and unconsumed, constant-time equality, age within the window.
func (s *Service) checkGate(ctx context.Context, token string) error {
	installed, err := s.Installed(ctx)
	if err != nil {
		return err
	}
	if installed {
		return ErrAlreadyInitialized
	}

	s.mu.Lock()
	armed := s.token
	consumed := s.consumed
	createdAt := s.createdAt
	s.mu.Unlock()

	if consumed || armed == "" || !crypto.ConstantTimeEquals(armed, token) {
		return ErrTokenForbidden
	}
	if s.now().Sub(createdAt) > tokenMaxAge {
		return ErrTokenExpired
	}
	return nil
}

func (s *Service) ensureDefaultOrganization(ctx context.Context, admin *models.Admin) error {
	_, err := s.rbac.GetOrganizationBySlug(ctx, models.DefaultOrganizationSlug)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load default organization: %w", err)
	}
	org := &models.Organization{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Slug:      models.DefaultOrganizationSlug,
		Name:      "Default",
		CreatedAt: s.now(),
	}
	if err := s.rbac.CreateOrganization(ctx, org); err != nil {
		return fmt.Errorf("create default organization: %w", err)
	}
	return nil
}

func (s *Service) seedSettings(ctx context.Context) error {
	seeds := map[string]models.JSONMap{
		settings.KeyOTPPolicy:     {"require_for_users": false, "require_for_admins": false},
		settings.KeyTokenLifetime: {"access_ttl_seconds": 300, "refresh_ttl_seconds": 2592000},
	}
	for key, value := range seeds {
		if _, err := s.settings.Get(ctx, key); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("read setting %s: %w", key, err)
		}
		if err := s.settings.PutInternal(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}
