// Package oidc implements the provider side of the authorization-code flow:
// /authorize validation, consent finalization, the token endpoint with its
// three grants, and discovery. PAKE authentication and session issuance live
// in their own packages; this one turns authenticated subjects into codes and
// signed tokens.
package oidc

import (
	"time"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/jwks"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/audit"
	"github.com/darkauth/darkauth/internal/services/iam"
	"github.com/darkauth/darkauth/internal/services/sessions"
)

const (
	pendingAuthTTL = 10 * time.Minute
	authCodeTTL    = 60 * time.Second
	authCodeBytes  = 32
)

// Config carries the issuer identity and default token lifetimes. Per-client
// overrides on the client row win over the defaults.
type Config struct {
	Issuer          string
	UIOrigin        string
	IDTokenLifetime time.Duration
	RefreshLifetime time.Duration
}

// Service wires the flow against storage, the signer, and the resolvers.
type Service struct {
	clients  repository.ClientRepository
	pending  repository.PendingAuthRepository
	codes    repository.AuthCodeRepository
	users    repository.UserRepository
	sessions *sessions.Service
	iam      iam.Service
	keys     *jwks.Manager
	kek      *crypto.KEK
	audit    *audit.Service
	cfg      Config
	now      func() time.Time
}

// Deps bundles the service's collaborators.
type Deps struct {
	Clients  repository.ClientRepository
	Pending  repository.PendingAuthRepository
	Codes    repository.AuthCodeRepository
	Users    repository.UserRepository
	Sessions *sessions.Service
	IAM      iam.Service
	Keys     *jwks.Manager
	KEK      *crypto.KEK
	Audit    *audit.Service
}

// NewService creates the OIDC flow service.
func NewService(deps Deps, cfg Config) *Service {
	return &Service{
		clients:  deps.Clients,
		pending:  deps.Pending,
		codes:    deps.Codes,
		users:    deps.Users,
		sessions: deps.Sessions,
		iam:      deps.IAM,
		keys:     deps.Keys,
		kek:      deps.KEK,
		audit:    deps.Audit,
		cfg:      cfg,
		now:      time.Now,
	}
}
