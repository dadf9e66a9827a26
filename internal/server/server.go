// Package server assembles the two HTTP surfaces: the user realm with the
// OIDC routes and the admin realm with the CRUD API. Handlers stay thin;
// protocol and policy live in the service packages.
package server

import (
	"net"
	"net/http"
	"time"

	"github.com/casbin/casbin/v2"

	"github.com/darkauth/darkauth/internal/config"
	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/install"
	"github.com/darkauth/darkauth/internal/jwks"
	"github.com/darkauth/darkauth/internal/oidc"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/accounts"
	"github.com/darkauth/darkauth/internal/services/audit"
	"github.com/darkauth/darkauth/internal/services/email"
	"github.com/darkauth/darkauth/internal/services/iam"
	"github.com/darkauth/darkauth/internal/services/otp"
	"github.com/darkauth/darkauth/internal/services/sessions"
	"github.com/darkauth/darkauth/internal/services/settings"
)

// timeNow is indirected for tests.
var timeNow = time.Now

// Server carries every dependency the handlers reach for.
type Server struct {
	cfg      *config.Config
	accounts *accounts.Service
	sessions *sessions.Service
	oidc     *oidc.Service
	otp      *otp.Service
	iam      iam.Service
	email    *email.Service
	settings *settings.Service
	audit    *audit.Service
	install  *install.Service
	keys     *jwks.Manager
	kek      *crypto.KEK
	enforcer casbin.IEnforcer

	users    repository.UserRepository
	admins   repository.AdminRepository
	clients  repository.ClientRepository
	rbac     repository.RBACRepository
	sessRepo repository.SessionRepository
	auditLog repository.AuditRepository
}

// Deps bundles everything New needs.
type Deps struct {
	Config   *config.Config
	Accounts *accounts.Service
	Sessions *sessions.Service
	OIDC     *oidc.Service
	OTP      *otp.Service
	IAM      iam.Service
	Email    *email.Service
	Settings *settings.Service
	Audit    *audit.Service
	Install  *install.Service
	Keys     *jwks.Manager
	KEK      *crypto.KEK
	Enforcer casbin.IEnforcer

	Users    repository.UserRepository
	Admins   repository.AdminRepository
	Clients  repository.ClientRepository
	RBAC     repository.RBACRepository
	SessRepo repository.SessionRepository
	AuditLog repository.AuditRepository
}

// New builds the server.
func New(deps Deps) *Server {
	return &Server{
		cfg:      deps.Config,
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		oidc:     deps.OIDC,
		otp:      deps.OTP,
		iam:      deps.IAM,
		email:    deps.Email,
		settings: deps.Settings,
		audit:    deps.Audit,
		install:  deps.Install,
		keys:     deps.Keys,
		kek:      deps.KEK,
		enforcer: deps.Enforcer,
		users:    deps.Users,
		admins:   deps.Admins,
		clients:  deps.Clients,
		rbac:     deps.RBAC,
		sessRepo: deps.SessRepo,
		auditLog: deps.AuditLog,
	}
}

// clientIP prefers the RealIP middleware's rewrite, falling back to the
// connection address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
