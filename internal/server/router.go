package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/darkauth/darkauth/internal/authz"
	"github.com/darkauth/darkauth/internal/services/sessions"
)

// Rate limits for the credential-guessing surface. Keyed by client IP.
const (
	authRateLimit  = 10
	authRateWindow = time.Minute
	otpRateLimit   = 10
	otpRateWindow  = time.Minute
	tokenRateLimit = 60
)

type rateLimitBody struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

// limitByIP wraps httprate with the JSON 429 body.
func limitByIP(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimited(window)),
	)
}

// rateLimited writes the 429 response. httprate sets Retry-After before
// invoking the handler; the window length is the fallback.
func rateLimited(window time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seconds := int(window.Seconds())
		if v := w.Header().Get("Retry-After"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				seconds = n
			}
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeJSON(w, http.StatusTooManyRequests, rateLimitBody{Error: "rate_limited", RetryAfterSeconds: seconds})
	}
}

// DefaultCORSOptions returns the CORS policy for the SPA origins. Credentials
// are allowed because both realms authenticate with cookies.
func DefaultCORSOptions(uiOrigin string) cors.Options {
	origins := []string{
		"http://localhost:5173",
		"http://127.0.0.1:5173",
	}
	if uiOrigin != "" {
		origins = append(origins, uiOrigin)
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", sessions.CSRFHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewUserRouter assembles the user realm: OIDC endpoints, PAKE flows, session
// and OTP management, and the install bootstrap.
func (s *Server) NewUserRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(DefaultCORSOptions(s.cfg.UIOrigin)))

	r.Get("/health", healthHandler)
	r.Get("/.well-known/openid-configuration", s.HandleDiscovery)
	r.Get("/.well-known/jwks.json", s.HandleJWKS)

	r.Get("/authorize", s.HandleAuthorize)
	r.With(limitByIP(tokenRateLimit, authRateWindow)).Post("/token", s.HandleToken)

	// PAKE flows share one budget per IP.
	r.Group(func(r chi.Router) {
		r.Use(limitByIP(authRateLimit, authRateWindow))
		r.Post("/opaque/register/start", s.HandleRegisterStart)
		r.Post("/opaque/register/finish", s.HandleRegisterFinish)
		r.Post("/opaque/login/start", s.HandleLoginStart)
		r.Post("/opaque/login/finish", s.HandleLoginFinish)
		r.Post("/install/opaque/start", s.HandleInstallStart)
		r.Post("/install/opaque/finish", s.HandleInstallFinish)
		r.Post("/password/recovery/request", s.HandleRecoveryRequest)
		r.Post("/password/recovery/start", s.HandleRecoveryStart)
		r.Post("/password/recovery/finish", s.HandleRecoveryFinish)
	})

	r.Post("/session/refresh", s.HandleRefresh)
	r.Post("/email/verify", s.HandleVerifyEmail)
	r.Post("/email/change/confirm", s.HandleEmailChangeConfirm)

	// Cookie-authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(RequireSession(s.sessions, sessions.UserRealm))
		r.Get("/session", s.HandleSession)
		r.Post("/logout", s.HandleLogout)
		r.Post("/authorize/finalize", s.HandleFinalize)

		r.Post("/otp/setup/init", s.HandleOtpSetupInit)
		r.Post("/otp/setup/verify", s.HandleOtpSetupVerify)
		r.With(limitByIP(otpRateLimit, otpRateWindow)).Post("/otp/verify", s.HandleOtpVerify)
		r.Get("/otp/status", s.HandleOtpStatus)

		r.Get("/crypto/wrapped-drk", s.HandleGetWrappedDRK)
		r.Put("/crypto/wrapped-drk", s.HandlePutWrappedDRK)

		r.Post("/password/change/start", s.HandlePasswordChangeStart)
		r.Post("/password/change/finish", s.HandlePasswordChangeFinish)

		r.Post("/email/change/request", s.HandleEmailChangeRequest)
	})

	return r
}

// NewAdminRouter assembles the admin realm. Every CRUD route sits behind the
// session middleware, the admin resolver, and the casbin policy check.
func (s *Server) NewAdminRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(DefaultCORSOptions(s.cfg.UIOrigin)))

	r.Get("/health", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(limitByIP(authRateLimit, authRateWindow))
		r.Post("/admin/opaque/login/start", s.HandleAdminLoginStart)
		r.Post("/admin/opaque/login/finish", s.HandleAdminLoginFinish)
	})
	r.Post("/admin/session/refresh", s.HandleAdminRefresh)

	// Reachable while OTP verification is still pending.
	r.Group(func(r chi.Router) {
		r.Use(RequireSession(s.sessions, sessions.AdminRealm))
		r.Use(RequireAdminIdentity(s.admins))
		r.Get("/admin/session", s.HandleAdminSession)
		r.Post("/admin/logout", s.HandleAdminLogout)
		r.Post("/admin/otp/setup/init", s.HandleAdminOtpSetupInit)
		r.Post("/admin/otp/setup/verify", s.HandleAdminOtpSetupVerify)
		r.With(limitByIP(otpRateLimit, otpRateWindow)).Post("/admin/otp/verify", s.HandleAdminOtpVerify)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireSession(s.sessions, sessions.AdminRealm))
		r.Use(RequireAdmin(s.admins))

		s.mountResource(r, "/users", "users", resourceRoutes{
			list:   s.HandleAdminListUsers,
			get:    s.HandleAdminGetUser,
			create: s.HandleAdminCreateUser,
			update: s.HandleAdminUpdateUser,
			delete: s.HandleAdminDeleteUser,
		})
		r.With(s.authorize("users", authz.ActionUpdate)).Put("/users/{sub}/permissions", s.HandleAdminSetUserPermissions)
		r.With(s.authorize("otp", authz.ActionUpdate)).Post("/users/{sub}/otp/disable", s.HandleAdminOtpDisable)
		r.With(s.authorize("otp", authz.ActionUpdate)).Post("/users/{sub}/otp/unlock", s.HandleAdminOtpUnlock)

		s.mountResource(r, "/admins", "admins", resourceRoutes{
			list:   s.HandleAdminListAdmins,
			create: s.HandleAdminCreateAdmin,
			update: s.HandleAdminUpdateAdmin,
			delete: s.HandleAdminDeleteAdmin,
			param:  "adminID",
		})

		s.mountResource(r, "/clients", "clients", resourceRoutes{
			list:   s.HandleAdminListClients,
			get:    s.HandleAdminGetClient,
			create: s.HandleAdminCreateClient,
			update: s.HandleAdminUpdateClient,
			delete: s.HandleAdminDeleteClient,
			param:  "clientID",
		})
		r.With(s.authorize("clients", authz.ActionUpdate)).Post("/clients/{clientID}/secret", s.HandleAdminRotateClientSecret)

		s.mountResource(r, "/permissions", "permissions", resourceRoutes{
			list:   s.HandleAdminListPermissions,
			create: s.HandleAdminCreatePermission,
			delete: s.HandleAdminDeletePermission,
			param:  "key",
		})

		s.mountResource(r, "/groups", "groups", resourceRoutes{
			list:   s.HandleAdminListGroups,
			create: s.HandleAdminCreateGroup,
			update: s.HandleAdminUpdateGroup,
			delete: s.HandleAdminDeleteGroup,
			param:  "key",
		})
		r.With(s.authorize("groups", authz.ActionUpdate)).Put("/groups/{key}/permissions", s.HandleAdminSetGroupPermissions)
		r.With(s.authorize("groups", authz.ActionUpdate)).Post("/groups/{key}/members", s.HandleAdminAddGroupMember)
		r.With(s.authorize("groups", authz.ActionUpdate)).Delete("/groups/{key}/members/{sub}", s.HandleAdminRemoveGroupMember)

		s.mountResource(r, "/roles", "roles", resourceRoutes{
			list:   s.HandleAdminListRoles,
			create: s.HandleAdminCreateRole,
			update: s.HandleAdminUpdateRole,
			delete: s.HandleAdminDeleteRole,
			param:  "roleID",
		})
		r.With(s.authorize("roles", authz.ActionUpdate)).Put("/roles/{roleID}/permissions", s.HandleAdminSetRolePermissions)

		s.mountResource(r, "/organizations", "organizations", resourceRoutes{
			list:   s.HandleAdminListOrganizations,
			get:    s.HandleAdminGetOrganization,
			create: s.HandleAdminCreateOrganization,
			update: s.HandleAdminUpdateOrganization,
			delete: s.HandleAdminDeleteOrganization,
			param:  "orgID",
		})
		r.With(s.authorize("organizations", authz.ActionList)).Get("/organizations/{orgID}/members", s.HandleAdminListMembers)
		r.With(s.authorize("organizations", authz.ActionUpdate)).Post("/organizations/{orgID}/members", s.HandleAdminAddMember)
		r.With(s.authorize("organizations", authz.ActionUpdate)).Put("/organizations/{orgID}/members/{memberID}/status", s.HandleAdminUpdateMemberStatus)
		r.With(s.authorize("organizations", authz.ActionUpdate)).Put("/organizations/{orgID}/members/{memberID}/roles", s.HandleAdminSetMemberRoles)
		r.With(s.authorize("organizations", authz.ActionUpdate)).Delete("/organizations/{orgID}/members/{memberID}", s.HandleAdminRemoveMember)

		r.With(s.authorize("settings", authz.ActionList)).Get("/settings", s.HandleAdminListSettings)
		r.With(s.authorize("settings", authz.ActionUpdate)).Put("/settings/{key}", s.HandleAdminPutSetting)

		r.With(s.authorize("audit_logs", authz.ActionList)).Get("/audit-logs", s.HandleAdminListAuditLogs)

		r.With(s.authorize("jwks", authz.ActionList)).Get("/jwks", s.HandleAdminListJWKS)
		r.With(s.authorize("jwks", authz.ActionUpdate)).Post("/jwks/rotate", s.HandleAdminRotateJWKS)

		r.With(s.authorize("sessions", authz.ActionList)).Get("/sessions", s.HandleAdminListSessions)
		r.With(s.authorize("sessions", authz.ActionDelete)).Delete("/sessions/{sessionID}", s.HandleAdminRevokeSession)
	})

	return r
}

// resourceRoutes bundles the standard CRUD handlers for mountResource. Nil
// entries skip the route; param defaults to the singular id segment "sub".
type resourceRoutes struct {
	list   http.HandlerFunc
	get    http.HandlerFunc
	create http.HandlerFunc
	update http.HandlerFunc
	delete http.HandlerFunc
	param  string
}

func (s *Server) mountResource(r chi.Router, path, resource string, routes resourceRoutes) {
	param := routes.param
	if param == "" {
		param = "sub"
	}
	item := path + "/{" + param + "}"
	if routes.list != nil {
		r.With(s.authorize(resource, authz.ActionList)).Get(path, routes.list)
	}
	if routes.get != nil {
		r.With(s.authorize(resource, authz.ActionRead)).Get(item, routes.get)
	}
	if routes.create != nil {
		r.With(s.authorize(resource, authz.ActionCreate)).Post(path, routes.create)
	}
	if routes.update != nil {
		r.With(s.authorize(resource, authz.ActionUpdate)).Put(item, routes.update)
	}
	if routes.delete != nil {
		r.With(s.authorize(resource, authz.ActionDelete)).Delete(item, routes.delete)
	}
}

func (s *Server) authorize(resource, action string) func(http.Handler) http.Handler {
	return Authorize(s.enforcer, resource, action)
}

// NewH2CHandler wraps a router with an h2c server so HTTP/2 works over
// cleartext behind a terminating proxy.
func NewH2CHandler(router chi.Router) http.Handler {
	return h2c.NewHandler(router, &http2.Server{})
}
