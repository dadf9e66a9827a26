package server

import (
	"context"
	"net/http"

	"github.com/casbin/casbin/v2"

	"github.com/darkauth/darkauth/internal/authz"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/sessions"
)

type contextKey int

const (
	sessionKey contextKey = iota
	adminKey
)

// SessionFromContext returns the authenticated session placed by the auth
// middleware.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*models.Session)
	return s, ok
}

// AdminFromContext returns the admin row for the authenticated admin session.
func AdminFromContext(ctx context.Context) (*models.Admin, bool) {
	a, ok := ctx.Value(adminKey).(*models.Admin)
	return a, ok
}

// RequireSession authenticates the realm's session cookie and enforces the
// double-submit CSRF header on mutating methods.
func RequireSession(svc *sessions.Service, realm sessions.Realm) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(realm.SessionCookie)
			if err != nil || cookie.Value == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			session, err := svc.Authenticate(r.Context(), cookie.Value)
			if err != nil {
				writeError(w, err)
				return
			}
			if mutating(r.Method) {
				if err := svc.VerifyCSRF(session, r.Header.Get(sessions.CSRFHeader)); err != nil {
					writeError(w, err)
					return
				}
			}
			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdminIdentity resolves the admin row behind an admin session without
// the second-factor gate. Only the session, logout, and OTP verification
// routes mount this directly; everything else goes through RequireAdmin.
func RequireAdminIdentity(admins repository.AdminRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := SessionFromContext(r.Context())
			if !ok || session.ActorKind != models.ActorKindAdmin || session.AdminID == nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			admin, err := admins.GetByID(r.Context(), *session.AdminID)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			ctx := context.WithValue(r.Context(), adminKey, admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin additionally blocks sessions pending second-factor
// verification.
func RequireAdmin(admins repository.AdminRepository) func(http.Handler) http.Handler {
	resolve := RequireAdminIdentity(admins)
	return func(next http.Handler) http.Handler {
		gate := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, _ := SessionFromContext(r.Context())
			if session.OtpRequired && !session.OtpVerified {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Code: "otp_required"})
				return
			}
			next.ServeHTTP(w, r)
		})
		return resolve(gate)
	}
}

// Authorize enforces the casbin policy for an admin action on a resource.
func Authorize(enforcer casbin.IEnforcer, resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin, ok := AdminFromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			allowed, err := authz.Authorize(enforcer, admin, resource, action)
			if err != nil {
				writeError(w, err)
				return
			}
			if !allowed {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
