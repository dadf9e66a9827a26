// Package sessions manages browser sessions for both realms: opaque cookie
// tokens stored hashed, per-session CSRF secrets, and rotating refresh
// tokens.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
)

// Cookie names. The __Host- prefix pins cookies to this origin, secure, no
// domain attribute, path /.
const (
	UserSessionCookie  = "__Host-DarkAuth-User"
	UserCsrfCookie     = "__Host-DarkAuth-User-Csrf"
	UserRefreshCookie  = "__Host-DarkAuth-User-Refresh"
	AdminSessionCookie = "__Host-DarkAuth-Admin"
	AdminCsrfCookie    = "__Host-DarkAuth-Admin-Csrf"
	AdminRefreshCookie = "__Host-DarkAuth-Admin-Refresh"
)

// CSRFHeader carries the double-submit value on mutating requests.
const CSRFHeader = "X-Csrf-Token"

// Realm selects the cookie triple for one of the two HTTP surfaces.
type Realm struct {
	SessionCookie string
	CsrfCookie    string
	RefreshCookie string
}

// The two realms.
var (
	UserRealm  = Realm{SessionCookie: UserSessionCookie, CsrfCookie: UserCsrfCookie, RefreshCookie: UserRefreshCookie}
	AdminRealm = Realm{SessionCookie: AdminSessionCookie, CsrfCookie: AdminCsrfCookie, RefreshCookie: AdminRefreshCookie}
)

// Session/refresh token sizes in bytes.
const (
	tokenBytes  = 32
	secretBytes = 32
)

var (
	// ErrSessionExpired is returned when the cookie references a session
	// past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrCSRFMismatch is returned when the double-submit header does not
	// match the session's secret.
	ErrCSRFMismatch = errors.New("csrf token mismatch")

	// ErrRefreshExpired is returned when the presented refresh token is past
	// its expiry. Unlike a replay, expiry is benign and leaves the session
	// chain alone.
	ErrRefreshExpired = errors.New("refresh token expired")
)

// Service implements session lifecycle for users and admins.
type Service struct {
	repo            repository.SessionRepository
	sessionLifetime time.Duration
	refreshLifetime time.Duration
	secureCookies   bool
	now             func() time.Time
}

// NewService creates the session service. secureCookies should be false only
// for plain-HTTP development setups, where the __Host- prefix is not
// enforceable by the browser anyway.
func NewService(repo repository.SessionRepository, sessionLifetime, refreshLifetime time.Duration, secureCookies bool) *Service {
	return &Service{
		repo:            repo,
		sessionLifetime: sessionLifetime,
		refreshLifetime: refreshLifetime,
		secureCookies:   secureCookies,
		now:             time.Now,
	}
}

// Created bundles everything the HTTP layer needs to set cookies after a
// successful authentication.
type Created struct {
	Session      *models.Session
	Token        string
	CsrfSecret   string
	RefreshToken string
}

// CreateUserSession opens a session for a user. otpRequired marks the session
// as pending second-factor verification; it carries no authority until
// OtpVerified flips.
func (s *Service) CreateUserSession(ctx context.Context, sub string, clientID *string, otpRequired bool, userAgent, ip string) (*Created, error) {
	return s.create(ctx, models.ActorKindUser, &sub, nil, clientID, otpRequired, userAgent, ip)
}

// CreateAdminSession opens a session for an admin.
func (s *Service) CreateAdminSession(ctx context.Context, adminID string, otpRequired bool, userAgent, ip string) (*Created, error) {
	return s.create(ctx, models.ActorKindAdmin, nil, &adminID, nil, otpRequired, userAgent, ip)
}

func (s *Service) create(ctx context.Context, kind string, userSub, adminID, clientID *string, otpRequired bool, userAgent, ip string) (*Created, error) {
	token, err := crypto.RandomToken(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	csrf, err := crypto.RandomToken(secretBytes)
	if err != nil {
		return nil, fmt.Errorf("generate csrf secret: %w", err)
	}
	refresh, err := crypto.RandomToken(secretBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh secret: %w", err)
	}

	now := s.now()
	session := &models.Session{
		ID:          uuid.Must(uuid.NewV7()).String(),
		TokenHash:   crypto.HashToken(token),
		ActorKind:   kind,
		UserSub:     userSub,
		AdminID:     adminID,
		ClientID:    clientID,
		CsrfSecret:  csrf,
		OtpRequired: otpRequired,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.sessionLifetime),
		LastUsedAt:  now,
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}
	if ip != "" {
		session.IPAddress = &ip
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	rt := &models.RefreshToken{
		TokenHash: crypto.HashToken(refresh),
		SessionID: session.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshLifetime),
	}
	if err := s.repo.CreateRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	return &Created{Session: session, Token: token, CsrfSecret: csrf, RefreshToken: refresh}, nil
}

// Authenticate resolves a cookie token to its session, rejecting expired
// ones. LastUsedAt is bumped best-effort.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	session, err := s.repo.GetByTokenHash(ctx, crypto.HashToken(token))
	if err != nil {
		return nil, err
	}
	if s.now().After(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	session.LastUsedAt = s.now()
	_ = s.repo.Update(ctx, session)
	return session, nil
}

// VerifyCSRF checks the double-submit header against the session's secret in
// constant time.
func (s *Service) VerifyCSRF(session *models.Session, header string) error {
	if header == "" || !crypto.ConstantTimeEquals(session.CsrfSecret, header) {
		return ErrCSRFMismatch
	}
	return nil
}

// MarkOtpVerified flips the session's second-factor flag.
func (s *Service) MarkOtpVerified(ctx context.Context, session *models.Session) error {
	session.OtpVerified = true
	if err := s.repo.Update(ctx, session); err != nil {
		return fmt.Errorf("mark otp verified: %w", err)
	}
	return nil
}

// Refresh rotates the refresh token: the presented secret is consumed exactly
// once and a successor is issued. An expired secret returns ErrRefreshExpired
// without touching the chain. A replayed secret returns
// repository.ErrAlreadyConsumed; callers treat that as a compromised chain
// and revoke the session.
func (s *Service) Refresh(ctx context.Context, refreshSecret string) (*models.Session, string, error) {
	oldHash := crypto.HashToken(refreshSecret)
	current, err := s.repo.GetRefreshToken(ctx, oldHash)
	if err != nil {
		return nil, "", err
	}
	if s.now().After(current.ExpiresAt) {
		return nil, "", ErrRefreshExpired
	}

	next, err := crypto.RandomToken(secretBytes)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh secret: %w", err)
	}
	now := s.now()
	rt := &models.RefreshToken{
		TokenHash: crypto.HashToken(next),
		SessionID: current.SessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshLifetime),
	}
	if err := s.repo.RotateRefreshToken(ctx, oldHash, rt); err != nil {
		if errors.Is(err, repository.ErrAlreadyConsumed) {
			// Reuse of a consumed token: kill the whole chain.
			_ = s.repo.Delete(ctx, current.SessionID)
		}
		return nil, "", err
	}

	session, err := s.repo.GetByID(ctx, current.SessionID)
	if err != nil {
		return nil, "", err
	}
	session.ExpiresAt = now.Add(s.sessionLifetime)
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, "", fmt.Errorf("extend session: %w", err)
	}
	return session, next, nil
}

// Logout deletes the session; refresh tokens cascade.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

// SetCookies writes the realm's cookie triple.
func (s *Service) SetCookies(w http.ResponseWriter, realm Realm, created *Created) {
	expires := created.Session.ExpiresAt
	s.setCookie(w, realm.SessionCookie, created.Token, expires, true)
	s.setCookie(w, realm.CsrfCookie, created.CsrfSecret, expires, false)
	s.setCookie(w, realm.RefreshCookie, created.RefreshToken, s.now().Add(s.refreshLifetime), true)
}

// RotateRefreshCookie replaces only the refresh cookie after a rotation.
func (s *Service) RotateRefreshCookie(w http.ResponseWriter, realm Realm, secret string) {
	s.setCookie(w, realm.RefreshCookie, secret, s.now().Add(s.refreshLifetime), true)
}

// ClearCookies expires the realm's cookie triple.
func (s *Service) ClearCookies(w http.ResponseWriter, realm Realm) {
	past := time.Unix(0, 0)
	s.setCookie(w, realm.SessionCookie, "", past, true)
	s.setCookie(w, realm.CsrfCookie, "", past, false)
	s.setCookie(w, realm.RefreshCookie, "", past, true)
}

// setCookie applies the __Host- constraints: Secure, Path=/, no Domain. The
// CSRF cookie is readable by the UI for the double-submit header.
func (s *Service) setCookie(w http.ResponseWriter, name, value string, expires time.Time, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: httpOnly,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
