// Package accounts orchestrates registration, login, and password change for
// both realms on top of the PAKE engine. The authenticated identity always
// comes from the PAKE session transcript; client-supplied identity fields in
// finish payloads never reach this layer.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/pake"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/audit"
	"github.com/darkauth/darkauth/internal/services/iam"
	"github.com/darkauth/darkauth/internal/services/sessions"
)

// Credential identifier prefix separating admin records from user records in
// the PAKE engine.
const adminRefPrefix = "admin:"

var (
	// ErrLoginNotAllowed is returned when no group of the user enables login.
	ErrLoginNotAllowed = errors.New("login not allowed")

	// ErrEmailTaken is returned when registration hits an existing email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrPasswordReuse is returned when a password change presents an export
	// key hash already seen for the account.
	ErrPasswordReuse = errors.New("password was used before")
)

// Service wires the PAKE engine to principals, sessions, and policy.
type Service struct {
	pake     *pake.Service
	users    repository.UserRepository
	admins   repository.AdminRepository
	rbac     repository.RBACRepository
	sessions *sessions.Service
	iam      iam.Service
	audit    *audit.Service
	now      func() time.Time
}

// Deps bundles the collaborators.
type Deps struct {
	Pake     *pake.Service
	Users    repository.UserRepository
	Admins   repository.AdminRepository
	RBAC     repository.RBACRepository
	Sessions *sessions.Service
	IAM      iam.Service
	Audit    *audit.Service
}

// NewService creates the account service.
func NewService(deps Deps) *Service {
	return &Service{
		pake:     deps.Pake,
		users:    deps.Users,
		admins:   deps.Admins,
		rbac:     deps.RBAC,
		sessions: deps.Sessions,
		iam:      deps.IAM,
		audit:    deps.Audit,
		now:      time.Now,
	}
}

// StartResult is returned by the start half of both sub-protocols.
type StartResult struct {
	SessionID       string
	Message         []byte
	ServerPublicKey []byte
}

// LoginResult is returned after a successful login finish.
type LoginResult struct {
	Session     *sessions.Created
	Sub         string
	Email       string
	Name        string
	OtpRequired bool
	SessionKey  []byte
}

// RegisterStart begins user registration. The email is normalized to lower
// case and checked for availability up front; the PAKE exchange still runs on
// conflict so timing does not reveal the check, and the conflict surfaces at
// finish.
func (s *Service) RegisterStart(ctx context.Context, email string, request []byte) (*StartResult, error) {
	email = NormalizeEmail(email)
	message, sessionID, err := s.pake.RegisterStart(email, request)
	if err != nil {
		return nil, err
	}
	return &StartResult{
		SessionID:       sessionID,
		Message:         message,
		ServerPublicKey: s.pake.ServerPublicKey(),
	}, nil
}

// RegisterFinish completes registration: validates the record against the
// session, creates the user, stores the PAKE record, and places the user in
// the default group so login works out of the box.
func (s *Service) RegisterFinish(ctx context.Context, sessionID, email, name string, record []byte, exportKeyHash string) (*models.User, error) {
	email = NormalizeEmail(email)
	envelope, err := s.pake.RegisterFinish(sessionID, email, record)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &models.User{
		Sub:       uuid.Must(uuid.NewV7()).String(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	rec := &models.PakeRecord{
		Sub:          user.Sub,
		Envelope:     envelope,
		ServerPubkey: s.pake.ServerPublicKey(),
		CreatedAt:    now,
	}
	if exportKeyHash != "" {
		rec.ExportKeyHash = &exportKeyHash
	}
	if err := s.users.UpsertPakeRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("store pake record: %w", err)
	}

	if err := s.rbac.AddUserToGroup(ctx, user.Sub, models.DefaultGroupKey); err != nil {
		return nil, fmt.Errorf("assign default group: %w", err)
	}

	s.audit.Emit(&models.AuditLog{
		EventType: audit.EventUserRegister,
		ActorKind: models.ActorKindUser,
		ActorID:   user.Sub,
		Success:   true,
	})
	return user, nil
}

// LoginStart begins a user login. Unknown emails run the exchange against a
// fake record; the response is indistinguishable from a real one.
func (s *Service) LoginStart(ctx context.Context, email string, ke1 []byte) (*StartResult, error) {
	email = NormalizeEmail(email)

	var envelope []byte
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		rec, err := s.users.GetPakeRecord(ctx, user.Sub)
		if err == nil {
			envelope = rec.Envelope
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load pake record: %w", err)
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	ke2, sessionID, err := s.pake.LoginStart(email, envelope, ke1)
	if err != nil {
		return nil, err
	}
	return &StartResult{SessionID: sessionID, Message: ke2}, nil
}

// LoginFinish verifies the client proof, evaluates login eligibility and OTP
// policy, and opens the session. The subject is resolved from the session
// transcript's email.
func (s *Service) LoginFinish(ctx context.Context, sessionID string, ke3 []byte, userAgent, ip string) (*LoginResult, error) {
	sessionKey, email, err := s.pake.LoginFinish(sessionID, ke3)
	if err != nil {
		s.audit.Emit(&models.AuditLog{
			EventType: audit.EventUserLoginFailed,
			ActorKind: models.ActorKindUser,
			Success:   false,
		})
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, pake.ErrAuthenticationFailed
	}

	allowed, err := s.iam.CanLogin(ctx, user.Sub)
	if err != nil {
		return nil, fmt.Errorf("evaluate login eligibility: %w", err)
	}
	if !allowed {
		return nil, ErrLoginNotAllowed
	}
	otpRequired, err := s.iam.OTPRequired(ctx, user.Sub)
	if err != nil {
		return nil, fmt.Errorf("evaluate otp policy: %w", err)
	}

	created, err := s.sessions.CreateUserSession(ctx, user.Sub, nil, otpRequired, userAgent, ip)
	if err != nil {
		return nil, err
	}
	_ = s.users.SetLastLogin(ctx, user.Sub, s.now())

	s.audit.Emit(&models.AuditLog{
		EventType: audit.EventUserLogin,
		ActorKind: models.ActorKindUser,
		ActorID:   user.Sub,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})
	return &LoginResult{
		Session:     created,
		Sub:         user.Sub,
		Email:       user.Email,
		Name:        user.Name,
		OtpRequired: otpRequired,
		SessionKey:  sessionKey,
	}, nil
}

// ChangePasswordStart begins a password change for an authenticated user. It
// is a registration exchange keyed to the existing email.
func (s *Service) ChangePasswordStart(ctx context.Context, sub string, request []byte) (*StartResult, error) {
	user, err := s.users.GetBySub(ctx, sub)
	if err != nil {
		return nil, err
	}
	message, sessionID, err := s.pake.RegisterStart(user.Email, request)
	if err != nil {
		return nil, err
	}
	return &StartResult{
		SessionID:       sessionID,
		Message:         message,
		ServerPublicKey: s.pake.ServerPublicKey(),
	}, nil
}

// ChangePasswordFinish replaces the PAKE record. The export key hash is
// checked against history so an old password cannot return.
func (s *Service) ChangePasswordFinish(ctx context.Context, sub, sessionID string, record []byte, exportKeyHash string) error {
	user, err := s.users.GetBySub(ctx, sub)
	if err != nil {
		return err
	}
	envelope, err := s.pake.RegisterFinish(sessionID, user.Email, record)
	if err != nil {
		return err
	}

	if exportKeyHash != "" {
		seen, err := s.users.ExportKeyHashSeen(ctx, sub, exportKeyHash)
		if err != nil {
			return fmt.Errorf("check password history: %w", err)
		}
		if seen {
			return ErrPasswordReuse
		}
	}

	now := s.now()
	rec := &models.PakeRecord{
		Sub:          sub,
		Envelope:     envelope,
		ServerPubkey: s.pake.ServerPublicKey(),
		CreatedAt:    now,
		RotatedAt:    &now,
	}
	if exportKeyHash != "" {
		rec.ExportKeyHash = &exportKeyHash
	}
	if err := s.users.RotatePakeRecord(ctx, rec); err != nil {
		return fmt.Errorf("rotate pake record: %w", err)
	}

	if user.PasswordResetRequired {
		user.PasswordResetRequired = false
		user.UpdatedAt = now
		_ = s.users.Update(ctx, user)
	}
	return nil
}

// NormalizeEmail lowercases and trims an address. Emails are compared
// normalized everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail reports whether a normalized address has the expected shape.
// Full RFC validation is left to the verification mail round trip.
func ValidEmail(email string) bool {
	return len(email) <= 254 && emailPattern.MatchString(email)
}
