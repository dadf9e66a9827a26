package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/pake"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/audit"
	"github.com/darkauth/darkauth/internal/services/sessions"
)

// AdminLoginResult is returned after a successful admin login finish.
type AdminLoginResult struct {
	Session     *sessions.Created
	AdminID     string
	Email       string
	Name        string
	Role        string
	OtpRequired bool
}

// AdminLoginStart begins an admin login; unknown admins get the fake-record
// treatment just like users.
func (s *Service) AdminLoginStart(ctx context.Context, email string, ke1 []byte) (*StartResult, error) {
	email = NormalizeEmail(email)

	var envelope []byte
	admin, err := s.admins.GetByEmail(ctx, email)
	if err == nil {
		rec, err := s.admins.GetPakeRecord(ctx, admin.ID)
		if err == nil {
			envelope = rec.Envelope
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load admin pake record: %w", err)
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load admin: %w", err)
	}

	ke2, sessionID, err := s.pake.LoginStart(adminRefPrefix+email, envelope, ke1)
	if err != nil {
		return nil, err
	}
	return &StartResult{SessionID: sessionID, Message: ke2}, nil
}

// AdminLoginFinish verifies the proof and opens an admin session. otpRequired
// follows the admin OTP policy flag supplied by the caller (read from
// settings at request time).
func (s *Service) AdminLoginFinish(ctx context.Context, sessionID string, ke3 []byte, otpRequired bool, userAgent, ip string) (*AdminLoginResult, error) {
	_, actorRef, err := s.pake.LoginFinish(sessionID, ke3)
	if err != nil {
		s.audit.Emit(&models.AuditLog{
			EventType: audit.EventUserLoginFailed,
			ActorKind: models.ActorKindAdmin,
			Success:   false,
		})
		return nil, err
	}
	email, ok := strings.CutPrefix(actorRef, adminRefPrefix)
	if !ok {
		return nil, pake.ErrAuthenticationFailed
	}

	admin, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		return nil, pake.ErrAuthenticationFailed
	}

	created, err := s.sessions.CreateAdminSession(ctx, admin.ID, otpRequired, userAgent, ip)
	if err != nil {
		return nil, err
	}

	s.audit.Emit(&models.AuditLog{
		EventType: audit.EventAdminLogin,
		ActorKind: models.ActorKindAdmin,
		ActorID:   admin.ID,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})
	return &AdminLoginResult{
		Session:     created,
		AdminID:     admin.ID,
		Email:       admin.Email,
		Name:        admin.Name,
		Role:        admin.Role,
		OtpRequired: otpRequired,
	}, nil
}

// AdminRegisterStart begins a PAKE registration for an admin account. Used by
// install and by write admins creating peers.
func (s *Service) AdminRegisterStart(ctx context.Context, email string, request []byte) (*StartResult, error) {
	email = NormalizeEmail(email)
	message, sessionID, err := s.pake.RegisterStart(adminRefPrefix+email, request)
	if err != nil {
		return nil, err
	}
	return &StartResult{
		SessionID:       sessionID,
		Message:         message,
		ServerPublicKey: s.pake.ServerPublicKey(),
	}, nil
}

// AdminRegisterFinish validates the record and stores it for an existing
// admin row.
func (s *Service) AdminRegisterFinish(ctx context.Context, sessionID, adminID, email string, record []byte) error {
	email = NormalizeEmail(email)
	envelope, err := s.pake.RegisterFinish(sessionID, adminRefPrefix+email, record)
	if err != nil {
		return err
	}
	rec := &models.AdminPakeRecord{
		AdminID:      adminID,
		Envelope:     envelope,
		ServerPubkey: s.pake.ServerPublicKey(),
		CreatedAt:    s.now(),
	}
	if err := s.admins.UpsertPakeRecord(ctx, rec); err != nil {
		return fmt.Errorf("store admin pake record: %w", err)
	}
	return nil
}
