// Package email issues single-use mail tokens (address verification, account
// recovery bootstrap) and delivers them over SMTP. With no SMTP host
// configured, delivery is disabled and links are logged instead, which keeps
// development setups working.
package email

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"time"

	"github.com/darkauth/darkauth/internal/config"
	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
)

// Token purposes, aliased from the model so callers need only this package.
const (
	PurposeVerify      = models.EmailPurposeSignupVerify
	PurposeEmailChange = models.EmailPurposeEmailChangeVerify
	PurposeRecovery    = models.EmailPurposePasswordRecovery
)

const (
	tokenBytes = 32
	tokenTTL   = 24 * time.Hour
)

// Sender delivers a single message. Satisfied by smtpSender and by test
// doubles.
type Sender interface {
	Send(to, subject, body string) error
}

// Service issues and consumes email tokens.
type Service struct {
	repo     repository.OTPRepository
	sender   Sender
	uiOrigin string
	now      func() time.Time
}

// NewService builds the service from SMTP config. An empty Host selects the
// log-only sender.
func NewService(repo repository.OTPRepository, cfg config.EmailConfig, uiOrigin string) *Service {
	var sender Sender
	if cfg.Host == "" {
		sender = logSender{}
	} else {
		sender = &smtpSender{cfg: cfg}
	}
	return &Service{repo: repo, sender: sender, uiOrigin: uiOrigin, now: time.Now}
}

// SendVerification issues a verification token for the user's address and
// mails the confirmation link. Prior unconsumed tokens for the same purpose
// are invalidated.
func (s *Service) SendVerification(ctx context.Context, userSub, address string) error {
	token, err := s.issue(ctx, userSub, PurposeVerify, address)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(s.uiOrigin, "/"), token)
	body := "Confirm your email address by opening this link:\r\n\r\n" + link +
		"\r\n\r\nThe link expires in 24 hours. If you did not request this, ignore this message.\r\n"
	if err := s.sender.Send(address, "Confirm your email address", body); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}

// ConfirmVerification consumes a verification token and returns the subject
// and address it was issued for. Replayed or expired tokens fail with the
// repository sentinels.
func (s *Service) ConfirmVerification(ctx context.Context, token string) (userSub, address string, err error) {
	return s.consume(ctx, token, PurposeVerify)
}

// SendRecovery issues a password-recovery token and mails the reset link.
// Recovery ends in a PAKE re-registration gated by this token, so admin-created
// accounts without a PAKE record bootstrap through the same flow.
func (s *Service) SendRecovery(ctx context.Context, userSub, address string) error {
	token, err := s.issue(ctx, userSub, PurposeRecovery, address)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/recover?token=%s", strings.TrimRight(s.uiOrigin, "/"), token)
	body := "Reset your password by opening this link:\r\n\r\n" + link +
		"\r\n\r\nThe link expires in 24 hours. If you did not request this, ignore this message.\r\n"
	if err := s.sender.Send(address, "Reset your password", body); err != nil {
		return fmt.Errorf("send recovery mail: %w", err)
	}
	return nil
}

// PeekRecovery resolves a recovery token to its subject without consuming it.
// The recovery start step needs the subject to run the PAKE exchange; the
// token stays single-use and is spent by ConsumeRecovery at finish.
func (s *Service) PeekRecovery(ctx context.Context, token string) (userSub string, err error) {
	rec, err := s.repo.GetEmailToken(ctx, crypto.HashToken(token), s.now())
	if err != nil {
		return "", err
	}
	if rec.Purpose != PurposeRecovery {
		return "", repository.ErrNotFound
	}
	return rec.UserSub, nil
}

// ConsumeRecovery spends a recovery token exactly once.
func (s *Service) ConsumeRecovery(ctx context.Context, token string) (userSub string, err error) {
	sub, _, err := s.consume(ctx, token, PurposeRecovery)
	return sub, err
}

// SendEmailChange issues a change token bound to the new address and mails the
// confirmation link there. The address only changes once the link is opened.
func (s *Service) SendEmailChange(ctx context.Context, userSub, newAddress string) error {
	token, err := s.issue(ctx, userSub, PurposeEmailChange, newAddress)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/confirm-email-change?token=%s", strings.TrimRight(s.uiOrigin, "/"), token)
	body := "Confirm your new email address by opening this link:\r\n\r\n" + link +
		"\r\n\r\nThe link expires in 24 hours. If you did not request this, ignore this message.\r\n"
	if err := s.sender.Send(newAddress, "Confirm your new email address", body); err != nil {
		return fmt.Errorf("send email change mail: %w", err)
	}
	return nil
}

// ConfirmEmailChange consumes a change token and returns the subject and the
// new address to apply.
func (s *Service) ConfirmEmailChange(ctx context.Context, token string) (userSub, newAddress string, err error) {
	return s.consume(ctx, token, PurposeEmailChange)
}

// consume spends a token and checks its purpose. A token minted for one flow
// never satisfies another.
func (s *Service) consume(ctx context.Context, token, purpose string) (userSub, address string, err error) {
	rec, err := s.repo.ConsumeEmailToken(ctx, crypto.HashToken(token), s.now())
	if err != nil {
		return "", "", err
	}
	if rec.Purpose != purpose {
		return "", "", repository.ErrNotFound
	}
	return rec.UserSub, rec.TargetEmail, nil
}

func (s *Service) issue(ctx context.Context, userSub, purpose, address string) (string, error) {
	token, err := crypto.RandomToken(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate email token: %w", err)
	}
	now := s.now()
	rec := &models.EmailVerificationToken{
		TokenHash:   crypto.HashToken(token),
		UserSub:     userSub,
		Purpose:     purpose,
		TargetEmail: address,
		CreatedAt:   now,
		ExpiresAt:   now.Add(tokenTTL),
	}
	if err := s.repo.CreateEmailToken(ctx, rec); err != nil {
		return "", fmt.Errorf("store email token: %w", err)
	}
	return token, nil
}

type smtpSender struct {
	cfg config.EmailConfig
}

func (s *smtpSender) Send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// logSender is used when SMTP is not configured. The full body is not logged,
// only the recipient and subject.
type logSender struct{}

func (logSender) Send(to, subject, _ string) error {
	log.Printf("email delivery disabled, skipped %q to %s", subject, to)
	return nil
}
