// Package otp implements the TOTP second factor: enrollment, login-time
// verification with replay and lockout guards, and the admin reset surface.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
)

// Lockout policy: maxFailures consecutive failures lock verification for
// lockoutDuration. The counter resets on success.
const (
	maxFailures     = 5
	lockoutDuration = 15 * time.Minute
)

var (
	// ErrInvalidCode is returned when the submitted code matches no
	// accepted step or replays an already-used step.
	ErrInvalidCode = errors.New("invalid otp code")

	// ErrLocked is returned while the credential is locked out.
	ErrLocked = errors.New("otp locked")

	// ErrNotEnabled is returned when verification is attempted before a
	// credential is enrolled and verified.
	ErrNotEnabled = errors.New("otp not enabled")

	// ErrAlreadyEnabled guards setup-init against silently replacing an
	// active credential.
	ErrAlreadyEnabled = errors.New("otp already enabled")
)

// Service manages OTP credentials for users and admins, keyed by actor ref.
type Service struct {
	repo   repository.OTPRepository
	kek    *crypto.KEK
	issuer string
	now    func() time.Time
}

// NewService creates the OTP service. The issuer labels provisioning URIs.
func NewService(repo repository.OTPRepository, kek *crypto.KEK, issuer string) *Service {
	return &Service{repo: repo, kek: kek, issuer: issuer, now: time.Now}
}

// Setup is returned by SetupInit for the enrollment QR code.
type Setup struct {
	Secret          string
	ProvisioningURI string
}

// SetupInit generates a fresh secret and stores it disabled and unverified.
// Re-running setup before verification replaces the pending secret; an
// enabled credential must be deleted by an admin first.
func (s *Service) SetupInit(ctx context.Context, actorRef, accountLabel string) (*Setup, error) {
	existing, err := s.repo.Get(ctx, actorRef)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Enabled {
		return nil, ErrAlreadyEnabled
	}

	secret, err := crypto.GenerateTOTPSecret()
	if err != nil {
		return nil, err
	}
	secretEnc, err := s.kek.WrapString(secret)
	if err != nil {
		return nil, fmt.Errorf("wrap otp secret: %w", err)
	}

	cred := &models.OTPCredential{
		ActorRef:  actorRef,
		SecretEnc: secretEnc,
		Algorithm: string(crypto.TOTPAlgorithmSHA1),
		CreatedAt: s.now(),
	}
	if err := s.repo.Upsert(ctx, cred); err != nil {
		return nil, err
	}

	return &Setup{
		Secret:          secret,
		ProvisioningURI: crypto.TOTPProvisioningURI(s.issuer, accountLabel, secret, crypto.TOTPAlgorithmSHA1),
	}, nil
}

// SetupVerify confirms enrollment with a first valid code and enables the
// credential.
func (s *Service) SetupVerify(ctx context.Context, actorRef, code string) error {
	cred, err := s.repo.Get(ctx, actorRef)
	if err != nil {
		return err
	}
	if cred.Enabled {
		return ErrAlreadyEnabled
	}

	secret, err := s.kek.UnwrapString(cred.SecretEnc)
	if err != nil {
		return fmt.Errorf("unwrap otp secret: %w", err)
	}
	step, ok := crypto.MatchTOTP(secret, crypto.TOTPAlgorithm(cred.Algorithm), code, s.now())
	if !ok {
		return ErrInvalidCode
	}

	now := s.now()
	cred.Enabled = true
	cred.Verified = true
	cred.LastStep = step
	cred.LastUsedAt = &now
	cred.FailureCount = 0
	cred.LockedUntil = nil
	return s.repo.Update(ctx, cred)
}

// Verify checks a login-time code. Accepted steps are now-1, now, now+1; a
// step at or below the last used one is a replay and fails. Five consecutive
// failures lock the credential for fifteen minutes.
func (s *Service) Verify(ctx context.Context, actorRef, code string) error {
	cred, err := s.repo.Get(ctx, actorRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotEnabled
		}
		return err
	}
	if !cred.Enabled || !cred.Verified {
		return ErrNotEnabled
	}

	now := s.now()
	if cred.LockedUntil != nil && now.Before(*cred.LockedUntil) {
		return ErrLocked
	}

	secret, err := s.kek.UnwrapString(cred.SecretEnc)
	if err != nil {
		return fmt.Errorf("unwrap otp secret: %w", err)
	}

	step, ok := crypto.MatchTOTP(secret, crypto.TOTPAlgorithm(cred.Algorithm), code, now)
	if ok && step > cred.LastStep {
		cred.LastStep = step
		cred.LastUsedAt = &now
		cred.FailureCount = 0
		cred.LockedUntil = nil
		return s.repo.Update(ctx, cred)
	}

	cred.FailureCount++
	if cred.FailureCount >= maxFailures {
		until := now.Add(lockoutDuration)
		cred.LockedUntil = &until
		cred.FailureCount = 0
	}
	if updateErr := s.repo.Update(ctx, cred); updateErr != nil {
		return updateErr
	}
	if cred.LockedUntil != nil && now.Before(*cred.LockedUntil) {
		return ErrLocked
	}
	return ErrInvalidCode
}

// Status describes the credential for the account page and the admin view.
type Status struct {
	Enabled     bool
	Verified    bool
	LockedUntil *time.Time
}

// Status reports the credential state, absent credentials included.
func (s *Service) Status(ctx context.Context, actorRef string) (*Status, error) {
	cred, err := s.repo.Get(ctx, actorRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &Status{}, nil
		}
		return nil, err
	}
	return &Status{Enabled: cred.Enabled, Verified: cred.Verified, LockedUntil: cred.LockedUntil}, nil
}

// Disable removes the credential entirely (admin operation). The next setup
// starts from scratch.
func (s *Service) Disable(ctx context.Context, actorRef string) error {
	err := s.repo.Delete(ctx, actorRef)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// Unlock clears an active lockout without touching the credential (admin
// operation).
func (s *Service) Unlock(ctx context.Context, actorRef string) error {
	cred, err := s.repo.Get(ctx, actorRef)
	if err != nil {
		return err
	}
	cred.FailureCount = 0
	cred.LockedUntil = nil
	return s.repo.Update(ctx, cred)
}
