package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/audit"
)

// FinalizeRequest carries the consent decision for a pending auth.
type FinalizeRequest struct {
	RequestID string
	Approve   bool
	// DRKHash is the base64url SHA-256 of the client-held DRK, supplied on
	// approve when the client uses ZK delivery.
	DRKHash string
}

// FinalizeResult is returned to the consent UI, which forwards the browser to
// RedirectURI with either the code or the access_denied error.
type FinalizeResult struct {
	Code        string  `json:"code,omitempty"`
	Error       string  `json:"error,omitempty"`
	State       *string `json:"state,omitempty"`
	RedirectURI string  `json:"redirect_uri"`
}

// Finalize resolves a pending auth for an authenticated user session. The
// subject binds to the pending auth exactly once; a different session
// finalizing the same request fails. Approval mints a single-use code with a
// 60 second lifetime.
func (s *Service) Finalize(ctx context.Context, session *models.Session, req FinalizeRequest) (*FinalizeResult, error) {
	if session.ActorKind != models.ActorKindUser || session.UserSub == nil {
		return nil, Forbidden("user session required")
	}
	if session.OtpRequired && !session.OtpVerified {
		return nil, Forbidden("second factor required")
	}
	sub := *session.UserSub

	pa, err := s.pending.GetByID(ctx, req.RequestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, InvalidRequest("unknown or expired request_id")
		}
		return nil, fmt.Errorf("load pending auth: %w", err)
	}
	if s.now().After(pa.ExpiresAt) {
		_ = s.pending.Delete(ctx, pa.RequestID)
		return nil, InvalidRequest("unknown or expired request_id")
	}

	switch {
	case pa.UserSub == nil:
		if err := s.pending.BindUser(ctx, pa.RequestID, sub); err != nil {
			if errors.Is(err, repository.ErrAlreadyConsumed) {
				return nil, Forbidden("request is bound to another subject")
			}
			return nil, fmt.Errorf("bind pending auth: %w", err)
		}
	case *pa.UserSub != sub:
		return nil, Forbidden("request is bound to another subject")
	}

	if !req.Approve {
		_ = s.pending.Delete(ctx, pa.RequestID)
		return &FinalizeResult{Error: CodeAccessDenied, State: pa.State, RedirectURI: pa.RedirectURI}, nil
	}

	client, err := s.clients.GetByID(ctx, pa.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}

	codeValue, err := crypto.RandomToken(authCodeBytes)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	now := s.now()
	code := &models.AuthCode{
		Code:                codeValue,
		ClientID:            pa.ClientID,
		UserSub:             sub,
		RedirectURI:         pa.RedirectURI,
		Nonce:               pa.Nonce,
		CodeChallenge:       pa.CodeChallenge,
		CodeChallengeMethod: pa.CodeChallengeMethod,
		HasZK:               client.ZKDelivery != models.ZKDeliveryNone && pa.ZKPubKid != nil,
		ZKPubKid:            pa.ZKPubKid,
		CreatedAt:           now,
		ExpiresAt:           now.Add(authCodeTTL),
	}
	if req.DRKHash != "" {
		if _, err := crypto.DecodeBase64URL(req.DRKHash); err != nil {
			return nil, InvalidRequest("drk_hash must be base64url")
		}
		code.DRKHash = &req.DRKHash
	}

	if err := s.codes.Create(ctx, code); err != nil {
		return nil, fmt.Errorf("create auth code: %w", err)
	}
	_ = s.pending.Delete(ctx, pa.RequestID)

	s.audit.Emit(&models.AuditLog{
		EventType:    audit.EventCodeIssued,
		ActorKind:    models.ActorKindUser,
		ActorID:      sub,
		ResourceType: "client",
		ResourceID:   pa.ClientID,
		Success:      true,
	})

	return &FinalizeResult{Code: codeValue, State: pa.State, RedirectURI: pa.RedirectURI}, nil
}
