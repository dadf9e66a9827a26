package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/audit"
	"github.com/darkauth/darkauth/internal/services/sessions"
)

// Grant types.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
)

// TokenRequest is the parsed form body of POST /token plus the Basic
// credentials when present.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Scope        string

	// ClientID from the form body; BasicID/BasicSecret from the
	// Authorization header.
	ClientID    string
	BasicID     string
	BasicSecret string
	HasBasic    bool
}

// TokenResponse is the JSON body of a successful exchange.
type TokenResponse struct {
	IDToken      string `json:"id_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ZKDRKHash    string `json:"zk_drk_hash,omitempty"`
}

// Token dispatches on grant_type.
func (s *Service) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	switch req.GrantType {
	case GrantAuthorizationCode:
		return s.exchangeCode(ctx, req)
	case GrantRefreshToken:
		return s.refresh(ctx, req)
	case GrantClientCredentials:
		return s.clientCredentials(ctx, req)
	default:
		return nil, &Error{Code: CodeUnsupportedGrantType, Status: 400}
	}
}

// exchangeCode redeems an authorization code. The code flips consumed exactly
// once; concurrent redemptions lose with invalid_grant.
func (s *Service) exchangeCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, InvalidRequest("code is required")
	}

	code, err := s.codes.GetByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, InvalidGrant("")
		}
		return nil, fmt.Errorf("load code: %w", err)
	}
	if s.now().After(code.ExpiresAt) {
		_ = s.codes.Delete(ctx, code.Code)
		return nil, InvalidGrant("expired")
	}

	code, err = s.codes.Consume(ctx, req.Code)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyConsumed) {
			return nil, InvalidGrant("already used")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, InvalidGrant("")
		}
		return nil, fmt.Errorf("consume code: %w", err)
	}

	if req.RedirectURI != code.RedirectURI {
		return nil, InvalidGrant("redirect_uri does not match authorization request")
	}

	client, err := s.clients.GetByID(ctx, code.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}
	if err := s.authenticateClient(client, req, code.ClientID); err != nil {
		return nil, err
	}
	if err := verifyPKCE(client, code, req.CodeVerifier); err != nil {
		return nil, err
	}

	user, err := s.users.GetBySub(ctx, code.UserSub)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	idTTL := s.idTokenTTL(client)
	idToken, err := s.buildIDToken(ctx, user, client.ClientID, code.Nonce, idTTL)
	if err != nil {
		return nil, err
	}

	created, err := s.sessions.CreateUserSession(ctx, user.Sub, &client.ClientID, false, "", "")
	if err != nil {
		return nil, fmt.Errorf("create token session: %w", err)
	}

	resp := &TokenResponse{
		IDToken:      idToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(idTTL.Seconds()),
		RefreshToken: created.RefreshToken,
	}
	if code.HasZK && code.DRKHash != nil {
		resp.ZKDRKHash = *code.DRKHash
	}

	s.audit.Emit(&models.AuditLog{
		EventType:    audit.EventTokenIssued,
		ActorKind:    models.ActorKindUser,
		ActorID:      user.Sub,
		ResourceType: "client",
		ResourceID:   client.ClientID,
		Success:      true,
	})
	return resp, nil
}

// refresh rotates the presented refresh token and issues a fresh ID token for
// the session's original client.
func (s *Service) refresh(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, InvalidRequest("refresh_token is required")
	}

	session, next, err := s.sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		// Expiry is benign; only a replayed token signals chain compromise.
		if errors.Is(err, sessions.ErrRefreshExpired) {
			return nil, InvalidGrant("expired")
		}
		if errors.Is(err, repository.ErrAlreadyConsumed) {
			s.audit.Emit(&models.AuditLog{
				EventType: audit.EventRefreshReuse,
				Success:   false,
			})
		}
		return nil, InvalidGrant("")
	}
	if session.ActorKind != models.ActorKindUser || session.UserSub == nil || session.ClientID == nil {
		return nil, InvalidGrant("")
	}

	client, err := s.clients.GetByID(ctx, *session.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}
	// The new token's audience is the session's original client; a request
	// on behalf of a different client is rejected.
	if err := s.authenticateClient(client, req, client.ClientID); err != nil {
		return nil, err
	}

	user, err := s.users.GetBySub(ctx, *session.UserSub)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	idTTL := s.idTokenTTL(client)
	idToken, err := s.buildIDToken(ctx, user, client.ClientID, nil, idTTL)
	if err != nil {
		return nil, err
	}

	s.audit.Emit(&models.AuditLog{
		EventType:    audit.EventTokenRefreshed,
		ActorKind:    models.ActorKindUser,
		ActorID:      user.Sub,
		ResourceType: "client",
		ResourceID:   client.ClientID,
		Success:      true,
	})
	return &TokenResponse{
		IDToken:      idToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(idTTL.Seconds()),
		RefreshToken: next,
	}, nil
}

// clientCredentials issues a machine access token for confidential clients.
func (s *Service) clientCredentials(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if !req.HasBasic {
		return nil, UnauthorizedClient("client authentication required")
	}
	client, err := s.clients.GetByID(ctx, req.BasicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, UnauthorizedClient("")
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	if client.IsPublic() || !client.HasGrantType(GrantClientCredentials) {
		return nil, UnauthorizedClient("grant not allowed for this client")
	}
	if err := s.verifyClientSecret(client, req.BasicSecret); err != nil {
		return nil, err
	}

	for _, scope := range strings.Fields(req.Scope) {
		if !client.Scopes.Contains(scope) {
			return nil, InvalidScope(fmt.Sprintf("scope %q exceeds client grant", scope))
		}
	}

	now := s.now()
	ttl := s.idTokenTTL(client)
	token, err := s.keys.SignClaims(AccessTokenClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   client.ClientID,
		Audience:  s.cfg.Issuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		Scope:     req.Scope,
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresIn: int(ttl.Seconds())}, nil
}

// authenticateClient enforces the client's registered auth method. wantID is
// the client the grant artifact belongs to.
func (s *Service) authenticateClient(client *models.Client, req TokenRequest, wantID string) error {
	switch client.TokenEndpointAuthMethod {
	case models.AuthMethodNone:
		if req.HasBasic {
			return UnauthorizedClient("client is not registered for Basic authentication")
		}
		if req.ClientID != wantID {
			return UnauthorizedClient("client_id mismatch")
		}
		return nil
	case models.AuthMethodClientSecretBasic:
		if !req.HasBasic {
			return UnauthorizedClient("client authentication required")
		}
		if req.BasicID != wantID {
			return UnauthorizedClient("client_id mismatch")
		}
		return s.verifyClientSecret(client, req.BasicSecret)
	default:
		return UnauthorizedClient("unsupported client authentication method")
	}
}

// verifyClientSecret decrypts the stored secret and compares in constant
// time. Decryption failures collapse into the same error as a mismatch.
func (s *Service) verifyClientSecret(client *models.Client, presented string) error {
	if len(client.ClientSecretEnc) == 0 {
		return UnauthorizedClient("")
	}
	stored, err := s.kek.UnwrapString(client.ClientSecretEnc)
	if err != nil {
		return UnauthorizedClient("")
	}
	if !crypto.ConstantTimeEquals(stored, presented) {
		return UnauthorizedClient("")
	}
	return nil
}

// verifyPKCE checks the stored challenge against the presented verifier.
func verifyPKCE(client *models.Client, code *models.AuthCode, verifier string) error {
	if code.CodeChallenge == nil {
		if client.IsPublic() || client.RequirePKCE {
			return InvalidGrant("PKCE is required for this client")
		}
		return nil
	}
	if verifier == "" {
		return InvalidRequest("code_verifier is required when PKCE is used")
	}
	if !crypto.VerifyPKCES256(verifier, *code.CodeChallenge) {
		return InvalidGrant("code_verifier does not match")
	}
	return nil
}

func (s *Service) idTokenTTL(client *models.Client) time.Duration {
	if client.IDTokenLifetimeSeconds != nil && *client.IDTokenLifetimeSeconds > 0 {
		return time.Duration(*client.IDTokenLifetimeSeconds) * time.Second
	}
	return s.cfg.IDTokenLifetime
}
