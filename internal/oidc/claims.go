package oidc

import (
	"context"
	"fmt"
	"time"

	"github.com/darkauth/darkauth/internal/db/models"
)

// IDTokenClaims is the payload of a signed ID token. The nonce always comes
// from the stored authorization request, never from the token request.
type IDTokenClaims struct {
	Issuer        string   `json:"iss"`
	Subject       string   `json:"sub"`
	Audience      string   `json:"aud"`
	IssuedAt      int64    `json:"iat"`
	ExpiresAt     int64    `json:"exp"`
	Email         string   `json:"email,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	Name          string   `json:"name,omitempty"`
	Nonce         string   `json:"nonce,omitempty"`
	Permissions   []string `json:"permissions,omitempty"`
	Groups        []string `json:"groups,omitempty"`
}

// AccessTokenClaims is the payload for client_credentials access tokens.
type AccessTokenClaims struct {
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	Audience  string `json:"aud"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	Scope     string `json:"scope,omitempty"`
}

// buildIDToken resolves the user's permission and group claims and signs the
// token with the active key.
func (s *Service) buildIDToken(ctx context.Context, user *models.User, clientID string, nonce *string, ttl time.Duration) (string, error) {
	permissions, err := s.iam.EffectivePermissions(ctx, user.Sub, nil)
	if err != nil {
		return "", fmt.Errorf("resolve permissions: %w", err)
	}
	groups, err := s.iam.EffectiveGroups(ctx, user.Sub)
	if err != nil {
		return "", fmt.Errorf("resolve groups: %w", err)
	}

	now := s.now()
	claims := IDTokenClaims{
		Issuer:        s.cfg.Issuer,
		Subject:       user.Sub,
		Audience:      clientID,
		IssuedAt:      now.Unix(),
		ExpiresAt:     now.Add(ttl).Unix(),
		Email:         user.Email,
		EmailVerified: user.EmailVerifiedAt != nil,
		Name:          user.Name,
		Permissions:   permissions,
		Groups:        groups,
	}
	if nonce != nil {
		claims.Nonce = *nonce
	}

	token, err := s.keys.SignClaims(claims)
	if err != nil {
		return "", fmt.Errorf("sign id token: %w", err)
	}
	return token, nil
}
