package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
)

// AuthorizeRequest carries the /authorize query parameters.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	ZKPub               string
	Origin              string
}

// Authorize validates the request and opens a pending auth. Errors before the
// client and redirect URI are validated are non-Redirectable and must render
// locally; later errors go back to the client via the redirect URI.
//
// On success the caller redirects the browser to the consent UI with the
// returned request id.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (*models.PendingAuth, error) {
	client, err := s.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, pageError("unknown client")
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	if !redirectURIRegistered(client, req.RedirectURI) {
		return nil, pageError("redirect_uri is not registered for this client")
	}

	if req.ResponseType != "code" {
		return nil, &Error{Code: CodeUnsupportedResponseType, Status: 400, Redirectable: true}
	}
	if !scopeContains(req.Scope, "openid") {
		return nil, InvalidRequest("scope must include openid")
	}

	if client.IsPublic() || client.RequirePKCE {
		if req.CodeChallenge == "" {
			return nil, InvalidRequest("PKCE code_challenge is required")
		}
	}
	if req.CodeChallenge != "" && req.CodeChallengeMethod != "S256" {
		return nil, InvalidRequest("code_challenge_method must be S256")
	}

	pa := &models.PendingAuth{
		RequestID:   uuid.Must(uuid.NewV7()).String(),
		ClientID:    client.ClientID,
		RedirectURI: req.RedirectURI,
		Origin:      req.Origin,
		CreatedAt:   s.now(),
		ExpiresAt:   s.now().Add(pendingAuthTTL),
	}
	if req.State != "" {
		pa.State = &req.State
	}
	if req.Nonce != "" {
		pa.Nonce = &req.Nonce
	}
	if req.CodeChallenge != "" {
		method := "S256"
		pa.CodeChallenge = &req.CodeChallenge
		pa.CodeChallengeMethod = &method
	}
	if req.ZKPub != "" {
		jwkJSON, kid, err := ParseZKPub(req.ZKPub)
		if err != nil {
			return nil, InvalidRequest(err.Error())
		}
		pa.ZKPubJWK = &jwkJSON
		pa.ZKPubKid = &kid
	}

	if err := s.pending.Create(ctx, pa); err != nil {
		return nil, fmt.Errorf("create pending auth: %w", err)
	}
	return pa, nil
}

// ConsentURL is where the browser is sent to authenticate and approve the
// pending request.
func (s *Service) ConsentURL(pa *models.PendingAuth) string {
	return fmt.Sprintf("%s/?request_id=%s", strings.TrimRight(s.cfg.UIOrigin, "/"), url.QueryEscape(pa.RequestID))
}

// redirectURIRegistered compares the request URI against the registered list:
// scheme and host case-insensitive, the rest byte-exact.
func redirectURIRegistered(client *models.Client, uri string) bool {
	normalized, ok := normalizeRedirectURI(uri)
	if !ok {
		return false
	}
	for _, registered := range client.RedirectURIs {
		if reg, ok := normalizeRedirectURI(registered); ok && reg == normalized {
			return true
		}
	}
	return false
}

func normalizeRedirectURI(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String(), true
}

func scopeContains(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}

// SweepPending removes expired pending auths. Called by the sweeper.
func (s *Service) SweepPending(ctx context.Context, now time.Time) (int, error) {
	return s.pending.DeleteExpired(ctx, now)
}
