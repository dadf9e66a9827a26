package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/darkauth/darkauth/internal/oidc"
)

// HandleDiscovery handles GET /.well-known/openid-configuration.
func (s *Server) HandleDiscovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.oidc.Discovery())
}

// HandleJWKS handles GET /.well-known/jwks.json.
func (s *Server) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	set, err := s.keys.PublicJWKS(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// HandleAuthorize handles GET /authorize. Validation failures before the
// redirect URI is trusted render a local error page; later failures bounce
// back to the client with the state echoed.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := oidc.AuthorizeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		ZKPub:               q.Get("zk_pub"),
		Origin:              r.Header.Get("Origin"),
	}

	pa, err := s.oidc.Authorize(r.Context(), req)
	if err != nil {
		var oauthErr *oidc.Error
		if errors.As(err, &oauthErr) && oauthErr.Redirectable {
			redirectError(w, r, req.RedirectURI, req.State, oauthErr)
			return
		}
		writeError(w, err)
		return
	}
	http.Redirect(w, r, s.oidc.ConsentURL(pa), http.StatusFound)
}

// redirectError sends the OAuth error back to the validated redirect URI.
func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state string, oauthErr *oidc.Error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		writeError(w, oauthErr)
		return
	}
	q := target.Query()
	q.Set("error", oauthErr.Code)
	if oauthErr.Description != "" {
		q.Set("error_description", oauthErr.Description)
	}
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

type finalizeBody struct {
	RequestID string `json:"request_id"`
	Approve   *bool  `json:"approve,omitempty"`
	DRKHash   string `json:"drk_hash,omitempty"`
}

// HandleFinalize handles POST /authorize/finalize from the consent UI.
func (s *Server) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	var body finalizeBody
	if err := decodeJSON(r, &body); err != nil || body.RequestID == "" {
		badRequest(w, "request_id is required")
		return
	}
	approve := body.Approve == nil || *body.Approve

	result, err := s.oidc.Finalize(r.Context(), session, oidc.FinalizeRequest{
		RequestID: body.RequestID,
		Approve:   approve,
		DRKHash:   body.DRKHash,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleToken handles POST /token. Forms, not JSON; CSRF is deliberately not
// enforced here, which is standard for the OAuth token endpoint.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		badRequest(w, "malformed form body")
		return
	}

	req := oidc.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
		ClientID:     r.PostFormValue("client_id"),
	}
	if id, secret, ok := r.BasicAuth(); ok {
		req.BasicID = id
		req.BasicSecret = secret
		req.HasBasic = true
	}

	resp, err := s.oidc.Token(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type installStartBody struct {
	Token   string `json:"token"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Message blob   `json:"message"`
}

// HandleInstallStart handles POST /install/opaque/start.
func (s *Server) HandleInstallStart(w http.ResponseWriter, r *http.Request) {
	var body installStartBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	result, err := s.install.Start(r.Context(), body.Token, body.Email, body.Name, body.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{
		SessionID:       result.SessionID,
		Message:         result.Message,
		ServerPublicKey: result.ServerPublicKey,
	})
}

type installFinishBody struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Record    blob   `json:"record"`
}

// HandleInstallFinish handles POST /install/opaque/finish.
func (s *Server) HandleInstallFinish(w http.ResponseWriter, r *http.Request) {
	var body installFinishBody
	if err := decodeJSONLoose(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	admin, err := s.install.Finish(r.Context(), body.Token, body.SessionID, body.Email, body.Name, body.Record)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"adminId": admin.ID})
}
