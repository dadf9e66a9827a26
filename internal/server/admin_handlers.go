package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/crypto"
	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/accounts"
	"github.com/darkauth/darkauth/internal/services/audit"
	"github.com/darkauth/darkauth/internal/services/otp"
	"github.com/darkauth/darkauth/internal/services/sessions"
	"github.com/darkauth/darkauth/internal/services/settings"
)

// emitAdminAction records a mutating admin operation.
func (s *Server) emitAdminAction(r *http.Request, resourceType, resourceID string, success bool) {
	admin, _ := AdminFromContext(r.Context())
	entry := &models.AuditLog{
		EventType:    audit.EventAdminAction,
		ActorKind:    models.ActorKindAdmin,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Method:       r.Method,
		Path:         r.URL.Path,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
		Success:      success,
	}
	if admin != nil {
		entry.ActorID = admin.ID
	}
	s.audit.Emit(entry)
}

// ----- admin auth -----

// HandleAdminLoginStart handles POST /admin/opaque/login/start.
func (s *Server) HandleAdminLoginStart(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	result, err := s.accounts.AdminLoginStart(r.Context(), body.Email, body.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{SessionID: result.SessionID, Message: result.Message})
}

// HandleAdminLoginFinish handles POST /admin/opaque/login/finish.
func (s *Server) HandleAdminLoginFinish(w http.ResponseWriter, r *http.Request) {
	var body loginFinishBody
	if err := decodeJSONLoose(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	otpRequired := s.adminOtpRequired(r)
	result, err := s.accounts.AdminLoginFinish(r.Context(), body.SessionID, body.Message, otpRequired, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	s.sessions.SetCookies(w, sessions.AdminRealm, result.Session)
	writeJSON(w, http.StatusOK, map[string]any{
		"adminId":     result.AdminID,
		"role":        result.Role,
		"otpRequired": result.OtpRequired,
	})
}

// adminOtpRequired reads the admin half of the OTP policy setting.
func (s *Server) adminOtpRequired(r *http.Request) bool {
	var policy settings.OTPPolicy
	if err := s.settings.GetInto(r.Context(), settings.KeyOTPPolicy, &policy); err != nil {
		return false
	}
	return policy.RequireForAdmins
}

// HandleAdminSession handles GET /admin/session.
func (s *Server) HandleAdminSession(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	admin, ok := AdminFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"adminId":       admin.ID,
		"email":         admin.Email,
		"name":          admin.Name,
		"role":          admin.Role,
		"authenticated": true,
		"otpRequired":   session.OtpRequired,
		"otpVerified":   session.OtpVerified,
	})
}

// HandleAdminLogout handles POST /admin/logout.
func (s *Server) HandleAdminLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if err := s.sessions.Logout(r.Context(), session.ID); err != nil {
		writeError(w, err)
		return
	}
	s.sessions.ClearCookies(w, sessions.AdminRealm)
	writeJSON(w, http.StatusOK, map[string]any{"loggedOut": true})
}

// HandleAdminRefresh handles POST /admin/session/refresh.
func (s *Server) HandleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessions.AdminRefreshCookie)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	_, next, err := s.sessions.Refresh(r.Context(), cookie.Value)
	if err != nil {
		s.sessions.ClearCookies(w, sessions.AdminRealm)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	s.sessions.RotateRefreshCookie(w, sessions.AdminRealm, next)
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": true})
}

// HandleAdminOtpSetupInit handles POST /admin/otp/setup/init for the admin's
// own credential.
func (s *Server) HandleAdminOtpSetupInit(w http.ResponseWriter, r *http.Request) {
	admin, ok := AdminFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	setup, err := s.otp.SetupInit(r.Context(), models.OTPActorRef(models.ActorKindAdmin, admin.ID), admin.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":          setup.Secret,
		"provisioningUri": setup.ProvisioningURI,
	})
}

// HandleAdminOtpSetupVerify handles POST /admin/otp/setup/verify.
func (s *Server) HandleAdminOtpSetupVerify(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	admin, ok := AdminFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	var body otpCodeBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if err := s.otp.SetupVerify(r.Context(), models.OTPActorRef(models.ActorKindAdmin, admin.ID), body.Code); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sessions.MarkOtpVerified(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

// HandleAdminOtpVerify handles POST /admin/otp/verify, the admin login second
// factor.
func (s *Server) HandleAdminOtpVerify(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	admin, ok := AdminFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	var body otpCodeBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	actorRef := models.OTPActorRef(models.ActorKindAdmin, admin.ID)
	if err := s.otp.Verify(r.Context(), actorRef, body.Code); err != nil {
		if errors.Is(err, otp.ErrLocked) {
			if status, statusErr := s.otp.Status(r.Context(), actorRef); statusErr == nil {
				s.audit.Emit(&models.AuditLog{
					EventType: audit.EventOtpLocked,
					ActorKind: models.ActorKindAdmin,
					ActorID:   admin.ID,
					Success:   false,
				})
				writeLocked(w, status.LockedUntil)
				return
			}
		}
		s.audit.Emit(&models.AuditLog{
			EventType: audit.EventOtpFailed,
			ActorKind: models.ActorKindAdmin,
			ActorID:   admin.ID,
			Success:   false,
		})
		writeError(w, err)
		return
	}
	if err := s.sessions.MarkOtpVerified(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	s.audit.Emit(&models.AuditLog{
		EventType: audit.EventOtpVerified,
		ActorKind: models.ActorKindAdmin,
		ActorID:   admin.ID,
		Success:   true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

// ----- users -----

type userView struct {
	Sub                   string     `json:"sub"`
	Email                 string     `json:"email"`
	Name                  string     `json:"name"`
	EmailVerified         bool       `json:"emailVerified"`
	PasswordResetRequired bool       `json:"passwordResetRequired"`
	CreatedAt             time.Time  `json:"createdAt"`
	LastLoginAt           *time.Time `json:"lastLoginAt,omitempty"`
}

func toUserView(u *models.User) userView {
	return userView{
		Sub:                   u.Sub,
		Email:                 u.Email,
		Name:                  u.Name,
		EmailVerified:         u.EmailVerifiedAt != nil,
		PasswordResetRequired: u.PasswordResetRequired,
		CreatedAt:             u.CreatedAt,
		LastLoginAt:           u.LastLoginAt,
	}
}

// HandleAdminListUsers handles GET /admin/users.
func (s *Server) HandleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	users, total, err := s.users.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]userView, len(users))
	for i := range users {
		views[i] = toUserView(&users[i])
	}
	writeJSON(w, http.StatusOK, paginated(views, page, limit, total))
}

// HandleAdminGetUser handles GET /admin/users/{sub}.
func (s *Server) HandleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetBySub(r.Context(), chi.URLParam(r, "sub"))
	if err != nil {
		writeError(w, err)
		return
	}
	groups, err := s.iam.EffectiveGroups(r.Context(), user.Sub)
	if err != nil {
		writeError(w, err)
		return
	}
	permissions, err := s.iam.EffectivePermissions(r.Context(), user.Sub, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        toUserView(user),
		"groups":      groups,
		"permissions": permissions,
	})
}

type createUserBody struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// HandleAdminCreateUser handles POST /admin/users. The user gets no PAKE
// record; they complete registration themselves via password recovery.
func (s *Server) HandleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var body createUserBody
	if err := decodeJSON(r, &body); err != nil || body.Email == "" {
		badRequest(w, "email is required")
		return
	}
	address := accounts.NormalizeEmail(body.Email)
	if !accounts.ValidEmail(address) {
		badRequest(w, "invalid email address")
		return
	}
	now := timeNow()
	user := &models.User{
		Sub:                   uuid.Must(uuid.NewV7()).String(),
		Email:                 address,
		Name:                  body.Name,
		PasswordResetRequired: true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		s.emitAdminAction(r, "user", address, false)
		writeError(w, err)
		return
	}
	if err := s.rbac.AddUserToGroup(r.Context(), user.Sub, models.DefaultGroupKey); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "user", user.Sub, true)
	writeJSON(w, http.StatusCreated, toUserView(user))
}

type updateUserBody struct {
	Name                  *string `json:"name,omitempty"`
	PasswordResetRequired *bool   `json:"passwordResetRequired,omitempty"`
}

// HandleAdminUpdateUser handles PUT /admin/users/{sub}.
func (s *Server) HandleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetBySub(r.Context(), chi.URLParam(r, "sub"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body updateUserBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if body.Name != nil {
		user.Name = *body.Name
	}
	if body.PasswordResetRequired != nil {
		user.PasswordResetRequired = *body.PasswordResetRequired
	}
	user.UpdatedAt = timeNow()
	if err := s.users.Update(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "user", user.Sub, true)
	writeJSON(w, http.StatusOK, toUserView(user))
}

// HandleAdminDeleteUser handles DELETE /admin/users/{sub}.
func (s *Server) HandleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	sub := chi.URLParam(r, "sub")
	if err := s.users.Delete(r.Context(), sub); err != nil {
		writeError(w, err)
		return
	}
	_ = s.sessRepo.DeleteByUser(r.Context(), sub)
	s.audit.Emit(&models.AuditLog{
		EventType:    audit.EventUserDeleted,
		ActorKind:    models.ActorKindAdmin,
		ResourceType: "user",
		ResourceID:   sub,
		Success:      true,
	})
	s.emitAdminAction(r, "user", sub, true)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type setPermissionsBody struct {
	Permissions []string `json:"permissions"`
}

// HandleAdminSetUserPermissions handles PUT /admin/users/{sub}/permissions.
func (s *Server) HandleAdminSetUserPermissions(w http.ResponseWriter, r *http.Request) {
	sub := chi.URLParam(r, "sub")
	var body setPermissionsBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if err := s.rbac.SetUserPermissions(r.Context(), sub, body.Permissions); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "user", sub, true)
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// ----- clients -----

type clientBody struct {
	ClientID                string   `json:"clientId"`
	Name                    string   `json:"name"`
	Type                    string   `json:"type"`
	TokenEndpointAuthMethod string   `json:"tokenEndpointAuthMethod"`
	RequirePKCE             *bool    `json:"requirePkce,omitempty"`
	RedirectURIs            []string `json:"redirectUris"`
	PostLogoutRedirectURIs  []string `json:"postLogoutRedirectUris,omitempty"`
	GrantTypes              []string `json:"grantTypes,omitempty"`
	Scopes                  []string `json:"scopes,omitempty"`
	AllowedZKOrigins        []string `json:"allowedZkOrigins,omitempty"`
	ZKDelivery              string   `json:"zkDelivery,omitempty"`
	ZKRequired              *bool    `json:"zkRequired,omitempty"`
	IDTokenLifetimeSeconds  *int     `json:"idTokenLifetimeSeconds,omitempty"`
	RefreshLifetimeSeconds  *int     `json:"refreshTokenLifetimeSeconds,omitempty"`
}

type clientView struct {
	ClientID                string   `json:"clientId"`
	Name                    string   `json:"name"`
	Type                    string   `json:"type"`
	TokenEndpointAuthMethod string   `json:"tokenEndpointAuthMethod"`
	RequirePKCE             bool     `json:"requirePkce"`
	RedirectURIs            []string `json:"redirectUris"`
	GrantTypes              []string `json:"grantTypes"`
	Scopes                  []string `json:"scopes"`
	ZKDelivery              string   `json:"zkDelivery"`
	ZKRequired              bool     `json:"zkRequired"`
}

func toClientView(c *models.Client) clientView {
	return clientView{
		ClientID:                c.ClientID,
		Name:                    c.Name,
		Type:                    c.Type,
		TokenEndpointAuthMethod: c.TokenEndpointAuthMethod,
		RequirePKCE:             c.RequirePKCE,
		RedirectURIs:            c.RedirectURIs,
		GrantTypes:              c.GrantTypes,
		Scopes:                  c.Scopes,
		ZKDelivery:              c.ZKDelivery,
		ZKRequired:              c.ZKRequired,
	}
}

// clientSecretBytes sizes generated confidential-client secrets.
const clientSecretBytes = 32

// HandleAdminListClients handles GET /admin/clients.
func (s *Server) HandleAdminListClients(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	clients, total, err := s.clients.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]clientView, len(clients))
	for i := range clients {
		views[i] = toClientView(&clients[i])
	}
	writeJSON(w, http.StatusOK, paginated(views, page, limit, total))
}

// HandleAdminGetClient handles GET /admin/clients/{clientID}.
func (s *Server) HandleAdminGetClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.clients.GetByID(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientView(client))
}

// HandleAdminCreateClient handles POST /admin/clients. Confidential clients
// get a generated secret, returned exactly once in the response.
func (s *Server) HandleAdminCreateClient(w http.ResponseWriter, r *http.Request) {
	var body clientBody
	if err := decodeJSON(r, &body); err != nil || body.ClientID == "" {
		badRequest(w, "clientId is required")
		return
	}
	client, secret, err := s.buildClient(&body)
	if err != nil {
		var cve *clientValidationError
		if errors.As(err, &cve) {
			badRequest(w, cve.msg)
			return
		}
		writeError(w, err)
		return
	}
	if err := s.clients.Create(r.Context(), client); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "client", client.ClientID, true)
	resp := map[string]any{"client": toClientView(client)}
	if secret != "" {
		resp["clientSecret"] = secret
	}
	writeJSON(w, http.StatusCreated, resp)
}

// buildClient validates the cross-field rules: public clients carry no secret
// and cannot use Basic; confidential clients must.
func (s *Server) buildClient(body *clientBody) (*models.Client, string, error) {
	if body.Type != models.ClientTypePublic && body.Type != models.ClientTypeConfidential {
		return nil, "", badClientBody("type must be public or confidential")
	}
	if len(body.RedirectURIs) == 0 {
		return nil, "", badClientBody("at least one redirect URI is required")
	}
	authMethod := body.TokenEndpointAuthMethod
	if authMethod == "" {
		if body.Type == models.ClientTypePublic {
			authMethod = models.AuthMethodNone
		} else {
			authMethod = models.AuthMethodClientSecretBasic
		}
	}
	if body.Type == models.ClientTypePublic && authMethod != models.AuthMethodNone {
		return nil, "", badClientBody("public clients must use auth method none")
	}
	if body.Type == models.ClientTypeConfidential && authMethod != models.AuthMethodClientSecretBasic {
		return nil, "", badClientBody("confidential clients must use client_secret_basic")
	}

	now := timeNow()
	client := &models.Client{
		ClientID:                body.ClientID,
		Name:                    body.Name,
		Type:                    body.Type,
		TokenEndpointAuthMethod: authMethod,
		RequirePKCE:             body.Type == models.ClientTypePublic,
		RedirectURIs:            body.RedirectURIs,
		PostLogoutRedirectURIs:  body.PostLogoutRedirectURIs,
		GrantTypes:              body.GrantTypes,
		ResponseTypes:           []string{"code"},
		Scopes:                  body.Scopes,
		AllowedZKOrigins:        body.AllowedZKOrigins,
		ZKDelivery:              models.ZKDeliveryNone,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if body.RequirePKCE != nil {
		client.RequirePKCE = *body.RequirePKCE || client.IsPublic()
	}
	if len(client.GrantTypes) == 0 {
		client.GrantTypes = []string{"authorization_code", "refresh_token"}
	}
	if len(client.Scopes) == 0 {
		client.Scopes = []string{"openid", "profile", "email"}
	}
	if body.ZKDelivery != "" {
		if body.ZKDelivery != models.ZKDeliveryNone && body.ZKDelivery != models.ZKDeliveryFragmentJWE {
			return nil, "", badClientBody("zkDelivery must be none or fragment-jwe")
		}
		client.ZKDelivery = body.ZKDelivery
	}
	if body.ZKRequired != nil {
		client.ZKRequired = *body.ZKRequired
	}
	client.IDTokenLifetimeSeconds = body.IDTokenLifetimeSeconds
	client.RefreshTokenLifetimeSeconds = body.RefreshLifetimeSeconds

	var secret string
	if client.Type == models.ClientTypeConfidential {
		var err error
		secret, err = crypto.RandomToken(clientSecretBytes)
		if err != nil {
			return nil, "", err
		}
		enc, err := s.kek.WrapString(secret)
		if err != nil {
			return nil, "", err
		}
		client.ClientSecretEnc = enc
	}
	return client, secret, nil
}

func badClientBody(msg string) error {
	return &clientValidationError{msg: msg}
}

type clientValidationError struct{ msg string }

func (e *clientValidationError) Error() string { return e.msg }

// HandleAdminUpdateClient handles PUT /admin/clients/{clientID}.
func (s *Server) HandleAdminUpdateClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.clients.GetByID(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body clientBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if body.Name != "" {
		client.Name = body.Name
	}
	if len(body.RedirectURIs) > 0 {
		client.RedirectURIs = body.RedirectURIs
	}
	if len(body.GrantTypes) > 0 {
		client.GrantTypes = body.GrantTypes
	}
	if len(body.Scopes) > 0 {
		client.Scopes = body.Scopes
	}
	if body.RequirePKCE != nil {
		client.RequirePKCE = *body.RequirePKCE || client.IsPublic()
	}
	if body.ZKDelivery != "" {
		client.ZKDelivery = body.ZKDelivery
	}
	if body.ZKRequired != nil {
		client.ZKRequired = *body.ZKRequired
	}
	client.IDTokenLifetimeSeconds = body.IDTokenLifetimeSeconds
	client.RefreshTokenLifetimeSeconds = body.RefreshLifetimeSeconds
	client.UpdatedAt = timeNow()
	if err := s.clients.Update(r.Context(), client); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "client", client.ClientID, true)
	writeJSON(w, http.StatusOK, toClientView(client))
}

// HandleAdminRotateClientSecret handles POST /admin/clients/{clientID}/secret.
func (s *Server) HandleAdminRotateClientSecret(w http.ResponseWriter, r *http.Request) {
	client, err := s.clients.GetByID(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if client.IsPublic() {
		badRequest(w, "public clients have no secret")
		return
	}
	secret, err := crypto.RandomToken(clientSecretBytes)
	if err != nil {
		writeError(w, err)
		return
	}
	enc, err := s.kek.WrapString(secret)
	if err != nil {
		writeError(w, err)
		return
	}
	client.ClientSecretEnc = enc
	client.UpdatedAt = timeNow()
	if err := s.clients.Update(r.Context(), client); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "client", client.ClientID, true)
	writeJSON(w, http.StatusOK, map[string]any{"clientSecret": secret})
}

// HandleAdminDeleteClient handles DELETE /admin/clients/{clientID}.
func (s *Server) HandleAdminDeleteClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if err := s.clients.Delete(r.Context(), clientID); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "client", clientID, true)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// ----- settings -----

// HandleAdminListSettings handles GET /admin/settings.
func (s *Server) HandleAdminListSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.settings.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	// Server-owned keys (PAKE key material, install state) are not exposed.
	visible := make([]models.Setting, 0, len(all))
	for _, setting := range all {
		if s.settings.Editable(setting.Key) {
			visible = append(visible, setting)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": visible})
}

type putSettingBody struct {
	Value models.JSONMap `json:"value"`
}

// HandleAdminPutSetting handles PUT /admin/settings/{key}.
func (s *Server) HandleAdminPutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body putSettingBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if err := s.settings.Set(r.Context(), key, body.Value); err != nil {
		writeError(w, err)
		return
	}
	s.audit.Emit(&models.AuditLog{
		EventType:    audit.EventSettingsChanged,
		ActorKind:    models.ActorKindAdmin,
		ResourceType: "setting",
		ResourceID:   key,
		Success:      true,
	})
	s.emitAdminAction(r, "setting", key, true)
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// ----- audit logs -----

// HandleAdminListAuditLogs handles GET /admin/audit-logs with an optional
// ?filter boolean expression.
func (s *Server) HandleAdminListAuditLogs(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	entries, total, err := s.audit.List(r.Context(), page, limit, r.URL.Query().Get("filter"))
	if err != nil {
		badRequest(w, "invalid filter expression")
		return
	}
	writeJSON(w, http.StatusOK, paginated(entries, page, limit, total))
}

// ----- jwks -----

// HandleAdminListJWKS handles GET /admin/jwks.
func (s *Server) HandleAdminListJWKS(w http.ResponseWriter, r *http.Request) {
	set, err := s.keys.PublicJWKS(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": set.Keys, "activeKid": s.keys.ActiveKid()})
}

// HandleAdminRotateJWKS handles POST /admin/jwks/rotate.
func (s *Server) HandleAdminRotateJWKS(w http.ResponseWriter, r *http.Request) {
	if err := s.keys.Rotate(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.audit.Emit(&models.AuditLog{
		EventType:    audit.EventKeyRotated,
		ActorKind:    models.ActorKindAdmin,
		ResourceType: "jwks",
		ResourceID:   s.keys.ActiveKid(),
		Success:      true,
	})
	s.emitAdminAction(r, "jwks", s.keys.ActiveKid(), true)
	writeJSON(w, http.StatusOK, map[string]any{"activeKid": s.keys.ActiveKid()})
}

// ----- otp admin controls -----

// HandleAdminOtpDisable handles POST /admin/users/{sub}/otp/disable.
func (s *Server) HandleAdminOtpDisable(w http.ResponseWriter, r *http.Request) {
	sub := chi.URLParam(r, "sub")
	if err := s.otp.Disable(r.Context(), models.OTPActorRef(models.ActorKindUser, sub)); err != nil {
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "otp", sub, true)
	writeJSON(w, http.StatusOK, map[string]any{"disabled": true})
}

// HandleAdminOtpUnlock handles POST /admin/users/{sub}/otp/unlock.
func (s *Server) HandleAdminOtpUnlock(w http.ResponseWriter, r *http.Request) {
	sub := chi.URLParam(r, "sub")
	err := s.otp.Unlock(r.Context(), models.OTPActorRef(models.ActorKindUser, sub))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
			return
		}
		writeError(w, err)
		return
	}
	s.emitAdminAction(r, "otp", sub, true)
	writeJSON(w, http.StatusOK, map[string]any{"unlocked": true})
}
