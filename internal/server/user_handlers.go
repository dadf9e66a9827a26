package server

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/services/audit"
	"github.com/darkauth/darkauth/internal/services/otp"
	"github.com/darkauth/darkauth/internal/services/sessions"
)

// blob carries a binary protocol message as standard base64 in JSON, matching
// what browser OPAQUE clients emit.
type blob []byte

func (b blob) MarshalJSON() ([]byte, error) {
	return []byte(`"` + base64.StdEncoding.EncodeToString(b) + `"`), nil
}

func (b *blob) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("expected base64 string")
	}
	decoded, err := base64.StdEncoding.DecodeString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

type startBody struct {
	Email   string `json:"email"`
	Message blob   `json:"message"`
}

type startResponse struct {
	SessionID       string `json:"sessionId"`
	Message         blob   `json:"message"`
	ServerPublicKey blob   `json:"serverPublicKey,omitempty"`
}

// HandleRegisterStart handles POST /opaque/register/start, gated by the
// self-registration setting.
func (s *Server) HandleRegisterStart(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.SelfRegistration {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Code: "self_registration_disabled"})
		return
	}
	var body startBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if body.Email == "" || len(body.Message) == 0 {
		badRequest(w, "email and message are required")
		return
	}
	result, err := s.accounts.RegisterStart(r.Context(), body.Email, body.Message)
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

type registerFinishBody struct {
	SessionID     string `json:"sessionId"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Record        blob   `json:"record"`
	ExportKeyHash string `json:"exportKeyHash"`
}

// HandleRegisterFinish handles POST /opaque/register/finish.
func (s *Server) HandleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.SelfRegistration {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Code: "self_registration_disabled"})
		return
	}
	var body registerFinishBody
	if err := decodeJSONLoose(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	user, err := s.accounts.RegisterFinish(r.Context(), body.SessionID, body.Email, body.Name, body.Record, body.ExportKeyHash)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.email != nil {
		_ = s.email.SendVerification(r.Context(), user.Sub, user.Email)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sub": user.Sub})
}

// HandleLoginStart handles POST /opaque/login/start. Unknown accounts are
// indistinguishable from real ones.
func (s *Server) HandleLoginStart(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	result, err := s.accounts.LoginStart(r.Context(), body.Email, body.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{SessionID: result.SessionID, Message: result.Message})
}

type loginFinishBody struct {
	SessionID string `json:"sessionId"`
	Message   blob   `json:"message"`
}

// HandleLoginFinish handles POST /opaque/login/finish. Identity fields a
// client sneaks into the body are silently dropped; the subject comes from the
// PAKE transcript alone.
func (s *Server) HandleLoginFinish(w http.ResponseWriter, r *http.Request) {
	var body loginFinishBody
	if err := decodeJSONLoose(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	result, err := s.accounts.LoginFinish(r.Context(), body.SessionID, body.Message, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	s.sessions.SetCookies(w, sessions.UserRealm, result.Session)
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":         result.Sub,
		"otpRequired": result.OtpRequired,
	})
}

// HandleSession handles GET /session.
func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if session.ActorKind != models.ActorKindUser || session.UserSub == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	user, err := s.users.GetBySub(r.Context(), *session.UserSub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":                   user.Sub,
		"email":                 user.Email,
		"name":                  user.Name,
		"authenticated":         true,
		"otpRequired":           session.OtpRequired,
		"otpVerified":           session.OtpVerified,
		"passwordResetRequired": user.PasswordResetRequired,
	})
}

// HandleRefresh handles POST /session/refresh: rotates the refresh cookie and
// extends the session.
func (s *Server) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessions.UserRefreshCookie)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	_, next, err := s.sessions.Refresh(r.Context(), cookie.Value)
	if err != nil {
		s.sessions.ClearCookies(w, sessions.UserRealm)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	s.sessions.RotateRefreshCookie(w, sessions.UserRealm, next)
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": true})
}

// HandleLogout handles POST /logout.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if err := s.sessions.Logout(r.Context(), session.ID); err != nil {
		writeError(w, err)
		return
	}
	s.sessions.ClearCookies(w, sessions.UserRealm)
	s.audit.Emit(&models.AuditLog{
		EventType: audit.EventUserLogout,
		ActorKind: session.ActorKind,
		ActorID:   session.ActorRef(),
		Success:   true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"loggedOut": true})
}

// HandleOtpSetupInit handles POST /otp/setup/init.
func (s *Server) HandleOtpSetupInit(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if session.UserSub == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	user, err := s.users.GetBySub(r.Context(), *session.UserSub)
	if err != nil {
		writeError(w, err)
		return
	}
	setup, err := s.otp.SetupInit(r.Context(), models.OTPActorRef(models.ActorKindUser, user.Sub), user.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":          setup.Secret,
		"provisioningUri": setup.ProvisioningURI,
	})
}

type otpCodeBody struct {
	Code string `json:"code"`
}

// HandleOtpSetupVerify handles POST /otp/setup/verify.
func (s *Server) HandleOtpSetupVerify(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if session.UserSub == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	var body otpCodeBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if err := s.otp.SetupVerify(r.Context(), models.OTPActorRef(models.ActorKindUser, *session.UserSub), body.Code); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sessions.MarkOtpVerified(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

// HandleOtpVerify handles POST /otp/verify, the login-time second factor.
func (s *Server) HandleOtpVerify(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if session.UserSub == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	var body otpCodeBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	actorRef := models.OTPActorRef(models.ActorKindUser, *session.UserSub)
	if err := s.otp.Verify(r.Context(), actorRef, body.Code); err != nil {
		if errors.Is(err, otp.ErrLocked) {
			status, statusErr := s.otp.Status(r.Context(), actorRef)
			if statusErr == nil {
				s.audit.Emit(&models.AuditLog{
					EventType: audit.EventOtpLocked,
					ActorKind: models.ActorKindUser,
					ActorID:   *session.UserSub,
					Success:   false,
				})
				writeLocked(w, status.LockedUntil)
				return
			}
		}
		s.audit.Emit(&models.AuditLog{
			EventType: audit.EventOtpFailed,
			ActorKind: models.ActorKindUser,
			ActorID:   *session.UserSub,
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
		ActorKind: models.ActorKindUser,
		ActorID:   *session.UserSub,
		Success:   true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

// HandleOtpStatus handles GET /otp/status.
func (s *Server) HandleOtpStatus(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if session.UserSub == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	status, err := s.otp.Status(r.Context(), models.OTPActorRef(models.ActorKindUser, *session.UserSub))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":     status.Enabled,
		"verified":    status.Verified,
		"lockedUntil": status.LockedUntil,
	})
}

// HandleGetWrappedDRK handles GET /crypto/wrapped-drk. Per-user singleton.
func (s *Server) HandleGetWrappedDRK(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if session.UserSub == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	drk, err := s.users.GetWrappedDRK(r.Context(), *session.UserSub)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(drk.Blob)
}

// maxWrappedDRKSize bounds the uploaded blob.
const maxWrappedDRKSize = 64 * 1024

// HandlePutWrappedDRK handles PUT /crypto/wrapped-drk.
func (s *Server) HandlePutWrappedDRK(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if session.UserSub == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWrappedDRKSize+1))
	if err != nil {
		badRequest(w, "read body")
		return
	}
	if len(body) == 0 || len(body) > maxWrappedDRKSize {
		badRequest(w, "blob size out of range")
		return
	}
	if err := s.users.PutWrappedDRK(r.Context(), *session.UserSub, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stored": true})
}

type verifyEmailBody struct {
	Token string `json:"token"`
}

// HandleVerifyEmail handles POST /email/verify: consumes a mailed token and
// marks the address verified.
func (s *Server) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body verifyEmailBody
	if err := decodeJSON(r, &body); err != nil || body.Token == "" {
		badRequest(w, "token is required")
		return
	}
	sub, address, err := s.email.ConfirmVerification(r.Context(), body.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := s.users.GetBySub(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	if user.Email == address && user.EmailVerifiedAt == nil {
		now := timeNow()
		user.EmailVerifiedAt = &now
		user.UpdatedAt = now
		if err := s.users.Update(r.Context(), user); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

// HandlePasswordChangeStart handles POST /password/change/start.
func (s *Server) HandlePasswordChangeStart(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if session.UserSub == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	var body startBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	result, err := s.accounts.ChangePasswordStart(r.Context(), *session.UserSub, body.Message)
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

type passwordChangeFinishBody struct {
	SessionID     string `json:"sessionId"`
	Record        blob   `json:"record"`
	ExportKeyHash string `json:"exportKeyHash"`
}

// HandlePasswordChangeFinish handles POST /password/change/finish.
func (s *Server) HandlePasswordChangeFinish(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if session.UserSub == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	var body passwordChangeFinishBody
	if err := decodeJSONLoose(r, &body); err != nil {
		badRequest(w, "malformed body")
		return
	}
	if err := s.accounts.ChangePasswordFinish(r.Context(), *session.UserSub, body.SessionID, body.Record, body.ExportKeyHash); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": true})
}
