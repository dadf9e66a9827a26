package server

import (
	"errors"
	"net/http"

	"github.com/darkauth/darkauth/internal/db/models"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/accounts"
	"github.com/darkauth/darkauth/internal/services/audit"
)

// invalidToken collapses every token failure to one answer so the endpoint
// cannot be used to probe which tokens exist, expired, or were spent.
func invalidToken(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_token"})
}

type recoveryRequestBody struct {
	Email string `json:"email"`
}

// HandleRecoveryRequest handles POST /password/recovery/request. The response
// is identical whether or not the address belongs to an account.
func (s *Server) HandleRecoveryRequest(w http.ResponseWriter, r *http.Request) {
	var body recoveryRequestBody
	if err := decodeJSON(r, &body); err != nil || body.Email == "" {
		badRequest(w, "email is required")
		return
	}
	address := accounts.NormalizeEmail(body.Email)
	user, err := s.users.GetByEmail(r.Context(), address)
	if err == nil {
		if mailErr := s.email.SendRecovery(r.Context(), user.Sub, user.Email); mailErr != nil {
			writeError(w, mailErr)
			return
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

type recoveryStartBody struct {
	Token   string `json:"token"`
	Message blob   `json:"message"`
}

// HandleRecoveryStart handles POST /password/recovery/start. The mailed token
// stands in for a session: it resolves the subject and gates a PAKE
// re-registration, which is also how admin-created accounts without a
// credential record establish their first one. The token is only spent at
// finish.
func (s *Server) HandleRecoveryStart(w http.ResponseWriter, r *http.Request) {
	var body recoveryStartBody
	if err := decodeJSON(r, &body); err != nil || body.Token == "" || len(body.Message) == 0 {
		badRequest(w, "token and message are required")
		return
	}
	sub, err := s.email.PeekRecovery(r.Context(), body.Token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrAlreadyConsumed) {
			invalidToken(w)
			return
		}
		writeError(w, err)
		return
	}
	result, err := s.accounts.ChangePasswordStart(r.Context(), sub, body.Message)
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

type recoveryFinishBody struct {
	Token         string `json:"token"`
	SessionID     string `json:"sessionId"`
	Record        blob   `json:"record"`
	ExportKeyHash string `json:"exportKeyHash"`
}

// HandleRecoveryFinish handles POST /password/recovery/finish: spends the
// token exactly once, installs the new credential record, and revokes every
// session of the account.
func (s *Server) HandleRecoveryFinish(w http.ResponseWriter, r *http.Request) {
	var body recoveryFinishBody
	if err := decodeJSONLoose(r, &body); err != nil || body.Token == "" {
		badRequest(w, "malformed body")
		return
	}
	sub, err := s.email.ConsumeRecovery(r.Context(), body.Token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrAlreadyConsumed) {
			invalidToken(w)
			return
		}
		writeError(w, err)
		return
	}
	if err := s.accounts.ChangePasswordFinish(r.Context(), sub, body.SessionID, body.Record, body.ExportKeyHash); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sessRepo.DeleteByUser(r.Context(), sub); err != nil {
		writeError(w, err)
		return
	}
	s.audit.Emit(&models.AuditLog{
		EventType: audit.EventPasswordReset,
		ActorKind: models.ActorKindUser,
		ActorID:   sub,
		IPAddress: clientIP(r),
		Success:   true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

type emailChangeRequestBody struct {
	Email string `json:"email"`
}

// HandleEmailChangeRequest handles POST /email/change/request. The session
// stays on the old address; the new one takes effect only after the link
// mailed to it is confirmed.
func (s *Server) HandleEmailChangeRequest(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	if session.UserSub == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	var body emailChangeRequestBody
	if err := decodeJSON(r, &body); err != nil || body.Email == "" {
		badRequest(w, "email is required")
		return
	}
	address := accounts.NormalizeEmail(body.Email)
	if !accounts.ValidEmail(address) {
		badRequest(w, "invalid email address")
		return
	}
	existing, err := s.users.GetByEmail(r.Context(), address)
	if err == nil {
		if existing.Sub == *session.UserSub {
			badRequest(w, "address is already yours")
			return
		}
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict"})
		return
	}
	if !errors.Is(err, repository.ErrNotFound) {
		writeError(w, err)
		return
	}
	if err := s.email.SendEmailChange(r.Context(), *session.UserSub, address); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

type emailChangeConfirmBody struct {
	Token string `json:"token"`
}

// HandleEmailChangeConfirm handles POST /email/change/confirm. Consuming the
// token proves control of the new mailbox, so the address is applied already
// verified.
func (s *Server) HandleEmailChangeConfirm(w http.ResponseWriter, r *http.Request) {
	var body emailChangeConfirmBody
	if err := decodeJSON(r, &body); err != nil || body.Token == "" {
		badRequest(w, "token is required")
		return
	}
	sub, address, err := s.email.ConfirmEmailChange(r.Context(), body.Token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrAlreadyConsumed) {
			invalidToken(w)
			return
		}
		writeError(w, err)
		return
	}
	user, err := s.users.GetBySub(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	now := timeNow()
	user.Email = address
	user.EmailVerifiedAt = &now
	user.UpdatedAt = now
	if err := s.users.Update(r.Context(), user); err != nil {
		// The address was taken between request and confirmation.
		writeError(w, err)
		return
	}
	s.audit.Emit(&models.AuditLog{
		EventType: audit.EventEmailChanged,
		ActorKind: models.ActorKindUser,
		ActorID:   sub,
		IPAddress: clientIP(r),
		Success:   true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"changed": true})
}
