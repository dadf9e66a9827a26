package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/darkauth/darkauth/internal/install"
	"github.com/darkauth/darkauth/internal/oidc"
	"github.com/darkauth/darkauth/internal/pake"
	"github.com/darkauth/darkauth/internal/repository"
	"github.com/darkauth/darkauth/internal/services/accounts"
	"github.com/darkauth/darkauth/internal/services/otp"
	"github.com/darkauth/darkauth/internal/services/sessions"
	"github.com/darkauth/darkauth/internal/services/settings"
)

// errorBody is the generic JSON error shape. OAuth endpoints use
// oauthErrorBody instead.
type errorBody struct {
	Error       string     `json:"error"`
	Code        string     `json:"code,omitempty"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

type oauthErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps service and repository errors onto the HTTP error taxonomy.
// Unknown errors collapse to 500 with no detail.
func writeError(w http.ResponseWriter, err error) {
	var oauthErr *oidc.Error
	if errors.As(err, &oauthErr) {
		writeJSON(w, oauthErr.Status, oauthErrorBody{Error: oauthErr.Code, ErrorDescription: oauthErr.Description})
		return
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, accounts.ErrEmailTaken),
		errors.Is(err, accounts.ErrPasswordReuse),
		errors.Is(err, otp.ErrAlreadyEnabled):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict"})
	case errors.Is(err, repository.ErrAlreadyConsumed):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Code: "already_used"})
	case errors.Is(err, pake.ErrAuthenticationFailed),
		errors.Is(err, pake.ErrSessionNotFound),
		errors.Is(err, sessions.ErrSessionExpired),
		errors.Is(err, sessions.ErrRefreshExpired):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	case errors.Is(err, sessions.ErrCSRFMismatch),
		errors.Is(err, accounts.ErrLoginNotAllowed):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
	case errors.Is(err, otp.ErrInvalidCode), errors.Is(err, otp.ErrNotEnabled):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Code: "invalid_otp"})
	case errors.Is(err, otp.ErrLocked):
		writeJSON(w, http.StatusLocked, errorBody{Error: "locked"})
	case errors.Is(err, settings.ErrUnknownKey), errors.Is(err, settings.ErrInvalidValue):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Code: "VALIDATION_ERROR"})
	case errors.Is(err, install.ErrAlreadyInitialized):
		writeJSON(w, http.StatusConflict, errorBody{Error: "already_initialized"})
	case errors.Is(err, install.ErrTokenExpired):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "install_token_expired"})
	case errors.Is(err, install.ErrTokenForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "install_token_forbidden"})
	case errors.Is(err, install.ErrIdentityMismatch):
		writeJSON(w, http.StatusBadRequest, oauthErrorBody{Error: "invalid_request", ErrorDescription: "identity does not match install start"})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
	}
}

// writeLocked reports an OTP lockout with its expiry when known.
func writeLocked(w http.ResponseWriter, until *time.Time) {
	writeJSON(w, http.StatusLocked, errorBody{Error: "locked", LockedUntil: until})
}

// decodeJSON parses a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeJSONLoose parses a request body and discards unknown fields. The PAKE
// finish endpoints use it: identity fields a client smuggles into the payload
// are ignored, never an error, and the subject still comes from server-side
// protocol state.
func decodeJSONLoose(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// badRequest writes a validation failure.
func badRequest(w http.ResponseWriter, description string) {
	writeJSON(w, http.StatusBadRequest, oauthErrorBody{Error: "invalid_request", ErrorDescription: description})
}
