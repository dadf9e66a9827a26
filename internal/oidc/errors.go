package oidc

import "net/http"

// OAuth error codes used on the wire.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidGrant            = "invalid_grant"
	CodeInvalidScope            = "invalid_scope"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeAccessDenied            = "access_denied"
	CodeForbidden               = "forbidden"
)

// Error is an OAuth protocol error. Redirectable reports whether the error
// may be delivered to the client's redirect URI; client or redirect_uri
// validation failures must render locally instead.
type Error struct {
	Code         string
	Description  string
	Status       int
	Redirectable bool
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// InvalidRequest builds a 400 invalid_request error.
func InvalidRequest(description string) *Error {
	return &Error{Code: CodeInvalidRequest, Description: description, Status: http.StatusBadRequest, Redirectable: true}
}

// InvalidGrant builds a 400 invalid_grant error.
func InvalidGrant(description string) *Error {
	return &Error{Code: CodeInvalidGrant, Description: description, Status: http.StatusBadRequest}
}

// InvalidScope builds a 400 invalid_scope error.
func InvalidScope(description string) *Error {
	return &Error{Code: CodeInvalidScope, Description: description, Status: http.StatusBadRequest}
}

// UnauthorizedClient builds a 401 unauthorized_client error.
func UnauthorizedClient(description string) *Error {
	return &Error{Code: CodeUnauthorizedClient, Description: description, Status: http.StatusUnauthorized}
}

// Forbidden builds a 403 error for finalize attempts by the wrong subject.
func Forbidden(description string) *Error {
	return &Error{Code: CodeForbidden, Description: description, Status: http.StatusForbidden}
}

// pageError builds a non-redirectable error rendered as an error page: the
// client or its redirect URI could not be validated, so nothing may be sent
// to it.
func pageError(description string) *Error {
	return &Error{Code: CodeInvalidRequest, Description: description, Status: http.StatusBadRequest}
}
