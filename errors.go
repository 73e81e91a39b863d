package webauth

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced in AuthError values.
const (
	ErrCodeMissingField     = "missing_field"
	ErrCodeInvalidCreds     = "invalid_credentials"
	ErrCodeUnknownProvider  = "unknown_provider"
	ErrCodeUsernameTaken    = "username_taken"
	ErrCodeEmailExists      = "email_exists"
	ErrCodeProviderProtocol = "provider_protocol_error"
	ErrCodeNotAuthenticated = "not_authenticated"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMalformedRequest = "malformed_request"
)

// Sentinel errors for store lookups and protocol failures.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrIdentityNotFound  = errors.New("linked identity not found")
	ErrProviderNotFound  = errors.New("provider not found")
	ErrDuplicateUserName = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrMalformedNonce    = errors.New("malformed nonce")
)

// AuthError carries a machine-readable code and the offending field so
// callers can render precise failures.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// HTTPStatus maps the error taxonomy onto response codes. Unrecognized
// errors map to 500; no failure here is fatal to the host process.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch {
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrIdentityNotFound),
		errors.Is(err, ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateUserName), errors.Is(err, ErrDuplicateEmail):
		return http.StatusConflict
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		switch ae.Code {
		case ErrCodeMissingField, ErrCodeValidationFailed, ErrCodeMalformedRequest:
			return http.StatusBadRequest
		case ErrCodeInvalidCreds, ErrCodeNotAuthenticated:
			return http.StatusUnauthorized
		case ErrCodeUnknownProvider:
			return http.StatusNotFound
		case ErrCodeUsernameTaken, ErrCodeEmailExists:
			return http.StatusConflict
		case ErrCodeProviderProtocol:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}
