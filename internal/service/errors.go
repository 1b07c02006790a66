package service

import (
	"net/http"
	"time"
)

// ErrorCode identifies an auth failure kind for transport mapping.
type ErrorCode string

const (
	CodeInvalidCredentials     ErrorCode = "invalid_credentials"
	CodeAccountLocked          ErrorCode = "account_locked"
	CodeAccountInactive        ErrorCode = "account_inactive"
	CodeTokenInvalid           ErrorCode = "token_invalid"
	CodeTokenExpired           ErrorCode = "token_expired"
	CodeInsufficientRole       ErrorCode = "insufficient_role"
	CodeWeakPassword           ErrorCode = "weak_password"
	CodeInvalidCurrentPassword ErrorCode = "invalid_current_password"
	CodePasswordUnchanged      ErrorCode = "password_unchanged"
	CodeConcurrentUpdate       ErrorCode = "concurrent_update"
	CodeEmailTaken             ErrorCode = "email_taken"
	CodeInvalidRequest         ErrorCode = "invalid_request"
)

// AuthError is a recoverable auth outcome. The handler layer maps it onto
// an HTTP status; nothing in this core raises it as a panic.
type AuthError struct {
	Code        ErrorCode
	Description string
	Status      int
	LockedUntil *time.Time
	Violations  []string
}

func (e *AuthError) Error() string {
	return string(e.Code) + ": " + e.Description
}

func newAuthError(code ErrorCode, description string, status int) *AuthError {
	return &AuthError{Code: code, Description: description, Status: status}
}

func errInvalidCredentials() *AuthError {
	// Unknown email and wrong password are indistinguishable on purpose.
	return newAuthError(CodeInvalidCredentials, "Invalid email or password.", http.StatusUnauthorized)
}

func errAccountLocked(until time.Time) *AuthError {
	e := newAuthError(CodeAccountLocked, "Account temporarily locked after repeated failures.", http.StatusUnauthorized)
	e.LockedUntil = &until
	return e
}

func errAccountInactive() *AuthError {
	return newAuthError(CodeAccountInactive, "Account is deactivated.", http.StatusUnauthorized)
}

func errTokenInvalid() *AuthError {
	return newAuthError(CodeTokenInvalid, "Invalid token.", http.StatusUnauthorized)
}

func errTokenExpired() *AuthError {
	return newAuthError(CodeTokenExpired, "Token expired.", http.StatusUnauthorized)
}

func errInsufficientRole() *AuthError {
	return newAuthError(CodeInsufficientRole, "Insufficient privileges for this operation.", http.StatusForbidden)
}

func errWeakPassword(violations []string) *AuthError {
	e := newAuthError(CodeWeakPassword, "Password does not meet the strength policy.", http.StatusUnprocessableEntity)
	e.Violations = violations
	return e
}

func errInvalidCurrentPassword() *AuthError {
	return newAuthError(CodeInvalidCurrentPassword, "Current password is incorrect.", http.StatusUnprocessableEntity)
}

func errPasswordUnchanged() *AuthError {
	return newAuthError(CodePasswordUnchanged, "New password must differ from the current one.", http.StatusUnprocessableEntity)
}

func errConcurrentUpdate() *AuthError {
	return newAuthError(CodeConcurrentUpdate, "Account was modified concurrently, retry.", http.StatusConflict)
}

func errEmailTaken() *AuthError {
	return newAuthError(CodeEmailTaken, "Email already registered.", http.StatusConflict)
}
