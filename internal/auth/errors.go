package auth

import (
	"errors"
	"strings"
)

// Kind classifies authentication failures for logs and metrics. Kinds are
// never shown to clients.
type Kind string

const (
	KindInvalidCredentials  Kind = "INVALID_CREDENTIALS"
	KindAccountLocked       Kind = "ACCOUNT_LOCKED"
	KindLoginDisabled       Kind = "LOGIN_DISABLED"
	KindInvalidSignature    Kind = "INVALID_SIGNATURE"
	KindTokenExpired        Kind = "TOKEN_EXPIRED"
	KindInvalidRefreshToken Kind = "INVALID_REFRESH_TOKEN"
	KindTokenNotRecognized  Kind = "TOKEN_NOT_RECOGNIZED"
	KindRefreshExpired      Kind = "REFRESH_EXPIRED"
	KindSessionIdleTimeout  Kind = "SESSION_IDLE_TIMEOUT"
	KindForbidden           Kind = "FORBIDDEN"
	KindUnauthorized        Kind = "UNAUTHORIZED"
)

// Error is an authentication failure of a given Kind. errors.Is matches on
// Kind alone, so the sentinels below can be compared against wrapped errors.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	msg := "auth: " + strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidCredentials  = &Error{Kind: KindInvalidCredentials}
	ErrAccountLocked       = &Error{Kind: KindAccountLocked}
	ErrLoginDisabled       = &Error{Kind: KindLoginDisabled}
	ErrInvalidSignature    = &Error{Kind: KindInvalidSignature}
	ErrTokenExpired        = &Error{Kind: KindTokenExpired}
	ErrInvalidRefreshToken = &Error{Kind: KindInvalidRefreshToken}
	ErrTokenNotRecognized  = &Error{Kind: KindTokenNotRecognized}
	ErrRefreshExpired      = &Error{Kind: KindRefreshExpired}
	ErrSessionIdleTimeout  = &Error{Kind: KindSessionIdleTimeout}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
)

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind carried by err, or "" for non-auth errors.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}

// IsCredentialFailure reports whether err belongs to the login family, which
// clients only ever see as "invalid credentials".
func IsCredentialFailure(err error) bool {
	switch KindOf(err) {
	case KindInvalidCredentials, KindAccountLocked, KindLoginDisabled:
		return true
	}
	return false
}

// IsSessionFailure reports whether err belongs to the token family, which
// clients only ever see as "invalid session".
func IsSessionFailure(err error) bool {
	switch KindOf(err) {
	case KindInvalidSignature, KindTokenExpired, KindInvalidRefreshToken,
		KindTokenNotRecognized, KindRefreshExpired, KindSessionIdleTimeout, KindUnauthorized:
		return true
	}
	return false
}
