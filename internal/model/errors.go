package model

import "errors"

// Error taxonomy shared by every adapter. Callers test with errors.Is.
var (
	// ErrNotConfigured means a feature has no credentials and is disabled.
	ErrNotConfigured = errors.New("not configured")
	// ErrNotAuthenticated means a write was attempted without a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrUnauthorized means the backend rejected the session token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict means the remote revision moved underneath us.
	ErrConflict = errors.New("revision conflict")
	// ErrNotFound means the remote object or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransient covers network failures and 5xx responses.
	ErrTransient = errors.New("transient failure")
	// ErrInvalid means a response could not be parsed.
	ErrInvalid = errors.New("invalid response")

	ErrFamilyFull     = errors.New("family is full")
	ErrMemberNotFound = errors.New("member not found")
)
