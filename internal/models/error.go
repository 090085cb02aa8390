package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// MFA / credential errors
	ErrMethodNotFound     = errors.New("mfa method not found")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrInvalidCredential  = errors.New("invalid credential")
	ErrInvalidOrigin      = errors.New("origin not allowed")
	ErrVerificationFailed = errors.New("verification failed")
	ErrAlreadyRegistered  = errors.New("already registered")
	ErrRateLimited        = errors.New("rate limit exceeded")

	// Reset / rollback errors
	ErrResetSuperseded = errors.New("reset log is not the most recent for the user")
	ErrResetConflict   = errors.New("user has re-enrolled since the reset")
	ErrSnapshotInvalid = errors.New("reset snapshot could not be decoded")

	// Infrastructure conditions
	ErrSchemaMissing = errors.New("backing table has not been provisioned")
)
