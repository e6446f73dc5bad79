package storage

import "errors"

// Common storage errors
var (
	// ErrAccountNotFound indicates that the account was not found in storage
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmailTaken indicates that an account with this email already exists
	ErrEmailTaken = errors.New("email already in use")

	// ErrSessionNotFound indicates that the account has no refresh session slot
	ErrSessionNotFound = errors.New("refresh session not found")

	// ErrSessionMismatch indicates that the presented refresh token does not
	// equal the stored slot value (rotation lost to a concurrent refresh, or
	// replay of an already-rotated token)
	ErrSessionMismatch = errors.New("refresh session mismatch")

	// ErrVerificationNotFound indicates that no pending verification exists
	ErrVerificationNotFound = errors.New("verification not found")

	// ErrVerificationMismatch indicates that the presented verification token
	// was superseded by a newer one
	ErrVerificationMismatch = errors.New("verification token mismatch")

	// ErrAlreadyVerified indicates that the account's email is already verified
	ErrAlreadyVerified = errors.New("email already verified")
)
