// Package common defines sentinel errors and constants shared by the server
// and client layers of GophAuth. Callers should match errors with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrorInternal covers infrastructure failures (persistence, signing key,
	// hashing). Details are logged, never returned to the caller.
	ErrorInternal = errors.New("internal error")

	// ErrInvalidArgument is a request missing a required value.
	ErrInvalidArgument = errors.New("invalid argument")

	// Identity errors.
	ErrDuplicateIdentity    = errors.New("identity already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrInactiveAccount      = errors.New("account is inactive")
	ErrInvalidIdentityToken = errors.New("invalid identity token")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownToken = errors.New("unknown refresh token")
	ErrExpiredToken = errors.New("refresh token expired")

	// ErrTokenExpired is returned by the token codec when a signed token is past
	// its exp claim (leeway included).
	ErrTokenExpired = errors.New("token expired")
)
