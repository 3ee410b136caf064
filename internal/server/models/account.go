package models

import (
	"errors"
	"time"
)

// ProviderKind says where an account's credential lives.
type ProviderKind string

const (
	ProviderLocal     ProviderKind = "local"
	ProviderFederated ProviderKind = "federated"
)

// Account is a principal that can obtain tokens.
//
// A local account carries a password hash and no provider subject. A
// federated account carries the identity provider's subject and no hash.
type Account struct {
	ID              int64
	Email           string
	PasswordHash    string
	DisplayName     string
	Provider        ProviderKind
	ProviderSubject string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastLoginAt     *time.Time
}

var (
	ErrEmptyEmail        = errors.New("account email is empty")
	ErrCredentialMissing = errors.New("account has no credential")
	ErrCredentialMixed   = errors.New("account mixes local and federated credentials")
	ErrUnknownProvider   = errors.New("unknown account provider")
)

// Validate checks the credential invariant before an account is persisted.
func (a Account) Validate() error {
	if a.Email == "" {
		return ErrEmptyEmail
	}

	switch a.Provider {
	case ProviderLocal:
		if a.PasswordHash == "" {
			return ErrCredentialMissing
		}
		if a.ProviderSubject != "" {
			return ErrCredentialMixed
		}
	case ProviderFederated:
		if a.ProviderSubject == "" {
			return ErrCredentialMissing
		}
		if a.PasswordHash != "" {
			return ErrCredentialMixed
		}
	default:
		return ErrUnknownProvider
	}

	return nil
}

// IsLocal reports whether the account signs in with a password.
func (a Account) IsLocal() bool {
	return a.Provider == ProviderLocal && a.PasswordHash != ""
}

// WithLastLogin returns a copy of a stamped with a successful login at t.
func WithLastLogin(a Account, t time.Time) Account {
	a.LastLoginAt = &t
	a.UpdatedAt = t
	return a
}

// WithActive returns a copy of a with its active flag set.
func WithActive(a Account, active bool, t time.Time) Account {
	a.Active = active
	a.UpdatedAt = t
	return a
}

// WithPasswordHash returns a copy of a holding a new password hash.
func WithPasswordHash(a Account, hash string, t time.Time) Account {
	a.PasswordHash = hash
	a.UpdatedAt = t
	return a
}
