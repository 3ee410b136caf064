// Package keys provides the process-wide token signing key.
package keys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// MinKeyLength is the shortest HS256 secret accepted.
const MinKeyLength = 32

var ErrKeyTooShort = fmt.Errorf("signing key shorter than %d bytes", MinKeyLength)

// SigningKey is an immutable HMAC secret. The zero value is unusable.
type SigningKey struct {
	b []byte
}

// NewSigningKey copies b into a new key.
func NewSigningKey(b []byte) (SigningKey, error) {
	// surrounding newlines come from files and object stores, not from intent
	b = bytes.TrimSpace(b)
	if len(b) < MinKeyLength {
		return SigningKey{}, ErrKeyTooShort
	}
	return SigningKey{b: bytes.Clone(b)}, nil
}

// Bytes returns a copy of the secret.
func (k SigningKey) Bytes() []byte {
	return bytes.Clone(k.b)
}

func (k SigningKey) IsZero() bool {
	return len(k.b) == 0
}

// Loader fetches the signing key once at startup.
type Loader interface {
	Load(ctx context.Context) (SigningKey, error)
}

// Static serves a key given in configuration.
type Static string

func (s Static) Load(context.Context) (SigningKey, error) {
	if s == "" {
		return SigningKey{}, errors.New("no secret key configured")
	}
	return NewSigningKey([]byte(s))
}
