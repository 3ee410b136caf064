// Package password hashes and verifies local account secrets.
package password

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const DefaultCost = 12

// MaxSecretLength is the longest secret bcrypt accepts, in bytes.
const MaxSecretLength = 72

// Both match common.ErrInvalidArgument.
var (
	ErrEmptySecret   = fmt.Errorf("%w: secret is empty", common.ErrInvalidArgument)
	ErrSecretTooLong = fmt.Errorf("%w: secret longer than %d bytes", common.ErrInvalidArgument, MaxSecretLength)
)

// Hasher turns secrets into storable hashes and checks them later.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}

// BcryptHasher stores salt and cost inside each hash, so hashes made with
// an older cost keep verifying after the cost changes.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or DefaultCost when cost is 0.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Hash fails with ErrEmptySecret or ErrSecretTooLong for secrets bcrypt
// cannot take.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if len(secret) > MaxSecretLength {
		return "", ErrSecretTooLong
	}

	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrSecretTooLong
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify is false on mismatch and on a hash it cannot parse.
func (h *BcryptHasher) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// RandomHash hashes a random secret nobody knows. Verifying against it
// costs the same as verifying a real password.
func RandomHash(h Hasher) (string, error) {
	return h.Hash(uuid.NewString())
}
