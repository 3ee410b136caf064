// Package auth mints and validates the HS256 tokens handed to clients.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/keys"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the registered claims plus the token kind. Email is only
// set on access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Kind  models.TokenKind `json:"kind"`
	Email string           `json:"email,omitempty"`
}

// AccountID parses the subject back into an account id.
func (c *Claims) AccountID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Codec is safe for concurrent use; it holds no mutable state.
type Codec struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

// NewCodec builds a codec around key. A nil now means time.Now.
func NewCodec(key keys.SigningKey, accessTTL, refreshTTL, leeway time.Duration, now func() time.Time) (*Codec, error) {
	if key.IsZero() {
		return nil, errors.New("signing key is not set")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{
		key:        key.Bytes(),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		leeway:     leeway,
		now:        now,
	}, nil
}

func (c *Codec) mint(accountID int64, kind models.TokenKind, email string, ttl time.Duration) (string, time.Time, error) {
	issued := c.now()
	exp := jwt.NewNumericDate(issued.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: exp,
			ID:        uuid.NewString(),
		},
		Kind:  kind,
		Email: email,
	})

	s, err := token.SignedString(c.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp.Time, nil
}

// MintAccess returns a signed access token and its lifetime in seconds.
func (c *Codec) MintAccess(accountID int64, email string) (string, int64, error) {
	s, _, err := c.mint(accountID, models.TokenKindAccess, email, c.accessTTL)
	if err != nil {
		return "", 0, err
	}
	return s, int64(c.accessTTL / time.Second), nil
}

// MintRefresh returns a signed refresh token and the moment it expires.
func (c *Codec) MintRefresh(accountID int64) (string, time.Time, error) {
	return c.mint(accountID, models.TokenKindRefresh, "", c.refreshTTL)
}

// RefreshTTL is the lifetime of refresh tokens minted by c.
func (c *Codec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return c.key, nil
}

// Validate checks signature, expiry and required claims. It returns
// common.ErrTokenExpired for a well-formed token past its expiry and
// common.ErrInvalidToken for anything else. The kind is not checked.
func (c *Codec) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(c.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.IssuedAt == nil {
		return nil, common.ErrInvalidToken
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, common.ErrInvalidToken
	}
	switch claims.Kind {
	case models.TokenKindAccess, models.TokenKindRefresh:
	default:
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
