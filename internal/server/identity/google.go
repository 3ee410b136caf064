package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = map[string]struct{}{
	"accounts.google.com":         {},
	"https://accounts.google.com": {},
}

type googleClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleVerifier validates Google ID tokens (RS256) against Google's
// published key set.
type GoogleVerifier struct {
	keyFunc  jwt.Keyfunc
	audience string
	log      logging.Logger
	now      func() time.Time
	stop     func()
}

// NewGoogleVerifier fetches the key set at jwksURL and keeps it fresh in
// the background until Close. The first fetch must succeed.
func NewGoogleVerifier(jwksURL, clientID string, log logging.Logger) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("google client id is empty")
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			log.Warn(context.Background(), "jwks background refresh failed", "error", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("jwks %s: %w", jwksURL, err)
	}

	v := NewGoogleVerifierWithKeyfunc(jwks.Keyfunc, clientID, log, nil)
	v.stop = jwks.EndBackground
	return v, nil
}

// NewGoogleVerifierWithKeyfunc builds a verifier over an existing key source.
// A nil now means time.Now.
func NewGoogleVerifierWithKeyfunc(kf jwt.Keyfunc, clientID string, log logging.Logger, now func() time.Time) *GoogleVerifier {
	if now == nil {
		now = time.Now
	}
	return &GoogleVerifier{
		keyFunc:  kf,
		audience: clientID,
		log:      log.With("module", "identity"),
		now:      now,
	}
}

func (v *GoogleVerifier) Verify(ctx context.Context, assertion string) (models.IdentityClaim, bool) {
	claims := &googleClaims{}

	_, err := jwt.ParseWithClaims(assertion, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		v.log.Warn(ctx, "identity token rejected", "error", err)
		return models.IdentityClaim{}, false
	}

	if _, ok := googleIssuers[claims.Issuer]; !ok {
		v.log.Warn(ctx, "identity token rejected", "error", "unexpected issuer", "issuer", claims.Issuer)
		return models.IdentityClaim{}, false
	}
	if claims.Subject == "" || claims.Email == "" {
		v.log.Warn(ctx, "identity token rejected", "error", "missing subject or email")
		return models.IdentityClaim{}, false
	}

	return models.IdentityClaim{
		Subject:    claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		PictureURL: claims.Picture,
	}, true
}

// Close stops the background key refresh.
func (v *GoogleVerifier) Close() {
	if v.stop != nil {
		v.stop()
	}
}
