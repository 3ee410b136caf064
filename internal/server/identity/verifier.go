// Package identity verifies assertions issued by an external identity provider.
package identity

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Verifier checks an identity provider assertion. Every failure collapses to
// ok=false; callers never learn why.
type Verifier interface {
	Verify(ctx context.Context, assertion string) (models.IdentityClaim, bool)
}

// Disabled rejects every assertion. Used when no client id is configured.
type Disabled struct{}

func (Disabled) Verify(context.Context, string) (models.IdentityClaim, bool) {
	return models.IdentityClaim{}, false
}
