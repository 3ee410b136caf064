// Package sessions keeps the single live refresh token of each account.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Store holds at most one SessionRecord per account. Lookups return
// common.ErrorNotFound when nothing matches.
type Store interface {
	// Put replaces whatever record the account had. Concurrent puts for one
	// account never leave two records behind.
	Put(ctx context.Context, accountID int64, token string, expiresAt time.Time) error
	FindByToken(ctx context.Context, token string) (*models.SessionRecord, error)
	FindByAccount(ctx context.Context, accountID int64) (*models.SessionRecord, error)
	// DeleteByAccount succeeds whether or not a record existed.
	DeleteByAccount(ctx context.Context, accountID int64) error
	// DeleteExpired removes records with expiry at or before asOf and
	// reports how many went away.
	DeleteExpired(ctx context.Context, asOf time.Time) (int64, error)
}
