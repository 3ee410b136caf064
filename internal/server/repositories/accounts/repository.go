package accounts

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository persists accounts. Lookups return common.ErrorNotFound when
// nothing matches.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByProvider(ctx context.Context, provider models.ProviderKind, subject string) (*models.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Create validates and inserts a, filling ID and timestamps. A clash on
	// email or provider subject yields common.ErrDuplicateIdentity.
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	Update(ctx context.Context, a models.Account) error
	// LockByID holds the account row until the surrounding transaction ends.
	LockByID(ctx context.Context, id int64) error
}
