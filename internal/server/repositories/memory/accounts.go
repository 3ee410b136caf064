package memory

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

type accountRepo struct {
	m    *Manager
	inTx bool
}

func (r *accountRepo) find(match func(a models.Account) bool) (*models.Account, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	for _, a := range r.m.accounts {
		if match(a) {
			return &a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *accountRepo) GetByID(_ context.Context, id int64) (*models.Account, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	a, ok := r.m.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &a, nil
}

func (r *accountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	return r.find(func(a models.Account) bool { return a.Email == email })
}

func (r *accountRepo) GetByProvider(_ context.Context, provider models.ProviderKind, subject string) (*models.Account, error) {
	return r.find(func(a models.Account) bool {
		return a.Provider == provider && a.ProviderSubject == subject
	})
}

func (r *accountRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *accountRepo) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	defer r.m.lockWrite(r.inTx)()
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, existing := range r.m.accounts {
		if existing.Email == a.Email {
			return nil, common.ErrDuplicateIdentity
		}
		if a.Provider != models.ProviderLocal && existing.Provider == a.Provider && existing.ProviderSubject == a.ProviderSubject {
			return nil, common.ErrDuplicateIdentity
		}
	}

	r.m.nextID++
	now := r.m.now()
	a.ID = r.m.nextID
	a.CreatedAt = now
	a.UpdatedAt = now
	r.m.accounts[a.ID] = *a

	return a, nil
}

func (r *accountRepo) Update(_ context.Context, a models.Account) error {
	defer r.m.lockWrite(r.inTx)()
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	cur, ok := r.m.accounts[a.ID]
	if !ok {
		return common.ErrorNotFound
	}

	cur.PasswordHash = a.PasswordHash
	cur.DisplayName = a.DisplayName
	cur.Active = a.Active
	cur.UpdatedAt = a.UpdatedAt
	cur.LastLoginAt = a.LastLoginAt
	r.m.accounts[a.ID] = cur
	return nil
}

// LockByID only checks existence; WithTx already serializes writers.
func (r *accountRepo) LockByID(ctx context.Context, id int64) error {
	_, err := r.GetByID(ctx, id)
	return err
}
