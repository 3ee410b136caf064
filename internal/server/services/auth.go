// Package services contains server-side business logic. This file implements
// AuthService, which establishes identities, issues token pairs and rotates
// the single refresh token each account holds.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/identity"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/password"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dmitrijs2005/gophauth/internal/server/services"

// Deps collects what AuthService needs. DB is used for reads outside a
// unit of work and may be nil for backends that ignore it.
type Deps struct {
	DB       dbx.DBTX
	Tx       dbx.Transactor
	Repos    repomanager.RepositoryManager
	Hasher   password.Hasher
	Identity identity.Verifier
	Codec    *auth.Codec
	Logger   logging.Logger
	Now      func() time.Time
}

// AuthService provides:
//   - Signup: create local accounts
//   - Login / FederatedLogin: establish identity and issue a token pair
//   - Refresh: rotate the refresh token
//   - Logout, ChangePassword, SetActive, SweepExpired
//
// Every mutation that touches an account's session runs in one unit of work
// that first locks the account row, so two requests for the same account
// never interleave.
type AuthService struct {
	db       dbx.DBTX
	tx       dbx.Transactor
	repos    repomanager.RepositoryManager
	hasher   password.Hasher
	identity identity.Verifier
	codec    *auth.Codec
	log      logging.Logger
	now      func() time.Time
	tracer   trace.Tracer

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(d Deps) *AuthService {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		db:       d.DB,
		tx:       d.Tx,
		repos:    d.Repos,
		hasher:   d.Hasher,
		identity: d.Identity,
		codec:    d.Codec,
		log:      d.Logger.With("module", "auth"),
		now:      now,
		tracer:   otel.Tracer(tracerName),
	}
}

// Signup creates an active local account and returns its id. No tokens are
// issued.
func (s *AuthService) Signup(ctx context.Context, email, secret, displayName string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Signup")
	id, err := s.signup(ctx, email, secret, displayName)
	return id, endSpan(span, err)
}

// Login checks an email and password. Absent accounts, federated accounts,
// wrong passwords and inactive accounts all fail the same way with
// common.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, secret string) (*models.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	pair, err := s.login(ctx, email, secret)
	return pair, endSpan(span, err)
}

// FederatedLogin signs in with an identity provider assertion, creating
// the federated account on first use.
func (s *AuthService) FederatedLogin(ctx context.Context, assertion string) (*models.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.FederatedLogin")
	pair, err := s.federatedLogin(ctx, assertion)
	return pair, endSpan(span, err)
}

// Refresh trades the account's current refresh token for a new pair. The
// presented token stops working once the new one is stored.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Refresh")
	pair, err := s.refresh(ctx, refreshToken)
	return pair, endSpan(span, err)
}

// Logout drops the account's refresh token. Access tokens already issued
// stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, accountID int64) error {
	ctx, span := s.tracer.Start(ctx, "AuthService.Logout", trace.WithAttributes(attribute.Int64("account_id", accountID)))
	return endSpan(span, s.logout(ctx, accountID))
}

// Authenticate validates an access token and returns its claims.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error) {
	_, span := s.tracer.Start(ctx, "AuthService.Authenticate")
	claims, err := s.authenticate(accessToken)
	return claims, endSpan(span, err)
}

// ChangePassword replaces a local account's password and ends its session.
func (s *AuthService) ChangePassword(ctx context.Context, accountID int64, current, next string) error {
	ctx, span := s.tracer.Start(ctx, "AuthService.ChangePassword", trace.WithAttributes(attribute.Int64("account_id", accountID)))
	return endSpan(span, s.changePassword(ctx, accountID, current, next))
}

// SetActive deactivates or reactivates an account. The session record is
// kept; refresh reports common.ErrInactiveAccount while the account is off.
func (s *AuthService) SetActive(ctx context.Context, accountID int64, active bool) error {
	ctx, span := s.tracer.Start(ctx, "AuthService.SetActive", trace.WithAttributes(attribute.Int64("account_id", accountID)))
	return endSpan(span, s.setActive(ctx, accountID, active))
}

// SweepExpired purges expired session records and reports how many went.
func (s *AuthService) SweepExpired(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.SweepExpired")
	n, err := s.repos.Sessions(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		err = s.internal(ctx, "sweep", err)
	}
	return n, endSpan(span, err)
}

func (s *AuthService) signup(ctx context.Context, email, secret, displayName string) (int64, error) {
	if email == "" || secret == "" {
		return 0, common.ErrInvalidArgument
	}

	repo := s.repos.Accounts(s.db)

	exists, err := repo.ExistsByEmail(ctx, email)
	if err != nil {
		return 0, s.internal(ctx, "signup", err)
	}
	if exists {
		return 0, common.ErrDuplicateIdentity
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return 0, s.classify(ctx, "signup", err)
	}

	acct, err := repo.Create(ctx, &models.Account{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Provider:     models.ProviderLocal,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateIdentity) {
			return 0, err
		}
		return 0, s.internal(ctx, "signup", err)
	}

	s.log.Info(ctx, "account created", "account_id", acct.ID, "provider", acct.Provider)
	return acct.ID, nil
}

func (s *AuthService) login(ctx context.Context, email, secret string) (*models.TokenPair, error) {
	acct, err := s.repos.Accounts(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.burnVerify(secret)
			return nil, common.ErrInvalidCredentials
		}
		return nil, s.internal(ctx, "login", err)
	}

	if !acct.IsLocal() {
		s.burnVerify(secret)
		return nil, common.ErrInvalidCredentials
	}
	if !s.hasher.Verify(secret, acct.PasswordHash) {
		return nil, common.ErrInvalidCredentials
	}
	if !acct.Active {
		s.log.Info(ctx, "login for inactive account", "account_id", acct.ID)
		return nil, common.ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, acct.ID)
	if errors.Is(err, common.ErrInactiveAccount) {
		return nil, common.ErrInvalidCredentials
	}
	return pair, err
}

func (s *AuthService) federatedLogin(ctx context.Context, assertion string) (*models.TokenPair, error) {
	claim, ok := s.identity.Verify(ctx, assertion)
	if !ok {
		return nil, common.ErrInvalidIdentityToken
	}

	repo := s.repos.Accounts(s.db)

	acct, err := repo.GetByProvider(ctx, models.ProviderFederated, claim.Subject)
	if errors.Is(err, common.ErrorNotFound) {
		acct, err = s.createFederated(ctx, claim)
	}
	if err != nil {
		if errors.Is(err, common.ErrDuplicateIdentity) {
			return nil, err
		}
		return nil, s.internal(ctx, "federated login", err)
	}

	if !acct.Active {
		return nil, common.ErrInactiveAccount
	}

	return s.issue(ctx, acct.ID)
}

// createFederated registers the account behind claim. A request that loses
// a race against the same subject picks up the winner's account.
func (s *AuthService) createFederated(ctx context.Context, claim models.IdentityClaim) (*models.Account, error) {
	repo := s.repos.Accounts(s.db)

	exists, err := repo.ExistsByEmail(ctx, claim.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return s.raceWinner(ctx, claim.Subject)
	}

	acct, err := repo.Create(ctx, &models.Account{
		Email:           claim.Email,
		DisplayName:     claim.Name,
		Provider:        models.ProviderFederated,
		ProviderSubject: claim.Subject,
		Active:          true,
	})
	if errors.Is(err, common.ErrDuplicateIdentity) {
		return s.raceWinner(ctx, claim.Subject)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "account created", "account_id", acct.ID, "provider", acct.Provider)
	return acct, nil
}

// raceWinner returns the federated account for subject, or
// common.ErrDuplicateIdentity when the clash was with someone else.
func (s *AuthService) raceWinner(ctx context.Context, subject string) (*models.Account, error) {
	acct, err := s.repos.Accounts(s.db).GetByProvider(ctx, models.ProviderFederated, subject)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrDuplicateIdentity
	}
	return acct, err
}

func (s *AuthService) refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.codec.Validate(refreshToken)
	if err != nil || claims.Kind != models.TokenKindRefresh {
		return nil, common.ErrInvalidToken
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	rec, err := s.repos.Sessions(s.db).FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnknownToken
		}
		return nil, s.internal(ctx, "refresh", err)
	}
	if rec.AccountID != accountID {
		return nil, common.ErrUnknownToken
	}

	if rec.Expired(s.now()) {
		return nil, s.expire(ctx, accountID, refreshToken)
	}

	var pair *models.TokenPair

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Accounts(tx)
		if err := repo.LockByID(ctx, accountID); err != nil {
			return err
		}
		acct, err := repo.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if !acct.Active {
			return common.ErrInactiveAccount
		}

		store := s.repos.Sessions(tx)
		// a concurrent refresh may have rotated the token before we got the lock
		if _, err := store.FindByToken(ctx, refreshToken); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrUnknownToken
			}
			return err
		}

		p, expiresAt, err := s.mint(acct)
		if err != nil {
			return err
		}
		if err := store.Put(ctx, accountID, p.RefreshToken, expiresAt); err != nil {
			return err
		}
		pair = p
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "refresh", err)
	}

	s.log.Debug(ctx, "refresh token rotated", "account_id", accountID)
	return pair, nil
}

// expire deletes an expired record, unless it was replaced in the meantime,
// and reports common.ErrExpiredToken.
func (s *AuthService) expire(ctx context.Context, accountID int64, refreshToken string) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Accounts(tx).LockByID(ctx, accountID); err != nil {
			return err
		}
		store := s.repos.Sessions(tx)
		if _, err := store.FindByToken(ctx, refreshToken); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		return store.DeleteByAccount(ctx, accountID)
	})
	if err != nil {
		return s.internal(ctx, "refresh", err)
	}
	return common.ErrExpiredToken
}

func (s *AuthService) logout(ctx context.Context, accountID int64) error {
	if err := s.repos.Sessions(s.db).DeleteByAccount(ctx, accountID); err != nil {
		return s.internal(ctx, "logout", err)
	}
	s.log.Info(ctx, "logged out", "account_id", accountID)
	return nil
}

func (s *AuthService) authenticate(accessToken string) (*auth.Claims, error) {
	claims, err := s.codec.Validate(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind != models.TokenKindAccess {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) changePassword(ctx context.Context, accountID int64, current, next string) error {
	if next == "" {
		return common.ErrInvalidArgument
	}

	acct, err := s.repos.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidCredentials
		}
		return s.internal(ctx, "change password", err)
	}
	if !acct.IsLocal() || !s.hasher.Verify(current, acct.PasswordHash) {
		return common.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return s.classify(ctx, "change password", err)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Accounts(tx)
		if err := repo.LockByID(ctx, accountID); err != nil {
			return err
		}
		fresh, err := repo.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, models.WithPasswordHash(*fresh, hash, s.now())); err != nil {
			return err
		}
		return s.repos.Sessions(tx).DeleteByAccount(ctx, accountID)
	})
	if err != nil {
		return s.classify(ctx, "change password", err)
	}

	s.log.Info(ctx, "password changed", "account_id", accountID)
	return nil
}

func (s *AuthService) setActive(ctx context.Context, accountID int64, active bool) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Accounts(tx)
		if err := repo.LockByID(ctx, accountID); err != nil {
			return err
		}
		acct, err := repo.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		return repo.Update(ctx, models.WithActive(*acct, active, s.now()))
	})
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorNotFound
	}
	if err != nil {
		return s.classify(ctx, "set active", err)
	}

	s.log.Info(ctx, "account active flag changed", "account_id", accountID, "active", active)
	return nil
}

// issue mints a pair for accountID and, in one unit of work, stamps the
// login and replaces the session record.
func (s *AuthService) issue(ctx context.Context, accountID int64) (*models.TokenPair, error) {
	var pair *models.TokenPair

	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Accounts(tx)
		if err := repo.LockByID(ctx, accountID); err != nil {
			return err
		}
		acct, err := repo.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if !acct.Active {
			return common.ErrInactiveAccount
		}

		p, expiresAt, err := s.mint(acct)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, models.WithLastLogin(*acct, s.now())); err != nil {
			return err
		}
		if err := s.repos.Sessions(tx).Put(ctx, accountID, p.RefreshToken, expiresAt); err != nil {
			return err
		}
		pair = p
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "issue tokens", err)
	}

	s.log.Info(ctx, "tokens issued", "account_id", accountID)
	return pair, nil
}

func (s *AuthService) mint(acct *models.Account) (*models.TokenPair, time.Time, error) {
	access, expiresIn, err := s.codec.MintAccess(acct.ID, acct.Email)
	if err != nil {
		return nil, time.Time{}, err
	}
	refresh, expiresAt, err := s.codec.MintRefresh(acct.ID)
	if err != nil {
		return nil, time.Time{}, err
	}
	return &models.TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		TokenType:       common.TokenTypeBearer,
		AccessExpiresIn: expiresIn,
	}, expiresAt, nil
}

// burnVerify spends one hash verification so a missing account costs as
// much as a wrong password.
func (s *AuthService) burnVerify(secret string) {
	s.dummyOnce.Do(func() {
		h, err := password.RandomHash(s.hasher)
		if err != nil {
			s.log.Error(context.Background(), "dummy hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	s.hasher.Verify(secret, s.dummyHash)
}

var domainErrors = []error{
	common.ErrDuplicateIdentity,
	common.ErrInvalidCredentials,
	common.ErrInactiveAccount,
	common.ErrInvalidIdentityToken,
	common.ErrInvalidToken,
	common.ErrUnknownToken,
	common.ErrExpiredToken,
	common.ErrInvalidArgument,
}

// classify passes domain errors through and turns the rest into
// common.ErrorInternal.
func (s *AuthService) classify(ctx context.Context, op string, err error) error {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return d
		}
	}
	return s.internal(ctx, op, err)
}

func (s *AuthService) internal(ctx context.Context, op string, err error) error {
	s.log.Error(ctx, op+" failed", "error", err)
	return common.ErrorInternal
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	return err
}
