// Package services contains application services for the GophAuth client.
// This file defines the authentication service: signup, password and Google
// login, refresh, logout and password change, with the resulting session
// kept in the local SQLite database between invocations.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/client/repositories/session"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Signup: create a local account on the server; no session is started.
//   - Login / GoogleLogin: authenticate and persist the token pair.
//   - Refresh: rotate the persisted pair.
//   - Logout: end the server session and forget the local one.
//   - ChangePassword: replace the password; the session ends with it.
//   - Status: report the persisted session.
//
// All methods must honor context cancellation/timeouts.
type AuthService interface {
	Signup(ctx context.Context, email string, password []byte, displayName string) (int64, error)
	Login(ctx context.Context, email string, password []byte) error
	GoogleLogin(ctx context.Context, assertion string) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	ChangePassword(ctx context.Context, current, next []byte) error
	Status(ctx context.Context) (session.Session, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// authService is the concrete AuthService backed by a remote Client
// and a local SQL database for the session.
type authService struct {
	client client.Client
	db     *sql.DB
	now    func() time.Time
}

// NewAuthService constructs an AuthService bound to the given API client and DB.
func NewAuthService(client client.Client, db *sql.DB) AuthService {
	return &authService{client: client, db: db, now: time.Now}
}

func (a *authService) getSessionStore(db dbx.DBTX) session.Store {
	return session.NewSQLiteStore(db)
}

// restore loads the persisted session into the client.
func (a *authService) restore(ctx context.Context) (session.Session, error) {
	s, err := a.getSessionStore(a.db).Load(ctx)
	if err != nil {
		return session.Session{}, err
	}
	if s.Empty() {
		return s, client.ErrNotLoggedIn
	}
	a.client.SetTokens(client.Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken})
	return s, nil
}

func (a *authService) save(ctx context.Context, email string, t client.Tokens) error {
	s := session.Session{
		Email:        email,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		SavedAt:      a.now(),
	}
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		store := a.getSessionStore(tx)
		if err := store.Clear(ctx); err != nil {
			return err
		}
		return store.Save(ctx, s)
	})
}

func (a *authService) clear(ctx context.Context) error {
	return a.getSessionStore(a.db).Clear(ctx)
}

// keepRotated saves the client's pair if the interceptor refreshed it
// during a call made with the stored one.
func (a *authService) keepRotated(ctx context.Context, stored session.Session) error {
	t := a.client.Tokens()
	if t.RefreshToken == "" || t.RefreshToken == stored.RefreshToken {
		return nil
	}
	return a.save(ctx, stored.Email, t)
}

func (a *authService) Signup(ctx context.Context, email string, password []byte, displayName string) (int64, error) {
	return a.client.Signup(ctx, email, password, displayName)
}

func (a *authService) Login(ctx context.Context, email string, password []byte) error {
	t, err := a.client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login error: %w", err)
	}

	if err := a.save(ctx, email, t); err != nil {
		return fmt.Errorf("session saving error: %w", err)
	}
	return nil
}

// GoogleLogin signs in with a Google ID token. The email shown later comes
// from the server-side account, so only a placeholder is stored here.
func (a *authService) GoogleLogin(ctx context.Context, assertion string) error {
	t, err := a.client.FederatedLogin(ctx, assertion)
	if err != nil {
		return fmt.Errorf("google login error: %w", err)
	}

	if err := a.save(ctx, "(google)", t); err != nil {
		return fmt.Errorf("session saving error: %w", err)
	}
	return nil
}

// Refresh rotates the stored pair. A rejected refresh token means the
// session is gone on the server, so the local copy is dropped too.
func (a *authService) Refresh(ctx context.Context) error {
	stored, err := a.restore(ctx)
	if err != nil {
		return err
	}

	t, err := a.client.Refresh(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			_ = a.clear(ctx)
		}
		return fmt.Errorf("refresh error: %w", err)
	}

	return a.save(ctx, stored.Email, t)
}

// Logout ends the server session. The local session is dropped even if the
// server cannot be told.
func (a *authService) Logout(ctx context.Context) error {
	if _, err := a.restore(ctx); err != nil {
		return err
	}

	err := a.client.Logout(ctx)
	if cerr := a.clear(ctx); cerr != nil {
		return cerr
	}
	if err != nil && !errors.Is(err, client.ErrUnauthorized) {
		return fmt.Errorf("logout error: %w", err)
	}
	return nil
}

func (a *authService) ChangePassword(ctx context.Context, current, next []byte) error {
	stored, err := a.restore(ctx)
	if err != nil {
		return err
	}

	if err := a.client.ChangePassword(ctx, current, next); err != nil {
		_ = a.keepRotated(ctx, stored)
		return fmt.Errorf("change password error: %w", err)
	}

	return a.clear(ctx)
}

func (a *authService) Status(ctx context.Context) (session.Session, error) {
	return a.getSessionStore(a.db).Load(ctx)
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// Close releases the API connection and the session database.
func (a *authService) Close(ctx context.Context) error {
	return errors.Join(a.client.Close(), a.db.Close())
}
