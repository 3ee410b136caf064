// Package session persists the CLI's login state (email and token pair)
// in the local SQLite metadata table so consecutive invocations share it.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
)

const (
	keyEmail        = "email"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keySavedAt      = "saved_at"
)

// Session is what a successful login leaves behind.
type Session struct {
	Email        string
	AccessToken  string
	RefreshToken string
	SavedAt      time.Time
}

// Empty reports whether no one is logged in.
func (s Session) Empty() bool {
	return s.RefreshToken == ""
}

type Store interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

type SQLiteStore struct {
	db dbx.DBTX
}

func NewSQLiteStore(db dbx.DBTX) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (r *SQLiteStore) get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteStore) set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

// Load returns the stored session, or an empty one when nothing is saved.
func (r *SQLiteStore) Load(ctx context.Context) (Session, error) {
	var s Session
	var err error

	if s.Email, err = r.get(ctx, keyEmail); err != nil {
		return Session{}, err
	}
	if s.AccessToken, err = r.get(ctx, keyAccessToken); err != nil {
		return Session{}, err
	}
	if s.RefreshToken, err = r.get(ctx, keyRefreshToken); err != nil {
		return Session{}, err
	}

	saved, err := r.get(ctx, keySavedAt)
	if err != nil {
		return Session{}, err
	}
	if saved != "" {
		if s.SavedAt, err = time.Parse(time.RFC3339, saved); err != nil {
			return Session{}, fmt.Errorf("failed to parse metadata[%s]: %w", keySavedAt, err)
		}
	}

	return s, nil
}

// Save overwrites every session key. Callers wanting atomicity bind the
// store to a transaction.
func (r *SQLiteStore) Save(ctx context.Context, s Session) error {
	pairs := [][2]string{
		{keyEmail, s.Email},
		{keyAccessToken, s.AccessToken},
		{keyRefreshToken, s.RefreshToken},
		{keySavedAt, s.SavedAt.UTC().Format(time.RFC3339)},
	}
	for _, p := range pairs {
		if err := r.set(ctx, p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteStore) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM metadata`)
	if err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	return nil
}
