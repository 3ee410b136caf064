package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

type PostgresStore struct {
	db dbx.DBTX
}

func NewPostgresStore(db dbx.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, accountID int64, token string, expiresAt time.Time) error {
	query :=
		`INSERT INTO sessions (account_id, token, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id) DO UPDATE
		 SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, created_at = now()
		 `

	if _, err := s.db.ExecContext(ctx, query, accountID, token, expiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStore) find(ctx context.Context, query string, arg any) (*models.SessionRecord, error) {
	rec := &models.SessionRecord{}

	err := s.db.QueryRowContext(ctx, query, arg).Scan(&rec.AccountID, &rec.Token, &rec.ExpiresAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.SessionRecord, error) {
	query :=
		`SELECT account_id, token, expires_at, created_at FROM sessions
		 WHERE token = $1
		 `
	return s.find(ctx, query, token)
}

func (s *PostgresStore) FindByAccount(ctx context.Context, accountID int64) (*models.SessionRecord, error) {
	query :=
		`SELECT account_id, token, expires_at, created_at FROM sessions
		 WHERE account_id = $1
		 `
	return s.find(ctx, query, accountID)
}

func (s *PostgresStore) DeleteByAccount(ctx context.Context, accountID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, asOf)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
