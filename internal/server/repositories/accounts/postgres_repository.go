package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const selectColumns = `SELECT id, email, password_hash, display_name, provider, provider_subject, active, created_at, updated_at, last_login_at
		 FROM accounts`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	var (
		a         models.Account
		hash      sql.NullString
		subject   sql.NullString
		provider  string
		lastLogin sql.NullTime
	)

	err := row.Scan(&a.ID, &a.Email, &hash, &a.DisplayName, &provider, &subject, &a.Active, &a.CreatedAt, &a.UpdatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	a.PasswordHash = hash.String
	a.ProviderSubject = subject.String
	a.Provider = models.ProviderKind(provider)
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}

	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := selectColumns + `
		 WHERE id = $1
		 `
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := selectColumns + `
		 WHERE email = $1
		 `
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByProvider(ctx context.Context, provider models.ProviderKind, subject string) (*models.Account, error) {
	query := selectColumns + `
		 WHERE provider = $1 AND provider_subject = $2
		 `
	return scanAccount(r.db.QueryRowContext(ctx, query, string(provider), subject))
}

func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	query :=
		`INSERT INTO accounts (email, password_hash, display_name, provider, provider_subject, active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		a.Email, nullString(a.PasswordHash), a.DisplayName, string(a.Provider), nullString(a.ProviderSubject), a.Active,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *PostgresRepository) Update(ctx context.Context, a models.Account) error {
	query :=
		`UPDATE accounts
		 SET password_hash = $2, display_name = $3, active = $4, updated_at = $5, last_login_at = $6
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query,
		a.ID, nullString(a.PasswordHash), a.DisplayName, a.Active, a.UpdatedAt, nullTime(a.LastLoginAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) LockByID(ctx context.Context, id int64) error {
	query := `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`

	var got int64
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&got); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
