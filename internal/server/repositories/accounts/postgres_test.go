package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	created = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	columns = []string{"id", "email", "password_hash", "display_name", "provider", "provider_subject", "active", "created_at", "updated_at", "last_login_at"}
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func localRow() *sqlmock.Rows {
	return sqlmock.NewRows(columns).
		AddRow(int64(1), "alice@example.com", "$2a$hash", "Alice", "local", nil, true, created, created, nil)
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*email,.*last_login_at\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).WithArgs(int64(1)).WillReturnRows(localRow())

	got, err := repo.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.ID != 1 || got.Email != "alice@example.com" || got.PasswordHash != "$2a$hash" {
		t.Fatalf("unexpected account: %+v", got)
	}
	if got.Provider != models.ProviderLocal || got.ProviderSubject != "" || !got.Active || got.LastLoginAt != nil {
		t.Fatalf("unexpected account: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByEmail_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByEmail_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).WithArgs("a@example.com").WillReturnError(errors.New("db down"))

	_, err := repo.GetByEmail(context.Background(), "a@example.com")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByProvider_Federated(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	last := created.Add(time.Hour)
	rows := sqlmock.NewRows(columns).
		AddRow(int64(2), "bob@example.com", nil, "Bob", "federated", "g-123", true, created, last, last)

	q := `(?s)^SELECT\s+.*FROM\s+accounts\s+WHERE\s+provider\s*=\s*\$1\s+AND\s+provider_subject\s*=\s*\$2\s*$`
	mock.ExpectQuery(q).WithArgs("federated", "g-123").WillReturnRows(rows)

	got, err := repo.GetByProvider(context.Background(), models.ProviderFederated, "g-123")
	if err != nil {
		t.Fatalf("GetByProvider error: %v", err)
	}
	if got.PasswordHash != "" || got.ProviderSubject != "g-123" || got.Provider != models.ProviderFederated {
		t.Fatalf("unexpected account: %+v", got)
	}
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(last) {
		t.Fatalf("unexpected last login: %v", got.LastLoginAt)
	}
}

func TestExistsByEmail(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1\)$`
	mock.ExpectQuery(q).WithArgs("a@example.com").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q).WithArgs("b@example.com").WillReturnError(errors.New("boom"))

	ok, err := repo.ExistsByEmail(context.Background(), "a@example.com")
	if err != nil || !ok {
		t.Fatalf("ExistsByEmail = %v, %v", ok, err)
	}

	_, err = repo.ExistsByEmail(context.Background(), "b@example.com")
	if err == nil || !regexp.MustCompile(`db error: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

const insertQuery = `(?s)^INSERT\s+INTO\s+accounts\s*\(email,\s*password_hash,\s*display_name,\s*provider,\s*provider_subject,\s*active\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*RETURNING\s+id,\s*created_at,\s*updated_at\s*$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).
		WithArgs("alice@example.com", sql.NullString{String: "h", Valid: true}, "Alice", "local", sql.NullString{}, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(42), created, created))

	a := &models.Account{Email: "alice@example.com", PasswordHash: "h", DisplayName: "Alice", Provider: models.ProviderLocal, Active: true}
	got, err := repo.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 42 || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})

	a := &models.Account{Email: "alice@example.com", PasswordHash: "h", Provider: models.ProviderLocal, Active: true}
	_, err := repo.Create(context.Background(), a)
	if !errors.Is(err, common.ErrDuplicateIdentity) {
		t.Fatalf("want common.ErrDuplicateIdentity, got %v", err)
	}
}

func TestCreate_InvalidNeverHitsDB(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	a := &models.Account{Email: "alice@example.com", Provider: models.ProviderLocal}
	_, err := repo.Create(context.Background(), a)
	if !errors.Is(err, models.ErrCredentialMissing) {
		t.Fatalf("want models.ErrCredentialMissing, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected db calls: %v", err)
	}
}

const updateQuery = `(?s)^UPDATE\s+accounts\s+SET\s+password_hash\s*=\s*\$2,\s*display_name\s*=\s*\$3,\s*active\s*=\s*\$4,\s*updated_at\s*=\s*\$5,\s*last_login_at\s*=\s*\$6\s+WHERE\s+id\s*=\s*\$1\s*$`

func TestUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := created.Add(time.Minute)
	a := models.WithLastLogin(models.Account{ID: 3, Email: "a@x", PasswordHash: "h", Provider: models.ProviderLocal, Active: true}, at)

	mock.ExpectExec(updateQuery).
		WithArgs(int64(3), sql.NullString{String: "h", Valid: true}, "", true, at, sql.NullTime{Time: at, Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateQuery).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(updateQuery).WillReturnError(errors.New("db down"))

	if err := repo.Update(context.Background(), a); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if err := repo.Update(context.Background(), a); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if err := repo.Update(context.Background(), a); err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestLockByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE$`
	mock.ExpectQuery(q).WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery(q).WithArgs(int64(6)).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs(int64(7)).WillReturnError(errors.New("lock timeout"))

	if err := repo.LockByID(context.Background(), 5); err != nil {
		t.Fatalf("LockByID error: %v", err)
	}
	if err := repo.LockByID(context.Background(), 6); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if err := repo.LockByID(context.Background(), 7); err == nil || !regexp.MustCompile(`db error: .*lock timeout`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
