package sessions

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

var exp = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresStore(db), mock, db
}

const putQuery = `(?s)^INSERT\s+INTO\s+sessions\s*\(account_id,\s*token,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*ON\s+CONFLICT\s*\(account_id\)\s*DO\s+UPDATE\s+SET\s+token\s*=\s*EXCLUDED\.token,\s*expires_at\s*=\s*EXCLUDED\.expires_at,.*$`

func TestPut(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(putQuery).WithArgs(int64(1), "tok", exp).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(putQuery).WithArgs(int64(1), "tok2", exp).WillReturnError(errors.New("db down"))

	if err := store.Put(context.Background(), 1, "tok", exp); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	err := store.Put(context.Background(), 1, "tok2", exp)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByToken(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+account_id,\s*token,\s*expires_at,\s*created_at\s+FROM\s+sessions\s+WHERE\s+token\s*=\s*\$1\s*$`
	created := exp.Add(-time.Hour)
	mock.ExpectQuery(q).WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "token", "expires_at", "created_at"}).AddRow(int64(9), "tok", exp, created))
	mock.ExpectQuery(q).WithArgs("gone").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs("err").WillReturnError(errors.New("db err"))

	rec, err := store.FindByToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FindByToken error: %v", err)
	}
	if rec.AccountID != 9 || rec.Token != "tok" || !rec.ExpiresAt.Equal(exp) || !rec.CreatedAt.Equal(created) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := store.FindByToken(context.Background(), "gone"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if _, err := store.FindByToken(context.Background(), "err"); err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByAccount(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+account_id,\s*token,\s*expires_at,\s*created_at\s+FROM\s+sessions\s+WHERE\s+account_id\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "token", "expires_at", "created_at"}).AddRow(int64(9), "tok", exp, exp))
	mock.ExpectQuery(q).WithArgs(int64(10)).WillReturnError(sql.ErrNoRows)

	rec, err := store.FindByAccount(context.Background(), 9)
	if err != nil || rec.Token != "tok" {
		t.Fatalf("FindByAccount = %+v, %v", rec, err)
	}
	if _, err := store.FindByAccount(context.Background(), 10); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestDeleteByAccount_Idempotent(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := `^DELETE\s+FROM\s+sessions\s+WHERE\s+account_id\s*=\s*\$1$`
	mock.ExpectExec(q).WithArgs(int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(4)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs(int64(4)).WillReturnError(errors.New("db down"))

	if err := store.DeleteByAccount(context.Background(), 4); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.DeleteByAccount(context.Background(), 4); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := store.DeleteByAccount(context.Background(), 4); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDeleteExpired(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := `^DELETE\s+FROM\s+sessions\s+WHERE\s+expires_at\s*<=\s*\$1$`
	mock.ExpectExec(q).WithArgs(exp).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(q).WithArgs(exp).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs(exp).WillReturnError(errors.New("db down"))

	n, err := store.DeleteExpired(context.Background(), exp)
	if err != nil || n != 3 {
		t.Fatalf("DeleteExpired = %d, %v", n, err)
	}
	n, err = store.DeleteExpired(context.Background(), exp)
	if err != nil || n != 0 {
		t.Fatalf("DeleteExpired second pass = %d, %v", n, err)
	}
	if _, err := store.DeleteExpired(context.Background(), exp); err == nil {
		t.Fatalf("expected error")
	}
}
