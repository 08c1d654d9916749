package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var accountCols = []string{
	"id", "user_id", "name", "visible", "account_type_id", "sign",
	"balance", "budget", "in_budget", "version", "updated_at",
}

func accountRow(id, userID int64, name string, typeID int64, sign int, balance string) []driver.Value {
	return []driver.Value{id, userID, name, true, typeID, sign, balance, "0.00", false, 1, time.Now()}
}

func TestLedgerStore_CreateAccountType(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)
	ctx := context.Background()

	t.Run("creates with valid sign", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO account_types").
			WithArgs(int64(7), "Asset", 1, true, 0).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

		at, err := store.CreateAccountType(ctx, 7, "Asset", 1, 0, true)
		assert.NoError(t, err)
		assert.Equal(t, int64(3), at.ID)
		assert.Equal(t, 1, at.Sign)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects sign other than plus or minus one", func(t *testing.T) {
		_, err := store.CreateAccountType(ctx, 7, "Weird", 0, 0, true)
		assert.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := store.CreateAccountType(ctx, 7, "  ", 1, 0, true)
		assert.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}

func TestLedgerStore_CreateAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)
	ctx := context.Background()

	t.Run("creates under own account type", func(t *testing.T) {
		mock.ExpectQuery("SELECT user_id, sign FROM account_types").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "sign"}).AddRow(int64(7), 1))
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(int64(7), "Checking", int64(3), decimal.Zero, decimal.Zero, false).
			WillReturnRows(sqlmock.NewRows([]string{"id", "updated_at"}).AddRow(int64(11), time.Now()))

		a, err := store.CreateAccount(ctx, 7, "Checking", 3, AccountParams{})
		assert.NoError(t, err)
		assert.Equal(t, int64(11), a.ID)
		assert.Equal(t, 1, a.Sign)
		assert.True(t, a.Visible)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cross-user account type is a validation error", func(t *testing.T) {
		mock.ExpectQuery("SELECT user_id, sign FROM account_types").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "sign"}).AddRow(int64(99), 1))

		_, err := store.CreateAccount(ctx, 7, "Checking", 3, AccountParams{})
		assert.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account type is not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT user_id, sign FROM account_types").
			WithArgs(int64(3)).
			WillReturnError(sql.ErrNoRows)

		_, err := store.CreateAccount(ctx, 7, "Checking", 3, AccountParams{})
		assert.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerStore_GetAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)
	ctx := context.Background()

	t.Run("resolves by name", func(t *testing.T) {
		mock.ExpectQuery(`WHERE a.user_id = \$1 AND a.name = \$2`).
			WithArgs(int64(7), "Checking").
			WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountRow(11, 7, "Checking", 3, 1, "25.00")...))

		a, err := store.GetAccount(ctx, 7, "Checking")
		assert.NoError(t, err)
		assert.Equal(t, int64(11), a.ID)
		assert.True(t, a.Balance.Equal(decimal.RequireFromString("25.00")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("numeric string tries id then falls back to name", func(t *testing.T) {
		mock.ExpectQuery(`WHERE a.user_id = \$1 AND a.id = \$2`).
			WithArgs(int64(7), int64(12)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`WHERE a.user_id = \$1 AND a.name = \$2`).
			WithArgs(int64(7), "12").
			WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountRow(44, 7, "12", 3, 1, "0.00")...))

		a, err := store.GetAccount(ctx, 7, "12")
		assert.NoError(t, err)
		assert.Equal(t, int64(44), a.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account is not found", func(t *testing.T) {
		mock.ExpectQuery(`WHERE a.user_id = \$1 AND a.name = \$2`).
			WithArgs(int64(7), "Ghost").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetAccount(ctx, 7, "Ghost")
		assert.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerStore_ListAccounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)

	mock.ExpectQuery(`FROM accounts a JOIN account_types t ON t.id = a.account_type_id WHERE a.user_id = \$1 ORDER BY a.name`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(accountRow(11, 7, "Checking", 3, 1, "25.00")...).
			AddRow(accountRow(12, 7, "Salary", 4, -1, "0.00")...))

	accounts, err := store.ListAccounts(context.Background(), 7)
	assert.NoError(t, err)
	assert.Len(t, accounts, 2)
	assert.Equal(t, "Checking", accounts[0].Name)
	assert.Equal(t, -1, accounts[1].Sign)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_ListAccountTypes(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)

	mock.ExpectQuery(`FROM account_types WHERE user_id = \$1 ORDER BY ord`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "sign", "visible", "ord"}).
			AddRow(int64(3), int64(7), "Asset", 1, true, 0).
			AddRow(int64(4), int64(7), "Income", -1, true, 1))

	types, err := store.ListAccountTypes(context.Background(), 7)
	assert.NoError(t, err)
	assert.Len(t, types, 2)
	assert.Equal(t, "Asset", types[0].Name)
	assert.Equal(t, 1, types[1].Order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_DeleteAccountType(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)
	ctx := context.Background()

	t.Run("cascades postings and accounts before the type", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM postings").
			WithArgs(int64(7), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectExec("DELETE FROM accounts").
			WithArgs(int64(7), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM account_types").
			WithArgs(int64(7), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.DeleteAccountType(ctx, 7, 3)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing type rolls back as not found", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM postings").
			WithArgs(int64(7), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM accounts").
			WithArgs(int64(7), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM account_types").
			WithArgs(int64(7), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.DeleteAccountType(ctx, 7, 3)
		assert.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerStore_DeleteAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM postings").
		WithArgs(int64(7), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM accounts").
		WithArgs(int64(7), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.DeleteAccount(context.Background(), 7, 11)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_RecentEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)

	mock.ExpectQuery(`FROM journal_entries WHERE user_id = \$1 ORDER BY id DESC LIMIT \$2`).
		WithArgs(int64(7), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "description", "amount"}).
			AddRow(int64(5), int64(7), time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), "groceries", "55.20").
			AddRow(int64(4), int64(7), time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), "paycheck", "1000.00"))

	entries, err := store.RecentEntries(context.Background(), 7, 10)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Greater(t, entries[0].ID, entries[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
