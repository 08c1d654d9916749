package services

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alexienu/backend/internal/models"
)

// LedgerStore owns persistence for account types, accounts, journal
// entries and postings. Every query is scoped by the owning user id.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const accountColumns = `a.id, a.user_id, a.name, a.visible, a.account_type_id, t.sign,
	a.balance, a.budget, a.in_budget, a.version, a.updated_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Visible, &a.AccountTypeID, &a.Sign,
		&a.Balance, &a.Budget, &a.InBudget, &a.Version, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccountType creates an account type for the user. Sign must be
// +1 or -1.
func (ls *LedgerStore) CreateAccountType(ctx context.Context, userID int64, name string, sign, order int, visible bool) (*models.AccountType, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 80 {
		return nil, NewValidationError("account type name must be 1-80 characters")
	}
	if sign != 1 && sign != -1 {
		return nil, NewValidationError("sign must be +1 or -1, got %d", sign)
	}

	at := &models.AccountType{UserID: userID, Name: name, Sign: sign, Visible: visible, Order: order}
	err := ls.db.QueryRowContext(ctx, `
		INSERT INTO account_types (user_id, name, sign, visible, ord)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		userID, name, sign, visible, order).Scan(&at.ID)
	if err != nil {
		return nil, NewStorageError(err, "creating account type %q", name)
	}
	return at, nil
}

// AccountParams carries the optional fields of a new account.
type AccountParams struct {
	InitialBalance decimal.Decimal
	Budget         decimal.Decimal
	InBudget       bool
}

// CreateAccount creates an account under an existing account type owned
// by the same user.
func (ls *LedgerStore) CreateAccount(ctx context.Context, userID int64, name string, accountTypeID int64, params AccountParams) (*models.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 80 {
		return nil, NewValidationError("account name must be 1-80 characters")
	}

	var typeOwner int64
	var sign int
	err := ls.db.QueryRowContext(ctx,
		`SELECT user_id, sign FROM account_types WHERE id = $1`,
		accountTypeID).Scan(&typeOwner, &sign)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("account type %d not found", accountTypeID)
	}
	if err != nil {
		return nil, NewStorageError(err, "looking up account type %d", accountTypeID)
	}
	if typeOwner != userID {
		return nil, NewValidationError("account type %d belongs to another user", accountTypeID)
	}

	a := &models.Account{
		UserID:        userID,
		Name:          name,
		Visible:       true,
		AccountTypeID: accountTypeID,
		Sign:          sign,
		Balance:       params.InitialBalance,
		Budget:        params.Budget,
		InBudget:      params.InBudget,
		Version:       1,
	}
	err = ls.db.QueryRowContext(ctx, `
		INSERT INTO accounts (user_id, name, account_type_id, balance, budget, in_budget)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, updated_at`,
		userID, name, accountTypeID, params.InitialBalance, params.Budget, params.InBudget).
		Scan(&a.ID, &a.UpdatedAt)
	if err != nil {
		return nil, NewStorageError(err, "creating account %q", name)
	}
	return a, nil
}

// DeleteAccountType removes an account type with all dependent accounts
// and their postings, children first, in one transaction.
func (ls *LedgerStore) DeleteAccountType(ctx context.Context, userID, typeID int64) error {
	tx, err := ls.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError(err, "beginning account type delete")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM postings
		WHERE user_id = $1 AND account_id IN (
			SELECT id FROM accounts WHERE user_id = $1 AND account_type_id = $2
		)`, userID, typeID)
	if err != nil {
		return NewStorageError(err, "deleting postings for account type %d", typeID)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM accounts WHERE user_id = $1 AND account_type_id = $2`,
		userID, typeID)
	if err != nil {
		return NewStorageError(err, "deleting accounts for account type %d", typeID)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM account_types WHERE user_id = $1 AND id = $2`,
		userID, typeID)
	if err != nil {
		return NewStorageError(err, "deleting account type %d", typeID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewNotFoundError("account type %d not found", typeID)
	}

	if err := tx.Commit(); err != nil {
		return NewStorageError(err, "committing account type delete")
	}
	return nil
}

// DeleteAccount removes an account and its postings in one transaction.
// Journal entries survive; only their legs on this account disappear.
func (ls *LedgerStore) DeleteAccount(ctx context.Context, userID, accountID int64) error {
	tx, err := ls.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError(err, "beginning account delete")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM postings WHERE user_id = $1 AND account_id = $2`,
		userID, accountID)
	if err != nil {
		return NewStorageError(err, "deleting postings for account %d", accountID)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM accounts WHERE user_id = $1 AND id = $2`,
		userID, accountID)
	if err != nil {
		return NewStorageError(err, "deleting account %d", accountID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewNotFoundError("account %d not found", accountID)
	}

	if err := tx.Commit(); err != nil {
		return NewStorageError(err, "committing account delete")
	}
	return nil
}

// GetAccount resolves an account by name or numeric id. Numeric strings
// try the id first and fall back to a name match.
func (ls *LedgerStore) GetAccount(ctx context.Context, userID int64, nameOrID string) (*models.Account, error) {
	if id, err := strconv.ParseInt(nameOrID, 10, 64); err == nil {
		a, err := ls.GetAccountByID(ctx, userID, id)
		if err == nil || !IsNotFound(err) {
			return a, err
		}
	}

	a, err := scanAccount(ls.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts a
		JOIN account_types t ON t.id = a.account_type_id
		WHERE a.user_id = $1 AND a.name = $2`,
		userID, nameOrID))
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("account %q not found", nameOrID)
	}
	if err != nil {
		return nil, NewStorageError(err, "fetching account %q", nameOrID)
	}
	return a, nil
}

func (ls *LedgerStore) GetAccountByID(ctx context.Context, userID, accountID int64) (*models.Account, error) {
	a, err := scanAccount(ls.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts a
		JOIN account_types t ON t.id = a.account_type_id
		WHERE a.user_id = $1 AND a.id = $2`,
		userID, accountID))
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("account %d not found", accountID)
	}
	if err != nil {
		return nil, NewStorageError(err, "fetching account %d", accountID)
	}
	return a, nil
}

// ListAccounts returns the user's accounts sorted by name.
func (ls *LedgerStore) ListAccounts(ctx context.Context, userID int64) ([]models.Account, error) {
	rows, err := ls.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts a
		JOIN account_types t ON t.id = a.account_type_id
		WHERE a.user_id = $1
		ORDER BY a.name`, userID)
	if err != nil {
		return nil, NewStorageError(err, "listing accounts")
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Visible, &a.AccountTypeID, &a.Sign,
			&a.Balance, &a.Budget, &a.InBudget, &a.Version, &a.UpdatedAt); err != nil {
			return nil, NewStorageError(err, "scanning account")
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(err, "listing accounts")
	}
	return accounts, nil
}

// ListAccountTypes returns the user's account types in display order.
func (ls *LedgerStore) ListAccountTypes(ctx context.Context, userID int64) ([]models.AccountType, error) {
	rows, err := ls.db.QueryContext(ctx, `
		SELECT id, user_id, name, sign, visible, ord
		FROM account_types
		WHERE user_id = $1
		ORDER BY ord`, userID)
	if err != nil {
		return nil, NewStorageError(err, "listing account types")
	}
	defer rows.Close()

	types := []models.AccountType{}
	for rows.Next() {
		var at models.AccountType
		if err := rows.Scan(&at.ID, &at.UserID, &at.Name, &at.Sign, &at.Visible, &at.Order); err != nil {
			return nil, NewStorageError(err, "scanning account type")
		}
		types = append(types, at)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(err, "listing account types")
	}
	return types, nil
}

// CreateJournalEntryTx inserts a journal entry inside the caller's
// transaction. The amount is recorded redundantly for display; the
// postings created afterwards must match it.
func (ls *LedgerStore) CreateJournalEntryTx(ctx context.Context, tx *sql.Tx, userID int64, description string, amount decimal.Decimal) (*models.JournalEntry, error) {
	description = strings.TrimSpace(description)
	if description == "" || len(description) > 160 {
		return nil, NewValidationError("description must be 1-160 characters")
	}

	e := &models.JournalEntry{UserID: userID, Description: description, Amount: amount}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO journal_entries (user_id, description, amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		userID, description, amount).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return nil, NewStorageError(err, "creating journal entry")
	}
	return e, nil
}

// RecentEntries returns the newest entries, id descending.
func (ls *LedgerStore) RecentEntries(ctx context.Context, userID int64, limit int) ([]models.JournalEntry, error) {
	rows, err := ls.db.QueryContext(ctx, `
		SELECT id, user_id, created_at, description, amount
		FROM journal_entries
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, NewStorageError(err, "listing recent entries")
	}
	defer rows.Close()

	return scanEntries(rows)
}

// EntriesForAccount returns the entries with at least one posting on the
// account, newest first.
func (ls *LedgerStore) EntriesForAccount(ctx context.Context, account *models.Account) ([]models.JournalEntry, error) {
	rows, err := ls.db.QueryContext(ctx, `
		SELECT DISTINCT e.id, e.user_id, e.created_at, e.description, e.amount
		FROM journal_entries e
		JOIN postings p ON p.entry_id = e.id
		WHERE e.user_id = $1 AND p.account_id = $2
		ORDER BY e.created_at DESC, e.id DESC`,
		account.UserID, account.ID)
	if err != nil {
		return nil, NewStorageError(err, "listing entries for account %d", account.ID)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]models.JournalEntry, error) {
	entries := []models.JournalEntry{}
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.CreatedAt, &e.Description, &e.Amount); err != nil {
			return nil, NewStorageError(err, "scanning journal entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(err, "reading journal entries")
	}
	return entries, nil
}
