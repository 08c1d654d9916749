package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// maxPostAttempts bounds the transparent retry of conflicting standard
// posts before the conflict surfaces to the caller.
const maxPostAttempts = 3

// PostingEngine executes the standard post: two postings plus two
// balance updates as one transaction.
type PostingEngine struct {
	db *sql.DB
}

func NewPostingEngine(db *sql.DB) *PostingEngine {
	return &PostingEngine{db: db}
}

// lockedAccount is the slice of an account row the engine needs while
// holding its row lock.
type lockedAccount struct {
	ID      int64
	Sign    int
	Balance decimal.Decimal
	Version int
}

// Post runs the standard post in its own transaction, retrying a
// bounded number of times when the store reports contention.
func (pe *PostingEngine) Post(ctx context.Context, userID, entryID, debitAccountID, creditAccountID int64, amount decimal.Decimal) error {
	var err error
	for attempt := 0; attempt < maxPostAttempts; attempt++ {
		err = pe.postOnce(ctx, userID, entryID, debitAccountID, creditAccountID, amount)
		if err == nil || !IsConflict(err) {
			return err
		}
	}
	return err
}

func (pe *PostingEngine) postOnce(ctx context.Context, userID, entryID, debitAccountID, creditAccountID int64, amount decimal.Decimal) error {
	tx, err := pe.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError(err, "beginning standard post")
	}
	defer tx.Rollback()

	if err := pe.PostStandardTx(ctx, tx, userID, entryID, debitAccountID, creditAccountID, amount); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return NewConflictError("standard post aborted by concurrent update")
		}
		return NewStorageError(err, "committing standard post")
	}
	return nil
}

// PostStandardTx applies the four writes of a standard post inside the
// caller's transaction: credit posting, credit balance, debit posting,
// debit balance. The credit posting is inserted first so the debit leg
// gets the higher id and leads in id-descending listings.
func (pe *PostingEngine) PostStandardTx(ctx context.Context, tx *sql.Tx, userID, entryID, debitAccountID, creditAccountID int64, amount decimal.Decimal) error {
	if debitAccountID == creditAccountID {
		return NewValidationError("debit and credit accounts must differ")
	}
	if amount.IsNegative() {
		return NewValidationError("amount must not be negative")
	}

	// Lock accounts in consistent order to prevent deadlocks.
	firstID, secondID := debitAccountID, creditAccountID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}

	first, err := pe.lockAccount(ctx, tx, userID, firstID)
	if err != nil {
		return err
	}
	second, err := pe.lockAccount(ctx, tx, userID, secondID)
	if err != nil {
		return err
	}

	debit, credit := first, second
	if first.ID != debitAccountID {
		debit, credit = second, first
	}

	if err := pe.createPosting(ctx, tx, userID, entryID, credit.ID, amount, false); err != nil {
		return err
	}
	if err := pe.applyBalance(ctx, tx, credit, amount.Neg()); err != nil {
		return err
	}

	if err := pe.createPosting(ctx, tx, userID, entryID, debit.ID, amount, true); err != nil {
		return err
	}
	if err := pe.applyBalance(ctx, tx, debit, amount); err != nil {
		return err
	}

	return nil
}

func (pe *PostingEngine) lockAccount(ctx context.Context, tx *sql.Tx, userID, accountID int64) (*lockedAccount, error) {
	var a lockedAccount
	err := tx.QueryRowContext(ctx, `
		SELECT a.id, t.sign, a.balance, a.version
		FROM accounts a
		JOIN account_types t ON t.id = a.account_type_id
		WHERE a.user_id = $1 AND a.id = $2
		FOR UPDATE OF a`,
		userID, accountID).Scan(&a.ID, &a.Sign, &a.Balance, &a.Version)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("account %d not found", accountID)
	}
	if err != nil {
		if isSerializationFailure(err) {
			return nil, NewConflictError("locking account %d: %v", accountID, err)
		}
		return nil, NewStorageError(err, "locking account %d", accountID)
	}
	return &a, nil
}

func (pe *PostingEngine) createPosting(ctx context.Context, tx *sql.Tx, userID, entryID, accountID int64, amount decimal.Decimal, isDebit bool) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO postings (user_id, entry_id, account_id, amount, is_debit)
		VALUES ($1, $2, $3, $4, $5)`,
		userID, entryID, accountID, amount, isDebit)
	if err != nil {
		return NewStorageError(err, "creating posting on account %d", accountID)
	}
	return nil
}

// applyBalance moves the locked account's balance by delta adjusted for
// the account type sign. The version check backstops the row lock; a
// miss means a concurrent writer got there first.
func (pe *PostingEngine) applyBalance(ctx context.Context, tx *sql.Tx, account *lockedAccount, delta decimal.Decimal) error {
	newBalance := account.Balance.Add(delta.Mul(decimal.NewFromInt(int64(account.Sign))))

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3`,
		newBalance, account.ID, account.Version)
	if err != nil {
		if isSerializationFailure(err) {
			return NewConflictError("updating balance of account %d: %v", account.ID, err)
		}
		return NewStorageError(err, "updating balance of account %d", account.ID)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return NewStorageError(err, "updating balance of account %d", account.ID)
	}
	if rowsAffected == 0 {
		return NewConflictError("optimistic lock failed for account %d", account.ID)
	}

	account.Balance = newBalance
	account.Version++
	return nil
}

// isSerializationFailure reports whether err is a Postgres class 40
// failure (serialization failure, deadlock detected), which is safe to
// retry on a fresh transaction.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Class() == "40"
}
