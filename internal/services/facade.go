package services

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alexienu/backend/internal/models"
)

// Ledger is the facade consumed by the presentation layer. It owns the
// orchestration of entry creation and posting; the heavy lifting lives
// in the store, engine and statement builder.
type Ledger struct {
	db         *sql.DB
	store      *LedgerStore
	engine     *PostingEngine
	statements *StatementBuilder
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{
		db:         db,
		store:      NewLedgerStore(db),
		engine:     NewPostingEngine(db),
		statements: NewStatementBuilder(db),
	}
}

// Store exposes the account and account-type operations to the
// presentation layer.
func (l *Ledger) Store() *LedgerStore {
	return l.store
}

// RecentActivity returns the user's newest journal entries, id
// descending, at most limit of them.
func (l *Ledger) RecentActivity(ctx context.Context, userID int64, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return l.store.RecentEntries(ctx, userID, limit)
}

// CreateAndPostStandardEntry creates a journal entry and posts it
// between the two accounts as one transaction. The same parsed amount
// is written to the entry and to both postings, which is what keeps the
// entry amount and its posting amounts in agreement.
func (l *Ledger) CreateAndPostStandardEntry(ctx context.Context, userID int64, description, amountStr string, debitAccountID, creditAccountID int64) (*models.JournalEntry, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(amountStr))
	if err != nil {
		return nil, NewValidationError("amount %q is not a decimal number", amountStr)
	}
	if amount.IsNegative() {
		return nil, NewValidationError("amount must not be negative")
	}

	// Resolve both accounts up front so an unknown id is reported as
	// not-found before any write happens.
	if _, err := l.store.GetAccountByID(ctx, userID, debitAccountID); err != nil {
		return nil, err
	}
	if _, err := l.store.GetAccountByID(ctx, userID, creditAccountID); err != nil {
		return nil, err
	}

	var entry *models.JournalEntry
	for attempt := 0; attempt < maxPostAttempts; attempt++ {
		entry, err = l.createAndPostOnce(ctx, userID, description, amount, debitAccountID, creditAccountID)
		if err == nil || !IsConflict(err) {
			return entry, err
		}
	}
	return nil, err
}

func (l *Ledger) createAndPostOnce(ctx context.Context, userID int64, description string, amount decimal.Decimal, debitAccountID, creditAccountID int64) (*models.JournalEntry, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, NewStorageError(err, "beginning entry creation")
	}
	defer tx.Rollback()

	entry, err := l.store.CreateJournalEntryTx(ctx, tx, userID, description, amount)
	if err != nil {
		return nil, err
	}

	if err := l.engine.PostStandardTx(ctx, tx, userID, entry.ID, debitAccountID, creditAccountID, amount); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return nil, NewConflictError("entry creation aborted by concurrent update")
		}
		return nil, NewStorageError(err, "committing entry creation")
	}
	return entry, nil
}

// AccountStatement resolves the account by name and returns its
// chronological line items, newest first.
func (l *Ledger) AccountStatement(ctx context.Context, userID int64, accountName string) ([]models.LineItem, error) {
	account, err := l.store.GetAccount(ctx, userID, accountName)
	if err != nil {
		return nil, err
	}

	entries, err := l.store.EntriesForAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []models.LineItem{}, nil
	}

	entryIDs := make([]int64, len(entries))
	for i, e := range entries {
		entryIDs[i] = e.ID
	}

	postings, err := l.statements.PostingsForEntries(ctx, userID, entryIDs)
	if err != nil {
		return nil, err
	}
	return BuildStatement(postings), nil
}
