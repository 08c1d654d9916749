package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType groups accounts and fixes their sign convention:
// sign is +1 when a debit increases the economic balance (assets,
// expenses) and -1 when it decreases it (liabilities, income).
type AccountType struct {
	ID      int64  `json:"id" db:"id"`
	UserID  int64  `json:"user_id" db:"user_id"`
	Name    string `json:"name" db:"name"`
	Sign    int    `json:"sign" db:"sign"`
	Visible bool   `json:"visible" db:"visible"`
	Order   int    `json:"order" db:"ord"`
}

type Account struct {
	ID            int64           `json:"id" db:"id"`
	UserID        int64           `json:"user_id" db:"user_id"`
	Name          string          `json:"name" db:"name"`
	Visible       bool            `json:"visible" db:"visible"`
	AccountTypeID int64           `json:"account_type_id" db:"account_type_id"`
	Sign          int             `json:"sign"` // joined from the account type
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	Budget        decimal.Decimal `json:"budget" db:"budget"`
	InBudget      bool            `json:"in_budget" db:"in_budget"`
	Version       int             `json:"-" db:"version"` // for optimistic locking
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// JournalEntry is one balanced financial event. CreatedAt is a calendar
// date, not a timestamp.
type JournalEntry struct {
	ID          int64           `json:"id" db:"id"`
	UserID      int64           `json:"user_id" db:"user_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	Description string          `json:"description" db:"description"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
}

// Posting is one leg of a journal entry. A standard entry has exactly
// two: one debit and one credit of equal amount.
type Posting struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	EntryID   int64           `json:"entry_id" db:"entry_id"`
	AccountID int64           `json:"account_id" db:"account_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	IsDebit   bool            `json:"is_debit" db:"is_debit"`
}

// LineItem is one statement row: a journal entry collapsed into a single
// display line with both leg account names filled in.
type LineItem struct {
	EntryID     int64           `json:"entry_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Debit       *string         `json:"debit"`
	Credit      *string         `json:"credit"`
}
