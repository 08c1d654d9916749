package database

import (
	"database/sql"
	"fmt"
)

// Schema bootstrap for the four ledger tables. Statements are idempotent
// so EnsureSchema can run on every startup. Cascade deletion is handled
// explicitly by the store layer, so the foreign keys here carry no
// ON DELETE action.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS account_types (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		name VARCHAR(80) NOT NULL,
		sign INT NOT NULL,
		visible BOOLEAN NOT NULL DEFAULT TRUE,
		ord INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		name VARCHAR(80) NOT NULL,
		visible BOOLEAN NOT NULL DEFAULT TRUE,
		account_type_id BIGINT NOT NULL REFERENCES account_types(id),
		balance NUMERIC(22,2) NOT NULL DEFAULT 0,
		budget NUMERIC(22,2) NOT NULL DEFAULT 0,
		in_budget BOOLEAN NOT NULL DEFAULT FALSE,
		version INT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS journal_entries (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		created_at DATE NOT NULL DEFAULT CURRENT_DATE,
		description VARCHAR(160) NOT NULL,
		amount NUMERIC(22,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS postings (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		entry_id BIGINT NOT NULL REFERENCES journal_entries(id),
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		amount NUMERIC(22,2) NOT NULL,
		is_debit BOOLEAN NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id, name)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_user ON journal_entries(user_id, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_entry ON postings(entry_id)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_account ON postings(account_id)`,
}

// EnsureSchema creates the ledger tables and indexes if they are missing.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
