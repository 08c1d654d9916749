package services

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/alexienu/backend/internal/models"
)

// StatementBuilder reconstructs per-account statements from raw
// postings.
type StatementBuilder struct {
	db *sql.DB
}

func NewStatementBuilder(db *sql.DB) *StatementBuilder {
	return &StatementBuilder{db: db}
}

// StatementRow is a posting joined with its entry and account name, the
// unit the builder coalesces into line items.
type StatementRow struct {
	PostingID   int64
	EntryID     int64
	CreatedAt   time.Time
	Description string
	Amount      decimal.Decimal
	AccountName string
	IsDebit     bool
}

// PostingsForEntries fetches the user's postings for the given entries,
// newest entry first, newest posting first within an entry.
func (sb *StatementBuilder) PostingsForEntries(ctx context.Context, userID int64, entryIDs []int64) ([]StatementRow, error) {
	if len(entryIDs) == 0 {
		return []StatementRow{}, nil
	}

	rows, err := sb.db.QueryContext(ctx, `
		SELECT p.id, e.id, e.created_at, e.description, e.amount, a.name, p.is_debit
		FROM postings p
		JOIN journal_entries e ON e.id = p.entry_id
		JOIN accounts a ON a.id = p.account_id
		WHERE p.user_id = $1 AND p.entry_id = ANY($2)
		ORDER BY e.created_at DESC, e.id DESC, p.id DESC`,
		userID, pq.Array(entryIDs))
	if err != nil {
		return nil, NewStorageError(err, "fetching postings for statement")
	}
	defer rows.Close()

	statementRows := []StatementRow{}
	for rows.Next() {
		var r StatementRow
		if err := rows.Scan(&r.PostingID, &r.EntryID, &r.CreatedAt, &r.Description,
			&r.Amount, &r.AccountName, &r.IsDebit); err != nil {
			return nil, NewStorageError(err, "scanning statement posting")
		}
		statementRows = append(statementRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(err, "fetching postings for statement")
	}
	return statementRows, nil
}

// BuildStatement collapses postings into one line item per journal
// entry. The item is created when the entry id is first seen; each
// posting then fills only its own leg, so a fully posted standard entry
// shows both account names. Output is ordered by date descending with
// ties kept in first-encounter order of the newest-first input.
func BuildStatement(postings []StatementRow) []models.LineItem {
	byEntry := make(map[int64]*models.LineItem)
	ordered := []*models.LineItem{}

	for _, p := range postings {
		item, ok := byEntry[p.EntryID]
		if !ok {
			item = &models.LineItem{
				EntryID:     p.EntryID,
				CreatedAt:   p.CreatedAt,
				Description: p.Description,
				Amount:      p.Amount,
			}
			byEntry[p.EntryID] = item
			ordered = append(ordered, item)
		}
		name := p.AccountName
		if p.IsDebit {
			item.Debit = &name
		} else {
			item.Credit = &name
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	items := make([]models.LineItem, len(ordered))
	for i, item := range ordered {
		items[i] = *item
	}
	return items
}
