package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildStatement(t *testing.T) {
	rent := decimal.RequireFromString("800.00")
	pay := decimal.RequireFromString("1000.00")

	t.Run("coalesces both legs into one line item", func(t *testing.T) {
		// Newest-first input: debit posting (higher id) before credit.
		rows := []StatementRow{
			{PostingID: 4, EntryID: 2, CreatedAt: day(30), Description: "rent", Amount: rent, AccountName: "Rent", IsDebit: true},
			{PostingID: 3, EntryID: 2, CreatedAt: day(30), Description: "rent", Amount: rent, AccountName: "Checking", IsDebit: false},
		}

		items := BuildStatement(rows)
		assert.Len(t, items, 1)
		item := items[0]
		assert.Equal(t, "rent", item.Description)
		assert.True(t, item.Amount.Equal(rent))
		assert.Equal(t, day(30), item.CreatedAt)
		if assert.NotNil(t, item.Debit) {
			assert.Equal(t, "Rent", *item.Debit)
		}
		if assert.NotNil(t, item.Credit) {
			assert.Equal(t, "Checking", *item.Credit)
		}
	})

	t.Run("orders by date descending", func(t *testing.T) {
		rows := []StatementRow{
			{PostingID: 4, EntryID: 2, CreatedAt: day(30), Description: "rent", Amount: rent, AccountName: "Rent", IsDebit: true},
			{PostingID: 3, EntryID: 2, CreatedAt: day(30), Description: "rent", Amount: rent, AccountName: "Checking", IsDebit: false},
			{PostingID: 2, EntryID: 1, CreatedAt: day(29), Description: "paycheck", Amount: pay, AccountName: "Checking", IsDebit: true},
			{PostingID: 1, EntryID: 1, CreatedAt: day(29), Description: "paycheck", Amount: pay, AccountName: "Salary", IsDebit: false},
		}

		items := BuildStatement(rows)
		assert.Len(t, items, 2)
		assert.Equal(t, "rent", items[0].Description)
		assert.Equal(t, "paycheck", items[1].Description)
	})

	t.Run("same-day entries keep newest-first encounter order", func(t *testing.T) {
		rows := []StatementRow{
			{PostingID: 4, EntryID: 2, CreatedAt: day(30), Description: "second", Amount: rent, AccountName: "Rent", IsDebit: true},
			{PostingID: 3, EntryID: 2, CreatedAt: day(30), Description: "second", Amount: rent, AccountName: "Checking", IsDebit: false},
			{PostingID: 2, EntryID: 1, CreatedAt: day(30), Description: "first", Amount: pay, AccountName: "Checking", IsDebit: true},
			{PostingID: 1, EntryID: 1, CreatedAt: day(30), Description: "first", Amount: pay, AccountName: "Salary", IsDebit: false},
		}

		items := BuildStatement(rows)
		assert.Len(t, items, 2)
		assert.Equal(t, "second", items[0].Description)
		assert.Equal(t, "first", items[1].Description)
	})

	t.Run("half-posted entry leaves the other leg nil", func(t *testing.T) {
		rows := []StatementRow{
			{PostingID: 3, EntryID: 2, CreatedAt: day(30), Description: "rent", Amount: rent, AccountName: "Checking", IsDebit: false},
		}

		items := BuildStatement(rows)
		assert.Len(t, items, 1)
		assert.Nil(t, items[0].Debit)
		if assert.NotNil(t, items[0].Credit) {
			assert.Equal(t, "Checking", *items[0].Credit)
		}
	})

	t.Run("empty input yields empty statement", func(t *testing.T) {
		assert.Empty(t, BuildStatement(nil))
	})
}

func TestStatementBuilder_PostingsForEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	builder := NewStatementBuilder(db)
	ctx := context.Background()

	t.Run("fetches user postings for the entry set", func(t *testing.T) {
		mock.ExpectQuery(`SELECT p.id, e.id, e.created_at, e.description, e.amount, a.name, p.is_debit FROM postings p`).
			WithArgs(int64(7), pq.Array([]int64{2, 1})).
			WillReturnRows(sqlmock.NewRows([]string{"id", "entry_id", "created_at", "description", "amount", "name", "is_debit"}).
				AddRow(int64(4), int64(2), day(30), "rent", "800.00", "Rent", true).
				AddRow(int64(3), int64(2), day(30), "rent", "800.00", "Checking", false))

		rows, err := builder.PostingsForEntries(ctx, 7, []int64{2, 1})
		assert.NoError(t, err)
		assert.Len(t, rows, 2)
		assert.Equal(t, "Rent", rows[0].AccountName)
		assert.True(t, rows[0].IsDebit)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no entries short-circuits without a query", func(t *testing.T) {
		rows, err := builder.PostingsForEntries(ctx, 7, nil)
		assert.NoError(t, err)
		assert.Empty(t, rows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
