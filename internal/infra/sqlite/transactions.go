package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/store"
)

// InsertTransaction writes tx unless its transaction_id is already stored.
// The category column always starts out NULL.
func (s *Store) InsertTransaction(ctx context.Context, tx *domain.Transaction) (bool, error) {
	var running decimal.NullDecimal
	if tx.RunningBalance != nil {
		running = decimal.NewNullDecimal(*tx.RunningBalance)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
		(transaction_id, account_id, amount, currency, description, transaction_date,
		 timestamp, transaction_type, category, merchant_name, running_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)
		ON CONFLICT(transaction_id) DO NOTHING
	`,
		tx.TransactionID,
		tx.AccountID,
		tx.Amount.String(),
		tx.Currency,
		tx.Description,
		tx.TransactionDate.String(),
		tx.Timestamp,
		tx.TransactionType,
		nullString(tx.MerchantName),
		running,
		formatTime(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("InsertTransaction %s: %w", tx.TransactionID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("InsertTransaction %s: rows affected: %w", tx.TransactionID, err)
	}
	return n == 1, nil
}

// ListUncategorized returns transactions with a NULL category, oldest first.
func (s *Store) ListUncategorized(ctx context.Context) ([]store.Uncategorized, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, description
		FROM transactions
		WHERE category IS NULL
		ORDER BY transaction_date, transaction_id
	`)
	if err != nil {
		return nil, fmt.Errorf("ListUncategorized: query: %w", err)
	}
	defer rows.Close()

	var out []store.Uncategorized
	for rows.Next() {
		var u store.Uncategorized
		if err := rows.Scan(&u.TransactionID, &u.Description); err != nil {
			return nil, fmt.Errorf("ListUncategorized: scan: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListUncategorized: iterating: %w", err)
	}
	return out, nil
}

// ApplyCategories writes one batch in a single transaction. Rows that
// already have a category keep it.
func (s *Store) ApplyCategories(ctx context.Context, assignments []store.CategoryAssignment) (int64, error) {
	if len(assignments) == 0 {
		return 0, nil
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ApplyCategories: begin tx: %w", err)
	}
	defer dbtx.Rollback()

	stmt, err := dbtx.PrepareContext(ctx, `
		UPDATE transactions
		SET category = ?
		WHERE transaction_id = ? AND category IS NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("ApplyCategories: prepare: %w", err)
	}
	defer stmt.Close()

	var updated int64
	for _, a := range assignments {
		res, err := stmt.ExecContext(ctx, a.Category, a.TransactionID)
		if err != nil {
			return 0, fmt.Errorf("ApplyCategories: updating %s: %w", a.TransactionID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("ApplyCategories: rows affected: %w", err)
		}
		updated += n
	}

	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("ApplyCategories: commit: %w", err)
	}
	return updated, nil
}

// CountUncategorized returns the number of transactions with a NULL category.
func (s *Store) CountUncategorized(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE category IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountUncategorized: %w", err)
	}
	return n, nil
}

// ErrTransactionNotFound is returned by GetTransaction for an unknown id.
var ErrTransactionNotFound = errors.New("transaction not found")

// GetTransaction reads back a single stored transaction.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var (
		tx       domain.Transaction
		amount   decimal.Decimal
		date     string
		category sql.NullString
		merchant sql.NullString
		running  decimal.NullDecimal
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, account_id, amount, currency, description, transaction_date,
		       timestamp, transaction_type, category, merchant_name, running_balance
		FROM transactions
		WHERE transaction_id = ?
	`, id).Scan(
		&tx.TransactionID, &tx.AccountID, &amount, &tx.Currency, &tx.Description, &date,
		&tx.Timestamp, &tx.TransactionType, &category, &merchant, &running,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetTransaction %s: %w", id, ErrTransactionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction %s: %w", id, err)
	}

	d, err := civil.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction %s: parsing date %q: %w", id, date, err)
	}
	tx.TransactionDate = d
	tx.Amount = amount
	if category.Valid {
		tx.Category = &category.String
	}
	if merchant.Valid {
		tx.MerchantName = &merchant.String
	}
	if running.Valid {
		tx.RunningBalance = &running.Decimal
	}
	return &tx, nil
}

// CountTransactions returns the number of stored transactions.
func (s *Store) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountTransactions: %w", err)
	}
	return n, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
