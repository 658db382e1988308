package sqlite

import (
	"context"
	"fmt"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// ReplaceAccounts swaps the stored account snapshot for accounts.
func (s *Store) ReplaceAccounts(ctx context.Context, accounts []domain.Account) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ReplaceAccounts: begin tx: %w", err)
	}
	defer dbtx.Rollback()

	if _, err := dbtx.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return fmt.Errorf("ReplaceAccounts: clearing snapshot: %w", err)
	}

	now := formatTime(s.now())
	for _, a := range accounts {
		if _, err := dbtx.ExecContext(ctx, `
			INSERT INTO accounts (account_id, display_name, account_type, currency, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, a.AccountID, a.DisplayName, a.AccountType, a.Currency, now); err != nil {
			return fmt.Errorf("ReplaceAccounts: inserting %s: %w", a.AccountID, err)
		}
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("ReplaceAccounts: commit: %w", err)
	}
	return nil
}

// ListAccounts returns the stored snapshot ordered by display name.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, display_name, account_type, currency
		FROM accounts
		ORDER BY display_name, account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.AccountID, &a.DisplayName, &a.AccountType, &a.Currency); err != nil {
			return nil, fmt.Errorf("ListAccounts: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
