package sqlite

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// InsertBalanceSnapshot writes snap unless the account already has a
// snapshot for snap.SnapshotDate.
func (s *Store) InsertBalanceSnapshot(ctx context.Context, snap *domain.BalanceSnapshot) (bool, error) {
	created := snap.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_history
		(account_id, current_balance, available_balance, overdraft_limit, snapshot_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, snapshot_date) DO NOTHING
	`,
		snap.AccountID,
		snap.CurrentBalance,
		snap.AvailableBalance,
		snap.OverdraftLimit,
		snap.SnapshotDate.String(),
		formatTime(created),
	)
	if err != nil {
		return false, fmt.Errorf("InsertBalanceSnapshot %s@%s: %w", snap.AccountID, snap.SnapshotDate, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("InsertBalanceSnapshot: rows affected: %w", err)
	}
	return n == 1, nil
}

// ListBalanceSnapshots returns the stored snapshots of one account, by day.
func (s *Store) ListBalanceSnapshots(ctx context.Context, accountID string) ([]domain.BalanceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, current_balance, available_balance, overdraft_limit, snapshot_date, created_at
		FROM balance_history
		WHERE account_id = ?
		ORDER BY snapshot_date
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("ListBalanceSnapshots: query: %w", err)
	}
	defer rows.Close()

	var out []domain.BalanceSnapshot
	for rows.Next() {
		var (
			snap    domain.BalanceSnapshot
			date    string
			created string
		)
		if err := rows.Scan(&snap.AccountID, &snap.CurrentBalance, &snap.AvailableBalance,
			&snap.OverdraftLimit, &date, &created); err != nil {
			return nil, fmt.Errorf("ListBalanceSnapshots: scan: %w", err)
		}
		if snap.SnapshotDate, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("ListBalanceSnapshots: parsing date %q: %w", date, err)
		}
		if snap.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("ListBalanceSnapshots: parsing created_at %q: %w", created, err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListBalanceSnapshots: iterating: %w", err)
	}
	return out, nil
}
