package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// InsertBalanceSnapshot delegates to InsertBalanceSnapshotWithClient with the shared client.
func (s *Store) InsertBalanceSnapshot(ctx context.Context, snap *domain.BalanceSnapshot) (bool, error) {
	if snap.CreatedAt.IsZero() {
		c := *snap
		c.CreatedAt = s.now()
		snap = &c
	}
	return InsertBalanceSnapshotWithClient(ctx, s.client, s.ds, snap)
}

// InsertBalanceSnapshotWithClient inserts snap unless the account already
// has a row for snap.SnapshotDate.
func InsertBalanceSnapshotWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, snap *domain.BalanceSnapshot) (bool, error) {
	q := client.Query(insertBalanceSQL(ds))
	q.Parameters = balanceParams(snap)

	n, err := runDML(ctx, q)
	if err != nil {
		return false, fmt.Errorf("InsertBalanceSnapshot %s@%s: %w", snap.AccountID, snap.SnapshotDate, err)
	}
	return n > 0, nil
}

func insertBalanceSQL(ds Dataset) string {
	return fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @account_id AS account_id, @snapshot_date AS snapshot_date) S
		ON T.account_id = S.account_id AND T.snapshot_date = S.snapshot_date
		WHEN NOT MATCHED THEN
		  INSERT (account_id, current_balance, available_balance, overdraft_limit, snapshot_date, created_ts)
		  VALUES (
			@account_id,
			CAST(@current_balance AS NUMERIC),
			CAST(@available_balance AS NUMERIC),
			CAST(@overdraft_limit AS NUMERIC),
			@snapshot_date,
			@created_ts
		  )
	`, ds.Table(balanceHistoryTable))
}
