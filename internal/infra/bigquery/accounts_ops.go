package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// ReplaceAccounts delegates to ReplaceAccountsWithClient with the shared client.
func (s *Store) ReplaceAccounts(ctx context.Context, accounts []domain.Account) error {
	return ReplaceAccountsWithClient(ctx, s.client, s.ds, accounts)
}

// ReplaceAccountsWithClient swaps the account snapshot inside one
// multi-statement transaction.
func ReplaceAccountsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, accounts []domain.Account) error {
	q := client.Query(replaceAccountsSQL(ds))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "accounts", Value: toAccountParams(accounts)},
	}

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("ReplaceAccounts: %w", err)
	}
	return nil
}

func replaceAccountsSQL(ds Dataset) string {
	table := ds.Table(accountsTable)
	return fmt.Sprintf(`
		BEGIN TRANSACTION;
		DELETE FROM %s WHERE TRUE;
		INSERT INTO %s (account_id, display_name, account_type, currency, updated_ts)
		SELECT account_id, display_name, account_type, currency, CURRENT_TIMESTAMP()
		FROM UNNEST(@accounts);
		COMMIT TRANSACTION;
	`, table, table)
}
