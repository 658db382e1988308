package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/store"
)

// InsertTransaction delegates to InsertTransactionWithClient with the shared client.
func (s *Store) InsertTransaction(ctx context.Context, tx *domain.Transaction) (bool, error) {
	return InsertTransactionWithClient(ctx, s.client, s.ds, tx)
}

// InsertTransactionWithClient inserts tx unless its transaction_id is
// already present. category always starts out NULL.
func InsertTransactionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, tx *domain.Transaction) (bool, error) {
	q := client.Query(insertTransactionSQL(ds))
	q.Parameters = transactionParams(tx)

	n, err := runDML(ctx, q)
	if err != nil {
		return false, fmt.Errorf("InsertTransaction %s: %w", tx.TransactionID, err)
	}
	return n > 0, nil
}

func insertTransactionSQL(ds Dataset) string {
	return fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @transaction_id AS transaction_id) S
		ON T.transaction_id = S.transaction_id
		WHEN NOT MATCHED THEN
		  INSERT (
			transaction_id, account_id, amount, currency, description,
			transaction_date, timestamp, transaction_type, category,
			merchant_name, running_balance, created_ts
		  )
		  VALUES (
			@transaction_id, @account_id, CAST(@amount AS NUMERIC), @currency, @description,
			@transaction_date, @timestamp, @transaction_type, NULL,
			@merchant_name, CAST(@running_balance AS NUMERIC), CURRENT_TIMESTAMP()
		  )
	`, ds.Table(transactionsTable))
}

// ListUncategorized delegates to ListUncategorizedWithClient with the shared client.
func (s *Store) ListUncategorized(ctx context.Context) ([]store.Uncategorized, error) {
	return ListUncategorizedWithClient(ctx, s.client, s.ds)
}

// ListUncategorizedWithClient returns transactions whose category is NULL, oldest first.
func ListUncategorizedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]store.Uncategorized, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT transaction_id, description
		FROM %s
		WHERE category IS NULL
		ORDER BY transaction_date, transaction_id
	`, ds.Table(transactionsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListUncategorized: query read: %w", err)
	}

	var out []store.Uncategorized
	for {
		var r uncategorizedRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListUncategorized: iter next: %w", err)
		}
		out = append(out, store.Uncategorized{TransactionID: r.TransactionID, Description: r.Description})
	}
	return out, nil
}

// ApplyCategories delegates to ApplyCategoriesWithClient with the shared client.
func (s *Store) ApplyCategories(ctx context.Context, assignments []store.CategoryAssignment) (int64, error) {
	return ApplyCategoriesWithClient(ctx, s.client, s.ds, assignments)
}

// ApplyCategoriesWithClient writes one batch as a single UPDATE statement,
// which BigQuery applies atomically. Rows already categorized are skipped.
func ApplyCategoriesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, assignments []store.CategoryAssignment) (int64, error) {
	if len(assignments) == 0 {
		return 0, nil
	}

	q := client.Query(applyCategoriesSQL(ds))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "assignments", Value: toAssignmentParams(assignments)},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("ApplyCategories: %w", err)
	}
	return n, nil
}

func applyCategoriesSQL(ds Dataset) string {
	return fmt.Sprintf(`
		UPDATE %s T
		SET category = A.category
		FROM UNNEST(@assignments) A
		WHERE T.transaction_id = A.transaction_id
		  AND T.category IS NULL
	`, ds.Table(transactionsTable))
}

// CountUncategorized delegates to CountUncategorizedWithClient with the shared client.
func (s *Store) CountUncategorized(ctx context.Context) (int64, error) {
	return CountUncategorizedWithClient(ctx, s.client, s.ds)
}

// CountUncategorizedWithClient counts transactions with a NULL category.
func CountUncategorizedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS n
		FROM %s
		WHERE category IS NULL
	`, ds.Table(transactionsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountUncategorized: query read: %w", err)
	}

	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil {
		return 0, fmt.Errorf("CountUncategorized: iter next: %w", err)
	}
	return row.N, nil
}
