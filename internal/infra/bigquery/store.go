// Package bigquery is the warehouse-backed store. Inserts are MERGE
// statements keyed on the natural key, so re-ingestion is a no-op.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/dvloznov/bank-sync/internal/store"
)

const (
	transactionsTable   = "transactions"
	balanceHistoryTable = "balance_history"
	accountsTable       = "accounts"
	apiCostsTable       = "api_costs"
)

// Dataset names the project and dataset every table lives in.
type Dataset struct {
	Project string
	ID      string
}

// Table returns the back-quoted, fully qualified name of table.
func (d Dataset) Table(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.Project, d.ID, table)
}

// Store implements store.Store on BigQuery. It holds one shared client.
type Store struct {
	client *bigquery.Client
	ds     Dataset
	now    func() time.Time
}

// New creates a client for project and returns a Store over dataset.
func New(ctx context.Context, project, dataset string, opts ...option.ClientOption) (*Store, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.New: creating client: %w", err)
	}
	return NewWithClient(client, Dataset{Project: project, ID: dataset}), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *bigquery.Client, ds Dataset) *Store {
	return &Store{client: client, ds: ds, now: time.Now}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Client returns the shared client, e.g. for migrations.
func (s *Store) Client() *bigquery.Client {
	return s.client
}

// Dataset returns the dataset the store writes to.
func (s *Store) Dataset() Dataset {
	return s.ds
}

// runDML runs a DML statement or script and returns the affected row count.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

var _ store.Store = (*Store)(nil)
