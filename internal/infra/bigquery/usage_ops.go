package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/dvloznov/bank-sync/internal/store"
)

// InsertUsage delegates to InsertUsageWithClient with the shared client.
func (s *Store) InsertUsage(ctx context.Context, rec *store.UsageRecord) error {
	r := *rec
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	return InsertUsageWithClient(ctx, s.client, s.ds, &r)
}

// InsertUsageWithClient appends one row to api_costs. Uses DML INSERT to
// avoid streaming buffer issues.
func InsertUsageWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rec *store.UsageRecord) error {
	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s (id, model, input_tokens, output_tokens, total_tokens, cost, created_ts)
		VALUES (@id, @model, @input_tokens, @output_tokens, @total_tokens, CAST(@cost AS NUMERIC), @created_ts)
	`, ds.Table(apiCostsTable)))
	q.Parameters = usageParams(rec)

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertUsage: %w", err)
	}
	return nil
}

func usageParams(rec *store.UsageRecord) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "id", Value: rec.ID},
		{Name: "model", Value: rec.Model},
		{Name: "input_tokens", Value: rec.InputTokens},
		{Name: "output_tokens", Value: rec.OutputTokens},
		{Name: "total_tokens", Value: rec.TotalTokens},
		{Name: "cost", Value: rec.Cost.String()},
		{Name: "created_ts", Value: rec.CreatedAt},
	}
}
