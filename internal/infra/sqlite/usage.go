package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-sync/internal/store"
)

// InsertUsage appends one classification cost record.
func (s *Store) InsertUsage(ctx context.Context, rec *store.UsageRecord) error {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_costs (id, model, input_tokens, output_tokens, total_tokens, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, rec.Model, rec.InputTokens, rec.OutputTokens, rec.TotalTokens, rec.Cost.String(), formatTime(created))
	if err != nil {
		return fmt.Errorf("InsertUsage: %w", err)
	}
	return nil
}

// TotalCost sums the recorded classification cost.
func (s *Store) TotalCost(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(cost), 0) FROM api_costs`).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("TotalCost: %w", err)
	}
	return total, nil
}
