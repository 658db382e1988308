package categorize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/store"
)

// DefaultBatchSize bounds how many descriptions go into one classifier call.
const DefaultBatchSize = 50

// Repository is the store surface the engine reads from and writes to.
type Repository interface {
	ListUncategorized(ctx context.Context) ([]store.Uncategorized, error)
	ApplyCategories(ctx context.Context, assignments []store.CategoryAssignment) (int64, error)
	CountUncategorized(ctx context.Context) (int64, error)
	InsertUsage(ctx context.Context, rec *store.UsageRecord) error
}

// Outcome summarises one categorization run.
type Outcome struct {
	Selected           int
	Batches            int
	Categorized        int64
	Fallback           int
	ContractViolations int
	FailedBatches      int
	Remaining          int64
	Cost               decimal.Decimal
}

// Engine is the Categorization Engine.
type Engine struct {
	repo       Repository
	classifier Classifier
	validator  *LabelValidator
	labels     []string
	pricing    Pricing
	batchSize  int
	now        func() time.Time
	log        zerolog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithPricing sets the per-million-token rates used for the cost audit.
func WithPricing(p Pricing) Option {
	return func(e *Engine) { e.pricing = p }
}

// WithLabels replaces the category set.
func WithLabels(labels []string) Option {
	return func(e *Engine) { e.labels = labels }
}

// WithClock overrides the time source of usage records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an Engine over domain.Categories.
func NewEngine(repo Repository, classifier Classifier, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:       repo,
		classifier: classifier,
		labels:     domain.Categories,
		batchSize:  DefaultBatchSize,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.validator = NewLabelValidator(e.labels, domain.Uncategorized)
	return e
}

// Run categorizes every transaction whose category is NULL, committing
// after each batch. Only failing to read the work list is an error; batch
// failures are counted in the Outcome and leave their rows for next time.
func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	out := Outcome{Cost: decimal.Zero}

	pending, err := e.repo.ListUncategorized(ctx)
	if err != nil {
		return out, fmt.Errorf("categorize.Run: selecting uncategorized: %w", err)
	}
	out.Selected = len(pending)
	if len(pending) == 0 {
		e.log.Info().Msg("No uncategorized transactions")
		return out, nil
	}

	for start := 0; start < len(pending); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			e.log.Warn().Err(err).Int("batch", out.Batches+1).Msg("Categorization cancelled")
			break
		}
		end := min(start+e.batchSize, len(pending))
		out.Batches++
		e.runBatch(ctx, out.Batches, pending[start:end], &out)
	}

	remaining, err := e.repo.CountUncategorized(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to count remaining uncategorized transactions")
		remaining = -1
	}
	out.Remaining = remaining

	e.log.Info().
		Int("selected", out.Selected).
		Int("batches", out.Batches).
		Int64("categorized", out.Categorized).
		Int("fallback", out.Fallback).
		Int("failed_batches", out.FailedBatches).
		Int64("remaining", out.Remaining).
		Str("cost", out.Cost.String()).
		Msg("Categorization finished")
	return out, nil
}

func (e *Engine) runBatch(ctx context.Context, n int, batch []store.Uncategorized, out *Outcome) {
	log := e.log.With().Int("batch", n).Int("size", len(batch)).Logger()

	descriptions := make([]string, len(batch))
	for i, row := range batch {
		descriptions[i] = row.Description
	}

	result, err := e.classifier.Classify(ctx, descriptions, e.labels)
	if err == nil && result == nil {
		err = errors.New("classifier returned no result")
	}
	if result != nil {
		out.Cost = out.Cost.Add(e.recordUsage(ctx, log, result.Usage))
	}

	var labels []string
	switch {
	case err == nil:
		labels = result.Labels
	case errors.Is(err, domain.ErrClassificationContract):
		// Unusable answer: every row in the batch falls back below.
		log.Warn().Err(err).Msg("Classifier broke the response contract")
	default:
		log.Error().Err(err).Msg("Classifier call failed, batch left for next run")
		out.FailedBatches++
		return
	}

	mapping, err := e.validator.Map(batch, labels)
	if err != nil {
		log.Warn().Err(err).Msg("Label count mismatch, batch falls back to " + e.validator.Fallback())
		out.ContractViolations++
	}

	updated, err := e.repo.ApplyCategories(ctx, mapping.Assignments)
	if err != nil {
		log.Error().Err(err).Msg("Failed to commit batch")
		out.FailedBatches++
		return
	}
	out.Categorized += updated
	out.Fallback += mapping.Fallback
	log.Info().Int64("updated", updated).Int("fallback", mapping.Fallback).Msg("Committed batch")
}

// recordUsage stores the usage audit row. Failure is logged and never
// blocks the batch.
func (e *Engine) recordUsage(ctx context.Context, log zerolog.Logger, u Usage) decimal.Decimal {
	cost := e.pricing.Cost(u)
	rec := &store.UsageRecord{
		ID:           uuid.NewString(),
		Model:        u.Model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.TotalTokens,
		Cost:         cost,
		CreatedAt:    e.now(),
	}
	if err := e.repo.InsertUsage(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("Failed to record classifier usage")
	}
	return cost
}
