package categorize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/infra/sqlite"
	"github.com/dvloznov/bank-sync/internal/store"
)

type mockClassifier struct {
	ClassifyFunc func(ctx context.Context, descriptions []string, labels []string) (*Classification, error)
	calls        [][]string
}

func (m *mockClassifier) Classify(ctx context.Context, descriptions []string, labels []string) (*Classification, error) {
	m.calls = append(m.calls, append([]string(nil), descriptions...))
	return m.ClassifyFunc(ctx, descriptions, labels)
}

// lookupClassifier answers from a fixed description -> label table.
func lookupClassifier(table map[string]string) *mockClassifier {
	return &mockClassifier{ClassifyFunc: func(ctx context.Context, descriptions []string, labels []string) (*Classification, error) {
		out := make([]string, len(descriptions))
		for i, d := range descriptions {
			out[i] = table[d]
			if out[i] == "" {
				out[i] = "Shopping"
			}
		}
		return &Classification{
			Labels: out,
			Usage:  Usage{Model: "test-model", InputTokens: 1000, OutputTokens: 100, TotalTokens: 1100},
		}, nil
	}}
}

// usageFailingRepo fails every usage write.
type usageFailingRepo struct {
	Repository
}

func (r *usageFailingRepo) InsertUsage(ctx context.Context, rec *store.UsageRecord) error {
	return errors.New("api_costs is locked")
}

func seedStore(t *testing.T, descriptions ...string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "spending.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for i, d := range descriptions {
		_, err := s.InsertTransaction(context.Background(), &domain.Transaction{
			TransactionID:   fmt.Sprintf("t%d", i+1),
			AccountID:       "acc_1",
			Amount:          decimal.RequireFromString("-12.50"),
			Currency:        "GBP",
			Description:     d,
			TransactionDate: civil.Date{Year: 2025, Month: time.March, Day: 1}.AddDays(i),
			Timestamp:       "2025-03-01T00:00:00Z",
		})
		require.NoError(t, err)
	}
	return s
}

func categoryOf(t *testing.T, s *sqlite.Store, id string) *string {
	t.Helper()
	tx, err := s.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return tx.Category
}

func TestRun_PositionalMapping(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t, "TESCO STORES", "NETFLIX")
	c := lookupClassifier(map[string]string{"TESCO STORES": "Groceries", "NETFLIX": "Subscriptions"})

	out, err := NewEngine(s, c, zerolog.Nop()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Selected)
	assert.Equal(t, 1, out.Batches)
	assert.Equal(t, int64(2), out.Categorized)
	assert.Equal(t, int64(0), out.Remaining)

	require.NotNil(t, categoryOf(t, s, "t1"))
	assert.Equal(t, "Groceries", *categoryOf(t, s, "t1"))
	assert.Equal(t, "Subscriptions", *categoryOf(t, s, "t2"))
	assert.Equal(t, []string{"TESCO STORES", "NETFLIX"}, c.calls[0])
}

func TestRun_LengthMismatchFallsBackForWholeBatch(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t, "TESCO STORES", "NETFLIX")
	c := &mockClassifier{ClassifyFunc: func(ctx context.Context, d []string, l []string) (*Classification, error) {
		return &Classification{Labels: []string{"Groceries"}}, nil
	}}

	out, err := NewEngine(s, c, zerolog.Nop()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ContractViolations)
	assert.Equal(t, 2, out.Fallback)
	assert.Equal(t, domain.Uncategorized, *categoryOf(t, s, "t1"))
	assert.Equal(t, domain.Uncategorized, *categoryOf(t, s, "t2"))
}

func TestRun_UnparseableAnswerFallsBack(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t, "TESCO STORES")
	c := &mockClassifier{ClassifyFunc: func(ctx context.Context, d []string, l []string) (*Classification, error) {
		return &Classification{Usage: Usage{Model: "m", InputTokens: 10}}, fmt.Errorf("%w: not JSON", domain.ErrClassificationContract)
	}}

	out, err := NewEngine(s, c, zerolog.Nop()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ContractViolations)
	assert.Equal(t, 0, out.FailedBatches)
	assert.Equal(t, domain.Uncategorized, *categoryOf(t, s, "t1"))
}

func TestRun_BatchesAndCheckpoints(t *testing.T) {
	ctx := context.Background()
	descs := make([]string, 120)
	for i := range descs {
		descs[i] = fmt.Sprintf("SHOP %03d", i)
	}
	s := seedStore(t, descs...)

	calls := 0
	c := &mockClassifier{ClassifyFunc: func(ctx context.Context, d []string, l []string) (*Classification, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("503 model overloaded")
		}
		out := make([]string, len(d))
		for i := range out {
			out[i] = "Shopping"
		}
		return &Classification{Labels: out}, nil
	}}
	e := NewEngine(s, c, zerolog.Nop())

	out, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Batches)
	assert.Equal(t, 1, out.FailedBatches)
	assert.Equal(t, int64(70), out.Categorized)
	assert.Equal(t, int64(50), out.Remaining)
	require.Len(t, c.calls, 3)
	assert.Len(t, c.calls[0], 50)
	assert.Len(t, c.calls[1], 50)
	assert.Len(t, c.calls[2], 20)

	// The rerun picks up only the rows the failed batch left behind.
	out, err = e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, out.Selected)
	assert.Equal(t, 1, out.Batches)
	assert.Equal(t, int64(0), out.Remaining)
	assert.Equal(t, "SHOP 050", c.calls[3][0])
}

func TestRun_CompletenessAndClosedSet(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t, "TESCO", "UBER", "SALARY", "MYSTERY", "RENT")
	c := lookupClassifier(map[string]string{
		"TESCO":   "groceries",
		"UBER":    "Transport",
		"SALARY":  "Income",
		"MYSTERY": "Crypto",
		"RENT":    "HOUSING",
	})

	_, err := NewEngine(s, c, zerolog.Nop(), WithBatchSize(2)).Run(ctx)
	require.NoError(t, err)

	n, err := s.CountUncategorized(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 1; i <= 5; i++ {
		cat := categoryOf(t, s, fmt.Sprintf("t%d", i))
		require.NotNil(t, cat)
		assert.True(t, domain.IsCategory(*cat), *cat)
	}
	assert.Equal(t, domain.Uncategorized, *categoryOf(t, s, "t4"))
	assert.Equal(t, "Housing", *categoryOf(t, s, "t5"))
}

func TestRun_UsageAudit(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t, "TESCO", "UBER")
	c := lookupClassifier(nil)
	pricing, err := ParsePricing("0.30", "2.50")
	require.NoError(t, err)

	out, err := NewEngine(s, c, zerolog.Nop(), WithPricing(pricing), WithBatchSize(1)).Run(ctx)
	require.NoError(t, err)

	// 2 calls x (1000 x 0.30 + 100 x 2.50) / 1e6
	want := decimal.RequireFromString("0.0011")
	assert.True(t, out.Cost.Equal(want), out.Cost.String())

	total, err := s.TotalCost(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(want), total.String())
}

func TestRun_UsageFailureDoesNotBlockWrite(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t, "TESCO")
	c := lookupClassifier(map[string]string{"TESCO": "Groceries"})

	out, err := NewEngine(&usageFailingRepo{Repository: s}, c, zerolog.Nop()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Categorized)
	assert.Equal(t, "Groceries", *categoryOf(t, s, "t1"))
}

func TestRun_NothingToDo(t *testing.T) {
	c := &mockClassifier{ClassifyFunc: func(ctx context.Context, d []string, l []string) (*Classification, error) {
		t.Fatal("classifier must not be called")
		return nil, nil
	}}
	out, err := NewEngine(seedStore(t), c, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, out.Selected)
	assert.Zero(t, out.Batches)
}

func TestPricing_Cost(t *testing.T) {
	p, err := ParsePricing("0.30", "2.50")
	require.NoError(t, err)
	got := p.Cost(Usage{InputTokens: 2_000_000, OutputTokens: 400_000})
	assert.True(t, got.Equal(decimal.RequireFromString("1.6")), got.String())

	_, err = ParsePricing("abc", "1")
	assert.Error(t, err)
}
