package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-sync/internal/categorize"
	"github.com/dvloznov/bank-sync/internal/config"
	"github.com/dvloznov/bank-sync/internal/ingest"
	"github.com/dvloznov/bank-sync/internal/pipeline"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "banksync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banksync.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Categorizer.BatchSize, cfg.Categorizer.BatchSize)

	_, err = execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "config", "init", "--force", path)
	assert.NoError(t, err)
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	t.Setenv("TL_CLIENT_SECRET", "s3cr3t")
	t.Setenv("GEMINI_API_KEY", "AIza-key")

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "s3cr3t")
	assert.NotContains(t, out, "AIza-key")
	assert.Contains(t, out, redacted)
	assert.Contains(t, out, "batch_size: 50")
}

func TestSync_UnknownMode(t *testing.T) {
	_, err := execute(t, "sync", "--mode", "everything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestAuth_RequiresCode(t *testing.T) {
	_, err := execute(t, "auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code")
}

func TestMigrate_RejectsSQLite(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: sqlite\n")
	_, err := execute(t, "--config", path, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only apply to bigquery")
}

func TestMigrate_DryRunListsEmbeddedMigrations(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: bigquery\n  project: my-project\n  dataset: finance\n")
	out, err := execute(t, "--config", path, "migrate", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "0001 create_tables")
}

func TestAccounts_FromCache(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "accounts.json")
	require.NoError(t, os.WriteFile(cache, []byte(`[
		{"account_id":"acc_1","display_name":"Current Account","account_type":"TRANSACTION","currency":"GBP"},
		{"account_id":"acc_2","display_name":"Savings","account_type":"SAVINGS","currency":"GBP"}
	]`), 0o600))
	path := writeConfig(t, fmt.Sprintf(`
credentials:
  backend: file
  path: %s
account_cache:
  backend: file
  path: %s
store:
  driver: sqlite
  path: %s
`, filepath.Join(dir, "tokens.json"), cache, filepath.Join(dir, "spending.db")))

	tests := []struct {
		field string
		want  string
	}{
		{"id", "acc_1\nacc_2\n"},
		{"name", "Current Account\nSavings\n"},
		{"type", "TRANSACTION\nSAVINGS\n"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			out, err := execute(t, "--config", path, "accounts", "--field", tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	out, err := execute(t, "--config", path, "accounts")
	require.NoError(t, err)
	assert.Equal(t, "acc_1\tCurrent Account\tTRANSACTION\tGBP\nacc_2\tSavings\tSAVINGS\tGBP\n", out)

	_, err = execute(t, "--config", path, "accounts", "--field", "balance")
	assert.Error(t, err)
}

func TestWriteSummary(t *testing.T) {
	state := &pipeline.PipelineState{
		RunID: "run-1",
		Mode:  pipeline.ModeFull,
		Summary: pipeline.Summary{
			Accounts:                 2,
			Transactions:             &ingest.Outcome{Accounts: 1, Fetched: 5, Inserted: 3, Duplicates: 1, Failed: []string{"t9"}},
			TransactionFetchFailures: []string{"acc_2"},
			PendingTransactions:      2,
			DirectDebits:             1,
			Snapshot:                 &ingest.SnapshotResult{Date: civil.Date{Year: 2025, Month: 3, Day: 14}, Inserted: 1},
			Categorize: &categorize.Outcome{
				Selected: 3, Batches: 1, Categorized: 3, Fallback: 1,
				Remaining: 0, Cost: decimal.RequireFromString("0.00055"),
			},
			Failures: []pipeline.Failure{{Step: "persist accounts", Err: errors.New("disk full")}},
		},
	}

	var buf bytes.Buffer
	writeSummary(&buf, state)

	want := "run run-1 (full)\n" +
		"  accounts:      2\n" +
		"  transactions:  5 fetched, 3 new, 1 already stored, 1 failed\n" +
		"    failed ids: t9\n" +
		"    accounts not fetched: acc_2\n" +
		"  pending:       2 transactions, 1 direct debits\n" +
		"  snapshot 2025-03-14: 1 new, 0 already taken, 0 failed\n" +
		"  categorized:   3 of 3 in 1 batches (1 Uncategorized, 0 failed batches), cost 0.000550\n" +
		"  remaining:     0 without category\n" +
		"  FAILED persist accounts: disk full\n"
	assert.Equal(t, want, buf.String())
}
