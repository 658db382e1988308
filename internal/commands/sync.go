package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bank-sync/internal/pipeline"
)

var errDegraded = errors.New("run finished with failures")

type syncOptions struct {
	mode   string
	strict bool
}

func newSyncCommand(root *RootOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync: accounts, transactions, balance snapshot and categorization",
		Long: `Run one sync. Scheduling is left to cron or a similar runner.

Modes:
  full          accounts, transactions, pending report, balance snapshot, categorization
  transactions  accounts and transactions only
  snapshot      accounts and today's balance snapshot only
  categorize    categorization only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := pipeline.ParseMode(opts.mode)
			if err != nil {
				return err
			}
			return runSync(cmd, root, mode, opts.strict)
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", string(pipeline.ModeFull), "what to run (full|transactions|snapshot|categorize)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit non-zero when any account, row or batch failed")

	return cmd
}

// newModeCommand is a shortcut for sync --mode <name>.
func newModeCommand(root *RootOptions, name, short string) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := pipeline.ParseMode(name)
			if err != nil {
				return err
			}
			return runSync(cmd, root, mode, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any account, row or batch failed")
	return cmd
}

func runSync(cmd *cobra.Command, root *RootOptions, mode pipeline.Mode, strict bool) error {
	ctx, a, err := root.build(cmd)
	if err != nil {
		return err
	}
	defer closeApp(a, a.Log)

	p, err := a.Pipeline(ctx, mode)
	if err != nil {
		return err
	}
	state := pipeline.NewState(mode)
	if err := p.Execute(ctx, state); err != nil {
		return err
	}

	writeSummary(cmd.OutOrStdout(), state)
	if strict && state.Summary.Degraded() {
		return errDegraded
	}
	return nil
}

func writeSummary(w io.Writer, state *pipeline.PipelineState) {
	s := state.Summary
	fmt.Fprintf(w, "run %s (%s)\n", state.RunID, state.Mode)
	if s.Accounts > 0 {
		fmt.Fprintf(w, "  accounts:      %d\n", s.Accounts)
	}
	if t := s.Transactions; t != nil {
		fmt.Fprintf(w, "  transactions:  %d fetched, %d new, %d already stored, %d failed\n",
			t.Fetched, t.Inserted, t.Duplicates, len(t.Failed))
		if len(t.Failed) > 0 {
			fmt.Fprintf(w, "    failed ids: %s\n", strings.Join(t.Failed, ", "))
		}
	}
	if len(s.TransactionFetchFailures) > 0 {
		fmt.Fprintf(w, "    accounts not fetched: %s\n", strings.Join(s.TransactionFetchFailures, ", "))
	}
	if state.Mode == pipeline.ModeFull {
		fmt.Fprintf(w, "  pending:       %d transactions, %d direct debits\n", s.PendingTransactions, s.DirectDebits)
	}
	if sn := s.Snapshot; sn != nil {
		fmt.Fprintf(w, "  snapshot %s: %d new, %d already taken, %d failed\n",
			sn.Date, sn.Inserted, sn.Skipped, len(sn.Failed))
	}
	if len(s.BalanceFetchFailures) > 0 {
		fmt.Fprintf(w, "    balances not fetched: %s\n", strings.Join(s.BalanceFetchFailures, ", "))
	}
	if c := s.Categorize; c != nil {
		fmt.Fprintf(w, "  categorized:   %d of %d in %d batches (%d Uncategorized, %d failed batches), cost %s\n",
			c.Categorized, c.Selected, c.Batches, c.Fallback, c.FailedBatches, c.Cost.StringFixed(6))
		if c.Remaining >= 0 {
			fmt.Fprintf(w, "  remaining:     %d without category\n", c.Remaining)
		}
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  FAILED %s: %v\n", f.Step, f.Err)
	}
}
