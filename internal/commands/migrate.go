package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	bq "github.com/dvloznov/bank-sync/internal/infra/bigquery"
	"github.com/dvloznov/bank-sync/internal/logger"
)

func newMigrateCommand(root *RootOptions) *cobra.Command {
	var (
		appliedBy string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending BigQuery schema migrations",
		Long: `Apply pending schema migrations to the configured BigQuery dataset.
The SQLite store creates its schema on open and needs no migration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if !strings.EqualFold(cfg.Store.Driver, "bigquery") {
				return fmt.Errorf("migrate: store.driver is %q, migrations only apply to bigquery", cfg.Store.Driver)
			}
			log := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
			ctx := logger.WithContext(cmd.Context(), log)

			ds := bq.Dataset{Project: cfg.Store.Project, ID: cfg.Store.Dataset}
			if dryRun {
				all, err := bq.Migrations(ds)
				if err != nil {
					return err
				}
				for _, m := range all {
					printf(cmd, "%04d %s\n", m.Version, m.Name)
				}
				return nil
			}

			st, err := bq.New(ctx, ds.Project, ds.ID)
			if err != nil {
				return err
			}
			defer st.Close()

			applied, err := st.Migrate(ctx, appliedBy, log)
			if err != nil {
				return err
			}
			printf(cmd, "applied %d migration(s) to %s.%s\n", applied, ds.Project, ds.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&appliedBy, "applied-by", defaultAppliedBy(), "recorded in schema_migrations.applied_by")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the embedded migrations without connecting")

	return cmd
}

func defaultAppliedBy() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "banksync"
}
