// Package pipeline assembles one sync run out of sequential steps.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-sync/internal/categorize"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/ingest"
	"github.com/dvloznov/bank-sync/internal/logger"
)

// Mode selects which parts of a sync run execute.
type Mode string

const (
	ModeFull         Mode = "full"
	ModeTransactions Mode = "transactions"
	ModeSnapshot     Mode = "snapshot"
	ModeCategorize   Mode = "categorize"
)

// Modes lists every valid Mode.
var Modes = []Mode{ModeFull, ModeTransactions, ModeSnapshot, ModeCategorize}

// ParseMode validates s as a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q (want one of %v)", s, Modes)
}

// Failure is a part of the run that failed without aborting it.
type Failure struct {
	Step string
	Err  error
}

// Summary is the outcome of one run. Nil sections did not run.
type Summary struct {
	Accounts                 int
	Transactions             *ingest.Outcome
	TransactionFetchFailures []string
	PendingTransactions      int
	DirectDebits             int
	Snapshot                 *ingest.SnapshotResult
	BalanceFetchFailures     []string
	Categorize               *categorize.Outcome
	Failures                 []Failure
}

func (s *Summary) recordFailure(step string, err error) {
	s.Failures = append(s.Failures, Failure{Step: step, Err: err})
}

// Degraded reports whether anything was skipped or failed along the way.
func (s *Summary) Degraded() bool {
	if len(s.Failures) > 0 || len(s.TransactionFetchFailures) > 0 || len(s.BalanceFetchFailures) > 0 {
		return true
	}
	if s.Transactions != nil && len(s.Transactions.Failed) > 0 {
		return true
	}
	if s.Snapshot != nil && len(s.Snapshot.Failed) > 0 {
		return true
	}
	if s.Categorize != nil && (s.Categorize.FailedBatches > 0 || s.Categorize.ContractViolations > 0) {
		return true
	}
	return false
}

// PipelineState holds the shared state across all steps of a run.
type PipelineState struct {
	RunID     string
	Mode      Mode
	StartedAt time.Time
	Token     string
	Accounts  []domain.Account
	Summary   Summary
}

// NewState starts the state of a fresh run.
func NewState(mode Mode) *PipelineState {
	return &PipelineState{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
	log   zerolog.Logger
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(log zerolog.Logger, steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps, log: log}
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs all steps sequentially. The first step error aborts the
// run; failures a step can isolate end up in state.Summary instead.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := p.log.With().Str("run_id", state.RunID).Str("mode", string(state.Mode)).Logger()
	ctx = logger.WithContext(ctx, log)

	log.Info().Strs("steps", p.Steps()).Msg("Sync run started")
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d (%s) not started: %w", i+1, step.Name(), err)
		}
		started := time.Now()
		if err := step.Execute(ctx, state); err != nil {
			log.Error().Err(err).Str("step", step.Name()).Msg("Sync run aborted")
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		log.Debug().Str("step", step.Name()).Dur("took", time.Since(started)).Msg("Step finished")
	}
	log.Info().
		Bool("degraded", state.Summary.Degraded()).
		Dur("took", time.Since(state.StartedAt)).
		Msg("Sync run finished")
	return nil
}

// NewSyncPipeline creates the pipeline for mode out of deps.
func NewSyncPipeline(mode Mode, deps Deps, log zerolog.Logger) (*Pipeline, error) {
	if err := deps.check(mode); err != nil {
		return nil, err
	}

	auth := &AuthenticateStep{Tokens: deps.Tokens}
	accounts := &FetchAccountsStep{Accounts: deps.Accounts, Ingest: deps.Ingest}

	switch mode {
	case ModeFull:
		return NewPipeline(log,
			auth,
			accounts,
			&IngestTransactionsStep{Accounts: deps.Accounts, Ingest: deps.Ingest},
			&ReportPendingStep{Accounts: deps.Accounts},
			&SnapshotBalancesStep{Accounts: deps.Accounts, Ingest: deps.Ingest},
			&CategorizeStep{Categorize: deps.Categorize},
		), nil
	case ModeTransactions:
		return NewPipeline(log,
			auth,
			accounts,
			&IngestTransactionsStep{Accounts: deps.Accounts, Ingest: deps.Ingest},
		), nil
	case ModeSnapshot:
		return NewPipeline(log,
			auth,
			accounts,
			&SnapshotBalancesStep{Accounts: deps.Accounts, Ingest: deps.Ingest},
		), nil
	case ModeCategorize:
		return NewPipeline(log, &CategorizeStep{Categorize: deps.Categorize}), nil
	}
	return nil, fmt.Errorf("NewSyncPipeline: unknown mode %q", mode)
}

func (d Deps) check(mode Mode) error {
	var missing []string
	if mode != ModeCategorize {
		if d.Tokens == nil {
			missing = append(missing, "token source")
		}
		if d.Accounts == nil {
			missing = append(missing, "account fetcher")
		}
		if d.Ingest == nil {
			missing = append(missing, "ingester")
		}
	}
	if (mode == ModeFull || mode == ModeCategorize) && d.Categorize == nil {
		missing = append(missing, "categorizer")
	}
	if len(missing) > 0 {
		return fmt.Errorf("NewSyncPipeline(%s): missing %s", mode, strings.Join(missing, ", "))
	}
	return nil
}
