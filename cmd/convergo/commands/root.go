// Package commands implements the convergo CLI. Every command is a thin
// wrapper over the runner service; all convergence logic lives in the
// library packages.
package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/convergo/convergo/pkg/policy"
	"github.com/convergo/convergo/pkg/runner"
	"github.com/convergo/convergo/pkg/stores"
	"github.com/convergo/convergo/pkg/telemetry"
)

var (
	// Global flags
	manifestPath  string
	verbose       bool
	jsonOutput    bool
	dbPath        string
	policyPaths   []string
	advisoryGate  bool
	metricsListen string
)

// ExitError carries a process exit code through cobra without a message.
// Commands use it for status-bearing exits, like "plan has pending changes".
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "convergo",
		Short: "Convergo - declarative host provisioning engine",
		Long: `Convergo converges a host toward the desired state declared in a manifest:
packages, users, databases, rendered files, services, and shell steps.

Every run probes current state once, plans only the actions whose
preconditions do not hold, gates the plan through policies, and executes
in dependency order. Runs are idempotent; a converged host is a no-op.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "site.yaml", "manifest file path (.yaml, .yml, or .cue)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "run history database path (empty disables persistence)")
	rootCmd.PersistentFlags().StringSliceVar(&policyPaths, "policy", nil, "extra .rego policy files or directories")
	rootCmd.PersistentFlags().BoolVar(&advisoryGate, "advisory-policies", false, "report policy violations without blocking")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newFactsCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newRollbackCommand())
	rootCmd.AddCommand(newPoliciesCommand())

	return rootCmd
}

// newLogger builds the CLI logger from the global flags.
func newLogger() zerolog.Logger {
	cfg := telemetry.DefaultConfig().Logging
	if verbose {
		cfg.Level = "debug"
	}
	if jsonOutput {
		// Keep stdout clean for machine-readable command output.
		cfg.Format = "json"
	}
	log, err := telemetry.NewLogger(cfg)
	if err != nil {
		return zerolog.Nop()
	}
	return log
}

// openStore opens the history database when --db is set.
func openStore(ctx context.Context) (stores.Store, func(), error) {
	if dbPath == "" {
		return nil, func() {}, nil
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// buildService assembles the runner service from the global flags. The
// returned cleanup closes the store.
func buildService(ctx context.Context, parallelism int) (*runner.Service, func(), error) {
	log := newLogger()

	store, closeStore, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	mode := policy.ModeEnforcing
	if advisoryGate {
		mode = policy.ModeAdvisory
	}

	var metrics *telemetry.Metrics
	if metricsListen != "" {
		metrics, err = telemetry.NewMetrics(telemetry.MetricsConfig{
			Enabled:       true,
			ListenAddress: metricsListen,
			Path:          "/metrics",
			Namespace:     "convergo",
		})
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		metrics.StartServer(log)
	}

	svc, err := runner.New(runner.Options{
		Parallelism: parallelism,
		PolicyMode:  mode,
		PolicyPaths: policyPaths,
		Store:       store,
		Metrics:     metrics,
		Log:         log,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return svc, closeStore, nil
}
