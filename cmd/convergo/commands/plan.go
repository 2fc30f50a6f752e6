package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/runner"
)

func newPlanCommand() *cobra.Command {
	var dotFile string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a run would change without mutating the host",
		Long: `Plan probes the host's current state, decides per action whether its
precondition already holds, and prints the resulting skip/execute set.
Nothing on the host changes.

Exit codes: 0 when the host is converged, 2 when changes are pending.`,
		Example: `  # Plan against the default manifest
  convergo plan

  # Machine-readable plan plus a Graphviz rendering of the action graph
  convergo plan --json --dot actions.dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := buildService(ctx, 0)
			if err != nil {
				return err
			}
			defer cleanup()

			prep, err := svc.Prepare(ctx, manifestPath)
			if err != nil {
				return err
			}

			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(prep.Graph.ToDOT()), 0o644); err != nil {
					return fmt.Errorf("failed to write DOT graph: %w", err)
				}
			}

			if jsonOutput {
				out, err := json.MarshalIndent(struct {
					Plan *engine.Plan `json:"plan"`
					Gate interface{}  `json:"gate"`
				}{prep.Plan, prep.Gate}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			} else {
				fmt.Print(engine.RenderPlanText(prep.Plan))
				printGateFindings(prep)
			}

			if !prep.Plan.Converged() {
				return &ExitError{Code: 2}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dotFile, "dot", "", "write the action graph in DOT format to this file")

	return cmd
}

// printGateFindings lists policy findings under the plan table.
func printGateFindings(prep *runner.Preparation) {
	for _, v := range prep.Gate.Violations {
		fmt.Printf("policy violation: %s: %s\n", v.Policy, v.Message)
	}
	for _, w := range prep.Gate.Warnings {
		fmt.Printf("policy warning: %s: %s\n", w.Policy, w.Message)
	}
}
