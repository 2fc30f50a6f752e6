package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/convergo/convergo/pkg/engine"
)

func newApplyCommand() *cobra.Command {
	var (
		dryRun      bool
		autoApprove bool
		parallelism int
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the host toward the manifest's desired state",
		Long: `Apply plans and then executes: every action whose precondition does not
hold runs in dependency order, with transient failures retried under the
manifest's policy. A plan denied by an enforcing policy never executes.

Exit codes: 0 when the run succeeds, 1 otherwise.`,
		Example: `  # Converge with confirmation
  convergo apply

  # Unattended converge with history persistence
  convergo apply --auto-approve --db /var/lib/convergo/history.db

  # Show the plan and stop
  convergo apply --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := buildService(ctx, parallelism)
			if err != nil {
				return err
			}
			defer cleanup()

			prep, err := svc.Prepare(ctx, manifestPath)
			if err != nil {
				return err
			}

			if !jsonOutput {
				fmt.Print(engine.RenderPlanText(prep.Plan))
				printGateFindings(prep)
			}

			if dryRun {
				if !prep.Plan.Converged() {
					return &ExitError{Code: 2}
				}
				return nil
			}
			if prep.Plan.Converged() {
				return nil
			}

			if !autoApprove && !confirm("Apply these changes?") {
				fmt.Println("Apply cancelled.")
				return nil
			}

			report, err := svc.Apply(ctx, prep)
			if err != nil {
				return err
			}

			if jsonOutput {
				out, err := report.RenderJSON()
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			} else {
				fmt.Print(report.RenderText())
			}

			if report.Status != engine.RunStatusSuccess {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the plan without executing")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip the interactive confirmation")
	cmd.Flags().IntVarP(&parallelism, "parallelism", "p", 0, "override the manifest's parallelism")

	return cmd
}

// confirm prompts on stdin and accepts y or yes.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
