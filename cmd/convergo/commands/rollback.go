package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRollbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <action-id>",
		Short: "Restore one action's previous state",
		Long: `Rollback restores the state an action replaced, when its handler kept a
restorable copy. File actions declared with backup: true support this;
kinds without a recoverable previous state refuse.

Rollback never runs automatically; failed runs leave the host as-is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := buildService(ctx, 0)
			if err != nil {
				return err
			}
			defer cleanup()

			detail, err := svc.Rollback(ctx, manifestPath, args[0])
			if err != nil {
				return err
			}
			fmt.Println(detail)
			return nil
		},
	}

	return cmd
}
