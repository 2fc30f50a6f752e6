package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/manifest"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the manifest without touching the host",
		Long: `Validate parses the manifest, evaluates its vars script, and builds the
action graph. Duplicate IDs, dangling dependencies, cycles, and malformed
policy or action fields all surface here, before any probe runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}

			graph, err := engine.NewGraphBuilder().Build(loaded.Actions)
			if err != nil {
				return err
			}

			fmt.Printf("%s is valid: %d actions across %d levels\n",
				manifestPath, len(graph.Order), len(graph.Levels))
			if verbose {
				for i, level := range graph.Levels {
					fmt.Printf("  level %d: %v\n", i, level)
				}
			}
			return nil
		},
	}

	return cmd
}
