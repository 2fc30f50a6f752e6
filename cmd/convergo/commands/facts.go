package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/convergo/convergo/pkg/manifest"
)

func newFactsCommand() *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Show the probed state of every action",
		Long: `Facts probes the host once and prints the verdict per action: satisfied,
unsatisfied, or unknown when the probe could not answer.

With --cached the live probe is skipped and the last persisted snapshot is
shown instead; entries past their freshness window are omitted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if cached {
				return showCachedFacts(cmd)
			}

			svc, cleanup, err := buildService(ctx, 0)
			if err != nil {
				return err
			}
			defer cleanup()

			prep, err := svc.Prepare(ctx, manifestPath)
			if err != nil {
				return err
			}

			if jsonOutput {
				out, err := json.MarshalIndent(prep.Snapshot, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "ACTION\tKIND\tVERDICT\tPROBED\tDETAIL\n")
			for _, id := range prep.Graph.Order {
				result := prep.Snapshot.Result(id)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					id, prep.Graph.Actions[id].Kind, result.Verdict,
					result.Duration.Round(time.Millisecond), result.Detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "show the persisted snapshot instead of probing")

	return cmd
}

// showCachedFacts reads the fact cache from the history database.
func showCachedFacts(cmd *cobra.Command) error {
	if dbPath == "" {
		return fmt.Errorf("--cached requires --db")
	}

	ctx := cmd.Context()
	store, cleanup, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	loaded, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ACTION\tVERDICT\tPROBED AT\tDETAIL\n")
	for _, action := range loaded.Actions {
		fact, err := store.GetFact(ctx, action.ID)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\tno fresh fact recorded\n", action.ID)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			action.ID, fact.Verdict, fact.ProbedAt.Format(time.RFC3339), fact.Detail)
	}
	return w.Flush()
}
